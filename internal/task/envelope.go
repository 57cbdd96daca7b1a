// Package task holds the unit of work received from the dispatch server, the
// result reported back for it, and the processor that turns one into the
// other.
package task

import "maps"

// OriginTaskIDKey is the input key carrying the id of the task that started
// a chain of delegated tasks.
const OriginTaskIDKey = "origin_task_id"

// Envelope is one task as received from a poll.
type Envelope struct {
	TaskID       string
	OriginTaskID string
	Input        map[string]any
	// Credential is forwarded to handlers implementing agent.CredentialSetter.
	Credential string
}

// NewEnvelope builds an envelope, defaulting the origin id to the task id.
func NewEnvelope(taskID, originTaskID string, input map[string]any, credential string) *Envelope {
	if originTaskID == "" {
		originTaskID = taskID
	}
	if input == nil {
		input = map[string]any{}
	}
	return &Envelope{
		TaskID:       taskID,
		OriginTaskID: originTaskID,
		Input:        input,
		Credential:   credential,
	}
}

// HandlerInput returns a copy of the input with origin_task_id set unless the
// server already supplied one.
func (e *Envelope) HandlerInput() map[string]any {
	in := make(map[string]any, len(e.Input)+1)
	maps.Copy(in, e.Input)
	if _, ok := in[OriginTaskIDKey]; !ok {
		in[OriginTaskIDKey] = e.OriginTaskID
	}
	return in
}
