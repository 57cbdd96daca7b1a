package mesh

import "fmt"

// PollError is a transport, status or parse failure during a poll.
// Poll loops treat it as "no task this cycle".
type PollError struct {
	AgentID string
	Status  int // HTTP status, 0 when no response was received
	Err     error
}

func (e *PollError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("poll %s: status %d: %v", e.AgentID, e.Status, e.Err)
	}
	return fmt.Sprintf("poll %s: %v", e.AgentID, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// SubmitError is a transport, status or parse failure during a submit.
// The result is dropped; submissions are never retried.
type SubmitError struct {
	AgentID string
	TaskID  string
	Status  int
	Err     error
}

func (e *SubmitError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("submit %s task %s: status %d: %v", e.AgentID, e.TaskID, e.Status, e.Err)
	}
	return fmt.Sprintf("submit %s task %s: %v", e.AgentID, e.TaskID, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }
