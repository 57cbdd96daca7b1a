// Package protocol defines the JSON bodies exchanged with the dispatch server.
package protocol

// AgentTypeAgent is the only agent_type the dispatch server issues tasks for.
const AgentTypeAgent = "AGENT"

// AgentInfo identifies the handler a poll is made for.
type AgentInfo struct {
	AgentID   string `json:"agent_id"`
	AgentType string `json:"agent_type"`
}

// PollRequest is the body of POST /mesh_manager_poll.
type PollRequest struct {
	AgentInfo []AgentInfo `json:"agent_info"`
}

// PollResponse is the body returned by a poll. A response without an input
// carries no task.
type PollResponse struct {
	TaskID       string         `json:"task_id,omitempty"`
	Input        map[string]any `json:"input,omitempty"`
	OriginTaskID string         `json:"origin_task_id,omitempty"`
	// HeuristAPIKey is the per-task credential forwarded to the handler.
	HeuristAPIKey string `json:"heurist_api_key,omitempty"`
}

// HasTask reports whether the response carries a task.
func (r *PollResponse) HasTask() bool {
	return r != nil && r.Input != nil
}

// SubmitRequest is the body of POST /mesh_manager_submit.
type SubmitRequest struct {
	TaskID           string         `json:"task_id"`
	AgentID          string         `json:"agent_id"`
	AgentType        string         `json:"agent_type"`
	Results          map[string]any `json:"results"`
	InferenceLatency float64        `json:"inference_latency"`
}

// SubmitResponse is the acknowledgement returned by a submit. The server's
// acknowledgement shape is not fixed, so it is kept as a generic object.
type SubmitResponse map[string]any
