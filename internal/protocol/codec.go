package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// NewPollRequest builds the poll body for a single handler.
func NewPollRequest(agentID, agentType string) *PollRequest {
	if agentType == "" {
		agentType = AgentTypeAgent
	}
	return &PollRequest{AgentInfo: []AgentInfo{{AgentID: agentID, AgentType: agentType}}}
}

// Encode serializes v to a JSON body.
func Encode(v any) (*bytes.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}
	return bytes.NewReader(data), nil
}

// DecodePollResponse parses a poll body. An empty body or a JSON null means
// no task.
func DecodePollResponse(r io.Reader) (*PollResponse, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read poll response: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return &PollResponse{}, nil
	}

	var resp PollResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode poll response: %w", err)
	}
	if resp.HasTask() && resp.TaskID == "" {
		return nil, fmt.Errorf("poll response has input but no task_id")
	}
	return &resp, nil
}

// DecodeSubmitResponse parses a submit acknowledgement. An empty body is a
// valid acknowledgement.
func DecodeSubmitResponse(r io.Reader) (SubmitResponse, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read submit response: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return SubmitResponse{}, nil
	}

	var ack SubmitResponse
	if err := json.Unmarshal(data, &ack); err != nil {
		return nil, fmt.Errorf("failed to decode submit response: %w", err)
	}
	if ack == nil {
		ack = SubmitResponse{}
	}
	return ack, nil
}
