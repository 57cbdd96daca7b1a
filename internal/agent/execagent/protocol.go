package execagent

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

const invokeCommand = "invoke"

// Request is the envelope written to an exec agent's stdin.
type Request struct {
	Protocol   int            `json:"protocol"`
	AgentID    string         `json:"agent_id"`
	Command    string         `json:"command"`
	Input      map[string]any `json:"input"`
	Credential string         `json:"credential,omitempty"`
	DeadlineAt time.Time      `json:"deadline_at"`
}

// Response is the envelope read from an exec agent's stdout.
type Response struct {
	Status string         `json:"status"` // ok | error
	Error  string         `json:"error,omitempty"`
	Output map[string]any `json:"output,omitempty"`
	Logs   []LogEntry     `json:"logs,omitempty"`
}

// LogEntry is a log line forwarded by the exec agent.
type LogEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// EncodeRequest serializes a Request to JSON and writes it to w.
func EncodeRequest(w io.Writer, req *Request) error {
	if req.Protocol != supportedProtocol {
		return fmt.Errorf("unsupported protocol version: %d", req.Protocol)
	}
	if err := json.NewEncoder(w).Encode(req); err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return nil
}

// DecodeResponse reads the whole of r and validates it as a Response.
// The raw bytes are returned alongside any error to help debug protocol
// violations.
func DecodeResponse(r io.Reader) (*Response, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) == 0 {
		return nil, data, fmt.Errorf("exec agent produced no output on stdout")
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, data, fmt.Errorf("exec agent output is not valid JSON: %w", err)
	}

	switch resp.Status {
	case "":
		return nil, data, fmt.Errorf("response missing required field: status")
	case "ok":
	case "error":
		if resp.Error == "" {
			return nil, data, fmt.Errorf("response has status=error but no error message")
		}
	default:
		return nil, data, fmt.Errorf("invalid status value: %q (must be 'ok' or 'error')", resp.Status)
	}
	return &resp, data, nil
}
