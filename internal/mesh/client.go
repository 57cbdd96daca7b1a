package mesh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mattjoyce/meshmgr/internal/log"
	"github.com/mattjoyce/meshmgr/internal/protocol"
	"github.com/mattjoyce/meshmgr/internal/task"
)

const (
	pollPath   = "/mesh_manager_poll"
	submitPath = "/mesh_manager_submit"

	// maxErrorBody caps how much of a non-2xx body is kept in an error.
	maxErrorBody = 512
)

var errSessionClosed = errors.New("session closed")

// Client is the dispatch-server queue client.
type Client struct {
	session   *Session
	baseURL   string
	authToken string
	agentType string
	logger    *slog.Logger
}

// NewClient builds a client over a shared session.
func NewClient(session *Session, baseURL, authToken, agentType string, logger *slog.Logger) *Client {
	if agentType == "" {
		agentType = protocol.AgentTypeAgent
	}
	return &Client{
		session:   session,
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		agentType: agentType,
		logger:    log.WithComponent(logger, "mesh_client"),
	}
}

// PollTask asks for a task for agentID. It returns (nil, nil) when the
// server has no task and a *PollError on any failure.
func (c *Client) PollTask(ctx context.Context, agentID string) (*task.Envelope, error) {
	status, body, err := c.post(ctx, pollPath, protocol.NewPollRequest(agentID, c.agentType))
	if err != nil {
		return nil, &PollError{AgentID: agentID, Status: status, Err: err}
	}
	defer body.Close()

	resp, err := protocol.DecodePollResponse(body)
	if err != nil {
		return nil, &PollError{AgentID: agentID, Status: status, Err: err}
	}
	if !resp.HasTask() {
		return nil, nil
	}
	return task.NewEnvelope(resp.TaskID, resp.OriginTaskID, resp.Input, resp.HeuristAPIKey), nil
}

// SubmitResult reports res for taskID. It returns a *SubmitError on any
// failure and is never retried.
func (c *Client) SubmitResult(ctx context.Context, agentID, taskID string, res task.Result) (protocol.SubmitResponse, error) {
	req := &protocol.SubmitRequest{
		TaskID:           taskID,
		AgentID:          agentID,
		AgentType:        c.agentType,
		Results:          res.WirePayload(),
		InferenceLatency: res.WireLatency(),
	}
	status, body, err := c.post(ctx, submitPath, req)
	if err != nil {
		return nil, &SubmitError{AgentID: agentID, TaskID: taskID, Status: status, Err: err}
	}
	defer body.Close()

	ack, err := protocol.DecodeSubmitResponse(body)
	if err != nil {
		return nil, &SubmitError{AgentID: agentID, TaskID: taskID, Status: status, Err: err}
	}
	c.logger.Debug("result submitted", "agent_id", agentID, "task_id", taskID)
	return ack, nil
}

// post sends a JSON body and returns the response body on 2xx.
// The caller closes the body.
func (c *Client) post(ctx context.Context, path string, payload any) (int, io.ReadCloser, error) {
	if c.session.Closed() {
		return 0, nil, errSessionClosed
	}
	body, err := protocol.Encode(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", c.authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.session.HTTPClient().Do(req)
	if err != nil {
		return 0, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, nil, fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	return resp.StatusCode, resp.Body, nil
}
