package execagent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/mattjoyce/meshmgr/internal/agent"
	"github.com/mattjoyce/meshmgr/internal/log"
)

const (
	// maxStderrBytes caps the amount of stderr captured from an invocation.
	maxStderrBytes = 64 * 1024

	// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	terminationGracePeriod = 5 * time.Second

	pipeWaitDelay = 2 * time.Second

	// DefaultTimeout bounds an invocation when neither manifest nor config set one.
	DefaultTimeout = 5 * time.Minute
)

// ErrTimeout is returned when the exec agent had to be terminated.
var ErrTimeout = errors.New("exec agent timed out")

// Handler adapts a discovered Plugin to agent.Handler.
type Handler struct {
	plugin     *Plugin
	timeout    time.Duration
	grace      time.Duration
	credential string
	logger     *slog.Logger
}

var (
	_ agent.Handler          = (*Handler)(nil)
	_ agent.CredentialSetter = (*Handler)(nil)
	_ agent.SchemaProvider   = (*Handler)(nil)
)

// NewHandler builds a handler for p. A zero p.Timeout falls back to
// defaultTimeout, and a zero defaultTimeout to DefaultTimeout.
func NewHandler(p *Plugin, defaultTimeout time.Duration, logger *slog.Logger) *Handler {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Handler{
		plugin:  p,
		timeout: timeout,
		grace:   terminationGracePeriod,
		logger:  log.WithAgent(log.OrDiscard(logger), p.Name),
	}
}

// Descriptors turns discovered plugins into registration descriptors.
func Descriptors(plugins []*Plugin, defaultTimeout time.Duration, logger *slog.Logger) []agent.Descriptor {
	out := make([]agent.Descriptor, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, agent.Descriptor{
			ID:     p.Name,
			New:    func() agent.Handler { return NewHandler(p, defaultTimeout, logger) },
			Source: agent.SourceExec,
			Module: p.Path,
		})
	}
	return out
}

func (h *Handler) Metadata() agent.Metadata { return h.plugin.Metadata }

func (h *Handler) ToolSchemas() []agent.ToolSchema { return h.plugin.Tools }

func (h *Handler) SetCredential(token string) { h.credential = token }

// Cleanup is a no-op: every invocation owns its process and reaps it.
func (h *Handler) Cleanup(context.Context) error { return nil }

// Invoke spawns the entrypoint and exchanges one request/response.
func (h *Handler) Invoke(ctx context.Context, input map[string]any) (map[string]any, error) {
	req := &Request{
		Protocol:   supportedProtocol,
		AgentID:    h.plugin.Name,
		Command:    invokeCommand,
		Input:      input,
		Credential: h.credential,
		DeadlineAt: time.Now().Add(h.timeout),
	}

	resp, stderr, err := h.spawn(ctx, req)
	if stderr != "" {
		h.logger.Debug("exec agent stderr", "stderr", stderr)
	}
	if err != nil {
		return nil, err
	}

	for _, entry := range resp.Logs {
		h.logger.Log(ctx, log.ParseLevel(entry.Level), entry.Message, "source", "exec_agent")
	}

	if resp.Status == "error" {
		return nil, errors.New(resp.Error)
	}
	if resp.Output == nil {
		return map[string]any{}, nil
	}
	return resp.Output, nil
}

// spawn runs the subprocess, writes the request to stdin, and reads the
// response from stdout. Returns the response, truncated stderr, and any error.
func (h *Handler) spawn(ctx context.Context, req *Request) (*Response, string, error) {
	timeoutTimer := time.NewTimer(h.timeout)
	defer timeoutTimer.Stop()

	// Not CommandContext: termination is managed here so SIGTERM comes first.
	cmd := exec.Command(h.plugin.Entrypoint)
	cmd.Dir = h.plugin.Path
	// Children that inherit stdout must not hold Wait open after the agent exits.
	cmd.WaitDelay = pipeWaitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, "", fmt.Errorf("create stdin pipe: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	h.logger.Debug("spawning exec agent", "entrypoint", h.plugin.Entrypoint, "timeout", h.timeout)

	if err := cmd.Start(); err != nil {
		return nil, "", fmt.Errorf("start process: %w", err)
	}

	writeErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		writeErr <- EncodeRequest(stdin, req)
	}()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var stopErr error
	select {
	case <-timeoutTimer.C:
		stopErr = fmt.Errorf("%w after %s", ErrTimeout, h.timeout)
	case <-ctx.Done():
		stopErr = ctx.Err()
	case err := <-waitErr:
		stderrStr := truncateStderr(stderr.String())
		if werr := <-writeErr; werr != nil {
			return nil, stderrStr, werr
		}
		if err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return nil, stderrStr, fmt.Errorf("wait for process: %w", err)
			}
			h.logger.Warn("exec agent exited with non-zero status", "exit_code", exitErr.ExitCode())
		}

		resp, raw, err := DecodeResponse(bytes.NewReader(stdout.Bytes()))
		if err != nil {
			h.logger.Error("failed to decode exec agent response", "error", err, "stdout", string(raw))
			return nil, stderrStr, fmt.Errorf("decode response: %w", err)
		}
		return resp, stderrStr, nil
	}

	h.terminate(cmd, waitErr)
	return nil, truncateStderr(stderr.String()), stopErr
}

// terminate sends SIGTERM, waits the grace period, then SIGKILL.
func (h *Handler) terminate(cmd *exec.Cmd, waitErr <-chan error) {
	h.logger.Warn("stopping exec agent, sending SIGTERM")
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		h.logger.Error("failed to send SIGTERM", "error", err)
	}

	grace := time.NewTimer(h.grace)
	defer grace.Stop()

	select {
	case <-waitErr:
		h.logger.Info("exec agent exited after SIGTERM")
	case <-grace.C:
		h.logger.Warn("exec agent did not exit after SIGTERM, sending SIGKILL")
		if err := cmd.Process.Kill(); err != nil {
			h.logger.Error("failed to send SIGKILL", "error", err)
		}
		<-waitErr
	}
}

func truncateStderr(s string) string {
	if len(s) > maxStderrBytes {
		return s[:maxStderrBytes]
	}
	return s
}
