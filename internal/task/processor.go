package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/meshmgr/internal/agent"
	"github.com/mattjoyce/meshmgr/internal/log"
)

// Processor runs one task through a freshly built handler.
type Processor struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewProcessor returns a Processor that logs through logger.
func NewProcessor(logger *slog.Logger) *Processor {
	return &Processor{
		logger: log.WithComponent(logger, "processor"),
		now:    time.Now,
	}
}

// Process never returns an error: handler failures and panics, including a
// panicking factory, become a failed Result. Cleanup runs exactly once after
// the outcome is known, and only when a handler was built.
func (p *Processor) Process(ctx context.Context, d agent.Descriptor, env *Envelope) Result {
	logger := log.WithTask(log.WithAgent(p.logger, d.ID), env.TaskID)

	h, err := newHandler(d)
	if err != nil {
		logger.Error("handler construction failed", "error", err)
		return FromOutcome(agent.Fail(err), 0)
	}
	defer func() {
		if err := cleanup(ctx, h); err != nil {
			logger.Warn("handler cleanup failed", "error", err)
		}
	}()

	if env.Credential != "" {
		if cs, ok := h.(agent.CredentialSetter); ok {
			cs.SetCredential(env.Credential)
		}
	}

	input := env.HandlerInput()
	start := p.now()
	out := agent.Call(ctx, h, input)
	latency := p.now().Sub(start)

	if !out.Succeeded() {
		logger.Error("handler invocation failed", "error", out.Err)
	}
	return FromOutcome(out, latency)
}

// newHandler turns a panicking or nil-returning factory into an error.
func newHandler(d agent.Descriptor) (h agent.Handler, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, fmt.Errorf("%w constructing handler: %v", agent.ErrPanic, r)
		}
	}()
	if d.New == nil {
		return nil, fmt.Errorf("agent %s has no handler factory", d.ID)
	}
	if h = d.New(); h == nil {
		return nil, fmt.Errorf("agent %s: handler factory returned nil", d.ID)
	}
	return h, nil
}

// cleanup shields the caller from a panicking Cleanup.
func cleanup(ctx context.Context, h agent.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w in cleanup: %v", agent.ErrPanic, r)
		}
	}()
	// Cleanup must run even when the task context is already cancelled.
	return h.Cleanup(context.WithoutCancel(ctx))
}
