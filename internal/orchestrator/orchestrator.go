// Package orchestrator owns the dispatch session and runs one poll loop per
// registered handler until shutdown.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/meshmgr/internal/agent"
	"github.com/mattjoyce/meshmgr/internal/config"
	"github.com/mattjoyce/meshmgr/internal/events"
	"github.com/mattjoyce/meshmgr/internal/log"
	"github.com/mattjoyce/meshmgr/internal/loop"
	"github.com/mattjoyce/meshmgr/internal/mesh"
	"github.com/mattjoyce/meshmgr/internal/metrics"
	"github.com/mattjoyce/meshmgr/internal/task"
)

// ErrAlreadyRunning is returned by Run when a previous Run has not returned.
var ErrAlreadyRunning = errors.New("orchestrator already running")

// FatalError is a panic that escaped a poll loop's own recovery.
type FatalError struct {
	AgentID string
	Value   any
	Stack   []byte
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("poll loop for %s crashed: %v", e.AgentID, e.Value)
}

// LoopStatus is a point-in-time view of one poll loop.
type LoopStatus struct {
	AgentID     string   `json:"agent_id"`
	Source      string   `json:"source"`
	State       string   `json:"state"`
	ActiveTasks []string `json:"active_tasks"`
}

// Orchestrator runs the poll loops. Run and Shutdown may be called from
// different goroutines.
type Orchestrator struct {
	mesh        config.MeshConfig
	logger      *slog.Logger
	sessionOpts []mesh.SessionOption
	observers   loop.Observers
	metrics     *metrics.Metrics

	mu       sync.Mutex
	running  bool
	stopping bool
	cancel   context.CancelFunc
	done     chan struct{}
	loops    []*loop.Loop
	descs    map[string]agent.Descriptor
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSessionOptions passes options to the shared session, e.g. a custom
// transport.
func WithSessionOptions(opts ...mesh.SessionOption) Option {
	return func(o *Orchestrator) { o.sessionOpts = append(o.sessionOpts, opts...) }
}

// WithObserver adds a loop observer. Observers must not block.
func WithObserver(obs loop.Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithEvents publishes loop events to hub.
func WithEvents(hub *events.Hub) Option {
	return func(o *Orchestrator) {
		if hub != nil {
			o.observers = append(o.observers, hubPublisher{hub: hub})
		}
	}
}

// WithMetrics records loop events in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
			o.observers = append(o.observers, m)
		}
	}
}

// New creates an orchestrator for cfg.Mesh.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		mesh:   cfg.Mesh,
		logger: log.WithComponent(logger, "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run starts one loop per handler and blocks until every loop has stopped.
// Cancelling ctx or calling Shutdown is a normal stop and returns nil, even
// when Shutdown came first and no loop was ever started. A FatalError from any loop stops the others and is returned. The session is
// closed after the last loop has drained.
func (o *Orchestrator) Run(ctx context.Context, handlers map[string]agent.Descriptor) error {
	if len(handlers) == 0 {
		o.logger.Warn("no agents to run")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	session := mesh.NewSession(o.sessionOpts...)
	client := mesh.NewClient(session, o.mesh.ServerURL, o.mesh.AuthToken, o.mesh.AgentType, o.logger)
	processor := task.NewProcessor(o.logger)
	loopCfg := loop.Config{
		PollTimeout:   o.mesh.PollInterval,
		SubmitTimeout: o.mesh.SubmitTimeout,
		ErrorBackoff:  o.mesh.PollErrorBackoff,
	}

	ids := make([]string, 0, len(handlers))
	for id := range handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	loops := make([]*loop.Loop, 0, len(ids))
	for _, id := range ids {
		if o.metrics != nil {
			o.metrics.InitAgent(id)
		}
		loops = append(loops, loop.New(handlers[id], client, processor, loopCfg, o.observers, o.logger))
	}

	done := make(chan struct{})
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		_ = session.Close()
		return ErrAlreadyRunning
	}
	if o.stopping {
		o.mu.Unlock()
		_ = session.Close()
		o.logger.Info("shutdown already requested, not starting poll loops")
		return nil
	}
	o.running = true
	o.cancel = cancel
	o.done = done
	o.loops = loops
	o.descs = handlers
	o.mu.Unlock()

	defer func() {
		if err := session.Close(); err != nil {
			o.logger.Warn("closing session", "error", err)
		}
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		close(done)
	}()

	o.logger.Info("starting poll loops", "count", len(loops), "server_url", o.mesh.ServerURL)

	g, gctx := errgroup.WithContext(runCtx)
	for _, l := range loops {
		g.Go(func() error { return runLoop(gctx, l) })
	}
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		o.logger.Error("fatal error, all poll loops stopped", "error", err)
		return err
	}
	o.logger.Info("all poll loops stopped")
	return nil
}

// runLoop turns a panic escaping l into a FatalError.
func runLoop(ctx context.Context, l *loop.Loop) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &FatalError{AgentID: l.ID(), Value: r, Stack: debug.Stack()}
		}
	}()
	return l.Run(ctx)
}

// Shutdown cancels every loop and waits for Run to finish draining or for
// ctx to expire. It is safe to call more than once. Shutdown is sticky: a Run
// that has not started its loops yet returns nil without starting them.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.stopping = true
	cancel, done, running := o.cancel, o.done, o.running
	o.mu.Unlock()
	if !running {
		return nil
	}

	o.logger.Info("shutting down")
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for poll loops: %w", ctx.Err())
	}
}

// Status reports every loop of the current or most recent Run, sorted by id.
func (o *Orchestrator) Status() []LoopStatus {
	o.mu.Lock()
	loops, descs := o.loops, o.descs
	o.mu.Unlock()

	out := make([]LoopStatus, 0, len(loops))
	for _, l := range loops {
		active := l.ActiveTasks()
		if active == nil {
			active = []string{}
		}
		out = append(out, LoopStatus{
			AgentID:     l.ID(),
			Source:      string(descs[l.ID()].Source),
			State:       l.State().String(),
			ActiveTasks: active,
		})
	}
	return out
}
