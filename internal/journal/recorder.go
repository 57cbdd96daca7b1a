package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/meshmgr/internal/log"
	"github.com/mattjoyce/meshmgr/internal/loop"
)

const (
	recorderBacklog = 256
	writeTimeout    = 5 * time.Second
)

// Recorder turns loop events into journal entries on a background
// goroutine. Observe never blocks; write failures are logged and dropped.
type Recorder struct {
	journal *Journal
	logger  *slog.Logger
	entries chan Entry

	mu      sync.Mutex
	closed  bool
	started map[string]time.Time // agent id → task start

	done chan struct{}
}

// NewRecorder starts the writer goroutine. Call Close to flush and stop it.
func NewRecorder(j *Journal, logger *slog.Logger) *Recorder {
	r := &Recorder{
		journal: j,
		logger:  log.WithComponent(logger, "journal"),
		entries: make(chan Entry, recorderBacklog),
		started: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Observe implements loop.Observer.
func (r *Recorder) Observe(ev loop.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	switch ev.Kind {
	case loop.EventTaskStarted:
		r.started[ev.AgentID] = ev.At
		return
	case loop.EventTaskCompleted, loop.EventTaskFailed:
	default:
		return
	}

	startedAt, ok := r.started[ev.AgentID]
	if !ok {
		startedAt = ev.At
	}
	delete(r.started, ev.AgentID)

	e := Entry{
		AgentID:      ev.AgentID,
		TaskID:       ev.TaskID,
		OriginTaskID: ev.OriginTaskID,
		Submitted:    ev.Submitted,
		StartedAt:    startedAt,
		CompletedAt:  ev.At,
	}
	if ev.Result != nil {
		e.Success = ev.Result.Success
		e.Error = ev.Result.Error
		e.InferenceLatency = ev.Result.WireLatency()
	}
	if ev.Err != nil {
		e.SubmitError = ev.Err.Error()
	}

	select {
	case r.entries <- e:
	default:
		r.logger.Warn("journal backlog full, entry dropped", "agent_id", e.AgentID, "task_id", e.TaskID)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.entries {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if _, err := r.journal.Record(ctx, e); err != nil {
			r.logger.Error("journal write failed", "agent_id", e.AgentID, "task_id", e.TaskID, "error", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits for queued entries to be written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.entries)
	}
	r.mu.Unlock()
	<-r.done
}
