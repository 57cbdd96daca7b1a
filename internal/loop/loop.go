// Package loop runs the per-handler poll, process and submit cycle.
//
// One Loop exists per registered handler id. Within a loop tasks are handled
// strictly one at a time; loops for different handlers are independent.
// Every iteration is its own failure boundary: poll failures count as "no
// task", handler failures become failed results, and a failed submission is
// logged and dropped. Only cancellation of the context ends Run.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/meshmgr/internal/agent"
	"github.com/mattjoyce/meshmgr/internal/log"
	"github.com/mattjoyce/meshmgr/internal/task"
)

// Config holds the timing knobs of a loop.
type Config struct {
	// PollTimeout bounds a single poll request.
	PollTimeout time.Duration
	// SubmitTimeout bounds a single submit request. Zero means no bound
	// beyond the loop context.
	SubmitTimeout time.Duration
	// ErrorBackoff is slept after a failed poll or iteration. Zero re-polls
	// immediately.
	ErrorBackoff time.Duration
}

// Loop is the state machine for one handler id.
type Loop struct {
	desc      agent.Descriptor
	client    QueueClient
	processor *task.Processor
	cfg       Config
	active    *task.ActiveSet
	state     atomic.Int32
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a loop. A nil observer is allowed.
func New(desc agent.Descriptor, client QueueClient, processor *task.Processor, cfg Config, observer Observer, logger *slog.Logger) *Loop {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Loop{
		desc:      desc,
		client:    client,
		processor: processor,
		cfg:       cfg,
		active:    task.NewActiveSet(),
		observer:  observer,
		logger:    log.WithAgent(log.WithComponent(logger, "loop"), desc.ID),
		now:       time.Now,
	}
}

// ID returns the handler id this loop serves.
func (l *Loop) ID() string { return l.desc.ID }

// State returns the current state. Safe for concurrent use.
func (l *Loop) State() State { return State(l.state.Load()) }

// ActiveTasks returns the ids of tasks currently in flight (0 or 1).
func (l *Loop) ActiveTasks() []string { return l.active.Snapshot() }

func (l *Loop) setState(s State) { l.state.Store(int32(s)) }

func (l *Loop) emit(ev Event) {
	ev.AgentID = l.desc.ID
	ev.At = l.now()
	l.observer.Observe(ev)
}

// Run polls until ctx is cancelled. Cancellation is a normal stop and
// returns nil.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("poll loop started")
	l.emit(Event{Kind: EventLoopStarted})
	defer func() {
		l.setState(StateAborted)
		l.emit(Event{Kind: EventLoopStopped})
		l.logger.Info("poll loop stopped")
	}()

	for ctx.Err() == nil {
		l.setState(StateIdle)
		if err := l.iterate(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			l.logger.Error("task loop error", "error", err)
			l.backoff(ctx)
		}
	}
	return nil
}

// iterate runs one Idle → ... → Idle cycle. Panics are returned as errors.
func (l *Loop) iterate(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in poll loop: %v\n%s", r, debug.Stack())
		}
	}()

	env := l.poll(ctx)
	if env == nil {
		return nil
	}
	return l.handle(ctx, env)
}

// poll returns nil for every outcome other than a received task.
func (l *Loop) poll(ctx context.Context) *task.Envelope {
	l.setState(StatePolling)

	pollCtx := ctx
	if l.cfg.PollTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, l.cfg.PollTimeout)
		defer cancel()
	}

	env, err := l.client.PollTask(pollCtx, l.desc.ID)
	if err != nil {
		l.setState(StateNoTask)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			// Long poll ran out without a task.
			l.logger.Debug("poll timed out")
			l.emit(Event{Kind: EventPollEmpty})
			return nil
		}
		l.logger.Error("poll error", "error", err)
		l.emit(Event{Kind: EventPollError, Err: err})
		l.backoff(ctx)
		return nil
	}
	if env == nil {
		l.setState(StateNoTask)
		l.emit(Event{Kind: EventPollEmpty})
		return nil
	}

	l.setState(StateTaskReceived)
	return env
}

func (l *Loop) handle(ctx context.Context, env *task.Envelope) error {
	logger := log.WithTask(l.logger, env.TaskID)

	l.active.Add(env.TaskID)
	defer l.active.Remove(env.TaskID)

	base := Event{TaskID: env.TaskID, OriginTaskID: env.OriginTaskID}

	l.setState(StateProcessing)
	logger.Info("task started")
	started := base
	started.Kind = EventTaskStarted
	l.emit(started)

	res := l.processor.Process(ctx, l.desc, env)

	if ctx.Err() != nil {
		logger.Info("task abandoned on shutdown")
		return ctx.Err()
	}

	l.setState(StateSubmitting)
	submitErr := l.submit(ctx, env.TaskID, res)

	done := base
	done.Result = &res
	done.Submitted = submitErr == nil
	done.Err = submitErr
	if res.Success {
		done.Kind = EventTaskCompleted
	} else {
		done.Kind = EventTaskFailed
	}

	if submitErr != nil {
		failed := done
		failed.Kind = EventSubmitFailed
		l.emit(failed)
		l.emit(done)
		return fmt.Errorf("result submission failed for task %s: %w", env.TaskID, submitErr)
	}

	l.emit(done)
	logger.Info("task completed", "success", res.Success, "inference_latency", res.WireLatency())
	return nil
}

func (l *Loop) submit(ctx context.Context, taskID string, res task.Result) error {
	submitCtx := ctx
	if l.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, l.cfg.SubmitTimeout)
		defer cancel()
	}
	_, err := l.client.SubmitResult(submitCtx, l.desc.ID, taskID, res)
	return err
}

func (l *Loop) backoff(ctx context.Context) {
	if l.cfg.ErrorBackoff <= 0 {
		return
	}
	t := time.NewTimer(l.cfg.ErrorBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
