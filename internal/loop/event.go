package loop

import (
	"time"

	"github.com/mattjoyce/meshmgr/internal/task"
)

// EventKind names a loop event.
type EventKind string

const (
	EventLoopStarted   EventKind = "loop.started"
	EventLoopStopped   EventKind = "loop.stopped"
	EventPollEmpty     EventKind = "poll.empty"
	EventPollError     EventKind = "poll.error"
	EventTaskStarted   EventKind = "task.started"
	EventTaskCompleted EventKind = "task.completed"
	EventTaskFailed    EventKind = "task.failed"
	EventSubmitFailed  EventKind = "submit.failed"
)

// Event is one observable step of a loop.
type Event struct {
	Kind         EventKind
	AgentID      string
	TaskID       string
	OriginTaskID string
	At           time.Time
	// Result is set on task.completed, task.failed and submit.failed.
	Result *task.Result
	// Submitted is true when the result was acknowledged by the server.
	Submitted bool
	Err       error
}

// Observers fans an event out to several observers.
type Observers []Observer

func (o Observers) Observe(ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ev)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(Event) {}
