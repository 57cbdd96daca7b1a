package loop

import (
	"context"

	"github.com/mattjoyce/meshmgr/internal/protocol"
	"github.com/mattjoyce/meshmgr/internal/task"
)

//go:generate mockgen -destination=mocks/mock_loop.go -package=mocks github.com/mattjoyce/meshmgr/internal/loop QueueClient,Observer

// QueueClient defines the dispatch-server operations a loop uses.
type QueueClient interface {
	PollTask(ctx context.Context, agentID string) (*task.Envelope, error)
	SubmitResult(ctx context.Context, agentID, taskID string, res task.Result) (protocol.SubmitResponse, error)
}

// Observer receives loop events. Implementations must not block.
type Observer interface {
	Observe(ev Event)
}
