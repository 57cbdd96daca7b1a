package orchestrator

import (
	"github.com/mattjoyce/meshmgr/internal/events"
	"github.com/mattjoyce/meshmgr/internal/loop"
)

// hubPublisher forwards loop events to the event hub. Empty polls are
// frequent and carry nothing, so they are left to metrics.
type hubPublisher struct {
	hub *events.Hub
}

type eventData struct {
	AgentID          string   `json:"agent_id"`
	TaskID           string   `json:"task_id,omitempty"`
	OriginTaskID     string   `json:"origin_task_id,omitempty"`
	Success          *bool    `json:"success,omitempty"`
	InferenceLatency *float64 `json:"inference_latency,omitempty"`
	Submitted        *bool    `json:"submitted,omitempty"`
	Error            string   `json:"error,omitempty"`
}

func (p hubPublisher) Observe(ev loop.Event) {
	if ev.Kind == loop.EventPollEmpty {
		return
	}
	data := eventData{
		AgentID:      ev.AgentID,
		TaskID:       ev.TaskID,
		OriginTaskID: ev.OriginTaskID,
	}
	if ev.Result != nil {
		success := ev.Result.Success
		latency := ev.Result.WireLatency()
		submitted := ev.Submitted
		data.Success = &success
		data.InferenceLatency = &latency
		data.Submitted = &submitted
		if ev.Result.Error != "" {
			data.Error = ev.Result.Error
		}
	}
	if ev.Err != nil {
		data.Error = ev.Err.Error()
	}
	p.hub.Publish(string(ev.Kind), data)
}
