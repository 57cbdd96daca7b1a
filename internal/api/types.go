package api

import (
	"github.com/mattjoyce/meshmgr/internal/journal"
	"github.com/mattjoyce/meshmgr/internal/orchestrator"
)

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status           string `json:"status"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	AgentsLoaded     int    `json:"agents_loaded"`
	LoopsRunning     int    `json:"loops_running"`
	EventSubscribers int    `json:"event_subscribers"`
}

// AgentsResponse is returned by GET /agents.
type AgentsResponse struct {
	Agents []orchestrator.LoopStatus `json:"agents"`
}

// TasksResponse is returned by GET /tasks.
type TasksResponse struct {
	Tasks []journal.Entry `json:"tasks"`
}
