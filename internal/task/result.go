package task

import (
	"maps"
	"math"
	"time"

	"github.com/mattjoyce/meshmgr/internal/agent"
)

const (
	successKey = "success"
	errorKey   = "error"
)

// Result is the outcome of one processed task. It is produced once by the
// Processor and submitted once.
type Result struct {
	Success bool
	// Payload is the handler output on success.
	Payload map[string]any
	// Error is the handler failure message when Success is false.
	Error string
	// InferenceLatency is the handler's wall-clock time. Zero on failure.
	InferenceLatency time.Duration
}

// FromOutcome converts a handler outcome into a Result.
func FromOutcome(out agent.Outcome, latency time.Duration) Result {
	if !out.Succeeded() {
		return Result{Success: false, Error: out.Err.Error()}
	}
	return Result{Success: true, Payload: out.Payload, InferenceLatency: latency}
}

// WirePayload is the "results" object sent to the dispatch server. The success
// marker is a string; handler output keys take precedence over it.
func (r Result) WirePayload() map[string]any {
	if !r.Success {
		return map[string]any{successKey: "false", errorKey: r.Error}
	}
	out := make(map[string]any, len(r.Payload)+1)
	out[successKey] = "true"
	maps.Copy(out, r.Payload)
	return out
}

// WireLatency is the inference latency in seconds rounded to milliseconds.
func (r Result) WireLatency() float64 {
	if !r.Success {
		return 0
	}
	return math.Round(r.InferenceLatency.Seconds()*1000) / 1000
}
