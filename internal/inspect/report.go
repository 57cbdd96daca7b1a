package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/meshmgr/internal/journal"
)

// Source reads task lineage from the journal.
type Source interface {
	Lineage(ctx context.Context, taskID string) ([]journal.Entry, error)
}

// Report is the structured JSON representation of a lineage report.
type Report struct {
	TaskID       string `json:"task_id"`
	AgentID      string `json:"agent_id"`
	OriginTaskID string `json:"origin_task_id"`
	Hops         int    `json:"hops"`
	Succeeded    int    `json:"succeeded"`
	Failed       int    `json:"failed"`
	Unsubmitted  int    `json:"unsubmitted"`
	Steps        []Step `json:"steps"`
}

// Step is one task in the lineage, in start order.
type Step struct {
	Hop              int       `json:"hop"`
	AgentID          string    `json:"agent_id"`
	TaskID           string    `json:"task_id"`
	Success          bool      `json:"success"`
	InferenceLatency float64   `json:"inference_latency"`
	Error            string    `json:"error,omitempty"`
	Submitted        bool      `json:"submitted"`
	SubmitError      string    `json:"submit_error,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	Duration         string    `json:"duration"`
	Selected         bool      `json:"selected,omitempty"`
}

// BuildReport renders a terminal-friendly lineage report for a task.
func BuildReport(ctx context.Context, src Source, taskID string) (string, error) {
	report, err := gatherReportData(ctx, src, taskID)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Lineage Report\n")
	fmt.Fprintf(&out, "Task ID     : %s\n", report.TaskID)
	fmt.Fprintf(&out, "Agent       : %s\n", report.AgentID)
	fmt.Fprintf(&out, "Origin      : %s\n", report.OriginTaskID)
	fmt.Fprintf(&out, "Hops        : %d (%d ok, %d failed, %d unsubmitted)\n",
		report.Hops, report.Succeeded, report.Failed, report.Unsubmitted)
	fmt.Fprintf(&out, "\n")

	for _, step := range report.Steps {
		marker := " "
		if step.Selected {
			marker = "*"
		}
		fmt.Fprintf(&out, "[%d]%s %s :: %s\n", step.Hop, marker, step.AgentID, step.TaskID)
		fmt.Fprintf(&out, "    started    : %s\n", step.StartedAt.UTC().Format(time.RFC3339))
		fmt.Fprintf(&out, "    duration   : %s\n", step.Duration)
		if step.Success {
			fmt.Fprintf(&out, "    result     : ok (latency %.3fs)\n", step.InferenceLatency)
		} else {
			fmt.Fprintf(&out, "    result     : failed: %s\n", orNone(step.Error))
		}
		if step.Submitted {
			fmt.Fprintf(&out, "    submitted  : yes\n")
		} else {
			fmt.Fprintf(&out, "    submitted  : no (%s)\n", orNone(step.SubmitError))
		}
		fmt.Fprintf(&out, "\n")
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable JSON lineage report.
func BuildJSONReport(ctx context.Context, src Source, taskID string) (string, error) {
	report, err := gatherReportData(ctx, src, taskID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

func gatherReportData(ctx context.Context, src Source, taskID string) (*Report, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, fmt.Errorf("task_id is required")
	}

	entries, err := src.Lineage(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task lineage: %w", err)
	}

	report := &Report{
		TaskID: taskID,
		Hops:   len(entries),
		Steps:  make([]Step, 0, len(entries)),
	}
	for i, e := range entries {
		step := Step{
			Hop:              i,
			AgentID:          e.AgentID,
			TaskID:           e.TaskID,
			Success:          e.Success,
			InferenceLatency: e.InferenceLatency,
			Error:            e.Error,
			Submitted:        e.Submitted,
			SubmitError:      e.SubmitError,
			StartedAt:        e.StartedAt,
			Duration:         e.CompletedAt.Sub(e.StartedAt).Round(time.Millisecond).String(),
			Selected:         e.TaskID == taskID,
		}
		if step.Selected && report.AgentID == "" {
			report.AgentID = e.AgentID
			report.OriginTaskID = e.OriginTaskID
		}
		if e.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
		if !e.Submitted {
			report.Unsubmitted++
		}
		report.Steps = append(report.Steps, step)
	}
	if report.OriginTaskID == "" {
		report.OriginTaskID = taskID
	}
	return report, nil
}

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}
