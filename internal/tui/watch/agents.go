package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/meshmgr/internal/events"
)

// AgentState tracks one poll loop, seeded from /agents and kept current
// from the event stream.
type AgentState struct {
	ID         string
	Source     string
	State      string
	ActiveTask string
	TaskStart  time.Time

	Completed   int
	Failed      int
	PollErrors  int
	LastLatency float64
	LastError   string
	LastRun     time.Time
}

type eventPayload struct {
	AgentID          string   `json:"agent_id"`
	TaskID           string   `json:"task_id"`
	Success          *bool    `json:"success"`
	InferenceLatency *float64 `json:"inference_latency"`
	Submitted        *bool    `json:"submitted"`
	Error            string   `json:"error"`
}

func getOrCreateAgent(agents map[string]*AgentState, id string) *AgentState {
	a, ok := agents[id]
	if !ok {
		a = &AgentState{ID: id}
		agents[id] = a
	}
	return a
}

// applyStatus merges a /agents snapshot.
func applyStatus(agents map[string]*AgentState, statuses []loopStatus) {
	for _, s := range statuses {
		a := getOrCreateAgent(agents, s.AgentID)
		a.Source = s.Source
		a.State = s.State
		if len(s.ActiveTasks) > 0 {
			if a.ActiveTask != s.ActiveTasks[0] {
				a.ActiveTask = s.ActiveTasks[0]
				a.TaskStart = time.Now()
			}
		} else {
			a.ActiveTask = ""
		}
	}
}

// updateAgentState processes a hub event.
func updateAgentState(agents map[string]*AgentState, e events.Event) {
	var p eventPayload
	if err := json.Unmarshal(e.Data, &p); err != nil || p.AgentID == "" {
		return
	}
	a := getOrCreateAgent(agents, p.AgentID)

	switch e.Type {
	case "loop.started":
		a.State = "idle"
	case "loop.stopped":
		a.State = "aborted"
		a.ActiveTask = ""
	case "poll.error":
		a.PollErrors++
		a.LastError = p.Error
	case "task.started":
		a.State = "processing"
		a.ActiveTask = p.TaskID
		a.TaskStart = e.At
	case "task.completed", "task.failed":
		a.State = "idle"
		a.ActiveTask = ""
		a.LastRun = e.At
		if p.Success != nil && *p.Success {
			a.Completed++
		} else {
			a.Failed++
		}
		if p.InferenceLatency != nil {
			a.LastLatency = *p.InferenceLatency
		}
		if p.Error != "" {
			a.LastError = p.Error
		}
	}
}

func sortedAgentIDs(agents map[string]*AgentState) []string {
	ids := make([]string, 0, len(agents))
	for id := range agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func renderAgents(agents map[string]*AgentState, selected int, busy string, theme Theme, width int) string {
	innerWidth := width - 4

	if len(agents) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("AGENTS"),
			theme.Dim.Render("  No agents reported yet..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	lines := []string{theme.Title.Render("AGENTS")}
	for i, id := range sortedAgentIDs(agents) {
		lines = append(lines, renderAgentRow(i+1, agents[id], i == selected, busy, theme))
	}
	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderAgentRow(num int, a *AgentState, isSelected bool, busy string, theme Theme) string {
	nameStyle := lipgloss.NewStyle()
	if isSelected {
		nameStyle = theme.Selected
	}

	var line strings.Builder
	fmt.Fprintf(&line, " %d. %s %s  %s  %s",
		num,
		nameStyle.Render(fmt.Sprintf("%-22s", a.ID)),
		theme.Dim.Render(fmt.Sprintf("%-8s", a.Source)),
		stateStyle(a.State, theme).Render(fmt.Sprintf("%-13s", orDash(a.State))),
		fmt.Sprintf("%s %d  %s %d",
			theme.StatusOK.Render("✓"), a.Completed,
			theme.StatusFailed.Render("✗"), a.Failed),
	)
	if a.PollErrors > 0 {
		line.WriteString(theme.StatusFailed.Render(fmt.Sprintf("  poll errors %d", a.PollErrors)))
	}
	if !a.LastRun.IsZero() {
		fmt.Fprintf(&line, "  %s", theme.Dim.Render(fmt.Sprintf("last %s (%.3fs)", formatAgo(time.Since(a.LastRun)), a.LastLatency)))
	}

	if a.ActiveTask != "" {
		elapsed := "-"
		if !a.TaskStart.IsZero() {
			elapsed = time.Since(a.TaskStart).Round(time.Millisecond).String()
		}
		fmt.Fprintf(&line, "\n    └─ %s task %s %s",
			busy,
			theme.Highlight.Render(shortID(a.ActiveTask)),
			theme.Dim.Render(elapsed),
		)
	}
	if isSelected && a.LastError != "" {
		fmt.Fprintf(&line, "\n    %s", theme.StatusFailed.Render("last error: "+a.LastError))
	}
	return line.String()
}

func stateStyle(state string, theme Theme) lipgloss.Style {
	switch state {
	case "processing", "submitting", "task_received":
		return theme.StatusRunning
	case "aborted":
		return theme.StatusDead
	case "":
		return theme.Dim
	default:
		return theme.StatusOK
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatAgo(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh ago", int(d.Hours()))
}
