package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/meshmgr/internal/events"
)

const visibleEvents = 10

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	n := min(len(eventLog), visibleEvents)
	lines := make([]string, 0, n)
	for _, e := range eventLog[:n] {
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		eventsText,
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case "task.completed":
		typeStyle = theme.StatusOK
	case "task.failed", "submit.failed", "poll.error":
		typeStyle = theme.StatusFailed
	case "task.started":
		typeStyle = theme.StatusRunning
	case "loop.started", "loop.stopped":
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-15s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, describeEvent(e))
}

// describeEvent summarises the payload in one line.
func describeEvent(e events.Event) string {
	var p eventPayload
	if err := json.Unmarshal(e.Data, &p); err != nil || p.AgentID == "" {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}

	parts := []string{p.AgentID}
	if p.TaskID != "" {
		parts = append(parts, fmt.Sprintf("[%s]", shortID(p.TaskID)))
	}
	if p.InferenceLatency != nil && p.Success != nil && *p.Success {
		parts = append(parts, fmt.Sprintf("%.3fs", *p.InferenceLatency))
	}
	if p.Submitted != nil && !*p.Submitted {
		parts = append(parts, "not submitted")
	}
	if p.Error != "" {
		parts = append(parts, p.Error)
	}
	return strings.Join(parts, " ")
}
