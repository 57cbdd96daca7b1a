package builtin

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/mattjoyce/meshmgr/internal/agent"
)

const clockTool = "get_current_time"

// Clock reports the current time in a requested zone. It is the smallest
// handler that exposes a direct tool call.
type Clock struct {
	now func() time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

func (c *Clock) Metadata() agent.Metadata {
	return agent.Metadata{
		Name:        "Clock Agent",
		Version:     "1.0.0",
		Description: "Returns the current time, optionally in a given IANA time zone.",
		Inputs: []agent.Field{
			{Name: "query", Description: "Natural language request, e.g. 'time in Tokyo'", Type: "str"},
		},
		Outputs: []agent.Field{
			{Name: "data", Description: "Current time details", Type: "dict"},
		},
		Tags: []string{"utility"},
	}
}

func (c *Clock) ToolSchemas() []agent.ToolSchema {
	return []agent.ToolSchema{{
		Type: "function",
		Function: agent.ToolFunction{
			Name:        clockTool,
			Description: "Get the current time in an IANA time zone",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"timezone": map[string]any{"type": "string", "description": "IANA zone name, default UTC"},
				},
			},
		},
	}}
}

func (c *Clock) Invoke(_ context.Context, input map[string]any) (map[string]any, error) {
	zone := "UTC"
	if tool, _ := input["tool"].(string); tool != "" {
		if tool != clockTool {
			return nil, fmt.Errorf("unknown tool %q", tool)
		}
		if args, ok := input["tool_arguments"].(map[string]any); ok {
			if tz, _ := args["timezone"].(string); tz != "" {
				zone = tz
			}
		}
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", zone, err)
	}
	now := c.now().In(loc)
	return map[string]any{
		"data": map[string]any{
			"timezone": zone,
			"time":     now.Format(time.RFC3339),
			"unix":     now.Unix(),
		},
	}, nil
}

func (c *Clock) Cleanup(context.Context) error { return nil }
