package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mattjoyce/meshmgr/internal/agent"
)

// Synthesized inputs added to handlers that expose direct tools.
const (
	ToolInput          = "tool"
	ToolArgumentsInput = "tool_arguments"
)

// BuildEntry instantiates the handler once to read its metadata and tools.
func BuildEntry(ctx context.Context, d agent.Descriptor) (*Entry, error) {
	h := d.New()
	defer func() { _ = h.Cleanup(ctx) }()

	meta := h.Metadata()
	tools := agent.ToolsOf(h)

	inputs := append([]agent.Field(nil), meta.Inputs...)
	if len(tools) > 0 {
		inputs = append(inputs, toolInputs(tools)...)
	}
	meta.Inputs = inputs

	md, err := toMap(meta)
	if err != nil {
		return nil, fmt.Errorf("metadata for %s: %w", d.ID, err)
	}
	return &Entry{Metadata: md, Module: moduleName(d), Tools: tools}, nil
}

func toolInputs(tools []agent.ToolSchema) []agent.Field {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Function.Name)
	}
	return []agent.Field{
		{
			Name:        ToolInput,
			Description: fmt.Sprintf("Directly specify which tool to call: %s. Bypasses LLM.", strings.Join(names, ", ")),
			Type:        "str",
			Required:    false,
		},
		{
			Name:        ToolArgumentsInput,
			Description: "Arguments for the tool call as a dictionary",
			Type:        "dict",
			Required:    false,
			Default:     map[string]any{},
		},
	}
}

// moduleName is the last path element of the descriptor's module.
func moduleName(d agent.Descriptor) string {
	m := strings.TrimRight(d.Module, "/")
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	return m
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
