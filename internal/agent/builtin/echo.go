package builtin

import (
	"context"
	"fmt"

	"github.com/mattjoyce/meshmgr/internal/agent"
)

// Echo returns its input. It exists to exercise the mesh end to end and is
// kept out of published metadata.
type Echo struct {
	credential string
	cleaned    bool
}

func (e *Echo) Metadata() agent.Metadata {
	return agent.Metadata{
		Name:        "Echo Agent",
		Version:     "1.0.0",
		Description: "Echoes the query back. Test-only.",
		Inputs: []agent.Field{
			{Name: "query", Description: "Text to echo back", Type: "str", Required: true},
		},
		Outputs: []agent.Field{
			{Name: "response", Description: "The echoed text", Type: "str"},
		},
	}
}

func (e *Echo) SetCredential(token string) { e.credential = token }

func (e *Echo) Invoke(_ context.Context, input map[string]any) (map[string]any, error) {
	q, ok := input["query"]
	if !ok {
		return nil, fmt.Errorf("missing required input %q", "query")
	}
	out := map[string]any{"response": fmt.Sprint(q)}
	if e.credential != "" {
		out["authenticated"] = true
	}
	return out, nil
}

func (e *Echo) Cleanup(context.Context) error {
	e.cleaned = true
	return nil
}
