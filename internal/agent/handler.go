// Package agent defines the capability every task handler implements and the
// static table handlers are registered in.
//
// A handler is created fresh for every task, invoked once, and cleaned up once.
// Optional behaviour (credentials, tool schemas) is expressed as small extra
// interfaces a handler may satisfy; callers check them with type assertions.
package agent

import "context"

// Handler is the capability the task processor drives.
type Handler interface {
	// Metadata describes the handler for documentation and discovery.
	Metadata() Metadata

	// Invoke runs one task. The returned map becomes the submitted payload.
	Invoke(ctx context.Context, input map[string]any) (map[string]any, error)

	// Cleanup releases anything Invoke acquired. It must be idempotent and
	// safe to call on a handler that was never invoked.
	Cleanup(ctx context.Context) error
}

// CredentialSetter is implemented by handlers that accept a per-task
// credential forwarded by the dispatch server.
type CredentialSetter interface {
	SetCredential(token string)
}

// SchemaProvider is implemented by handlers that expose directly invocable
// tools. The schemas are published with the handler metadata.
type SchemaProvider interface {
	ToolSchemas() []ToolSchema
}

// Metadata is the descriptive record of a handler.
type Metadata struct {
	Name         string   `json:"name" yaml:"name"`
	Version      string   `json:"version,omitempty" yaml:"version,omitempty"`
	Author       string   `json:"author,omitempty" yaml:"author,omitempty"`
	Description  string   `json:"description" yaml:"description"`
	Inputs       []Field  `json:"inputs" yaml:"inputs"`
	Outputs      []Field  `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	ExternalAPIs []string `json:"external_apis,omitempty" yaml:"external_apis,omitempty"`
	Tags         []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Field describes one input or output of a handler.
type Field struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Type        string `json:"type" yaml:"type"`
	Required    bool   `json:"required" yaml:"required"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// ToolSchema is an OpenAI-style function tool description.
type ToolSchema struct {
	Type     string       `json:"type" yaml:"type"`
	Function ToolFunction `json:"function" yaml:"function"`
}

// ToolFunction is the callable part of a ToolSchema.
type ToolFunction struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// ToolsOf returns the tool schemas of h, or nil when h exposes none.
func ToolsOf(h Handler) []ToolSchema {
	if sp, ok := h.(SchemaProvider); ok {
		return sp.ToolSchemas()
	}
	return nil
}
