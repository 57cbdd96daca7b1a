package execagent

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/meshmgr/internal/agent"
)

const (
	supportedProtocol = 1
	manifestFilename  = "manifest.yaml"
)

// Manifest defines the structure of an exec agent's manifest.yaml file.
type Manifest struct {
	Name       string             `yaml:"name"`
	Version    string             `yaml:"version"`
	Protocol   int                `yaml:"protocol"`
	Entrypoint string             `yaml:"entrypoint"`
	Timeout    time.Duration      `yaml:"timeout,omitempty"`
	Metadata   agent.Metadata     `yaml:"metadata"`
	Tools      []agent.ToolSchema `yaml:"tools,omitempty"`
}

// Plugin is a discovered and validated exec agent.
type Plugin struct {
	Name       string // Handler id, from manifest
	Path       string // Absolute path to plugin directory
	Entrypoint string // Absolute path to entrypoint executable
	Version    string
	Timeout    time.Duration // Zero means the registry default
	Metadata   agent.Metadata
	Tools      []agent.ToolSchema
}

// validateManifest checks required manifest fields.
func validateManifest(m *Manifest) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.ContainsAny(m.Name, " /\\") {
		return fmt.Errorf("name %q must not contain spaces or path separators", m.Name)
	}
	if m.Protocol == 0 {
		return fmt.Errorf("protocol version is required")
	}
	if m.Protocol != supportedProtocol {
		return fmt.Errorf("unsupported protocol version %d (supported: %d)", m.Protocol, supportedProtocol)
	}
	if m.Entrypoint == "" {
		return fmt.Errorf("entrypoint is required")
	}
	if strings.Contains(m.Entrypoint, "..") {
		return fmt.Errorf("entrypoint contains path traversal: %s", m.Entrypoint)
	}
	if m.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if strings.TrimSpace(m.Metadata.Description) == "" {
		return fmt.Errorf("metadata.description is required")
	}
	for i, tool := range m.Tools {
		if tool.Function.Name == "" {
			return fmt.Errorf("tools[%d].function.name is required", i)
		}
	}
	return nil
}
