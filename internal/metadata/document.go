// Package metadata publishes a description of every runnable handler to a
// shared document so other services can discover what this node offers.
//
// The document is read, merged with the freshly discovered handlers and
// written back. Fields a handler no longer reports are kept; handlers that
// disappeared are removed.
package metadata

import (
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/mattjoyce/meshmgr/internal/agent"
)

// DefaultKey is the object name of the shared document.
const DefaultKey = "mesh_agents_metadata.json"

// Document is the shared metadata file.
type Document struct {
	LastUpdated   string            `json:"last_updated"`
	LastUpdatedBy string            `json:"last_updated_by,omitempty"`
	Agents        map[string]*Entry `json:"agents"`
}

// Entry describes one handler. Fields written by other tools are kept in
// extra and survive a round trip.
type Entry struct {
	Metadata map[string]any
	Module   string
	Tools    []agent.ToolSchema

	extra map[string]json.RawMessage
}

var entryKeys = []string{"metadata", "module", "tools"}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["metadata"]; ok {
		if err := json.Unmarshal(v, &e.Metadata); err != nil {
			return fmt.Errorf("metadata: %w", err)
		}
	}
	if v, ok := raw["module"]; ok {
		if err := json.Unmarshal(v, &e.Module); err != nil {
			return fmt.Errorf("module: %w", err)
		}
	}
	if v, ok := raw["tools"]; ok {
		if err := json.Unmarshal(v, &e.Tools); err != nil {
			return fmt.Errorf("tools: %w", err)
		}
	}
	for _, k := range entryKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		e.extra = raw
	}
	return nil
}

func (e Entry) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.extra)+len(entryKeys))
	for k, v := range e.extra {
		out[k] = v
	}
	md := e.Metadata
	if md == nil {
		md = map[string]any{}
	}
	tools := e.Tools
	if tools == nil {
		tools = []agent.ToolSchema{}
	}
	out["metadata"] = md
	out["module"] = e.Module
	out["tools"] = tools
	return json.Marshal(out)
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{Agents: map[string]*Entry{}}
}

// Decode parses a stored document.
func Decode(data []byte) (*Document, error) {
	doc := NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode metadata document: %w", err)
	}
	if doc.Agents == nil {
		doc.Agents = map[string]*Entry{}
	}
	return doc, nil
}

// Encode renders the document with two-space indentation.
func (d *Document) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode metadata document: %w", err)
	}
	return data, nil
}

// IDs returns the agent ids in sorted order.
func (d *Document) IDs() []string {
	ids := make([]string, 0, len(d.Agents))
	for id := range d.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Changes lists what a Merge did.
type Changes struct {
	Added   []string
	Updated []string
	Removed []string
}

// Merge folds fresh entries into d. Metadata keys from fresh overwrite
// existing ones, keys only present in d are kept, module and tools are
// replaced, and ids missing from fresh are removed.
func (d *Document) Merge(fresh map[string]*Entry, now time.Time, by string) Changes {
	var ch Changes
	if d.Agents == nil {
		d.Agents = map[string]*Entry{}
	}

	for id, e := range fresh {
		existing, ok := d.Agents[id]
		if !ok {
			d.Agents[id] = &Entry{
				Metadata: maps.Clone(e.Metadata),
				Module:   e.Module,
				Tools:    e.Tools,
			}
			ch.Added = append(ch.Added, id)
			continue
		}
		if existing.Metadata == nil {
			existing.Metadata = map[string]any{}
		}
		maps.Copy(existing.Metadata, e.Metadata)
		existing.Module = e.Module
		existing.Tools = e.Tools
		ch.Updated = append(ch.Updated, id)
	}

	for id := range d.Agents {
		if _, ok := fresh[id]; !ok {
			delete(d.Agents, id)
			ch.Removed = append(ch.Removed, id)
		}
	}

	d.LastUpdated = now.UTC().Format(time.RFC3339Nano)
	d.LastUpdatedBy = by

	sort.Strings(ch.Added)
	sort.Strings(ch.Updated)
	sort.Strings(ch.Removed)
	return ch
}

// Publishable reports whether id may appear in the shared document.
// Ids containing any denylist entry are excluded.
func Publishable(id string, denylist []string) bool {
	for _, deny := range denylist {
		if deny != "" && strings.Contains(id, deny) {
			return false
		}
	}
	return true
}
