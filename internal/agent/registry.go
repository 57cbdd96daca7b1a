package agent

import (
	"fmt"
	"sort"
)

// Factory constructs a fresh handler instance.
type Factory func() Handler

// Source records where a handler came from.
type Source string

const (
	SourceBuiltin Source = "builtin"
	SourceExec    Source = "exec"
)

// Descriptor pairs a handler id with the means to build it.
// Descriptors are immutable once discovery completes.
type Descriptor struct {
	ID     string
	New    Factory
	Source Source
	// Module names the unit the handler lives in (Go package or plugin dir).
	Module string
}

// Table is an explicit id → factory registration table.
type Table struct {
	entries map[string]Descriptor
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[string]Descriptor)}
}

// Add registers a descriptor. Ids must be unique and factories non-nil.
func (t *Table) Add(d Descriptor) error {
	if d.ID == "" {
		return fmt.Errorf("handler id is empty")
	}
	if d.New == nil {
		return fmt.Errorf("handler %q has no factory", d.ID)
	}
	if _, exists := t.entries[d.ID]; exists {
		return fmt.Errorf("handler %q already registered", d.ID)
	}
	if d.Source == "" {
		d.Source = SourceBuiltin
	}
	t.entries[d.ID] = d
	return nil
}

// MustAdd is Add for init-time registration of built-in handlers.
func (t *Table) MustAdd(d Descriptor) {
	if err := t.Add(d); err != nil {
		panic(err)
	}
}

// Get retrieves a descriptor by id.
func (t *Table) Get(id string) (Descriptor, bool) {
	d, ok := t.entries[id]
	return d, ok
}

// IDs returns registered ids in sorted order.
func (t *Table) IDs() []string {
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered handlers.
func (t *Table) Len() int {
	return len(t.entries)
}

// Snapshot returns a copy of the table contents.
func (t *Table) Snapshot() map[string]Descriptor {
	out := make(map[string]Descriptor, len(t.entries))
	for id, d := range t.entries {
		out[id] = d
	}
	return out
}
