// Package builtin holds the handlers compiled into meshmgr.
package builtin

import "github.com/mattjoyce/meshmgr/internal/agent"

// Table returns the static registration table of built-in handlers.
// Adding a handler means adding a line here.
func Table() *agent.Table {
	t := agent.NewTable()
	t.MustAdd(agent.Descriptor{ID: "EchoAgent", New: func() agent.Handler { return &Echo{} }, Module: "echo"})
	t.MustAdd(agent.Descriptor{ID: "ClockAgent", New: func() agent.Handler { return NewClock() }, Module: "clock"})
	return t
}
