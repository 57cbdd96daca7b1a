package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	out   map[string]any
	err   error
	panic any
	tools []ToolSchema
}

func (s *stubHandler) Metadata() Metadata { return Metadata{Name: "stub"} }

func (s *stubHandler) Invoke(context.Context, map[string]any) (map[string]any, error) {
	if s.panic != nil {
		panic(s.panic)
	}
	return s.out, s.err
}

func (s *stubHandler) Cleanup(context.Context) error { return nil }

type toolHandler struct{ stubHandler }

func (t *toolHandler) ToolSchemas() []ToolSchema { return t.tools }

func TestCall(t *testing.T) {
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		out := Call(ctx, &stubHandler{out: map[string]any{"a": 1}}, nil)
		assert.True(t, out.Succeeded())
		assert.Equal(t, map[string]any{"a": 1}, out.Payload)
	})

	t.Run("nil payload becomes empty map", func(t *testing.T) {
		out := Call(ctx, &stubHandler{}, nil)
		require.True(t, out.Succeeded())
		assert.NotNil(t, out.Payload)
	})

	t.Run("error", func(t *testing.T) {
		out := Call(ctx, &stubHandler{err: errors.New("boom")}, nil)
		assert.False(t, out.Succeeded())
		assert.EqualError(t, out.Err, "boom")
		assert.Nil(t, out.Payload)
	})

	t.Run("panic", func(t *testing.T) {
		out := Call(ctx, &stubHandler{panic: "kaboom"}, nil)
		assert.False(t, out.Succeeded())
		assert.ErrorIs(t, out.Err, ErrPanic)
		assert.Contains(t, out.Err.Error(), "kaboom")
	})
}

func TestFailNilError(t *testing.T) {
	out := Fail(nil)
	assert.Error(t, out.Err)
}

func TestToolsOf(t *testing.T) {
	assert.Nil(t, ToolsOf(&stubHandler{}))

	tools := []ToolSchema{{Type: "function", Function: ToolFunction{Name: "x"}}}
	assert.Equal(t, tools, ToolsOf(&toolHandler{stubHandler{tools: tools}}))
}

func TestTable(t *testing.T) {
	tbl := NewTable()
	factory := func() Handler { return &stubHandler{} }

	require.NoError(t, tbl.Add(Descriptor{ID: "B", New: factory}))
	require.NoError(t, tbl.Add(Descriptor{ID: "A", New: factory, Source: SourceExec}))

	assert.Error(t, tbl.Add(Descriptor{ID: "A", New: factory}), "duplicate id")
	assert.Error(t, tbl.Add(Descriptor{ID: "", New: factory}), "empty id")
	assert.Error(t, tbl.Add(Descriptor{ID: "C"}), "nil factory")

	assert.Equal(t, []string{"A", "B"}, tbl.IDs())
	assert.Equal(t, 2, tbl.Len())

	b, ok := tbl.Get("B")
	require.True(t, ok)
	assert.Equal(t, SourceBuiltin, b.Source, "source defaults to builtin")

	snap := tbl.Snapshot()
	delete(snap, "A")
	assert.Equal(t, 2, tbl.Len(), "snapshot must be a copy")

	assert.Panics(t, func() { tbl.MustAdd(Descriptor{ID: "A", New: factory}) })
}
