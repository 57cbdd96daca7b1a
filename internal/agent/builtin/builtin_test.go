package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/meshmgr/internal/agent"
)

func TestTableRegistersBuiltins(t *testing.T) {
	tbl := Table()
	assert.Equal(t, []string{"ClockAgent", "EchoAgent"}, tbl.IDs())

	for _, id := range tbl.IDs() {
		d, _ := tbl.Get(id)
		h1, h2 := d.New(), d.New()
		assert.NotSame(t, h1, h2, "%s factory must build a fresh instance", id)
		assert.NotEmpty(t, h1.Metadata().Description)
	}
}

func TestEcho(t *testing.T) {
	e := &Echo{}
	var _ agent.CredentialSetter = e

	out, err := e.Invoke(context.Background(), map[string]any{"query": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out["response"])
	assert.NotContains(t, out, "authenticated")

	e.SetCredential("key")
	out, err = e.Invoke(context.Background(), map[string]any{"query": "hi"})
	require.NoError(t, err)
	assert.Equal(t, true, out["authenticated"])

	_, err = e.Invoke(context.Background(), map[string]any{})
	assert.Error(t, err)

	require.NoError(t, e.Cleanup(context.Background()))
	require.NoError(t, e.Cleanup(context.Background()))
	assert.True(t, e.cleaned)
}

func TestClock(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := &Clock{now: func() time.Time { return fixed }}

	require.Len(t, agent.ToolsOf(c), 1)

	out, err := c.Invoke(context.Background(), map[string]any{"query": "now"})
	require.NoError(t, err)
	data := out["data"].(map[string]any)
	assert.Equal(t, "UTC", data["timezone"])
	assert.Equal(t, "2024-05-01T12:00:00Z", data["time"])

	out, err = c.Invoke(context.Background(), map[string]any{
		"tool":           clockTool,
		"tool_arguments": map[string]any{"timezone": "Asia/Tokyo"},
	})
	require.NoError(t, err)
	data = out["data"].(map[string]any)
	assert.Equal(t, "2024-05-01T21:00:00+09:00", data["time"])

	_, err = c.Invoke(context.Background(), map[string]any{"tool": "other"})
	assert.Error(t, err)

	_, err = c.Invoke(context.Background(), map[string]any{
		"tool":           clockTool,
		"tool_arguments": map[string]any{"timezone": "Not/AZone"},
	})
	assert.Error(t, err)
}
