package doctor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/meshmgr/internal/agent"
	"github.com/mattjoyce/meshmgr/internal/agent/builtin"
	"github.com/mattjoyce/meshmgr/internal/config"
)

type staticTable struct {
	tbl *agent.Table
	err error
}

func (s staticTable) Table() (*agent.Table, error) { return s.tbl, s.err }

func validConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Mesh.ServerURL = "https://dispatch.example"
	cfg.Mesh.AuthToken = "prod-token"
	return cfg
}

func builtins() TableSource { return staticTable{tbl: builtin.Table()} }

func fields(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Field)
	}
	return out
}

func TestValidateClean(t *testing.T) {
	r := New(validConfig(), builtins()).Validate()
	assert.True(t, r.Valid)
	assert.Empty(t, r.Errors)
	assert.Empty(t, r.Warnings)
	assert.Equal(t, "Configuration valid.\n", FormatHuman(r))
}

func TestValidateMeshWarnings(t *testing.T) {
	cfg := validConfig()
	cfg.Mesh.ServerURL = "http://dispatch.example"
	cfg.Mesh.AuthToken = "test_key"
	cfg.Mesh.PollInterval = 0

	r := New(cfg, builtins()).Validate()
	assert.True(t, r.Valid)
	assert.ElementsMatch(t, []string{"mesh.server_url", "mesh.auth_token", "mesh.poll_interval"}, fields(r.Warnings))
}

func TestValidateLoopbackHTTPIsFine(t *testing.T) {
	cfg := validConfig()
	cfg.Mesh.ServerURL = "http://127.0.0.1:8000"
	r := New(cfg, builtins()).Validate()
	assert.Empty(t, r.Warnings)
}

func TestValidateAgents(t *testing.T) {
	cfg := validConfig()
	cfg.Agents.Disabled = []string{"EchoAgent", "GhostAgent"}
	cfg.Agents.MetadataDenylist = []string{"Echo", "Nope"}

	r := New(cfg, builtins()).Validate()
	assert.True(t, r.Valid)
	require.Len(t, r.Warnings, 2)
	assert.Contains(t, r.Warnings[0].Message, "GhostAgent")
	assert.Contains(t, r.Warnings[1].Message, "Nope")
}

func TestValidateNothingToRun(t *testing.T) {
	cfg := validConfig()
	cfg.Agents.Disabled = []string{"EchoAgent", "ClockAgent"}

	r := New(cfg, builtins()).Validate()
	assert.False(t, r.Valid)
	require.Len(t, r.Errors, 1)
	assert.Contains(t, FormatHuman(r), "Configuration invalid (1 error(s)")
}

func TestValidateDiscoveryFailure(t *testing.T) {
	r := New(validConfig(), staticTable{err: errors.New("plugin root missing")}).Validate()
	assert.False(t, r.Valid)
	assert.Equal(t, "agents.plugin_dirs", r.Errors[0].Field)
}

func TestValidateMetadataAndAPI(t *testing.T) {
	cfg := validConfig()
	cfg.Metadata.Store = config.MetadataStoreS3
	cfg.API.Enabled = true
	cfg.API.Listen = ""

	r := New(cfg, builtins()).Validate()
	assert.False(t, r.Valid)
	assert.Equal(t, []string{"api.listen"}, fields(r.Errors))
	assert.ElementsMatch(t,
		[]string{"metadata.s3.endpoint", "metadata.s3", "api.token", "journal.path"},
		fields(r.Warnings))
}

func TestFormatJSON(t *testing.T) {
	cfg := validConfig()
	cfg.Mesh.AuthToken = "test_key"
	out, err := FormatJSON(New(cfg, builtins()).Validate())
	require.NoError(t, err)
	assert.Contains(t, out, `"valid": true`)
	assert.Contains(t, out, `"field": "mesh.auth_token"`)
}
