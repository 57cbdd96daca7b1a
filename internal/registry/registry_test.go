package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/meshmgr/internal/agent"
	"github.com/mattjoyce/meshmgr/internal/agent/builtin"
	"github.com/mattjoyce/meshmgr/internal/config"
	"github.com/mattjoyce/meshmgr/internal/metadata"
)

func writeExecAgent(t *testing.T, root, name string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	manifest := "name: " + name + "\nversion: 0.1.0\nprotocol: 1\nentrypoint: run.sh\nmetadata:\n  description: exec " + name + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\nexit 0\n"), 0o755))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Metadata.File.Path = filepath.Join(t.TempDir(), "metadata.json")
	return cfg
}

func TestDiscoverBuiltinsOnly(t *testing.T) {
	cfg := testConfig(t)
	got := New(cfg, nil).Discover(context.Background())
	assert.Contains(t, got, "EchoAgent")
	assert.Contains(t, got, "ClockAgent")
}

func TestDiscoverMergesExecAgents(t *testing.T) {
	root := t.TempDir()
	writeExecAgent(t, root, "WordCountAgent")
	writeExecAgent(t, root, "EchoAgent")

	cfg := testConfig(t)
	cfg.Agents.PluginDirs = []string{root}

	got := New(cfg, nil).Discover(context.Background())
	require.Contains(t, got, "WordCountAgent")
	assert.Equal(t, agent.SourceExec, got["WordCountAgent"].Source)
	assert.Equal(t, agent.SourceBuiltin, got["EchoAgent"].Source)
}

func TestDiscoverDropsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agents.Disabled = []string{"ClockAgent", "NoSuchAgent"}

	got := New(cfg, nil).Discover(context.Background())
	assert.NotContains(t, got, "ClockAgent")
	assert.Contains(t, got, "EchoAgent")
}

func TestDiscoverMissingPluginDirYieldsEmpty(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agents.PluginDirs = []string{filepath.Join(t.TempDir(), "missing")}

	got := New(cfg, nil).Discover(context.Background())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDiscoverPublishesMetadata(t *testing.T) {
	cfg := testConfig(t)
	store := metadata.NewFileStore(cfg.Metadata.File.Path)

	got := New(cfg, nil, WithStore(store)).Discover(context.Background())
	assert.Len(t, got, 2)

	data, err := store.Get(context.Background())
	require.NoError(t, err)
	doc, err := metadata.Decode(data)
	require.NoError(t, err)
	// EchoAgent runs but stays out of the shared document.
	assert.Equal(t, []string{"ClockAgent"}, doc.IDs())
	assert.Equal(t, "meshmgr", doc.LastUpdatedBy)
}

type brokenHandler struct{}

func (brokenHandler) Metadata() agent.Metadata { panic("no metadata") }
func (brokenHandler) Invoke(context.Context, map[string]any) (map[string]any, error) {
	return nil, nil
}
func (brokenHandler) Cleanup(context.Context) error { return nil }

func TestSyncMetadataSkipsBrokenHandler(t *testing.T) {
	cfg := testConfig(t)
	store := metadata.NewFileStore(cfg.Metadata.File.Path)
	tables := func() *agent.Table {
		tbl := builtin.Table()
		tbl.MustAdd(agent.Descriptor{ID: "BrokenAgent", New: func() agent.Handler { return brokenHandler{} }})
		return tbl
	}

	r := New(cfg, nil, WithStore(store), WithBuiltins(tables))
	got := r.Discover(context.Background())
	assert.Contains(t, got, "BrokenAgent")

	data, err := store.Get(context.Background())
	require.NoError(t, err)
	doc, err := metadata.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"ClockAgent"}, doc.IDs())
}

func TestSyncMetadataWithoutStore(t *testing.T) {
	r := New(testConfig(t), nil)
	res, err := r.SyncMetadata(context.Background(), builtin.Table().Snapshot())
	require.NoError(t, err)
	assert.False(t, res.Uploaded)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, err := OpenStore(ctx, config.MetadataConfig{Store: config.MetadataStoreNone})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = OpenStore(ctx, config.MetadataConfig{Store: config.MetadataStoreFile, File: config.FileStoreConfig{Path: "/tmp/x.json"}})
	require.NoError(t, err)
	assert.Equal(t, "file:///tmp/x.json", s.String())

	s, err = OpenStore(ctx, config.MetadataConfig{Store: config.MetadataStoreS3, S3: config.S3StoreConfig{
		Endpoint: "http://127.0.0.1:9", Bucket: "mesh", Region: "enam", Key: "doc.json",
		AccessKey: "a", SecretKey: "b",
	}})
	require.NoError(t, err)
	assert.Equal(t, "s3://mesh/doc.json", s.String())

	_, err = OpenStore(ctx, config.MetadataConfig{Store: "ftp"})
	assert.Error(t, err)
}
