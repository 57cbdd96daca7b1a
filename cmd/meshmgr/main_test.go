package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/meshmgr/internal/config"
	"github.com/mattjoyce/meshmgr/internal/journal"
	"github.com/mattjoyce/meshmgr/internal/lock"
	"github.com/mattjoyce/meshmgr/internal/log"
)

func init() {
	color.NoColor = true
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, out, _ := run(t, "version")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "meshmgr "+version)

	code, out, _ = run(t, "version", "--json")
	require.Equal(t, 0, code)
	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version, info.Version)
}

func TestUnknownCommand(t *testing.T) {
	code, _, stderr := run(t, "frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown command")
}

func TestConfigCheck(t *testing.T) {
	path := writeConfig(t, `
mesh:
  server_url: http://dispatch.test
  poll_interval: 3s
`)
	code, out, _ := run(t, "config", "check", "--config", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "configuration loaded")
	assert.Contains(t, out, "http://dispatch.test")
	assert.Contains(t, out, "3s")
	assert.Contains(t, out, "Configuration valid (2 warning(s))")
	assert.Contains(t, out, "WARN  [mesh] mesh.auth_token")
}

func TestConfigCheckReportsDoctorErrors(t *testing.T) {
	path := writeConfig(t, `
agents:
  disabled: [EchoAgent, ClockAgent]
`)
	code, out, stderr := run(t, "config", "check", "--json", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, `"valid": false`)
	assert.Contains(t, stderr, "configuration has errors")
}

func TestConfigCheckInvalid(t *testing.T) {
	path := writeConfig(t, `
mesh:
  server_url: ftp://dispatch.test
`)
	code, out, stderr := run(t, "config", "check", "-c", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "✗")
	assert.Contains(t, stderr, "server_url")
}

func TestConfigShowRedacts(t *testing.T) {
	path := writeConfig(t, `
mesh:
  server_url: http://dispatch.test
  auth_token: super-secret
`)
	code, out, _ := run(t, "config", "show", "--config", path)
	require.Equal(t, 0, code)
	assert.NotContains(t, out, "super-secret")
	assert.Contains(t, out, "***")
}

func TestAgentsList(t *testing.T) {
	path := writeConfig(t, `
agents:
  disabled: [ClockAgent]
`)
	code, out, _ := run(t, "agents", "list", "--config", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "ClockAgent  [builtin, disabled]")
	assert.Contains(t, out, "EchoAgent  [builtin, enabled] (not published)")
	assert.Contains(t, out, "tools: [get_current_time]")
}

func TestAgentsListJSON(t *testing.T) {
	code, out, _ := run(t, "agents", "list", "--json")
	require.Equal(t, 0, code)

	var rows []agentRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "ClockAgent", rows[0].ID)
	assert.True(t, rows[0].Published)
	assert.False(t, rows[1].Published)
}

func TestMetadataSync(t *testing.T) {
	docPath := filepath.Join(t.TempDir(), "metadata.json")
	path := writeConfig(t, `
metadata:
  store: file
  file:
    path: `+docPath+`
`)
	code, out, _ := run(t, "metadata", "sync", "--config", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "uploaded file://"+docPath)
	assert.Contains(t, out, "added:   ClockAgent")

	code, out, _ = run(t, "metadata", "sync", "--config", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "is up to date")
}

func TestMetadataSyncWithoutStore(t *testing.T) {
	code, _, stderr := run(t, "metadata", "sync")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "no metadata store configured")
}

func TestRunStartProcessesUntilCancelled(t *testing.T) {
	var submits atomic.Int32
	var served atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/mesh_manager_poll":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			id := body["agent_info"].([]any)[0].(map[string]any)["agent_id"].(string)
			if id == "EchoAgent" && served.CompareAndSwap(false, true) {
				_, _ = w.Write([]byte(`{"task_id":"t1","input":{"query":"hi"}}`))
				return
			}
			_, _ = w.Write([]byte(`{}`))
		case "/mesh_manager_submit":
			submits.Add(1)
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	tmp := t.TempDir()
	cfg := config.Defaults()
	cfg.Mesh.ServerURL = srv.URL
	cfg.Service.LockPath = filepath.Join(tmp, "meshmgr.lock")
	cfg.Journal.Path = filepath.Join(tmp, "journal.db")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runStart(ctx, cfg, log.Discard()) }()

	require.Eventually(t, func() bool { return submits.Load() == 1 }, 10*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("runStart did not return")
	}

	j, err := journal.Open(context.Background(), cfg.Journal.Path)
	require.NoError(t, err)
	defer j.Close()
	entries, err := j.Recent(context.Background(), "EchoAgent", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "t1", entries[0].TaskID)
}

func TestRunStartSignalledDuringStartup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cfg := config.Defaults()
	cfg.Mesh.ServerURL = srv.URL
	cfg.Service.LockPath = filepath.Join(t.TempDir(), "meshmgr.lock")

	// The signal lands before any poll loop exists.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- runStart(ctx, cfg, log.Discard()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runStart ignored a shutdown signal received during startup")
	}
}

func TestRunStartRefusesSecondInstance(t *testing.T) {
	cfg := config.Defaults()
	cfg.Service.LockPath = filepath.Join(t.TempDir(), "meshmgr.lock")

	held, err := lock.Acquire(cfg.Service.LockPath)
	require.NoError(t, err)
	defer held.Release()

	err = runStart(context.Background(), cfg, log.Discard())
	assert.ErrorIs(t, err, lock.ErrLocked)
}

func TestRunStartWithNothingToRun(t *testing.T) {
	cfg := config.Defaults()
	cfg.Service.LockPath = filepath.Join(t.TempDir(), "meshmgr.lock")
	cfg.Agents.Disabled = []string{"EchoAgent", "ClockAgent"}

	require.NoError(t, runStart(context.Background(), cfg, log.Discard()))
}

func TestTasksListAndInspect(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	j, err := journal.Open(context.Background(), dbPath)
	require.NoError(t, err)
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	_, err = j.Record(context.Background(), journal.Entry{AgentID: "EchoAgent", TaskID: "t1", Success: true, Submitted: true, StartedAt: base, CompletedAt: base})
	require.NoError(t, err)
	_, err = j.Record(context.Background(), journal.Entry{AgentID: "ClockAgent", TaskID: "t2", OriginTaskID: "t1", Error: "boom", StartedAt: base.Add(time.Second), CompletedAt: base.Add(time.Second)})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	path := writeConfig(t, "journal:\n  path: "+dbPath+"\n")

	code, out, _ := run(t, "tasks", "list", "-c", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "ClockAgent")
	assert.Contains(t, out, "failed (not submitted)")
	assert.Contains(t, out, "error: boom")

	code, out, _ = run(t, "tasks", "list", "--agent", "EchoAgent", "--json", "-c", path)
	require.Equal(t, 0, code)
	var entries []journal.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "t1", entries[0].TaskID)

	code, out, _ = run(t, "tasks", "inspect", "t2", "-c", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Origin      : t1")
	assert.Contains(t, out, "Hops        : 2 (1 ok, 1 failed, 1 unsubmitted)")

	code, _, stderr := run(t, "tasks", "inspect", "nope", "-c", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not found")
}

func TestTasksWithoutJournal(t *testing.T) {
	code, _, stderr := run(t, "tasks", "list")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "task journal disabled")
}

func TestAdminURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8090", adminURL("127.0.0.1:8090"))
	assert.Equal(t, "http://127.0.0.1:9000", adminURL(":9000"))
	assert.Equal(t, "https://mesh.example", adminURL("https://mesh.example"))
}
