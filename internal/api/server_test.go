package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/meshmgr/internal/events"
	"github.com/mattjoyce/meshmgr/internal/journal"
	"github.com/mattjoyce/meshmgr/internal/metrics"
	"github.com/mattjoyce/meshmgr/internal/orchestrator"
)

type fakeLoops []orchestrator.LoopStatus

func (f fakeLoops) Status() []orchestrator.LoopStatus { return f }

type fakeTaskLog struct {
	entries  []journal.Entry
	err      error
	gotAgent string
	gotLimit int
}

func (f *fakeTaskLog) Recent(_ context.Context, agentID string, limit int) ([]journal.Entry, error) {
	f.gotAgent = agentID
	f.gotLimit = limit
	return f.entries, f.err
}

var testLoops = fakeLoops{
	{AgentID: "ClockAgent", Source: "builtin", State: "polling", ActiveTasks: []string{}},
	{AgentID: "EchoAgent", Source: "builtin", State: "processing", ActiveTasks: []string{"t1"}},
	{AgentID: "OldAgent", Source: "exec", State: "aborted", ActiveTasks: []string{}},
}

func newTestServer(t *testing.T, token string, tasks TaskLog, hub *events.Hub) *httptest.Server {
	t.Helper()
	s := New(Config{Token: token}, testLoops, tasks, hub, metrics.New(nil), nil)
	s.keepAlive = 20 * time.Millisecond
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	srv := newTestServer(t, "secret", nil, nil)

	resp := get(t, srv.URL+"/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[HealthzResponse](t, resp)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 3, body.AgentsLoaded)
	assert.Equal(t, 2, body.LoopsRunning)
}

func TestAuthRequiredWhenTokenSet(t *testing.T) {
	srv := newTestServer(t, "secret", nil, nil)

	assert.Equal(t, http.StatusUnauthorized, get(t, srv.URL+"/agents", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get(t, srv.URL+"/agents", "wrong").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/agents", "secret").StatusCode)
}

func TestNoTokenDisablesAuth(t *testing.T) {
	srv := newTestServer(t, "", nil, nil)
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/agents", "").StatusCode)
}

func TestAgents(t *testing.T) {
	srv := newTestServer(t, "", nil, nil)

	body := decode[AgentsResponse](t, get(t, srv.URL+"/agents", ""))
	require.Len(t, body.Agents, 3)
	assert.Equal(t, "EchoAgent", body.Agents[1].AgentID)
	assert.Equal(t, []string{"t1"}, body.Agents[1].ActiveTasks)
}

func TestTasks(t *testing.T) {
	tasks := &fakeTaskLog{entries: []journal.Entry{{ID: "j1", AgentID: "EchoAgent", TaskID: "t1", Success: true}}}
	srv := newTestServer(t, "", tasks, nil)

	resp := get(t, srv.URL+"/tasks?agent=EchoAgent&limit=5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[TasksResponse](t, resp)
	require.Len(t, body.Tasks, 1)
	assert.Equal(t, "t1", body.Tasks[0].TaskID)
	assert.Equal(t, "EchoAgent", tasks.gotAgent)
	assert.Equal(t, 5, tasks.gotLimit)
}

func TestTasksErrors(t *testing.T) {
	tests := []struct {
		name   string
		tasks  TaskLog
		query  string
		status int
	}{
		{"journal disabled", nil, "", http.StatusServiceUnavailable},
		{"bad limit", &fakeTaskLog{}, "?limit=abc", http.StatusBadRequest},
		{"negative limit", &fakeTaskLog{}, "?limit=-1", http.StatusBadRequest},
		{"read failure", &fakeTaskLog{err: errors.New("disk gone")}, "", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, "", tt.tasks, nil)
			resp := get(t, srv.URL+"/tasks"+tt.query, "")
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, decode[ErrorResponse](t, resp).Error)
		})
	}
}

func TestTasksEmptyListIsArray(t *testing.T) {
	srv := newTestServer(t, "", &fakeTaskLog{}, nil)
	data, err := io.ReadAll(get(t, srv.URL+"/tasks", "").Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tasks":[]}`, string(data))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, "secret", nil, nil)
	get(t, srv.URL+"/healthz", "")

	resp := get(t, srv.URL+"/metrics", "secret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `meshmgr_http_requests_total{method="GET",path="/healthz",status="200"} 1`)
}

func TestEventsReplayAndStream(t *testing.T) {
	hub := events.NewHub(0)
	hub.Publish("task.started", map[string]string{"agent_id": "A"})
	hub.Publish("task.completed", map[string]string{"agent_id": "A"})
	srv := newTestServer(t, "", nil, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	next := func() string {
		t.Helper()
		for {
			select {
			case l, ok := <-lines:
				require.True(t, ok, "stream closed")
				if l == "" || strings.HasPrefix(l, ":") {
					continue
				}
				return l
			case <-time.After(5 * time.Second):
				t.Fatal("timed out waiting for SSE line")
				return ""
			}
		}
	}

	assert.Equal(t, "id: 2", next())
	assert.Equal(t, "event: task.completed", next())
	assert.Equal(t, `data: {"agent_id":"A"}`, next())

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)
	hub.Publish("poll.error", map[string]string{"agent_id": "B"})
	assert.Equal(t, "id: 3", next())
	assert.Equal(t, "event: poll.error", next())
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, int64(0), parseLastEventID(""))
	assert.Equal(t, int64(0), parseLastEventID("abc"))
	assert.Equal(t, int64(0), parseLastEventID("-4"))
	assert.Equal(t, int64(17), parseLastEventID("17"))
}
