// Package metrics exposes Prometheus instruments for poll loops and the
// admin API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattjoyce/meshmgr/internal/loop"
)

const (
	namespace = "meshmgr"
	unmatched = "unmatched"

	outcomeTask    = "task"
	outcomeEmpty   = "empty"
	outcomeError   = "error"
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics holds every instrument. Create one per registry.
type Metrics struct {
	gatherer prometheus.Gatherer

	polls          *prometheus.CounterVec
	tasks          *prometheus.CounterVec
	submitFailures *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	activeTasks    *prometheus.GaugeVec
	runningLoops   prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers instruments with reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Total polls by agent and outcome (task, empty, error).",
		}, []string{"agent", "outcome"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Total processed tasks by agent and outcome (success, failure).",
		}, []string{"agent", "outcome"}),
		submitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submit_failures_total",
			Help:      "Results dropped because submission failed.",
		}, []string{"agent"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_latency_seconds",
			Help:      "Handler invocation latency of successful tasks, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"agent"}),
		activeTasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_tasks",
			Help:      "Tasks currently being processed, per agent (0 or 1).",
		}, []string{"agent"}),
		runningLoops: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_loops",
			Help:      "Number of poll loops currently running.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of admin API requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Admin API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		m.polls, m.tasks, m.submitFailures, m.latency, m.activeTasks, m.runningLoops,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// InitAgent pre-creates label combinations so agents show up at zero.
func (m *Metrics) InitAgent(agentID string) {
	for _, o := range []string{outcomeTask, outcomeEmpty, outcomeError} {
		m.polls.WithLabelValues(agentID, o)
	}
	m.tasks.WithLabelValues(agentID, outcomeSuccess)
	m.tasks.WithLabelValues(agentID, outcomeFailure)
	m.submitFailures.WithLabelValues(agentID)
	m.activeTasks.WithLabelValues(agentID).Set(0)
}

// Observe implements loop.Observer.
func (m *Metrics) Observe(ev loop.Event) {
	switch ev.Kind {
	case loop.EventLoopStarted:
		m.runningLoops.Inc()
	case loop.EventLoopStopped:
		m.runningLoops.Dec()
		m.activeTasks.WithLabelValues(ev.AgentID).Set(0)
	case loop.EventPollEmpty:
		m.polls.WithLabelValues(ev.AgentID, outcomeEmpty).Inc()
	case loop.EventPollError:
		m.polls.WithLabelValues(ev.AgentID, outcomeError).Inc()
	case loop.EventTaskStarted:
		m.polls.WithLabelValues(ev.AgentID, outcomeTask).Inc()
		m.activeTasks.WithLabelValues(ev.AgentID).Set(1)
	case loop.EventSubmitFailed:
		m.submitFailures.WithLabelValues(ev.AgentID).Inc()
	case loop.EventTaskCompleted, loop.EventTaskFailed:
		m.activeTasks.WithLabelValues(ev.AgentID).Set(0)
		outcome := outcomeFailure
		if ev.Result != nil && ev.Result.Success {
			outcome = outcomeSuccess
			m.latency.WithLabelValues(ev.AgentID).Observe(ev.Result.InferenceLatency.Seconds())
		}
		m.tasks.WithLabelValues(ev.AgentID, outcome).Inc()
	}
}

// Middleware records request count and duration per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := routePattern(r)
		m.httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// routePattern avoids unbounded label cardinality from raw paths.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatched
}
