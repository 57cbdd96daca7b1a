package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/meshmgr/internal/journal"
	"github.com/mattjoyce/meshmgr/internal/loop"
)

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	loops := s.loops.Status()
	running := 0
	for _, l := range loops {
		if l.State != loop.StateAborted.String() {
			running++
		}
	}
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:           "ok",
		UptimeSeconds:    int64(time.Since(s.startedAt).Seconds()),
		AgentsLoaded:     len(loops),
		LoopsRunning:     running,
		EventSubscribers: s.events.Subscribers(),
	})
}

// handleAgents handles GET /agents.
func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, AgentsResponse{Agents: s.loops.Status()})
}

// handleTasks handles GET /tasks?agent=<id>&limit=<n>.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		s.writeError(w, http.StatusServiceUnavailable, "task journal disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.tasks.Recent(r.Context(), r.URL.Query().Get("agent"), limit)
	if err != nil {
		s.logger.Error("failed to read task journal", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read task journal")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	respondJSON(w, http.StatusOK, TasksResponse{Tasks: entries})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
