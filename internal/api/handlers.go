package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/watchit/internal/app"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
)

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	for _, st := range s.ctrl.Status() {
		resp.Watches++
		if !st.Valid {
			resp.Invalid++
		}
		if st.Running {
			resp.Running++
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleListWatches handles GET /watches.
func (s *Server) handleListWatches(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, WatchesResponse{Watches: s.ctrl.Status()})
}

// handleRunWatch handles POST /watches/{watchID}/run.
// The run starts immediately; results arrive on /events and /runs.
func (s *Server) handleRunWatch(w http.ResponseWriter, r *http.Request) {
	watchID := chi.URLParam(r, "watchID")
	runID, err := s.ctrl.TriggerNow(watchID)
	if err != nil {
		s.writeControllerError(w, err, "watch_id", watchID)
		return
	}
	s.logger.Info("run requested via API", "watch_id", watchID, "run_id", runID)
	respondJSON(w, http.StatusAccepted, RunResponse{WatchID: watchID, RunID: runID})
}

// handleStopWatch handles POST /watches/{watchID}/stop.
func (s *Server) handleStopWatch(w http.ResponseWriter, r *http.Request) {
	watchID := chi.URLParam(r, "watchID")
	stopped, err := s.ctrl.Stop(watchID)
	if err != nil {
		s.writeControllerError(w, err, "watch_id", watchID)
		return
	}
	respondJSON(w, http.StatusOK, StopResponse{WatchID: watchID, Stopped: stopped})
}

// handleListRuns handles GET /runs?watch=&limit=.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultRunsLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	watchID := q.Get("watch")
	runs, err := s.ctrl.Runs(r.Context(), watchID, limit)
	if err != nil {
		s.writeControllerError(w, err, "watch_id", watchID)
		return
	}
	respondJSON(w, http.StatusOK, RunsResponse{Runs: runs})
}

// handleRunFailures handles GET /runs/{runID}/failures.
func (s *Server) handleRunFailures(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	failures, err := s.ctrl.Failures(r.Context(), runID)
	if err != nil {
		s.writeControllerError(w, err, "run_id", runID)
		return
	}
	respondJSON(w, http.StatusOK, FailuresResponse{RunID: runID, Failures: failures})
}

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.ctrl.Status()))
}

// writeControllerError maps service errors onto status codes.
func (s *Server) writeControllerError(w http.ResponseWriter, err error, key, value string) {
	switch {
	case errors.Is(err, app.ErrWatchNotFound):
		s.writeError(w, http.StatusNotFound, "watch not found")
	case errors.Is(err, app.ErrHistoryDisabled):
		s.writeError(w, http.StatusServiceUnavailable, "history is disabled")
	case errors.Is(err, app.ErrClosed):
		s.writeError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		s.logger.Error("request failed", key, value, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
