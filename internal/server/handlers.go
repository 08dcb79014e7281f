package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/me/gokern/pkg/model"
)

// handleHealth reports inspector liveness and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

// handleScheduler returns the scheduler-level counters of the current
// snapshot, without the per-process detail.
func (s *Server) handleScheduler(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	snap := s.sched.Snapshot()
	respondOK(w, reqID, map[string]any{
		"now":        snap.Now.String(),
		"current":    snap.Current,
		"passes":     snap.Passes,
		"dispatches": snap.Dispatches,
		"ready":      snap.Ready,
		"waiting":    snap.Waiting,
		"processes":  len(snap.Processes),
	})
}

// handleListProcesses returns every live table entry.
func (s *Server) handleListProcesses(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	snap := s.sched.Snapshot()
	respondOK(w, reqID, snap.Processes)
}

// handleGetProcess returns one table entry by pid.
func (s *Server) handleGetProcess(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	raw := chi.URLParam(r, "pid")
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		respondError(w, reqID, http.StatusBadRequest, "bad_pid", "pid must be a positive integer")
		return
	}

	info, ok := s.sched.Process(model.Pid(n))
	if !ok {
		respondError(w, reqID, http.StatusNotFound, "not_found", "no such process (it may have been reaped)")
		return
	}
	respondOK(w, reqID, info)
}

// handleListRuns lists recorded trace runs, most recent first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.reader == nil {
		respondError(w, reqID, http.StatusNotFound, "no_trace", "tracing is not enabled on this run")
		return
	}
	runs, err := s.reader.ListRuns(r.Context())
	if err != nil {
		s.logger.Error("list runs", "error", err)
		respondError(w, reqID, http.StatusInternalServerError, "trace_query", "failed to list runs")
		return
	}
	respondOK(w, reqID, runs)
}

// handleRunEvents returns all events of one trace run in order.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.reader == nil {
		respondError(w, reqID, http.StatusNotFound, "no_trace", "tracing is not enabled on this run")
		return
	}
	events, err := s.reader.Events(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("run events", "error", err)
		respondError(w, reqID, http.StatusInternalServerError, "trace_query", "failed to load events")
		return
	}
	if len(events) == 0 {
		respondError(w, reqID, http.StatusNotFound, "not_found", "no events for that run id")
		return
	}
	respondOK(w, reqID, events)
}
