package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prospexs-ab/prospexs-api/internal/model"
	"github.com/prospexs-ab/prospexs-api/internal/store"
)

// terminalJobRetention is how long completed/failed jobs are kept before the
// cleanup endpoint removes them.
const terminalJobRetention = 7 * 24 * time.Hour

// handleRunStage claims and executes one stage of the lead-insights chain.
// The claim outcome maps to the status code: 200 with the job on success,
// 204 when the queue is empty, 409 on a lost claim race, 429 when too many
// jobs are already processing.
func (s *Server) handleRunStage(w http.ResponseWriter, r *http.Request) {
	step, err := strconv.Atoi(chi.URLParam(r, "step"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid step")
		return
	}
	if _, ok := s.chain.Stage(step); !ok {
		writeError(w, http.StatusBadRequest, "unknown step")
		return
	}

	result, err := s.chain.RunStage(r.Context(), step)
	if err != nil {
		fail(w, err)
		return
	}

	switch result.Outcome {
	case store.Claimed:
		writeData(w, http.StatusOK, result.Job)
	case store.NoWork:
		w.WriteHeader(http.StatusNoContent)
	case store.Conflict:
		writeError(w, http.StatusConflict, "job claimed by another worker")
	case store.Overloaded:
		writeError(w, http.StatusTooManyRequests, "too many jobs processing")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.JobStats(r.Context(), model.JobNameLeadInsights)
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, job)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	report, err := s.sweeper.Sweep(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.store.DeleteTerminalJobs(r.Context(), terminalJobRetention)
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"deleted": deleted})
}
