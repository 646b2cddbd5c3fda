package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fleetwatch/fleetwatch/internal/apperr"
)

// handleUpsertJob implements spec.md §6's UpsertJob.
func (h *handlers) handleUpsertJob(w http.ResponseWriter, r *http.Request) {
	job := upsertJobRequest{AllowConcurrent: true}
	if err := decodeJSON(r, &job); err != nil {
		writeError(w, err)
		return
	}
	if err := job.Validate(); err != nil {
		writeError(w, apperr.Validation("%s", err.Error()))
		return
	}
	if err := h.deps.Jobs.UpsertJob(r.Context(), &job, h.now()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &job)
}

// handleGetJob returns the JobOverview spec.md §6 names as UpsertJob's output shape.
func (h *handlers) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	job, err := h.deps.Jobs.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	if job == nil {
		writeError(w, apperr.NotFound("job %q not found", jobID))
		return
	}
	writeJSON(w, http.StatusOK, job)
}
