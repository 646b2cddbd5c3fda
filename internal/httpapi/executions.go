package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

// handleStartExecution implements spec.md §4.D.1's StartExecution.
func (h *handlers) handleStartExecution(w http.ResponseWriter, r *http.Request) {
	var req startExecutionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	exec, err := h.deps.Executions.Start(r.Context(), req.toParams())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exec)
}

// handleCompleteExecution implements spec.md §4.D.2's CompleteExecution.
func (h *handlers) handleCompleteExecution(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	var req completeExecutionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	exec, err := h.deps.Executions.Complete(r.Context(), req.toParams(id))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// handleCancelExecution implements spec.md §4.D.3's CancelExecution.
func (h *handlers) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	var req cancelExecutionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	exec, err := h.deps.Executions.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// handleGetExecution returns a JobExecution by id.
func (h *handlers) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	exec, err := h.deps.Executions.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}
