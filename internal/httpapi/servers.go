package httpapi

import "net/http"

// handleHeartbeat implements spec.md §4.E.1's ProcessHeartbeat.
func (h *handlers) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	srv, err := h.deps.Servers.Process(r.Context(), req.toParams())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, srv)
}
