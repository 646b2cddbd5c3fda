package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fleetwatch/fleetwatch/internal/auth"
)

// actorFromRequest derives the {actor} recorded on an AlertInstance
// acknowledge/resolve from the resolved Principal, falling back to
// "unknown" for the (unreachable in practice, since Middleware always
// runs first) case where none is attached.
func actorFromRequest(r *http.Request) string {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		return "unknown"
	}
	switch principal := p.(type) {
	case auth.UserPrincipal:
		return principal.Username
	case auth.ServicePrincipal:
		return principal.Name
	default:
		return "unknown"
	}
}

// handleAcknowledgeInstance implements spec.md §6's Acknowledge AlertInstance.
func (h *handlers) handleAcknowledgeInstance(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	var req instanceActionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	instance, err := h.deps.Alerts.Acknowledge(r.Context(), id, actorFromRequest(r), req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, instance)
}

// handleResolveInstance implements spec.md §6's Resolve AlertInstance.
func (h *handlers) handleResolveInstance(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	var req instanceActionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	instance, err := h.deps.Alerts.Resolve(r.Context(), id, actorFromRequest(r), req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, instance)
}
