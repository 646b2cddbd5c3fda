package httpapi

import "net/http"

// handleDashboardSummary implements spec.md §6's Dashboard.GetSummary.
// The `period` input named in the endpoint table has no effect on
// internal/dashboard.Service (it always returns the cached/recomputed
// full-window summary); it's accepted and ignored rather than rejected,
// so existing callers passing it don't break.
func (h *handlers) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.deps.Dashboard.GetSummary(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
