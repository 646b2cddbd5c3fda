package httpapi

import "net/http"

// handleRunRetention implements spec.md §6's RunRetention.
func (h *handlers) handleRunRetention(w http.ResponseWriter, r *http.Request) {
	var req runRetentionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	report, err := h.deps.Retention.Run(r.Context(), req.DryRun)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runRetentionResponse{
		DryRun:            report.DryRun,
		TraceDebug:        report.TraceDebug,
		Info:              report.Info,
		WarningError:      report.WarningError,
		AlertInstances:    report.AlertInstances,
		AuditLogs:         report.AuditLogs,
		RefreshTokens:     report.RefreshTokens,
		DroppedPartitions: report.DroppedPartitions,
	})
}
