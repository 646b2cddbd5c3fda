package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/fleetwatch/fleetwatch/internal/apperr"
	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/store"
)

// handleIngestOne implements spec.md §6's IngestLog.
func (h *handlers) handleIngestOne(w http.ResponseWriter, r *http.Request) {
	var entry domain.LogEntry
	if err := decodeJSON(r, &entry); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.deps.Logs.IngestOne(r.Context(), &entry)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, logIngestionResponse{ID: res.ID, ReceivedAt: res.ReceivedAt})
}

// handleIngestBatch implements spec.md §6's IngestBatch.
func (h *handlers) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var req batchLogRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.deps.Logs.IngestBatch(r.Context(), req.Entries)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := batchLogResponse{AcceptedCount: res.AcceptedCount, RejectedCount: res.RejectedCount}
	for _, rej := range res.Rejections {
		resp.Rejections = append(resp.Rejections, rejectionDTO{Index: rej.Index, Reason: rej.Reason})
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleSearchLogs implements spec.md §4.C.3's SearchLogs, parsing the
// filter set from query parameters per spec.md §6.
func (h *handlers) handleSearchLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := h.now()
	f := store.LogSearchFilter{
		Start:         parseTimeOr(q.Get("start"), now.Add(-24*time.Hour)),
		End:           parseTimeOr(q.Get("end"), now),
		JobID:         q.Get("jobId"),
		ServerName:    q.Get("serverName"),
		SearchText:    q.Get("searchText"),
		ExceptionType: q.Get("exceptionType"),
		CorrelationID: q.Get("correlationId"),
		Tag:           q.Get("tag"),
		SortColumn:    q.Get("sortColumn"),
		SortDirection: q.Get("sortDirection"),
		Page:          parseIntOr(q.Get("page"), 1),
		PageSize:      parseIntOr(q.Get("pageSize"), 50),
	}
	if v := q.Get("jobExecutionId"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.JobExecutionID = &id
		}
	}
	if v := q.Get("minLevel"); v != "" {
		if lvl, err := strconv.Atoi(v); err == nil {
			f.MinLevel = &lvl
		}
	}
	if v := q.Get("maxLevel"); v != "" {
		if lvl, err := strconv.Atoi(v); err == nil {
			f.MaxLevel = &lvl
		}
	}
	if v := q.Get("hasException"); v != "" {
		b := v == "true"
		f.HasException = &b
	}

	res, err := h.deps.Logs.SearchLogs(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchLogsResponse{
		Items:      res.Items,
		TotalCount: res.TotalCount,
		Page:       f.Page,
		PageSize:   f.PageSize,
	})
}

// handleGetLog implements spec.md §6's GetLog / GetLogDetail.
func (h *handlers) handleGetLog(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	entry, err := h.deps.Logs.GetLog(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if entry == nil {
		writeError(w, apperr.NotFound("log %d not found", id))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *handlers) now() time.Time {
	if h.deps.Clock == nil {
		return time.Now().UTC()
	}
	return h.deps.Clock.NowUTC()
}

func parsePathID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.Validation("invalid id %q", raw)
	}
	return id, nil
}

func parseIntOr(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func parseTimeOr(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fallback
	}
	return t
}
