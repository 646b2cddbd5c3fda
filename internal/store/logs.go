package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
)

// InsertLogsBatch commits a slice of already-validated, already-stamped
// LogEntry values in one transaction, grounded on events.Bus's
// single-flush-per-batch discipline. Entries are grouped by partition
// (month of Timestamp) since a UNION ALL view isn't writable in
// SQLite — each group is inserted into its own log_entries_YYYYMM
// table, auto-vivifying the partition if this is the first write of a
// new month. Returns the assigned ids in the same order as entries.
func (s *Store) InsertLogsBatch(ctx context.Context, entries []*domain.LogEntry) ([]int64, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	byMonth := map[string][]int{}
	for i, e := range entries {
		suf := e.Timestamp.UTC().Format("200601")
		byMonth[suf] = append(byMonth[suf], i)
	}
	for suf := range byMonth {
		t, _ := time.Parse("200601", suf)
		if err := s.ensureLogPartition(t); err != nil {
			return nil, err
		}
	}

	ids := make([]int64, len(entries))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for suf, idxs := range byMonth {
			table := "log_entries_" + suf
			stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
				INSERT INTO %s (
					timestamp, level, message, job_id, job_execution_id, server_name, category,
					source_context, correlation_id, trace_id, span_id, parent_span_id,
					exception_type, exception_message, exception_stack_trace, exception_source,
					properties, tags, environment, app_version, received_at, client_ip
				) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			`, table))
			if err != nil {
				return fmt.Errorf("prepare insert for %s: %w", table, err)
			}
			for _, idx := range idxs {
				e := entries[idx]
				var excType, excMsg, excStack, excSource sql.NullString
				if e.Exception != nil {
					excType = sql.NullString{String: e.Exception.Type, Valid: true}
					excMsg = sql.NullString{String: e.Exception.Message, Valid: true}
					excStack = sql.NullString{String: e.Exception.StackTrace, Valid: true}
					excSource = sql.NullString{String: e.Exception.Source, Valid: true}
				}
				res, err := stmt.ExecContext(ctx,
					e.Timestamp, int(e.Level), e.Message, nullStr(e.JobID), e.JobExecutionID, e.ServerName,
					nullStr(e.Category), nullStr(e.SourceContext), nullStr(e.CorrelationID), nullStr(e.TraceID),
					nullStr(e.SpanID), nullStr(e.ParentSpanID), excType, excMsg, excStack, excSource,
					nullRaw(e.Properties), nullStr(strings.Join(e.Tags, ",")), nullStr(e.Environment),
					nullStr(e.AppVersion), e.ReceivedAt, nullStr(e.ClientIP),
				)
				if err != nil {
					stmt.Close()
					return fmt.Errorf("insert log: %w", err)
				}
				id, err := res.LastInsertId()
				if err != nil {
					stmt.Close()
					return err
				}
				ids[idx] = id
			}
			stmt.Close()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.rebuildLogView(); err != nil {
		return nil, err
	}
	return ids, nil
}

func nullStr(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullRaw(v []byte) sql.NullString {
	if len(v) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(v), Valid: true}
}

// LogSearchFilter mirrors the filter set of spec.md §4.C.3.
type LogSearchFilter struct {
	Start, End                 time.Time
	JobID                      string
	JobExecutionID             *int64
	ServerName                 string
	MinLevel, MaxLevel         *int
	SearchText                 string
	ExceptionType              string
	CorrelationID              string
	HasException               *bool
	Tag                        string
	Page, PageSize             int
	SortColumn, SortDirection  string
}

// LogSearchResult is the paged response spec.md §4.C.3 describes.
type LogSearchResult struct {
	Items      []*domain.LogEntry
	TotalCount int
}

func (f *LogSearchFilter) whereClause() (string, []interface{}) {
	var clauses []string
	var args []interface{}

	clauses = append(clauses, "timestamp >= ? AND timestamp <= ?")
	args = append(args, f.Start, f.End)

	if f.JobID != "" {
		clauses = append(clauses, "job_id = ?")
		args = append(args, f.JobID)
	}
	if f.JobExecutionID != nil {
		clauses = append(clauses, "job_execution_id = ?")
		args = append(args, *f.JobExecutionID)
	}
	if f.ServerName != "" {
		clauses = append(clauses, "server_name = ?")
		args = append(args, f.ServerName)
	}
	if f.MinLevel != nil {
		clauses = append(clauses, "level >= ?")
		args = append(args, *f.MinLevel)
	}
	if f.MaxLevel != nil {
		clauses = append(clauses, "level <= ?")
		args = append(args, *f.MaxLevel)
	}
	if f.SearchText != "" {
		clauses = append(clauses, "message LIKE ?")
		args = append(args, "%"+f.SearchText+"%")
	}
	if f.ExceptionType != "" {
		clauses = append(clauses, "exception_type LIKE ?")
		args = append(args, "%"+f.ExceptionType+"%")
	}
	if f.CorrelationID != "" {
		clauses = append(clauses, "correlation_id = ?")
		args = append(args, f.CorrelationID)
	}
	if f.HasException != nil {
		if *f.HasException {
			clauses = append(clauses, "exception_type IS NOT NULL")
		} else {
			clauses = append(clauses, "exception_type IS NULL")
		}
	}
	if f.Tag != "" {
		clauses = append(clauses, "tags LIKE ?")
		args = append(args, "%"+f.Tag+"%")
	}

	return strings.Join(clauses, " AND "), args
}

// Search executes spec.md §4.C.3's paginated log search over the
// log_entries view (all partitions).
func (s *Store) SearchLogs(ctx context.Context, f LogSearchFilter) (*LogSearchResult, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 1000 {
		f.PageSize = 50
	}
	sortCol := "timestamp"
	if strings.EqualFold(f.SortColumn, "Level") {
		sortCol = "level"
	}
	sortDir := "DESC"
	if strings.EqualFold(f.SortDirection, "Asc") {
		sortDir = "ASC"
	}

	where, args := f.whereClause()

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM log_entries WHERE %s", where)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count logs: %w", err)
	}

	offset := (f.Page - 1) * f.PageSize
	query := fmt.Sprintf(`
		SELECT %s FROM log_entries
		WHERE %s
		ORDER BY %s %s, id %s
		LIMIT ? OFFSET ?
	`, logColumns, where, sortCol, sortDir, sortDir)
	args = append(args, f.PageSize, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search logs: %w", err)
	}
	defer rows.Close()

	items, err := scanLogEntries(rows)
	if err != nil {
		return nil, err
	}
	return &LogSearchResult{Items: items, TotalCount: total}, nil
}

// GetLog fetches a single LogEntry by its surrogate id.
func (s *Store) GetLog(ctx context.Context, id int64) (*domain.LogEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM log_entries WHERE id = ?", logColumns)
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items, err := scanLogEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

func scanLogEntries(rows *sql.Rows) ([]*domain.LogEntry, error) {
	var out []*domain.LogEntry
	for rows.Next() {
		e := &domain.LogEntry{}
		var jobID, category, sourceCtx, corrID, traceID, spanID, parentSpanID sql.NullString
		var excType, excMsg, excStack, excSource sql.NullString
		var properties, tags, environment, appVersion, clientIP sql.NullString
		var jobExecID sql.NullInt64
		var level int

		err := rows.Scan(
			&e.ID, &e.Timestamp, &level, &e.Message, &jobID, &jobExecID, &e.ServerName, &category,
			&sourceCtx, &corrID, &traceID, &spanID, &parentSpanID, &excType, &excMsg, &excStack, &excSource,
			&properties, &tags, &environment, &appVersion, &e.ReceivedAt, &clientIP,
		)
		if err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.Level = domain.LogLevel(level)
		e.JobID = jobID.String
		if jobExecID.Valid {
			v := jobExecID.Int64
			e.JobExecutionID = &v
		}
		e.Category = category.String
		e.SourceContext = sourceCtx.String
		e.CorrelationID = corrID.String
		e.TraceID = traceID.String
		e.SpanID = spanID.String
		e.ParentSpanID = parentSpanID.String
		if excType.Valid {
			e.Exception = &domain.Exception{
				Type: excType.String, Message: excMsg.String,
				StackTrace: excStack.String, Source: excSource.String,
			}
		}
		if properties.Valid {
			e.Properties = []byte(properties.String)
		}
		if tags.Valid && tags.String != "" {
			e.Tags = strings.Split(tags.String, ",")
		}
		e.Environment = environment.String
		e.AppVersion = appVersion.String
		e.ClientIP = clientIP.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountLogsSince powers the ErrorThreshold alert condition of spec.md
// §4.G: count of logs with level >= minLevel in the last window,
// optionally scoped to a job or server.
func (s *Store) CountLogsSince(ctx context.Context, minLevel int, since time.Time, jobID, serverName string) (int, error) {
	clauses := []string{"level >= ?", "timestamp >= ?"}
	args := []interface{}{minLevel, since}
	if jobID != "" {
		clauses = append(clauses, "job_id = ?")
		args = append(args, jobID)
	}
	if serverName != "" {
		clauses = append(clauses, "server_name = ?")
		args = append(args, serverName)
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM log_entries WHERE %s", strings.Join(clauses, " AND "))
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count logs since: %w", err)
	}
	return count, nil
}

// LogsSince powers the PatternMatch alert condition; regex evaluation
// itself happens in the caller (internal/alerts) — here we just filter
// by window, minimum level (when minLevel >= 0), jobID and serverName,
// newest first, up to limit rows (500 when limit <= 0), and hand the
// candidate set back for regex evaluation.
func (s *Store) LogsSince(ctx context.Context, minLevel int, since time.Time, jobID, serverName string, limit int) ([]*domain.LogEntry, error) {
	clauses := []string{"timestamp >= ?"}
	args := []interface{}{since}
	if minLevel >= 0 {
		clauses = append(clauses, "level >= ?")
		args = append(args, minLevel)
	}
	if jobID != "" {
		clauses = append(clauses, "job_id = ?")
		args = append(args, jobID)
	}
	if serverName != "" {
		clauses = append(clauses, "server_name = ?")
		args = append(args, serverName)
	}
	if limit <= 0 {
		limit = 500
	}
	query := fmt.Sprintf("SELECT %s FROM log_entries WHERE %s ORDER BY timestamp DESC LIMIT ?",
		logColumns, strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

// HourlyTrend returns per-hour log counts for the last 24h, for the
// dashboard's trend view (spec.md §4.H).
type HourBucket struct {
	HourStart time.Time
	Count     int
}

func (s *Store) HourlyTrend(ctx context.Context, since time.Time) ([]HourBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m-%dT%H:00:00Z', timestamp) AS hour, COUNT(*)
		FROM log_entries
		WHERE timestamp >= ?
		GROUP BY hour
		ORDER BY hour ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("hourly trend: %w", err)
	}
	defer rows.Close()
	var out []HourBucket
	for rows.Next() {
		var hourStr string
		var count int
		if err := rows.Scan(&hourStr, &count); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, hourStr)
		if err != nil {
			return nil, err
		}
		out = append(out, HourBucket{HourStart: t, Count: count})
	}
	return out, rows.Err()
}

// TopException is a single row of the top-exceptions dashboard view.
type TopException struct {
	ExceptionType string
	Count         int
}

func (s *Store) TopExceptions(ctx context.Context, since time.Time, limit int) ([]TopException, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT exception_type, COUNT(*) AS c
		FROM log_entries
		WHERE timestamp >= ? AND exception_type IS NOT NULL
		GROUP BY exception_type
		ORDER BY c DESC
		LIMIT ?
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("top exceptions: %w", err)
	}
	defer rows.Close()
	var out []TopException
	for rows.Next() {
		var te TopException
		if err := rows.Scan(&te.ExceptionType, &te.Count); err != nil {
			return nil, err
		}
		out = append(out, te)
	}
	return out, rows.Err()
}

// LevelCounts returns a count per LogLevel in [since, now], for the
// dashboard summary's level breakdown.
func (s *Store) LevelCounts(ctx context.Context, since time.Time) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT level, COUNT(*) FROM log_entries WHERE timestamp >= ? GROUP BY level
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int]int{}
	for rows.Next() {
		var level, count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		out[level] = count
	}
	return out, rows.Err()
}
