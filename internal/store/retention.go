package store

import (
	"context"
	"fmt"
	"time"
)

// RetentionPolicy carries the configured age boundaries of spec.md §4.F.
type RetentionPolicy struct {
	TraceDebugDays int // fixed at 7 by spec.md §4.F
	DefaultDays    int // Info
	ErrorDays      int // Warning, Error
	CriticalDays   int
	BatchSize      int
}

// RetentionCounts is the per-category row count spec.md §4.F's dry-run
// mode and live run both report.
type RetentionCounts struct {
	TraceDebug     int
	Info           int
	WarningError   int
	AlertInstances int
	AuditLogs      int
	RefreshTokens  int
}

// RunLogRetention deletes (or, if dryRun, merely counts) LogEntry rows
// past their level-specific age boundary, working partition-by-
// partition and in batches of BatchSize with a short inter-batch pause
// so retention never saturates the Store, per spec.md §4.F. Critical
// entries are never touched here — they age out only via
// DropExhaustedPartitions once the whole month exceeds CriticalDays.
func (s *Store) RunLogRetention(ctx context.Context, policy RetentionPolicy, now time.Time, dryRun bool) (RetentionCounts, error) {
	var counts RetentionCounts
	if policy.BatchSize <= 0 {
		policy.BatchSize = 10000
	}

	suffixes, err := s.partitionSuffixes()
	if err != nil {
		return counts, err
	}

	traceCutoff := now.AddDate(0, 0, -policy.TraceDebugDays)
	infoCutoff := now.AddDate(0, 0, -policy.DefaultDays)
	errorCutoff := now.AddDate(0, 0, -policy.ErrorDays)

	for _, suf := range suffixes {
		table := "log_entries_" + suf

		n, err := s.purgeLevelRange(ctx, table, []int{0, 1}, traceCutoff, policy.BatchSize, dryRun)
		if err != nil {
			return counts, fmt.Errorf("purge trace/debug in %s: %w", table, err)
		}
		counts.TraceDebug += n

		n, err = s.purgeLevelRange(ctx, table, []int{2}, infoCutoff, policy.BatchSize, dryRun)
		if err != nil {
			return counts, fmt.Errorf("purge info in %s: %w", table, err)
		}
		counts.Info += n

		n, err = s.purgeLevelRange(ctx, table, []int{3, 4}, errorCutoff, policy.BatchSize, dryRun)
		if err != nil {
			return counts, fmt.Errorf("purge warning/error in %s: %w", table, err)
		}
		counts.WarningError += n
	}

	if !dryRun {
		if err := s.rebuildLogView(); err != nil {
			return counts, err
		}
	}
	return counts, nil
}

func (s *Store) purgeLevelRange(ctx context.Context, table string, levels []int, cutoff time.Time, batchSize int, dryRun bool) (int, error) {
	placeholders := "?"
	args := []interface{}{levels[0]}
	for _, l := range levels[1:] {
		placeholders += ", ?"
		args = append(args, l)
	}

	if dryRun {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE level IN (%s) AND timestamp < ?", table, placeholders)
		var count int
		if err := s.db.QueryRowContext(ctx, query, append(args, cutoff)...).Scan(&count); err != nil {
			return 0, err
		}
		return count, nil
	}

	total := 0
	for {
		query := fmt.Sprintf(`
			DELETE FROM %s WHERE id IN (
				SELECT id FROM %s WHERE level IN (%s) AND timestamp < ? LIMIT ?
			)
		`, table, table, placeholders)
		res, err := s.db.ExecContext(ctx, query, append(append([]interface{}{}, args...), cutoff, batchSize)...)
		if err != nil {
			return total, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += int(affected)
		if affected < int64(batchSize) {
			break
		}
		time.Sleep(100 * time.Millisecond)
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
	}
	return total, nil
}

// DropExhaustedPartitions removes entire monthly partitions whose
// latest possible timestamp is older than CriticalDays — the only
// level that can legitimately survive that long — returning the
// suffixes actually dropped.
func (s *Store) DropExhaustedPartitions(ctx context.Context, policy RetentionPolicy, now time.Time) ([]string, error) {
	cutoff := now.AddDate(0, 0, -policy.CriticalDays)
	suffixes, err := s.partitionSuffixes()
	if err != nil {
		return nil, err
	}
	var dropped []string
	for _, suf := range suffixes {
		monthEnd, err := time.Parse("200601", suf)
		if err != nil {
			continue
		}
		monthEnd = monthEnd.AddDate(0, 1, 0)
		if !monthEnd.Before(cutoff) {
			continue
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS log_entries_%s", suf)); err != nil {
			return dropped, fmt.Errorf("drop partition %s: %w", suf, err)
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM log_partitions WHERE suffix = ?`, suf); err != nil {
			return dropped, fmt.Errorf("unregister partition %s: %w", suf, err)
		}
		dropped = append(dropped, suf)
	}
	if len(dropped) > 0 {
		if err := s.rebuildLogView(); err != nil {
			return dropped, err
		}
	}
	return dropped, nil
}

// RunAncillaryRetention deletes resolved AlertInstances, old AuditLogs,
// and expired/long-revoked RefreshTokens, per spec.md §4.F.
func (s *Store) RunAncillaryRetention(ctx context.Context, now time.Time, dryRun bool) (RetentionCounts, error) {
	var counts RetentionCounts

	resolvedCutoff := now.AddDate(0, 0, -90)
	auditCutoff := now.AddDate(0, 0, -180)
	revokedCutoff := now.AddDate(0, 0, -30)

	if dryRun {
		if err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM alert_instances WHERE status = 2 AND resolved_at < ?
		`, resolvedCutoff).Scan(&counts.AlertInstances); err != nil {
			return counts, err
		}
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs WHERE created_at < ?`, auditCutoff).Scan(&counts.AuditLogs); err != nil {
			return counts, err
		}
		if err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM refresh_tokens WHERE expires_at < ? OR (revoked_at IS NOT NULL AND revoked_at < ?)
		`, now, revokedCutoff).Scan(&counts.RefreshTokens); err != nil {
			return counts, err
		}
		return counts, nil
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM alert_instances WHERE status = 2 AND resolved_at < ?`, resolvedCutoff)
	if err != nil {
		return counts, fmt.Errorf("purge resolved alert instances: %w", err)
	}
	n, _ := res.RowsAffected()
	counts.AlertInstances = int(n)

	res, err = s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < ?`, auditCutoff)
	if err != nil {
		return counts, fmt.Errorf("purge audit logs: %w", err)
	}
	n, _ = res.RowsAffected()
	counts.AuditLogs = int(n)

	res, err = s.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens WHERE expires_at < ? OR (revoked_at IS NOT NULL AND revoked_at < ?)
	`, now, revokedCutoff)
	if err != nil {
		return counts, fmt.Errorf("purge refresh tokens: %w", err)
	}
	n, _ = res.RowsAffected()
	counts.RefreshTokens = int(n)

	return counts, nil
}
