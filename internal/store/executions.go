package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/apperr"
	"github.com/fleetwatch/fleetwatch/internal/domain"
)

// StartExecutionParams carries the inputs of spec.md §4.D.1.
type StartExecutionParams struct {
	JobID         string
	ServerName    string
	TriggerType   string
	TriggeredBy   string
	CorrelationID string
	Parameters    []byte
}

// StartExecution autovivifies Job/Server, checks the overlap policy,
// and atomically inserts the execution plus rolls up Job counters, per
// spec.md §4.D.1. Grounded on tasks.Queue's Add-then-reindex pattern,
// generalized into a single SQL transaction.
func (s *Store) StartExecution(ctx context.Context, p StartExecutionParams, now time.Time) (*domain.JobExecution, error) {
	var exec *domain.JobExecution
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO jobs (job_id, display_name, is_active, allow_concurrent, created_at, updated_at, created_by, updated_by)
			VALUES (?, ?, 0, 1, ?, ?, 'system:autovivify', 'system:autovivify')
			ON CONFLICT(job_id) DO NOTHING
		`, p.JobID, p.JobID, now, now); err != nil {
			return fmt.Errorf("autovivify job: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO servers (server_name, status, last_heartbeat, heartbeat_interval_seconds, is_active, created_at, updated_at)
			VALUES (?, 'Online', ?, 60, 1, ?, ?)
			ON CONFLICT(server_name) DO NOTHING
		`, p.ServerName, now, now, now); err != nil {
			return fmt.Errorf("autovivify server: %w", err)
		}

		var allowConcurrent bool
		if err := tx.QueryRowContext(ctx, `SELECT allow_concurrent FROM jobs WHERE job_id = ?`, p.JobID).Scan(&allowConcurrent); err != nil {
			return fmt.Errorf("load job policy: %w", err)
		}
		if !allowConcurrent {
			var running int
			err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM job_executions WHERE job_id = ? AND status IN (?, ?)
			`, p.JobID, int(domain.StatusPending), int(domain.StatusRunning)).Scan(&running)
			if err != nil {
				return fmt.Errorf("check overlap: %w", err)
			}
			if running > 0 {
				return apperr.Conflict("job %s already has a running execution and does not allow overlap", p.JobID)
			}
		}

		correlationID := p.CorrelationID

		res, err := tx.ExecContext(ctx, `
			INSERT INTO job_executions (
				job_id, started_at, status, server_name, trigger_type, triggered_by,
				correlation_id, parameters
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, p.JobID, now, int(domain.StatusRunning), p.ServerName, nullStr(p.TriggerType),
			nullStr(p.TriggeredBy), correlationID, nullRaw(p.Parameters))
		if err != nil {
			return fmt.Errorf("insert execution: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs SET
				last_execution_id = ?, last_execution_at = ?, last_status = ?,
				total_executions = total_executions + 1, updated_at = ?
			WHERE job_id = ?
		`, id, now, int(domain.StatusRunning), now, p.JobID); err != nil {
			return fmt.Errorf("rollup job on start: %w", err)
		}

		exec = &domain.JobExecution{
			ID: id, JobID: p.JobID, StartedAt: now, Status: domain.StatusRunning,
			ServerName: p.ServerName, TriggerType: p.TriggerType, TriggeredBy: p.TriggeredBy,
			CorrelationID: correlationID, Parameters: p.Parameters,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// CompleteExecutionParams carries the inputs of spec.md §4.D.2.
type CompleteExecutionParams struct {
	ExecutionID   int64
	Status        domain.ExecutionStatus
	ResultSummary []byte
	ResultCode    *int
	ErrorMessage  string
	ErrorCategory string
}

// CompleteExecution transitions a non-terminal execution to a terminal
// state and rolls up Job statistics atomically, per spec.md §4.D.2. The
// average-duration formula divides by CompletedExecutions (terminal and
// not Cancelled) rather than TotalExecutions, resolving the drift Open
// Question of spec.md §9.
func (s *Store) CompleteExecution(ctx context.Context, p CompleteExecutionParams, now time.Time) (*domain.JobExecution, error) {
	if !p.Status.IsTerminal() {
		return nil, apperr.Validation("completion status %s is not terminal", p.Status)
	}
	var exec *domain.JobExecution
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var jobID string
		var startedAt time.Time
		var status int
		err := tx.QueryRowContext(ctx, `
			SELECT job_id, started_at, status FROM job_executions WHERE id = ?
		`, p.ExecutionID).Scan(&jobID, &startedAt, &status)
		if err == sql.ErrNoRows {
			return apperr.NotFound("execution %d not found", p.ExecutionID)
		}
		if err != nil {
			return fmt.Errorf("load execution: %w", err)
		}
		if domain.ExecutionStatus(status).IsTerminal() {
			return apperr.IllegalTransition("execution %d is already terminal (%s)", p.ExecutionID, domain.ExecutionStatus(status))
		}

		durationMs := now.Sub(startedAt).Milliseconds()

		_, err = tx.ExecContext(ctx, `
			UPDATE job_executions SET
				completed_at = ?, duration_ms = ?, status = ?,
				result_summary = ?, result_code = ?, error_message = ?, error_category = ?
			WHERE id = ?
		`, now, durationMs, int(p.Status), nullRaw(p.ResultSummary), p.ResultCode,
			nullStr(p.ErrorMessage), nullStr(p.ErrorCategory), p.ExecutionID)
		if err != nil {
			return fmt.Errorf("update execution: %w", err)
		}

		countsAsCompletion := p.Status.CountsAsCompletion()
		var row struct {
			totalExecutions     int64
			completedExecutions int64
			avgDurationMs       int64
		}
		if err := tx.QueryRowContext(ctx, `
			SELECT total_executions, completed_executions, avg_duration_ms FROM jobs WHERE job_id = ?
		`, jobID).Scan(&row.totalExecutions, &row.completedExecutions, &row.avgDurationMs); err != nil {
			return fmt.Errorf("load job for rollup: %w", err)
		}

		newCompleted := row.completedExecutions
		newAvg := row.avgDurationMs
		if countsAsCompletion {
			newCompleted = row.completedExecutions + 1
			if newCompleted > 0 {
				newAvg = (row.avgDurationMs*(newCompleted-1) + durationMs) / newCompleted
			}
		}

		successDelta, failureDelta := 0, 0
		switch p.Status {
		case domain.StatusCompleted:
			successDelta = 1
		case domain.StatusFailed, domain.StatusTimeout:
			failureDelta = 1
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET
				last_status = ?, last_duration_ms = ?, completed_executions = ?, avg_duration_ms = ?,
				success_count = success_count + ?, failure_count = failure_count + ?, updated_at = ?
			WHERE job_id = ?
		`, int(p.Status), durationMs, newCompleted, newAvg, successDelta, failureDelta, now, jobID)
		if err != nil {
			return fmt.Errorf("rollup job on complete: %w", err)
		}

		completedAt := now
		exec = &domain.JobExecution{
			ID: p.ExecutionID, JobID: jobID, StartedAt: startedAt, CompletedAt: &completedAt,
			DurationMs: &durationMs, Status: p.Status, ResultSummary: p.ResultSummary,
			ResultCode: p.ResultCode, ErrorMessage: p.ErrorMessage, ErrorCategory: p.ErrorCategory,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// CancelExecution is CompleteExecution(Cancelled, errorMessage=reason),
// per spec.md §4.D.3.
func (s *Store) CancelExecution(ctx context.Context, executionID int64, reason string, now time.Time) (*domain.JobExecution, error) {
	return s.CompleteExecution(ctx, CompleteExecutionParams{
		ExecutionID:  executionID,
		Status:       domain.StatusCancelled,
		ErrorMessage: reason,
	}, now)
}

const executionColumns = "id, job_id, started_at, completed_at, duration_ms, status, server_name, " +
	"trigger_type, triggered_by, correlation_id, parameters, result_summary, result_code, " +
	"error_message, error_category, log_trace, log_debug, log_info, log_warning, log_error, log_critical"

func scanExecution(row interface {
	Scan(dest ...interface{}) error
}) (*domain.JobExecution, error) {
	e := &domain.JobExecution{}
	var completedAt sql.NullTime
	var durationMs sql.NullInt64
	var status int
	var triggerType, triggeredBy, correlationID sql.NullString
	var parameters, resultSummary sql.NullString
	var resultCode sql.NullInt64
	var errorMessage, errorCategory sql.NullString

	err := row.Scan(
		&e.ID, &e.JobID, &e.StartedAt, &completedAt, &durationMs, &status, &e.ServerName,
		&triggerType, &triggeredBy, &correlationID, &parameters, &resultSummary, &resultCode,
		&errorMessage, &errorCategory,
		&e.LogCounts.Trace, &e.LogCounts.Debug, &e.LogCounts.Info, &e.LogCounts.Warning,
		&e.LogCounts.Error, &e.LogCounts.Critical,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		v := completedAt.Time
		e.CompletedAt = &v
	}
	if durationMs.Valid {
		v := durationMs.Int64
		e.DurationMs = &v
	}
	e.Status = domain.ExecutionStatus(status)
	e.TriggerType = triggerType.String
	e.TriggeredBy = triggeredBy.String
	e.CorrelationID = correlationID.String
	if parameters.Valid {
		e.Parameters = []byte(parameters.String)
	}
	if resultSummary.Valid {
		e.ResultSummary = []byte(resultSummary.String)
	}
	if resultCode.Valid {
		v := int(resultCode.Int64)
		e.ResultCode = &v
	}
	e.ErrorMessage = errorMessage.String
	e.ErrorCategory = errorCategory.String
	return e, nil
}

// GetExecution fetches a JobExecution by id, returning (nil, nil) if absent.
func (s *Store) GetExecution(ctx context.Context, id int64) (*domain.JobExecution, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM job_executions WHERE id = ?", executionColumns), id)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return e, nil
}

// RunningExecutions lists every execution currently in status=Running,
// for the timeout sweep of spec.md §4.D.4.
func (s *Store) RunningExecutions(ctx context.Context) ([]*domain.JobExecution, error) {
	query := fmt.Sprintf("SELECT %s FROM job_executions WHERE status = ?", executionColumns)
	rows, err := s.db.QueryContext(ctx, query, int(domain.StatusRunning))
	if err != nil {
		return nil, fmt.Errorf("list running executions: %w", err)
	}
	defer rows.Close()
	var out []*domain.JobExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// IncrementLogCounts bumps the per-level counters on an execution, per
// the reconciliation rule of spec.md §4.D.5.
func (s *Store) IncrementLogCounts(ctx context.Context, executionID int64, counts domain.LogLevelCounts) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE job_executions SET
			log_trace = log_trace + ?, log_debug = log_debug + ?, log_info = log_info + ?,
			log_warning = log_warning + ?, log_error = log_error + ?, log_critical = log_critical + ?
		WHERE id = ?
	`, counts.Trace, counts.Debug, counts.Info, counts.Warning, counts.Error, counts.Critical, executionID)
	if err != nil {
		return fmt.Errorf("increment log counts: %w", err)
	}
	return nil
}

// LatestExecutionForJob returns the most recently started execution for
// a job, used by the JobFailure and PerformanceWarning alert conditions.
func (s *Store) LatestExecutionForJob(ctx context.Context, jobID string) (*domain.JobExecution, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM job_executions WHERE job_id = ? ORDER BY started_at DESC LIMIT 1
	`, executionColumns), jobID)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest execution for job: %w", err)
	}
	return e, nil
}

// ConsecutiveFailures counts how many of the most recent executions for
// jobID (up to limit) are Failed, stopping at the first non-Failed one.
func (s *Store) ConsecutiveFailures(ctx context.Context, jobID string, limit int) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status FROM job_executions WHERE job_id = ? ORDER BY started_at DESC LIMIT ?
	`, jobID, limit)
	if err != nil {
		return 0, fmt.Errorf("consecutive failures: %w", err)
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		var status int
		if err := rows.Scan(&status); err != nil {
			return 0, err
		}
		if domain.ExecutionStatus(status) != domain.StatusFailed {
			break
		}
		count++
	}
	return count, rows.Err()
}
