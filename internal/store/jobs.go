package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
)

// UpsertJob inserts or updates a Job keyed by JobID, per spec.md §4.A's
// "upsert primitive keyed by natural id". On first insert CreatedBy and
// UpdatedBy are both set from updatedBy, resolving the Open Question in
// spec.md §9 about the source omitting CreatedBy on insert.
func (s *Store) UpsertJob(ctx context.Context, job *domain.Job, now time.Time) error {
	configuration := nullRaw(job.Configuration)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (
			job_id, display_name, description, category, tags, job_type, server_name,
			executable_path, schedule, is_active, is_critical, allow_concurrent,
			expected_duration_ms, max_duration_ms, configuration,
			created_at, updated_at, created_by, updated_by
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(job_id) DO UPDATE SET
			display_name = excluded.display_name,
			description = excluded.description,
			category = excluded.category,
			tags = excluded.tags,
			job_type = excluded.job_type,
			server_name = excluded.server_name,
			executable_path = excluded.executable_path,
			schedule = excluded.schedule,
			is_active = excluded.is_active,
			is_critical = excluded.is_critical,
			allow_concurrent = excluded.allow_concurrent,
			expected_duration_ms = excluded.expected_duration_ms,
			max_duration_ms = excluded.max_duration_ms,
			configuration = excluded.configuration,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by
	`,
		job.JobID, job.DisplayName, nullStr(job.Description), nullStr(job.Category),
		nullStr(strings.Join(job.Tags, ",")), string(job.JobType), nullStr(job.ServerName),
		nullStr(job.ExecutablePath), nullStr(job.Schedule), boolToInt(job.IsActive),
		boolToInt(job.IsCritical), boolToInt(job.AllowConcurrent),
		job.ExpectedDurationMs, job.MaxDurationMs, configuration,
		now, now, nullStr(job.CreatedBy), nullStr(job.UpdatedBy),
	)
	if err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

// AutovivifyJob creates a stub Job row only if job_id doesn't already
// exist, per spec.md §4.C.1's "if jobId unknown create a stub Job".
func (s *Store) AutovivifyJob(ctx context.Context, jobID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, display_name, is_active, allow_concurrent, created_at, updated_at, created_by, updated_by)
		VALUES (?, ?, 0, 1, ?, ?, 'system:autovivify', 'system:autovivify')
		ON CONFLICT(job_id) DO NOTHING
	`, jobID, jobID, now, now)
	if err != nil {
		return fmt.Errorf("autovivify job: %w", err)
	}
	return nil
}

const jobColumns = "job_id, display_name, description, category, tags, job_type, server_name, " +
	"executable_path, schedule, is_active, is_critical, allow_concurrent, last_execution_id, " +
	"last_execution_at, last_status, last_duration_ms, total_executions, completed_executions, " +
	"success_count, failure_count, avg_duration_ms, expected_duration_ms, max_duration_ms, " +
	"configuration, created_at, updated_at, created_by, updated_by"

func scanJob(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Job, error) {
	j := &domain.Job{}
	var description, category, tags, serverName, executablePath, schedule sql.NullString
	var lastExecID sql.NullInt64
	var lastExecAt sql.NullTime
	var lastStatus sql.NullInt64
	var lastDurationMs sql.NullInt64
	var expectedDurationMs, maxDurationMs sql.NullInt64
	var configuration, createdBy, updatedBy sql.NullString
	var jobType string

	err := row.Scan(
		&j.JobID, &j.DisplayName, &description, &category, &tags, &jobType, &serverName,
		&executablePath, &schedule, &j.IsActive, &j.IsCritical, &j.AllowConcurrent, &lastExecID,
		&lastExecAt, &lastStatus, &lastDurationMs, &j.TotalExecutions, &j.CompletedExecutions,
		&j.SuccessCount, &j.FailureCount, &j.AvgDurationMs, &expectedDurationMs, &maxDurationMs,
		&configuration, &j.CreatedAt, &j.UpdatedAt, &createdBy, &updatedBy,
	)
	if err != nil {
		return nil, err
	}
	j.Description = description.String
	j.Category = category.String
	if tags.Valid && tags.String != "" {
		j.Tags = strings.Split(tags.String, ",")
	}
	j.JobType = domain.JobType(jobType)
	j.ServerName = serverName.String
	j.ExecutablePath = executablePath.String
	j.Schedule = schedule.String
	if lastExecID.Valid {
		v := lastExecID.Int64
		j.LastExecutionID = &v
	}
	if lastExecAt.Valid {
		v := lastExecAt.Time
		j.LastExecutionAt = &v
	}
	if lastStatus.Valid {
		j.LastStatus = domain.ExecutionStatus(lastStatus.Int64)
	}
	if expectedDurationMs.Valid {
		v := expectedDurationMs.Int64
		j.ExpectedDurationMs = &v
	}
	if maxDurationMs.Valid {
		v := maxDurationMs.Int64
		j.MaxDurationMs = &v
	}
	if lastDurationMs.Valid {
		v := lastDurationMs.Int64
		j.LastDurationMs = &v
	}
	if configuration.Valid {
		j.Configuration = []byte(configuration.String)
	}
	j.CreatedBy = createdBy.String
	j.UpdatedBy = updatedBy.String
	return j, nil
}

// GetJob fetches a Job by id, returning (nil, nil) if not found.
func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM jobs WHERE job_id = ?", jobColumns), jobID)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// ListJobs returns jobs, optionally filtered to active-only.
func (s *Store) ListJobs(ctx context.Context, activeOnly bool) ([]*domain.Job, error) {
	query := fmt.Sprintf("SELECT %s FROM jobs", jobColumns)
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY job_id ASC"
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var out []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
