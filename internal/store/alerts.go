package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/apperr"
	"github.com/fleetwatch/fleetwatch/internal/domain"
)

const alertColumns = "id, name, description, alert_type, severity, condition, is_active, " +
	"throttle_minutes, last_triggered_at, trigger_count, notification_channels, job_id, server_name, " +
	"created_at, updated_at"

func scanAlert(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Alert, error) {
	a := &domain.Alert{}
	var description, notificationChannels, jobID, serverName sql.NullString
	var lastTriggeredAt sql.NullTime
	var alertType, severity string

	err := row.Scan(
		&a.ID, &a.Name, &description, &alertType, &severity, &a.Condition, &a.IsActive,
		&a.ThrottleMinutes, &lastTriggeredAt, &a.TriggerCount, &notificationChannels, &jobID, &serverName,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Description = description.String
	a.AlertType = domain.AlertType(alertType)
	a.Severity = domain.Severity(severity)
	if lastTriggeredAt.Valid {
		v := lastTriggeredAt.Time
		a.LastTriggeredAt = &v
	}
	if notificationChannels.Valid {
		a.NotificationChannels = splitCSV(notificationChannels.String)
	}
	a.JobID = jobID.String
	a.ServerName = serverName.String
	return a, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

func joinCSV(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ","
		}
		out += it
	}
	return out
}

// CreateAlert inserts a new Alert rule.
func (s *Store) CreateAlert(ctx context.Context, a *domain.Alert, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (
			name, description, alert_type, severity, condition, is_active, throttle_minutes,
			notification_channels, job_id, server_name, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`, a.Name, nullStr(a.Description), string(a.AlertType), string(a.Severity), a.Condition,
		boolToInt(a.IsActive), a.ThrottleMinutes, nullStr(joinCSV(a.NotificationChannels)),
		nullStr(a.JobID), nullStr(a.ServerName), now, now)
	if err != nil {
		return 0, fmt.Errorf("create alert: %w", err)
	}
	return res.LastInsertId()
}

// GetAlert fetches an Alert by id.
func (s *Store) GetAlert(ctx context.Context, id int64) (*domain.Alert, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM alerts WHERE id = ?", alertColumns), id)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

// DueAlerts returns every active Alert whose throttle window has
// elapsed, the evaluation gate of spec.md §4.G.
func (s *Store) DueAlerts(ctx context.Context, now time.Time) ([]*domain.Alert, error) {
	query := fmt.Sprintf("SELECT %s FROM alerts WHERE is_active = 1", alertColumns)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("due alerts: %w", err)
	}
	defer rows.Close()
	var out []*domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		if a.DueForEvaluation(now) {
			out = append(out, a)
		}
	}
	return out, rows.Err()
}

// FireAlert inserts an AlertInstance and bumps Alert.lastTriggeredAt /
// triggerCount atomically, per spec.md §4.G "On fire".
func (s *Store) FireAlert(ctx context.Context, instance *domain.AlertInstance, now time.Time) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO alert_instances (
				alert_id, triggered_at, message, context, job_id, job_execution_id, server_name,
				severity, status, notifications_sent
			) VALUES (?,?,?,?,?,?,?,?,?,?)
		`, instance.AlertID, now, instance.Message, nullRaw(instance.Context), nullStr(instance.JobID),
			instance.JobExecutionID, nullStr(instance.ServerName), string(instance.Severity),
			int(domain.InstanceNew), nullRaw(instance.NotificationsSent))
		if err != nil {
			return fmt.Errorf("insert alert instance: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE alerts SET last_triggered_at = ?, trigger_count = trigger_count + 1, updated_at = ? WHERE id = ?
		`, now, now, instance.AlertID); err != nil {
			return fmt.Errorf("bump alert trigger count: %w", err)
		}
		return nil
	})
	return id, err
}

const alertInstanceColumns = "id, alert_id, triggered_at, message, context, job_id, job_execution_id, " +
	"server_name, severity, status, acknowledged_at, acknowledged_by, acknowledged_note, " +
	"resolved_at, resolved_by, resolved_note, notifications_sent"

func scanAlertInstance(row interface {
	Scan(dest ...interface{}) error
}) (*domain.AlertInstance, error) {
	i := &domain.AlertInstance{}
	var context, jobID, serverName sql.NullString
	var jobExecutionID sql.NullInt64
	var severity string
	var status int
	var ackAt, resAt sql.NullTime
	var ackBy, ackNote, resBy, resNote, notificationsSent sql.NullString

	err := row.Scan(
		&i.ID, &i.AlertID, &i.TriggeredAt, &i.Message, &context, &jobID, &jobExecutionID, &serverName,
		&severity, &status, &ackAt, &ackBy, &ackNote, &resAt, &resBy, &resNote, &notificationsSent,
	)
	if err != nil {
		return nil, err
	}
	if context.Valid {
		i.Context = []byte(context.String)
	}
	i.JobID = jobID.String
	if jobExecutionID.Valid {
		v := jobExecutionID.Int64
		i.JobExecutionID = &v
	}
	i.ServerName = serverName.String
	i.Severity = domain.Severity(severity)
	i.Status = domain.AlertInstanceStatus(status)
	if ackAt.Valid {
		v := ackAt.Time
		i.AcknowledgedAt = &v
	}
	i.AcknowledgedBy = ackBy.String
	i.AcknowledgedNote = ackNote.String
	if resAt.Valid {
		v := resAt.Time
		i.ResolvedAt = &v
	}
	i.ResolvedBy = resBy.String
	i.ResolvedNote = resNote.String
	if notificationsSent.Valid {
		i.NotificationsSent = []byte(notificationsSent.String)
	}
	return i, nil
}

// GetAlertInstance fetches an AlertInstance by id.
func (s *Store) GetAlertInstance(ctx context.Context, id int64) (*domain.AlertInstance, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM alert_instances WHERE id = ?", alertInstanceColumns), id)
	i, err := scanAlertInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert instance: %w", err)
	}
	return i, nil
}

// TransitionAlertInstance moves an instance to a new status, enforcing
// domain.CanTransition and the field-setting rules of spec.md §3's
// AlertInstance invariants. Idempotent: re-applying the current status
// is a no-op success (spec.md §8's "AcknowledgeInstance... is a no-op").
func (s *Store) TransitionAlertInstance(ctx context.Context, id int64, to domain.AlertInstanceStatus, actor, note string, now time.Time) (*domain.AlertInstance, error) {
	var result *domain.AlertInstance
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM alert_instances WHERE id = ?", alertInstanceColumns), id)
		current, err := scanAlertInstance(row)
		if err == sql.ErrNoRows {
			return apperr.NotFound("alert instance %d not found", id)
		}
		if err != nil {
			return fmt.Errorf("load alert instance: %w", err)
		}
		if current.Status == to {
			result = current
			return nil
		}
		if !domain.CanTransition(current.Status, to) {
			return apperr.IllegalTransition("cannot move alert instance %d from %s to %s", id, current.Status, to)
		}

		switch to {
		case domain.InstanceAcknowledged:
			_, err = tx.ExecContext(ctx, `
				UPDATE alert_instances SET status = ?, acknowledged_at = ?, acknowledged_by = ?, acknowledged_note = ? WHERE id = ?
			`, int(to), now, nullStr(actor), nullStr(note), id)
		case domain.InstanceResolved:
			_, err = tx.ExecContext(ctx, `
				UPDATE alert_instances SET status = ?, resolved_at = ?, resolved_by = ?, resolved_note = ? WHERE id = ?
			`, int(to), now, nullStr(actor), nullStr(note), id)
		case domain.InstanceSuppressed:
			_, err = tx.ExecContext(ctx, `UPDATE alert_instances SET status = ? WHERE id = ?`, int(to), id)
		default:
			return apperr.Validation("unsupported target status %s", to)
		}
		if err != nil {
			return fmt.Errorf("transition alert instance: %w", err)
		}

		row = tx.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM alert_instances WHERE id = ?", alertInstanceColumns), id)
		result, err = scanAlertInstance(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListAlertInstances returns instances for an alert, newest first.
func (s *Store) ListAlertInstances(ctx context.Context, alertID int64, limit int) ([]*domain.AlertInstance, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf("SELECT %s FROM alert_instances WHERE alert_id = ? ORDER BY triggered_at DESC LIMIT ?", alertInstanceColumns)
	rows, err := s.db.QueryContext(ctx, query, alertID, limit)
	if err != nil {
		return nil, fmt.Errorf("list alert instances: %w", err)
	}
	defer rows.Close()
	var out []*domain.AlertInstance
	for rows.Next() {
		i, err := scanAlertInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// RunCustomQuery evaluates the CustomQuery alert condition of spec.md
// §4.G: "Store-side query returns >=1 row". The caller-supplied text
// must be a single SELECT statement; it is wrapped in SELECT EXISTS(...)
// so it can never mutate, and multi-statement injection via a trailing
// semicolon is rejected outright.
func (s *Store) RunCustomQuery(ctx context.Context, query string) (bool, error) {
	trimmed := strings.TrimSpace(query)
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return false, apperr.Validation("custom query must be a SELECT statement")
	}
	if strings.Contains(strings.TrimRight(trimmed, ";"), ";") {
		return false, apperr.Validation("custom query must be a single statement")
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT EXISTS(%s)", strings.TrimRight(trimmed, ";"))).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("run custom query: %w", err)
	}
	return exists, nil
}

// RecordNotificationsSent persists the outcome of the async
// notification dispatch onto an AlertInstance, per spec.md §4.G's
// "the engine records the outcome onto notificationsSent".
func (s *Store) RecordNotificationsSent(ctx context.Context, instanceID int64, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `UPDATE alert_instances SET notifications_sent = ? WHERE id = ?`, nullRaw(payload), instanceID)
	if err != nil {
		return fmt.Errorf("record notifications sent: %w", err)
	}
	return nil
}
