package store

import (
	"fmt"
	"strings"
	"time"
)

// baseSchema creates every non-partitioned table named in spec.md §3,
// plus the log_entries view that unions whatever monthly partitions
// exist. New partitions are added by ensureLogPartition as months roll
// over; SQLite has no native table partitioning, so physical tables
// log_entries_YYYYMM stand in for it, the way the retention runner
// (internal/retention) drops them outright instead of scanning-and-
// deleting a single giant table.
const baseSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	description TEXT,
	category TEXT,
	tags TEXT,
	job_type TEXT NOT NULL DEFAULT 'Unknown',
	server_name TEXT,
	executable_path TEXT,
	schedule TEXT,
	is_active INTEGER NOT NULL DEFAULT 1,
	is_critical INTEGER NOT NULL DEFAULT 0,
	allow_concurrent INTEGER NOT NULL DEFAULT 1,
	last_execution_id INTEGER,
	last_execution_at TIMESTAMP,
	last_status INTEGER,
	last_duration_ms INTEGER,
	total_executions INTEGER NOT NULL DEFAULT 0,
	completed_executions INTEGER NOT NULL DEFAULT 0,
	success_count INTEGER NOT NULL DEFAULT 0,
	failure_count INTEGER NOT NULL DEFAULT 0,
	avg_duration_ms INTEGER NOT NULL DEFAULT 0,
	expected_duration_ms INTEGER,
	max_duration_ms INTEGER,
	configuration TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	created_by TEXT,
	updated_by TEXT
);

CREATE TABLE IF NOT EXISTS job_executions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL REFERENCES jobs(job_id),
	started_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	duration_ms INTEGER,
	status INTEGER NOT NULL,
	server_name TEXT NOT NULL,
	trigger_type TEXT,
	triggered_by TEXT,
	correlation_id TEXT,
	parameters TEXT,
	result_summary TEXT,
	result_code INTEGER,
	error_message TEXT,
	error_category TEXT,
	log_trace INTEGER NOT NULL DEFAULT 0,
	log_debug INTEGER NOT NULL DEFAULT 0,
	log_info INTEGER NOT NULL DEFAULT 0,
	log_warning INTEGER NOT NULL DEFAULT 0,
	log_error INTEGER NOT NULL DEFAULT 0,
	log_critical INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_executions_job ON job_executions(job_id, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_executions_status ON job_executions(status);
CREATE INDEX IF NOT EXISTS idx_executions_correlation ON job_executions(correlation_id);

CREATE TABLE IF NOT EXISTS servers (
	server_name TEXT PRIMARY KEY,
	display_name TEXT,
	ip_address TEXT,
	status TEXT NOT NULL DEFAULT 'Unknown',
	last_heartbeat TIMESTAMP,
	heartbeat_interval_seconds INTEGER NOT NULL DEFAULT 60,
	agent_version TEXT,
	agent_type TEXT,
	metadata TEXT,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	description TEXT,
	alert_type TEXT NOT NULL,
	severity TEXT NOT NULL,
	condition TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	throttle_minutes INTEGER NOT NULL DEFAULT 15,
	last_triggered_at TIMESTAMP,
	trigger_count INTEGER NOT NULL DEFAULT 0,
	notification_channels TEXT,
	job_id TEXT,
	server_name TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS alert_instances (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	alert_id INTEGER NOT NULL REFERENCES alerts(id) ON DELETE CASCADE,
	triggered_at TIMESTAMP NOT NULL,
	message TEXT NOT NULL,
	context TEXT,
	job_id TEXT,
	job_execution_id INTEGER,
	server_name TEXT,
	severity TEXT NOT NULL,
	status INTEGER NOT NULL DEFAULT 0,
	acknowledged_at TIMESTAMP,
	acknowledged_by TEXT,
	acknowledged_note TEXT,
	resolved_at TIMESTAMP,
	resolved_by TEXT,
	resolved_note TEXT,
	notifications_sent TEXT
);

CREATE INDEX IF NOT EXISTS idx_alert_instances_alert ON alert_instances(alert_id, triggered_at DESC);
CREATE INDEX IF NOT EXISTS idx_alert_instances_status ON alert_instances(status);

CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	role TEXT NOT NULL,
	security_stamp TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS api_keys (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	key_hash TEXT NOT NULL UNIQUE,
	scope TEXT NOT NULL,
	server_name TEXT,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL,
	last_used_at TIMESTAMP,
	revoked_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id),
	token_hash TEXT NOT NULL UNIQUE,
	expires_at TIMESTAMP NOT NULL,
	revoked_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	actor_id TEXT,
	action TEXT NOT NULL,
	target_type TEXT,
	target_id TEXT,
	detail TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at);

CREATE TABLE IF NOT EXISTS dashboard_cache (
	key TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	computed_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS log_partitions (
	suffix TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL
);
`

// logPartitionDDL is the per-month physical table plus the indexes
// spec.md §4.A lists: (timestamp desc), (jobId, timestamp desc),
// (jobExecutionId, timestamp), (serverName, timestamp desc),
// (correlationId), (traceId), (level>=Warning, timestamp desc),
// (exceptionType, timestamp desc).
func logPartitionDDL(suffix string) string {
	table := "log_entries_" + suffix
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TIMESTAMP NOT NULL,
	level INTEGER NOT NULL,
	message TEXT NOT NULL,
	job_id TEXT,
	job_execution_id INTEGER,
	server_name TEXT NOT NULL,
	category TEXT,
	source_context TEXT,
	correlation_id TEXT,
	trace_id TEXT,
	span_id TEXT,
	parent_span_id TEXT,
	exception_type TEXT,
	exception_message TEXT,
	exception_stack_trace TEXT,
	exception_source TEXT,
	properties TEXT,
	tags TEXT,
	environment TEXT,
	app_version TEXT,
	received_at TIMESTAMP NOT NULL,
	client_ip TEXT
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_ts ON %[1]s(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_%[1]s_job ON %[1]s(job_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_%[1]s_exec ON %[1]s(job_execution_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_%[1]s_server ON %[1]s(server_name, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_%[1]s_correlation ON %[1]s(correlation_id);
CREATE INDEX IF NOT EXISTS idx_%[1]s_trace ON %[1]s(trace_id);
CREATE INDEX IF NOT EXISTS idx_%[1]s_warn ON %[1]s(level, timestamp DESC) WHERE level >= 3;
CREATE INDEX IF NOT EXISTS idx_%[1]s_exception ON %[1]s(exception_type, timestamp DESC);
`, table)
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(baseSchema); err != nil {
		return fmt.Errorf("exec base schema: %w", err)
	}
	return nil
}

// ensureLogPartition creates the physical table for the calendar month
// containing t, if it does not already exist, records it in
// log_partitions, and rebuilds the log_entries union view so readers
// never need to know how many partitions exist.
func (s *Store) ensureLogPartition(t time.Time) error {
	suffix := t.UTC().Format("200601")
	var exists int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM log_partitions WHERE suffix = ?`, suffix).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		if _, err := s.db.Exec(logPartitionDDL(suffix)); err != nil {
			return fmt.Errorf("create partition %s: %w", suffix, err)
		}
		if _, err := s.db.Exec(`INSERT INTO log_partitions(suffix, created_at) VALUES (?, ?)`, suffix, time.Now().UTC()); err != nil {
			return fmt.Errorf("record partition %s: %w", suffix, err)
		}
	}
	return s.rebuildLogView()
}

func (s *Store) partitionSuffixes() ([]string, error) {
	rows, err := s.db.Query(`SELECT suffix FROM log_partitions ORDER BY suffix ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var suffix string
		if err := rows.Scan(&suffix); err != nil {
			return nil, err
		}
		out = append(out, suffix)
	}
	return out, rows.Err()
}

const logColumns = "id, timestamp, level, message, job_id, job_execution_id, server_name, category, " +
	"source_context, correlation_id, trace_id, span_id, parent_span_id, exception_type, exception_message, " +
	"exception_stack_trace, exception_source, properties, tags, environment, app_version, received_at, client_ip"

// rebuildLogView recreates the log_entries view as a UNION ALL over
// every known partition, giving the rest of the Store a single table
// name to query against regardless of how retention has pruned months.
func (s *Store) rebuildLogView() error {
	suffixes, err := s.partitionSuffixes()
	if err != nil {
		return err
	}
	if len(suffixes) == 0 {
		return nil
	}
	parts := make([]string, 0, len(suffixes))
	for _, suf := range suffixes {
		parts = append(parts, fmt.Sprintf("SELECT %s FROM log_entries_%s", logColumns, suf))
	}
	ddl := "DROP VIEW IF EXISTS log_entries;\nCREATE VIEW log_entries AS\n" + strings.Join(parts, "\nUNION ALL\n") + ";"
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("rebuild log_entries view: %w", err)
	}
	return nil
}
