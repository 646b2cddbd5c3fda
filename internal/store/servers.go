package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
)

// HeartbeatParams carries the inputs of spec.md §4.E.1.
type HeartbeatParams struct {
	ServerName   string
	IPAddress    string
	AgentVersion string
	AgentType    string
	Metadata     []byte
}

// ProcessHeartbeat upserts a Server, null-coalescing optional fields
// into their existing values, per spec.md §4.E.1.
func (s *Store) ProcessHeartbeat(ctx context.Context, p HeartbeatParams, now time.Time) (*domain.Server, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (server_name, ip_address, status, last_heartbeat, agent_version, agent_type, metadata, is_active, created_at, updated_at)
		VALUES (?, ?, 'Online', ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(server_name) DO UPDATE SET
			ip_address = COALESCE(excluded.ip_address, servers.ip_address),
			status = 'Online',
			last_heartbeat = excluded.last_heartbeat,
			agent_version = COALESCE(excluded.agent_version, servers.agent_version),
			agent_type = COALESCE(excluded.agent_type, servers.agent_type),
			metadata = COALESCE(excluded.metadata, servers.metadata),
			updated_at = excluded.updated_at
	`, p.ServerName, nullStr(p.IPAddress), now, nullStr(p.AgentVersion), nullStr(p.AgentType),
		nullRaw(p.Metadata), now, now)
	if err != nil {
		return nil, fmt.Errorf("process heartbeat: %w", err)
	}
	return s.GetServer(ctx, p.ServerName)
}

// AutovivifyServer creates a stub Server row (status=Online,
// lastHeartbeat=now) only if server_name doesn't already exist, per
// spec.md §4.C.1's "if serverName unknown create stub Server".
func (s *Store) AutovivifyServer(ctx context.Context, name string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (server_name, display_name, status, last_heartbeat, heartbeat_interval_seconds, is_active, created_at, updated_at)
		VALUES (?, ?, 'Online', ?, ?, 1, ?, ?)
		ON CONFLICT(server_name) DO NOTHING
	`, name, name, now, domain.DefaultHeartbeatIntervalSeconds, now, now)
	if err != nil {
		return fmt.Errorf("autovivify server: %w", err)
	}
	return nil
}

const serverColumns = "server_name, display_name, ip_address, status, last_heartbeat, " +
	"heartbeat_interval_seconds, agent_version, agent_type, metadata, is_active, created_at, updated_at"

func scanServer(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Server, error) {
	srv := &domain.Server{}
	var displayName, ipAddress, agentVersion, agentType, metadata sql.NullString
	var lastHeartbeat sql.NullTime
	var status string

	err := row.Scan(
		&srv.ServerName, &displayName, &ipAddress, &status, &lastHeartbeat,
		&srv.HeartbeatIntervalSeconds, &agentVersion, &agentType, &metadata, &srv.IsActive,
		&srv.CreatedAt, &srv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	srv.DisplayName = displayName.String
	srv.IPAddress = ipAddress.String
	srv.Status = domain.ServerStatus(status)
	if lastHeartbeat.Valid {
		v := lastHeartbeat.Time
		srv.LastHeartbeat = &v
	}
	srv.AgentVersion = agentVersion.String
	srv.AgentType = agentType.String
	if metadata.Valid {
		srv.Metadata = []byte(metadata.String)
	}
	return srv, nil
}

// GetServer fetches a Server by name, returning (nil, nil) if absent.
func (s *Store) GetServer(ctx context.Context, name string) (*domain.Server, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM servers WHERE server_name = ?", serverColumns), name)
	srv, err := scanServer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get server: %w", err)
	}
	return srv, nil
}

// ListActiveServers returns every active Server, for the status sweep
// of spec.md §4.E.2 and the dashboard's server-status view.
func (s *Store) ListActiveServers(ctx context.Context) ([]*domain.Server, error) {
	query := fmt.Sprintf("SELECT %s FROM servers WHERE is_active = 1 ORDER BY server_name ASC", serverColumns)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active servers: %w", err)
	}
	defer rows.Close()
	var out []*domain.Server
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, srv)
	}
	return out, rows.Err()
}

// SetServerStatus persists a status transition discovered by the sweep.
func (s *Store) SetServerStatus(ctx context.Context, name string, status domain.ServerStatus, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE servers SET status = ?, updated_at = ? WHERE server_name = ?`, string(status), now, name)
	if err != nil {
		return fmt.Errorf("set server status: %w", err)
	}
	return nil
}
