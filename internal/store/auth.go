package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
)

// GetUser fetches a User by surrogate id.
func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, role, security_stamp, is_active, created_at FROM users WHERE id = ?
	`, id)
	return scanUser(row)
}

// GetUserByUsername fetches a User by username, for login lookups.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, role, security_stamp, is_active, created_at FROM users WHERE username = ?
	`, username)
	return scanUser(row)
}

func scanUser(row interface {
	Scan(dest ...interface{}) error
}) (*domain.User, error) {
	u := &domain.User{}
	var role string
	err := row.Scan(&u.ID, &u.Username, &role, &u.SecurityStamp, &u.IsActive, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = domain.Role(role)
	return u, nil
}

// CreateUser inserts a new User row and populates u.ID with the
// assigned surrogate key.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, role, security_stamp, is_active, created_at) VALUES (?,?,?,?,?)
	`, u.Username, string(u.Role), u.SecurityStamp, boolToInt(u.IsActive), u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

// GetAPIKeyByHash looks up an API key by its SHA-256 hash, the
// credential match spec.md §6's Authentication section describes.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, key_hash, scope, server_name, is_active, created_at, last_used_at, revoked_at
		FROM api_keys WHERE key_hash = ?
	`, hash)
	k := &domain.APIKey{}
	var scope string
	var serverName sql.NullString
	var lastUsedAt, revokedAt sql.NullTime
	err := row.Scan(&k.ID, &k.Name, &k.KeyHash, &scope, &serverName, &k.IsActive, &k.CreatedAt, &lastUsedAt, &revokedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	k.Scope = splitCSV(scope)
	k.ServerName = serverName.String
	if lastUsedAt.Valid {
		v := lastUsedAt.Time
		k.LastUsedAt = &v
	}
	if revokedAt.Valid {
		v := revokedAt.Time
		k.RevokedAt = &v
	}
	return k, nil
}

// CreateAPIKey inserts a new APIKey row and populates k.ID.
func (s *Store) CreateAPIKey(ctx context.Context, k *domain.APIKey) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (name, key_hash, scope, server_name, is_active, created_at)
		VALUES (?,?,?,?,?,?)
	`, k.Name, k.KeyHash, joinCSV(k.Scope), nullStr(k.ServerName), boolToInt(k.IsActive), k.CreatedAt)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	k.ID = id
	return nil
}

// TouchAPIKey records last-used-at for an API key, best-effort (never
// blocks request handling on failure).
func (s *Store) TouchAPIKey(ctx context.Context, id int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, now, id)
	return err
}

// RevokeAPIKey marks an API key revoked.
func (s *Store) RevokeAPIKey(ctx context.Context, id int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET is_active = 0, revoked_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	return nil
}

// CreateRefreshToken inserts a new RefreshToken row and populates t.ID.
func (s *Store) CreateRefreshToken(ctx context.Context, t *domain.RefreshToken) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)
	`, t.UserID, t.TokenHash, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

// GetRefreshTokenByHash looks up a RefreshToken by its hash.
func (s *Store) GetRefreshTokenByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, revoked_at FROM refresh_tokens WHERE token_hash = ?
	`, hash)
	t := &domain.RefreshToken{}
	var revokedAt sql.NullTime
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &revokedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	if revokedAt.Valid {
		v := revokedAt.Time
		t.RevokedAt = &v
	}
	return t, nil
}

// RevokeRefreshToken marks a refresh token revoked.
func (s *Store) RevokeRefreshToken(ctx context.Context, id int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked_at = ? WHERE id = ?`, now, id)
	return err
}

// AppendAuditLog records an audit trail entry.
func (s *Store) AppendAuditLog(ctx context.Context, entry *domain.AuditLog, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (actor_id, action, target_type, target_id, detail, created_at) VALUES (?,?,?,?,?,?)
	`, nullStr(entry.ActorID), entry.Action, nullStr(entry.TargetType), nullStr(entry.TargetID), nullRaw(entry.Detail), now)
	if err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}
