package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
)

// GetDashboardCache fetches a cache entry by key, returning (nil, nil)
// if absent (a genuine miss, distinct from an expired hit).
func (s *Store) GetDashboardCache(ctx context.Context, key string) (*domain.DashboardCacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, payload, computed_at, expires_at FROM dashboard_cache WHERE key = ?
	`, key)
	e := &domain.DashboardCacheEntry{}
	var payload string
	err := row.Scan(&e.Key, &payload, &e.ComputedAt, &e.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dashboard cache: %w", err)
	}
	e.Payload = []byte(payload)
	return e, nil
}

// PutDashboardCache upserts a keyed cache entry, per spec.md §4.H.
func (s *Store) PutDashboardCache(ctx context.Context, key string, payload []byte, computedAt, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dashboard_cache (key, payload, computed_at, expires_at) VALUES (?,?,?,?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, computed_at = excluded.computed_at, expires_at = excluded.expires_at
	`, key, string(payload), computedAt, expiresAt)
	if err != nil {
		return fmt.Errorf("put dashboard cache: %w", err)
	}
	return nil
}
