// Package dashboard implements Component H of spec.md §2/§4.H: a
// summary snapshot plus three derived views (hourly trend, top
// exceptions, server status), each cached in the Store with a TTL and
// recomputed behind a single-flight guard. Grounded on
// internal/persistence.JSONStore's debounced-save idiom, generalized
// from a timer-debounced writer into a TTL'd reader-side cache guarded
// by golang.org/x/sync/singleflight so concurrent cache-miss readers
// share one recompute instead of racing independent timers.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fleetwatch/fleetwatch/internal/clock"
	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/store"
)

const (
	summaryCacheKey = "summary"
	trendWindow     = 24 * time.Hour
)

// Summary is the payload of Dashboard.GetSummary, spec.md §6's
// DashboardSummaryResponse.
type Summary struct {
	ComputedAt      time.Time              `json:"computedAt"`
	ActiveJobs      int                    `json:"activeJobs"`
	RunningCount    int                    `json:"runningExecutions"`
	ServersOnline   int                    `json:"serversOnline"`
	ServersDegraded int                    `json:"serversDegraded"`
	ServersOffline  int                    `json:"serversOffline"`
	LevelCounts     map[string]int         `json:"levelCounts"`
	HourlyTrend     []TrendPoint           `json:"hourlyTrend"`
	TopExceptions   []store.TopException   `json:"topExceptions"`
	ServerStatuses  []domain.Server        `json:"serverStatuses"`
	RunningJobs     []domain.JobExecution  `json:"runningJobs"`
}

// TrendPoint is one hour bucket of the hourly-trend view.
type TrendPoint struct {
	HourStart time.Time `json:"hourStart"`
	Count     int       `json:"count"`
}

// Service computes and caches dashboard snapshots.
type Service struct {
	store *store.Store
	clock clock.Clock
	ttl   time.Duration
	group singleflight.Group
}

func New(st *store.Store, clk clock.Clock, ttlSeconds int) *Service {
	if ttlSeconds <= 0 {
		ttlSeconds = 30
	}
	return &Service{store: st, clock: clk, ttl: time.Duration(ttlSeconds) * time.Second}
}

// GetSummary returns the cached summary if fresh, else recomputes it.
// Concurrent callers on a cache miss share one recompute via
// singleflight.Group, per spec.md §4.H's "at-most-one concurrent
// recompute per key; other readers await the result".
func (s *Service) GetSummary(ctx context.Context) (*Summary, error) {
	now := s.clock.NowUTC()

	entry, err := s.store.GetDashboardCache(ctx, summaryCacheKey)
	if err != nil {
		return nil, fmt.Errorf("load dashboard cache: %w", err)
	}
	if entry != nil && !entry.Expired(now) {
		var cached Summary
		if err := json.Unmarshal(entry.Payload, &cached); err != nil {
			return nil, fmt.Errorf("decode cached summary: %w", err)
		}
		return &cached, nil
	}

	v, err, _ := s.group.Do(summaryCacheKey, func() (interface{}, error) {
		return s.recompute(ctx, now)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Summary), nil
}

func (s *Service) recompute(ctx context.Context, now time.Time) (*Summary, error) {
	jobs, err := s.store.ListJobs(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	running, err := s.store.RunningExecutions(ctx)
	if err != nil {
		return nil, fmt.Errorf("running executions: %w", err)
	}
	servers, err := s.store.ListActiveServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	since := now.Add(-trendWindow)
	levelCounts, err := s.store.LevelCounts(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("level counts: %w", err)
	}
	buckets, err := s.store.HourlyTrend(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("hourly trend: %w", err)
	}
	topExceptions, err := s.store.TopExceptions(ctx, since, 10)
	if err != nil {
		return nil, fmt.Errorf("top exceptions: %w", err)
	}

	summary := &Summary{
		ComputedAt:    now,
		ActiveJobs:    len(jobs),
		RunningCount:  len(running),
		LevelCounts:   map[string]int{},
		TopExceptions: topExceptions,
	}
	for level, count := range levelCounts {
		summary.LevelCounts[domain.LogLevel(level).String()] = count
	}
	for _, bucket := range buckets {
		summary.HourlyTrend = append(summary.HourlyTrend, TrendPoint{HourStart: bucket.HourStart, Count: bucket.Count})
	}
	for _, srv := range servers {
		summary.ServerStatuses = append(summary.ServerStatuses, *srv)
		switch srv.Status {
		case domain.ServerOnline:
			summary.ServersOnline++
		case domain.ServerDegraded:
			summary.ServersDegraded++
		case domain.ServerOffline:
			summary.ServersOffline++
		}
	}
	for _, exec := range running {
		summary.RunningJobs = append(summary.RunningJobs, *exec)
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	if err := s.store.PutDashboardCache(ctx, summaryCacheKey, payload, now, now.Add(s.ttl)); err != nil {
		return nil, fmt.Errorf("put dashboard cache: %w", err)
	}
	return summary, nil
}

// Invalidate forces the next GetSummary call to recompute, used by
// real-time publishers that want the cache refreshed ahead of its TTL.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.store.PutDashboardCache(ctx, summaryCacheKey, []byte(`{}`), time.Time{}, time.Time{})
}

// RunLoop refreshes the summary cache on interval, the "dashboard cache
// refresher" background task spec.md §5 names, keeping readers off the
// slow path even right after expiry.
func (s *Service) RunLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.GetSummary(ctx)
		}
	}
}
