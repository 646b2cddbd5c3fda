package dashboard

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/clock"
	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestGetSummaryComputesAndCaches(t *testing.T) {
	st := newTestStore(t)
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	fc := clock.NewFake(now)
	ctx := context.Background()

	if err := st.UpsertJob(ctx, &domain.Job{JobID: "J1", DisplayName: "Job One", IsActive: true}, now); err != nil {
		t.Fatalf("upsert job: %v", err)
	}
	if err := st.AutovivifyServer(ctx, "S1", now); err != nil {
		t.Fatalf("autoviv server: %v", err)
	}
	e := &domain.LogEntry{Timestamp: now, Level: domain.LevelError, Message: "boom", ServerName: "S1", ReceivedAt: now}
	if _, err := st.InsertLogsBatch(ctx, []*domain.LogEntry{e}); err != nil {
		t.Fatalf("insert log: %v", err)
	}

	svc := New(st, fc, 30)
	summary, err := svc.GetSummary(ctx)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if summary.ActiveJobs != 1 {
		t.Errorf("expected 1 active job, got %d", summary.ActiveJobs)
	}
	if summary.ServersOnline != 1 {
		t.Errorf("expected 1 online server, got %d", summary.ServersOnline)
	}
	if summary.LevelCounts["Error"] != 1 {
		t.Errorf("expected 1 error-level log, got %d", summary.LevelCounts["Error"])
	}

	cached, err := st.GetDashboardCache(ctx, summaryCacheKey)
	if err != nil {
		t.Fatalf("get cache: %v", err)
	}
	if cached == nil {
		t.Fatal("expected the summary to be cached after computing it")
	}
}

func TestGetSummaryServesFreshCacheWithoutRecompute(t *testing.T) {
	st := newTestStore(t)
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	fc := clock.NewFake(now)
	ctx := context.Background()

	svc := New(st, fc, 30)
	first, err := svc.GetSummary(ctx)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}

	if err := st.UpsertJob(ctx, &domain.Job{JobID: "J1", DisplayName: "late arrival", IsActive: true}, now); err != nil {
		t.Fatalf("upsert job: %v", err)
	}

	second, err := svc.GetSummary(ctx)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if second.ActiveJobs != first.ActiveJobs {
		t.Errorf("expected the cached summary to be served unchanged (%d), got %d", first.ActiveJobs, second.ActiveJobs)
	}
}

func TestGetSummaryConcurrentMissesShareOneRecompute(t *testing.T) {
	st := newTestStore(t)
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	fc := clock.NewFake(now)
	ctx := context.Background()
	svc := New(st, fc, 30)

	var wg sync.WaitGroup
	results := make([]*Summary, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			s, err := svc.GetSummary(ctx)
			if err != nil {
				t.Errorf("get summary: %v", err)
				return
			}
			results[idx] = s
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		if r == nil {
			t.Fatalf("result %d was nil", i)
		}
		if !r.ComputedAt.Equal(results[0].ComputedAt) {
			t.Errorf("expected all concurrent readers to observe the same computedAt, got %v vs %v", r.ComputedAt, results[0].ComputedAt)
		}
	}
}
