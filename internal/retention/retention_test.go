package retention

import (
	"context"
	"path/filepath"
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

func TestRunDryRunCountsWithoutMutating(t *testing.T) {
	st := newTestStore(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	fc := clock.NewFake(now)

	old := &domain.LogEntry{
		Timestamp: now.AddDate(0, 0, -100), Level: domain.LevelInfo,
		Message: "ancient", ServerName: "S1", ReceivedAt: now.AddDate(0, 0, -100),
	}
	if _, err := st.InsertLogsBatch(context.Background(), []*domain.LogEntry{old}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	svc := New(st, fc, Policy{DefaultDays: 90, ErrorDays: 180, CriticalDays: 365, BatchSize: 100, CleanupTimeUTC: "02:00"})
	report, err := svc.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("run dry-run: %v", err)
	}
	if report.Info != 1 {
		t.Errorf("expected 1 expired info log counted, got %d", report.Info)
	}

	got, err := st.GetLog(context.Background(), old.ID)
	if err != nil {
		t.Fatalf("get log: %v", err)
	}
	if got == nil {
		t.Error("dry-run must not delete rows, but the log entry is gone")
	}
}

func TestRunLiveModeDeletesExpiredInfoLogs(t *testing.T) {
	st := newTestStore(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	fc := clock.NewFake(now)

	old := &domain.LogEntry{
		Timestamp: now.AddDate(0, 0, -100), Level: domain.LevelInfo,
		Message: "ancient", ServerName: "S1", ReceivedAt: now.AddDate(0, 0, -100),
	}
	ids, err := st.InsertLogsBatch(context.Background(), []*domain.LogEntry{old})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	svc := New(st, fc, Policy{DefaultDays: 90, ErrorDays: 180, CriticalDays: 365, BatchSize: 100, CleanupTimeUTC: "02:00"})
	report, err := svc.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Info != 1 {
		t.Errorf("expected 1 deleted info log, got %d", report.Info)
	}

	got, err := st.GetLog(context.Background(), ids[0])
	if err != nil {
		t.Fatalf("get log: %v", err)
	}
	if got != nil {
		t.Error("expected the expired log entry to be deleted")
	}
}

func TestParseHHMM(t *testing.T) {
	hour, minute, err := parseHHMM("02:30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if hour != 2 || minute != 30 {
		t.Errorf("expected 2:30, got %d:%d", hour, minute)
	}
	if _, _, err := parseHHMM("nonsense"); err == nil {
		t.Error("expected an error for a malformed time")
	}
}
