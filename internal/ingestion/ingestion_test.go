package ingestion

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

func runFlushOnce(ctx context.Context, svc *Service) {
	svc.drainAndFlush(ctx)
}

func TestIngestOneValidatesAndAssignsID(t *testing.T) {
	st := newTestStore(t)
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := New(st, fc, nil, nil, Options{})
	ctx := context.Background()

	entry := &domain.LogEntry{Level: domain.LevelInfo, Message: "hello", ServerName: "S1"}

	done := make(chan struct{})
	var res *Result
	var ingestErr error
	go func() {
		res, ingestErr = svc.IngestOne(ctx, entry)
		close(done)
	}()

	// Give the goroutine a moment to enqueue, then flush synchronously.
	time.Sleep(10 * time.Millisecond)
	runFlushOnce(ctx, svc)
	<-done

	if ingestErr != nil {
		t.Fatalf("ingest: %v", ingestErr)
	}
	if res.ID == 0 {
		t.Error("expected a nonzero assigned id")
	}

	srv, err := st.GetServer(ctx, "S1")
	if err != nil || srv == nil {
		t.Fatalf("expected server S1 to be autovivified, got %v, %v", srv, err)
	}
}

func TestIngestOneRejectsInvalidEntry(t *testing.T) {
	st := newTestStore(t)
	fc := clock.NewFake(time.Now())
	svc := New(st, fc, nil, nil, Options{})
	ctx := context.Background()

	_, err := svc.IngestOne(ctx, &domain.LogEntry{Level: domain.LevelInfo, Message: "", ServerName: "S1"})
	if err == nil {
		t.Fatal("expected a validation error for an empty message")
	}
}

func TestIngestBatchAcceptsPrefixWhenBufferOverflows(t *testing.T) {
	st := newTestStore(t)
	fc := clock.NewFake(time.Now())
	svc := New(st, fc, nil, nil, Options{MaxQueueSize: 2, MaxBatchSize: 10})
	ctx := context.Background()

	entries := []*domain.LogEntry{
		{Level: domain.LevelInfo, Message: "one", ServerName: "S1"},
		{Level: domain.LevelInfo, Message: "two", ServerName: "S1"},
		{Level: domain.LevelInfo, Message: "three", ServerName: "S1"},
	}

	done := make(chan struct{})
	var res *BatchResult
	var batchErr error
	go func() {
		res, batchErr = svc.IngestBatch(ctx, entries)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	runFlushOnce(ctx, svc)
	<-done

	if batchErr != nil {
		t.Fatalf("ingest batch: %v", batchErr)
	}
	if res.AcceptedCount != 2 || res.RejectedCount != 1 {
		t.Errorf("expected 2 accepted / 1 rejected, got accepted=%d rejected=%d", res.AcceptedCount, res.RejectedCount)
	}
}

func TestDrainAndFlushReconcilesExecutionLogCounts(t *testing.T) {
	st := newTestStore(t)
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	exec, err := st.StartExecution(ctx(), store.StartExecutionParams{JobID: "J1", ServerName: "S1"}, fc.NowUTC())
	if err != nil {
		t.Fatalf("start execution: %v", err)
	}

	recorder := &fakeRecorder{}
	svc := New(st, fc, nil, recorder, Options{})

	entry := &domain.LogEntry{Level: domain.LevelWarning, Message: "overrun", ServerName: "S1", JobExecutionID: &exec.ID}
	if err := svc.prepare(ctx(), entry); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	p := pending{entry: entry, result: make(chan outcome, 1)}
	svc.buffer <- p
	svc.drainAndFlush(ctx())
	<-p.result

	if recorder.lastExecID != exec.ID {
		t.Errorf("expected log counts recorded against execution %d, got %d", exec.ID, recorder.lastExecID)
	}
	if recorder.lastCounts.Warning != 1 {
		t.Errorf("expected one warning recorded, got %+v", recorder.lastCounts)
	}
}

type fakeRecorder struct {
	lastExecID int64
	lastCounts domain.LogLevelCounts
}

func (f *fakeRecorder) RecordLogCounts(_ context.Context, executionID int64, counts domain.LogLevelCounts) error {
	f.lastExecID = executionID
	f.lastCounts = counts
	return nil
}

func ctx() context.Context { return context.Background() }
