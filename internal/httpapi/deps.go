package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/alerts"
	"github.com/fleetwatch/fleetwatch/internal/dashboard"
	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/execution"
	"github.com/fleetwatch/fleetwatch/internal/heartbeat"
	"github.com/fleetwatch/fleetwatch/internal/ingestion"
	"github.com/fleetwatch/fleetwatch/internal/realtime"
	"github.com/fleetwatch/fleetwatch/internal/retention"
	"github.com/fleetwatch/fleetwatch/internal/store"
)

// LogStore is what the logs handlers need: the ingestion pipeline's
// front door plus the store's read-side search/fetch. Kept narrow so
// this package only depends on the method sets it actually calls.
type LogStore interface {
	IngestOne(ctx context.Context, e *domain.LogEntry) (*ingestion.Result, error)
	IngestBatch(ctx context.Context, entries []*domain.LogEntry) (*ingestion.BatchResult, error)
	SearchLogs(ctx context.Context, f store.LogSearchFilter) (*store.LogSearchResult, error)
	GetLog(ctx context.Context, id int64) (*domain.LogEntry, error)
}

// JobStore is what the jobs handlers need.
type JobStore interface {
	UpsertJob(ctx context.Context, job *domain.Job, now time.Time) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
}

// ExecutionService is what the executions handlers need.
type ExecutionService interface {
	Start(ctx context.Context, p execution.StartParams) (*domain.JobExecution, error)
	Complete(ctx context.Context, p execution.CompleteParams) (*domain.JobExecution, error)
	Cancel(ctx context.Context, executionID int64, reason string) (*domain.JobExecution, error)
	Get(ctx context.Context, id int64) (*domain.JobExecution, error)
}

// HeartbeatService is what the server-heartbeat handler needs.
type HeartbeatService interface {
	Process(ctx context.Context, p heartbeat.Params) (*domain.Server, error)
}

// AlertService is what the alert-instance handlers need.
type AlertService interface {
	Acknowledge(ctx context.Context, instanceID int64, actor, note string) (*domain.AlertInstance, error)
	Resolve(ctx context.Context, instanceID int64, actor, note string) (*domain.AlertInstance, error)
}

// DashboardService is what the dashboard handler needs.
type DashboardService interface {
	GetSummary(ctx context.Context) (*dashboard.Summary, error)
}

// RetentionService is what the retention-run handler needs.
type RetentionService interface {
	Run(ctx context.Context, dryRun bool) (retention.Report, error)
}

// RealtimeHub is what the websocket handler needs.
type RealtimeHub interface {
	ServeWS(w http.ResponseWriter, r *http.Request, topics ...string) error
}

type handlers struct {
	deps Dependencies
}

var _ LogStore = (*wiredLogStore)(nil)

// wiredLogStore composes the ingestion Service and the Store's
// read-side methods, since spec.md §6 exposes ingest and search as one
// "logs" resource but they're served by two different packages
// internally.
type wiredLogStore struct {
	ingest *ingestion.Service
	store  *store.Store
}

// NewLogStore adapts an ingestion.Service and a *store.Store into the
// single LogStore this package's handlers expect.
func NewLogStore(ingest *ingestion.Service, st *store.Store) LogStore {
	return &wiredLogStore{ingest: ingest, store: st}
}

func (w *wiredLogStore) IngestOne(ctx context.Context, e *domain.LogEntry) (*ingestion.Result, error) {
	return w.ingest.IngestOne(ctx, e)
}

func (w *wiredLogStore) IngestBatch(ctx context.Context, entries []*domain.LogEntry) (*ingestion.BatchResult, error) {
	return w.ingest.IngestBatch(ctx, entries)
}

func (w *wiredLogStore) SearchLogs(ctx context.Context, f store.LogSearchFilter) (*store.LogSearchResult, error) {
	return w.store.SearchLogs(ctx, f)
}

func (w *wiredLogStore) GetLog(ctx context.Context, id int64) (*domain.LogEntry, error) {
	return w.store.GetLog(ctx, id)
}

var _ JobStore = (*store.Store)(nil)

var (
	_ ExecutionService = (*execution.Service)(nil)
	_ HeartbeatService = (*heartbeat.Service)(nil)
	_ AlertService     = (*alerts.Service)(nil)
	_ DashboardService = (*dashboard.Service)(nil)
	_ RetentionService = (*retention.Service)(nil)
	_ RealtimeHub      = (*realtime.Hub)(nil)
)
