package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/auth"
	"github.com/fleetwatch/fleetwatch/internal/clock"
	"github.com/fleetwatch/fleetwatch/internal/dashboard"
	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/execution"
	"github.com/fleetwatch/fleetwatch/internal/heartbeat"
	"github.com/fleetwatch/fleetwatch/internal/ingestion"
	"github.com/fleetwatch/fleetwatch/internal/retention"
	"github.com/fleetwatch/fleetwatch/internal/store"
)

type fakeLogStore struct {
	ingestedOne *domain.LogEntry
}

func (f *fakeLogStore) IngestOne(_ context.Context, e *domain.LogEntry) (*ingestion.Result, error) {
	f.ingestedOne = e
	return &ingestion.Result{ID: 42, ReceivedAt: e.ReceivedAt}, nil
}
func (f *fakeLogStore) IngestBatch(_ context.Context, entries []*domain.LogEntry) (*ingestion.BatchResult, error) {
	return &ingestion.BatchResult{AcceptedCount: len(entries)}, nil
}
func (f *fakeLogStore) SearchLogs(_ context.Context, filter store.LogSearchFilter) (*store.LogSearchResult, error) {
	return &store.LogSearchResult{Items: nil, TotalCount: 0}, nil
}
func (f *fakeLogStore) GetLog(_ context.Context, id int64) (*domain.LogEntry, error) {
	if id == 99 {
		return nil, nil
	}
	return &domain.LogEntry{ID: id, Message: "hello", ServerName: "srv-1"}, nil
}

type fakeJobStore struct{}

func (fakeJobStore) UpsertJob(context.Context, *domain.Job, time.Time) error { return nil }
func (fakeJobStore) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	return &domain.Job{JobID: jobID}, nil
}

type fakeExecutions struct{}

func (fakeExecutions) Start(_ context.Context, p execution.StartParams) (*domain.JobExecution, error) {
	return &domain.JobExecution{ID: 1, JobID: p.JobID, Status: domain.StatusRunning}, nil
}
func (fakeExecutions) Complete(_ context.Context, p execution.CompleteParams) (*domain.JobExecution, error) {
	return &domain.JobExecution{ID: p.ExecutionID, Status: p.Status}, nil
}
func (fakeExecutions) Cancel(_ context.Context, id int64, reason string) (*domain.JobExecution, error) {
	return &domain.JobExecution{ID: id, Status: domain.StatusCancelled, ErrorMessage: reason}, nil
}
func (fakeExecutions) Get(_ context.Context, id int64) (*domain.JobExecution, error) {
	return &domain.JobExecution{ID: id}, nil
}

type fakeHeartbeat struct{}

func (fakeHeartbeat) Process(_ context.Context, p heartbeat.Params) (*domain.Server, error) {
	return &domain.Server{ServerName: p.ServerName, Status: domain.ServerOnline}, nil
}

type fakeAlerts struct{}

func (fakeAlerts) Acknowledge(_ context.Context, id int64, actor, note string) (*domain.AlertInstance, error) {
	return &domain.AlertInstance{ID: id, Status: domain.InstanceAcknowledged, AcknowledgedBy: actor}, nil
}
func (fakeAlerts) Resolve(_ context.Context, id int64, actor, note string) (*domain.AlertInstance, error) {
	return &domain.AlertInstance{ID: id, Status: domain.InstanceResolved, ResolvedBy: actor}, nil
}

type fakeDashboard struct{}

func (fakeDashboard) GetSummary(context.Context) (*dashboard.Summary, error) {
	return &dashboard.Summary{ActiveJobs: 3}, nil
}

type fakeRetention struct{}

func (fakeRetention) Run(_ context.Context, dryRun bool) (retention.Report, error) {
	return retention.Report{DryRun: dryRun, RetentionCounts: store.RetentionCounts{Info: 5}}, nil
}

type fakeRealtime struct{ served bool }

func (f *fakeRealtime) ServeWS(w http.ResponseWriter, r *http.Request, topics ...string) error {
	f.served = true
	w.WriteHeader(http.StatusOK)
	return nil
}

func testDeps() Dependencies {
	store := &fakeAuthStoreForHTTP{
		users:   map[int64]*domain.User{1: {ID: 1, Username: "alice", Role: domain.RoleAdministrator, IsActive: true}},
		apiKeys: map[string]*domain.APIKey{},
	}
	store.apiKeys[auth.HashToken("agent-key")] = &domain.APIKey{ID: 2, Name: "agent-1", Scope: []string{"logs:write", "heartbeat:write", "jobs:write", "execution:start", "execution:complete", "execution:cancel"}, IsActive: true}

	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	issuer := auth.NewTokenIssuer("test-secret", clk)
	authr := auth.NewAuthenticator(issuer, store, clk)

	return Dependencies{
		Authenticator: authr,
		RateLimiter:   auth.NewKeyedRateLimiter(1000, 1000),
		Clock:         clk,
		Logs:          &fakeLogStore{},
		Jobs:          fakeJobStore{},
		Executions:    fakeExecutions{},
		Servers:       fakeHeartbeat{},
		Alerts:        fakeAlerts{},
		Dashboard:     fakeDashboard{},
		Retention:     fakeRetention{},
		Realtime:      &fakeRealtime{},
	}
}

type fakeAuthStoreForHTTP struct {
	users   map[int64]*domain.User
	apiKeys map[string]*domain.APIKey
}

func (f *fakeAuthStoreForHTTP) GetUser(_ context.Context, id int64) (*domain.User, error) {
	return f.users[id], nil
}
func (f *fakeAuthStoreForHTTP) GetAPIKeyByHash(_ context.Context, hash string) (*domain.APIKey, error) {
	return f.apiKeys[hash], nil
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz_NoAuthRequired(t *testing.T) {
	router := NewRouter(testDeps())
	rec := doRequest(t, router, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestIngestLog_RequiresAuth(t *testing.T) {
	router := NewRouter(testDeps())
	rec := doRequest(t, router, http.MethodPost, "/api/v1/logs",
		map[string]interface{}{"level": 2, "message": "hi", "serverName": "srv-1"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rec.Code)
	}
}

func TestIngestLog_WithScopedAPIKey(t *testing.T) {
	router := NewRouter(testDeps())
	rec := doRequest(t, router, http.MethodPost, "/api/v1/logs",
		map[string]interface{}{"level": 2, "message": "hi", "serverName": "srv-1"}, "agent-key")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSearchLogs_DeniedWithoutReadCapability(t *testing.T) {
	deps := testDeps()
	router := NewRouter(deps)
	// the agent-key has no read capability at all (no role, only scopes)
	rec := doRequest(t, router, http.MethodGet, "/api/v1/logs/search", nil, "agent-key")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRunRetention_RequiresAdministrator(t *testing.T) {
	router := NewRouter(testDeps())
	rec := doRequest(t, router, http.MethodPost, "/api/v1/retention/run", map[string]interface{}{"dryRun": true}, "agent-key")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for scoped service key, got %d", rec.Code)
	}
}

func TestAcknowledgeInstance_WithBearerToken(t *testing.T) {
	deps := testDeps()
	clk := deps.Clock.(*clock.Fake)
	issuer := auth.NewTokenIssuer("test-secret", clk)
	token, err := issuer.IssueAccessToken(&domain.User{ID: 1, Username: "alice", Role: domain.RoleAdministrator, IsActive: true})
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	router := NewRouter(deps)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/instances/7/ack", bytes.NewBufferString(`{"note":"looking into it"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got domain.AlertInstance
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.AcknowledgedBy != "alice" {
		t.Errorf("expected acknowledgedBy alice, got %q", got.AcknowledgedBy)
	}
}

func TestDashboardSummary(t *testing.T) {
	router := NewRouter(testDeps())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/summary", nil)
	req.Header.Set("X-API-Key", "agent-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	// agent-key has no read capability, so this must be forbidden.
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestNotFoundRoute(t *testing.T) {
	router := NewRouter(testDeps())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/does-not-exist", nil)
	req.Header.Set("X-API-Key", "agent-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
