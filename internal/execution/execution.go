// Package execution implements the job-execution state machine named
// as Component D in spec.md §2: starting, completing, and cancelling
// JobExecutions, plus the periodic timeout sweep of spec.md §4.D.4.
// The transactional rollups themselves live in internal/store; this
// package is the validating, event-publishing front door to them,
// grounded on tasks.Task.TransitionTo's "validate then delegate" shape.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/apperr"
	"github.com/fleetwatch/fleetwatch/internal/clock"
	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/idgen"
	"github.com/fleetwatch/fleetwatch/internal/store"
	"github.com/fleetwatch/fleetwatch/internal/telemetry"
)

// Publisher is the narrow real-time fan-out dependency this package
// needs, implemented by internal/realtime.Bus. Kept as a local
// interface to avoid a dependency cycle.
type Publisher interface {
	Publish(topic string, payload interface{})
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, interface{}) {}

// Service is the execution-lifecycle front door.
type Service struct {
	store     *store.Store
	clock     clock.Clock
	publisher Publisher
	// TimeoutCheckInterval is the cadence of RunTimeoutSweep's caller loop.
	TimeoutCheckInterval time.Duration
}

// New builds a Service. publisher may be nil, in which case events are
// dropped (useful for tests).
func New(st *store.Store, clk clock.Clock, publisher Publisher) *Service {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Service{store: st, clock: clk, publisher: publisher, TimeoutCheckInterval: 60 * time.Second}
}

// StartParams mirrors spec.md §4.D.1's StartExecution inputs.
type StartParams struct {
	JobID         string
	ServerName    string
	TriggerType   string
	TriggeredBy   string
	CorrelationID string
	Parameters    []byte
}

// Start autovivifies Job/Server, derives a correlation id if the caller
// didn't supply one, and atomically creates the execution, per spec.md
// §4.D.1.
func (s *Service) Start(ctx context.Context, p StartParams) (*domain.JobExecution, error) {
	if p.JobID == "" {
		return nil, apperr.Validation("jobId is required")
	}
	if p.ServerName == "" {
		return nil, apperr.Validation("serverName is required")
	}
	correlationID := p.CorrelationID
	if correlationID == "" {
		correlationID = idgen.CorrelationID()
	}

	now := s.clock.NowUTC()
	exec, err := s.store.StartExecution(ctx, store.StartExecutionParams{
		JobID:         p.JobID,
		ServerName:    p.ServerName,
		TriggerType:   p.TriggerType,
		TriggeredBy:   p.TriggeredBy,
		CorrelationID: correlationID,
		Parameters:    p.Parameters,
	}, now)
	if err != nil {
		return nil, err
	}

	telemetry.RecordExecutionStarted(p.TriggerType)
	s.publisher.Publish("executions.running", exec)
	return exec, nil
}

// CompleteParams mirrors spec.md §4.D.2's CompleteExecution inputs.
type CompleteParams struct {
	ExecutionID   int64
	Status        domain.ExecutionStatus
	ResultSummary []byte
	ResultCode    *int
	ErrorMessage  string
	ErrorCategory string
}

// terminalStatuses is the set CompleteExecution may transition into —
// Pending/Running are excluded since they are not completions.
var terminalStatuses = map[domain.ExecutionStatus]bool{
	domain.StatusCompleted: true,
	domain.StatusFailed:    true,
	domain.StatusCancelled: true,
	domain.StatusTimeout:   true,
	domain.StatusWarning:   true,
}

// Complete transitions a non-terminal execution to a terminal state and
// rolls up the parent Job's statistics, per spec.md §4.D.2.
func (s *Service) Complete(ctx context.Context, p CompleteParams) (*domain.JobExecution, error) {
	if !terminalStatuses[p.Status] {
		return nil, apperr.Validation("status %s is not a valid completion state", p.Status)
	}
	exec, err := s.store.CompleteExecution(ctx, store.CompleteExecutionParams{
		ExecutionID:   p.ExecutionID,
		Status:        p.Status,
		ResultSummary: p.ResultSummary,
		ResultCode:    p.ResultCode,
		ErrorMessage:  p.ErrorMessage,
		ErrorCategory: p.ErrorCategory,
	}, s.clock.NowUTC())
	if err != nil {
		return nil, err
	}
	telemetry.RecordExecutionCompleted(exec.Status.String(), exec.CompletedAt.Sub(exec.StartedAt))
	s.publisher.Publish(fmt.Sprintf("logs.execution.%d", exec.ID), exec)
	s.publisher.Publish("executions.running", exec)
	return exec, nil
}

// Cancel is Complete(Cancelled, errorMessage=reason), per spec.md §4.D.3.
func (s *Service) Cancel(ctx context.Context, executionID int64, reason string) (*domain.JobExecution, error) {
	exec, err := s.store.CancelExecution(ctx, executionID, reason, s.clock.NowUTC())
	if err != nil {
		return nil, err
	}
	if exec.CompletedAt != nil {
		telemetry.RecordExecutionCompleted(exec.Status.String(), exec.CompletedAt.Sub(exec.StartedAt))
	}
	s.publisher.Publish("executions.running", exec)
	return exec, nil
}

// Get fetches a JobExecution by id.
func (s *Service) Get(ctx context.Context, id int64) (*domain.JobExecution, error) {
	exec, err := s.store.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, apperr.NotFound("execution %d not found", id)
	}
	return exec, nil
}

// RecordLogCounts reconciles per-level log counters onto an execution,
// per spec.md §4.D.5. Safe to call from the ingestion flush path.
func (s *Service) RecordLogCounts(ctx context.Context, executionID int64, counts domain.LogLevelCounts) error {
	return s.store.IncrementLogCounts(ctx, executionID, counts)
}

// RunTimeoutSweep performs one pass of spec.md §4.D.4: every Running
// execution whose parent Job has maxDurationMs set and whose runtime
// exceeds it is completed with status=Timeout.
func (s *Service) RunTimeoutSweep(ctx context.Context) (int, error) {
	running, err := s.store.RunningExecutions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list running executions: %w", err)
	}
	now := s.clock.NowUTC()
	timedOut := 0
	for _, exec := range running {
		job, err := s.store.GetJob(ctx, exec.JobID)
		if err != nil {
			return timedOut, fmt.Errorf("load job %s: %w", exec.JobID, err)
		}
		if job == nil || job.MaxDurationMs == nil {
			continue
		}
		runtime := now.Sub(exec.StartedAt).Milliseconds()
		if runtime <= *job.MaxDurationMs {
			continue
		}
		if _, err := s.Complete(ctx, CompleteParams{
			ExecutionID:  exec.ID,
			Status:       domain.StatusTimeout,
			ErrorMessage: "Exceeded maximum duration",
		}); err != nil {
			return timedOut, fmt.Errorf("timeout execution %d: %w", exec.ID, err)
		}
		timedOut++
	}
	return timedOut, nil
}

// RunLoop drives RunTimeoutSweep on Service.TimeoutCheckInterval until
// ctx is cancelled, the mandatory background task spec.md §5 names as
// the "execution-timeout sweeper".
func (s *Service) RunLoop(ctx context.Context) {
	ticker := time.NewTicker(s.TimeoutCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.RunTimeoutSweep(ctx)
		}
	}
}
