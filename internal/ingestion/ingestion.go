// Package ingestion implements Component C of spec.md §2: single and
// batch LogEntry ingest, absorbed through a bounded in-memory buffer and
// committed by periodic flush workers, per spec.md §4.C. Grounded on
// internal/events.Bus's sendWithBackpressure discipline (bounded,
// non-blocking attempts before giving up) generalized into a
// deadline-bounded enqueue, and internal/tasks.Queue's capacity-aware
// admission idiom.
package ingestion

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetwatch/fleetwatch/internal/apperr"
	"github.com/fleetwatch/fleetwatch/internal/clock"
	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/store"
	"github.com/fleetwatch/fleetwatch/internal/telemetry"
)

// Publisher is the narrow real-time dependency this package needs.
type Publisher interface {
	Publish(topic string, payload interface{})
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, interface{}) {}

// ExecutionRecorder reconciles per-level log counters onto a
// JobExecution, the hand-off named in spec.md §4.D.5. Kept as a local
// interface so this package doesn't need to import internal/execution.
type ExecutionRecorder interface {
	RecordLogCounts(ctx context.Context, executionID int64, counts domain.LogLevelCounts) error
}

type noopRecorder struct{}

func (noopRecorder) RecordLogCounts(context.Context, int64, domain.LogLevelCounts) error { return nil }

// Options configures the buffer and flush cadence of spec.md §4.C.2.
type Options struct {
	MaxBatchSize       int
	MaxQueueSize       int
	ProcessingInterval time.Duration
	EnqueueDeadline    time.Duration
}

func (o *Options) setDefaults() {
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = 1000
	}
	if o.MaxQueueSize <= 0 {
		o.MaxQueueSize = 50000
	}
	if o.ProcessingInterval <= 0 {
		o.ProcessingInterval = 100 * time.Millisecond
	}
	if o.EnqueueDeadline <= 0 {
		o.EnqueueDeadline = 100 * time.Millisecond
	}
}

// pending pairs a buffered entry with the channel its eventual
// {id, err} is delivered on, so a caller blocked in IngestOne/IngestBatch
// observes the real, store-assigned id once the owning flush commits.
type pending struct {
	entry  *domain.LogEntry
	result chan outcome
}

type outcome struct {
	id  int64
	err error
}

// Service is the ingestion pipeline's front door.
type Service struct {
	store     *store.Store
	clock     clock.Clock
	publisher Publisher
	recorder  ExecutionRecorder
	opts      Options

	buffer chan pending
	wake   chan struct{}
}

// New builds a Service with a buffer sized to opts.MaxQueueSize.
func New(st *store.Store, clk clock.Clock, publisher Publisher, recorder ExecutionRecorder, opts Options) *Service {
	opts.setDefaults()
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Service{
		store:     st,
		clock:     clk,
		publisher: publisher,
		recorder:  recorder,
		opts:      opts,
		buffer:    make(chan pending, opts.MaxQueueSize),
		wake:      make(chan struct{}, 1),
	}
}

// Result is the single-ingest response of spec.md §4.C.1.
type Result struct {
	ID         int64
	ReceivedAt time.Time
}

// Rejection is one batch-ingest element that failed validation or
// admission, per spec.md §4.C.1's {index, reason} shape.
type Rejection struct {
	Index  int
	Reason string
}

// BatchResult is the batch-ingest response of spec.md §4.C.1.
type BatchResult struct {
	AcceptedCount int
	RejectedCount int
	Rejections    []Rejection
}

// prepare validates and stamps an entry per spec.md §4.C.1 steps 1-2,
// and autovivifies its referenced Job/Server per step 3.
func (s *Service) prepare(ctx context.Context, e *domain.LogEntry) error {
	if err := e.Validate(); err != nil {
		return apperr.Validation("%s", err.Error())
	}
	now := s.clock.NowUTC()
	e.ReceivedAt = now
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}

	if e.JobID != "" {
		if err := s.store.AutovivifyJob(ctx, e.JobID, now); err != nil {
			return apperr.Internal(err)
		}
	}
	if err := s.store.AutovivifyServer(ctx, e.ServerName, now); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// enqueue attempts a deadline-bounded send onto the buffer, per spec.md
// §4.C.2's producer discipline.
func (s *Service) enqueue(ctx context.Context, p pending) error {
	select {
	case s.buffer <- p:
		s.nudgeIfHalfFull()
		return nil
	default:
	}

	timer := time.NewTimer(s.opts.EnqueueDeadline)
	defer timer.Stop()
	select {
	case s.buffer <- p:
		s.nudgeIfHalfFull()
		return nil
	case <-timer.C:
		return apperr.Overloaded("ingestion buffer full, enqueue deadline exceeded")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) nudgeIfHalfFull() {
	if len(s.buffer) >= cap(s.buffer)/2 {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// IngestOne implements spec.md §4.C.1's single-entry path. It blocks
// until the entry's owning flush has committed (or failed), returning
// the store-assigned id.
func (s *Service) IngestOne(ctx context.Context, e *domain.LogEntry) (*Result, error) {
	if err := s.prepare(ctx, e); err != nil {
		return nil, err
	}
	p := pending{entry: e, result: make(chan outcome, 1)}
	if err := s.enqueue(ctx, p); err != nil {
		return nil, err
	}
	select {
	case o := <-p.result:
		if o.err != nil {
			telemetry.RecordLogRejected(1)
			return nil, o.err
		}
		telemetry.RecordLogAccepted(1)
		return &Result{ID: o.id, ReceivedAt: e.ReceivedAt}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IngestBatch implements spec.md §4.C.1's batch path: every entry is
// validated independently; once the buffer's remaining capacity is
// exhausted the remaining entries are rejected as a prefix-accept,
// per spec.md §4.C.2.
func (s *Service) IngestBatch(ctx context.Context, entries []*domain.LogEntry) (*BatchResult, error) {
	telemetry.RecordBatchSize(len(entries))
	res := &BatchResult{}
	var accepted []pending
	overloaded := false

	for i, e := range entries {
		if overloaded {
			res.Rejections = append(res.Rejections, Rejection{Index: i, Reason: "Overloaded"})
			res.RejectedCount++
			continue
		}
		if err := s.prepare(ctx, e); err != nil {
			res.Rejections = append(res.Rejections, Rejection{Index: i, Reason: err.Error()})
			res.RejectedCount++
			continue
		}
		p := pending{entry: e, result: make(chan outcome, 1)}
		select {
		case s.buffer <- p:
			accepted = append(accepted, p)
		default:
			overloaded = true
			res.Rejections = append(res.Rejections, Rejection{Index: i, Reason: "Overloaded"})
			res.RejectedCount++
		}
	}
	s.nudgeIfHalfFull()
	telemetry.SetBufferOccupancy(len(s.buffer))

	for _, p := range accepted {
		select {
		case o := <-p.result:
			if o.err != nil {
				res.Rejections = append(res.Rejections, Rejection{Reason: o.err.Error()})
				res.RejectedCount++
				continue
			}
			res.AcceptedCount++
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
	telemetry.RecordLogAccepted(res.AcceptedCount)
	telemetry.RecordLogRejected(res.RejectedCount)
	return res, nil
}

// RunLoop drains the buffer on Options.ProcessingInterval or whenever
// nudgeIfHalfFull fires, whichever comes first, per spec.md §4.C.2's
// "flush cadence" rule. It runs until ctx is cancelled.
func (s *Service) RunLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.ProcessingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.drainAndFlush(context.Background())
			return
		case <-ticker.C:
			s.drainAndFlush(ctx)
		case <-s.wake:
			s.drainAndFlush(ctx)
		}
	}
}

func (s *Service) drainAndFlush(ctx context.Context) {
	var batch []pending
collect:
	for len(batch) < s.opts.MaxBatchSize {
		select {
		case p := <-s.buffer:
			batch = append(batch, p)
		default:
			break collect
		}
	}
	if len(batch) == 0 {
		return
	}

	entries := make([]*domain.LogEntry, len(batch))
	for i, p := range batch {
		entries[i] = p.entry
	}

	flushStart := s.clock.NowUTC()
	ids, err := s.store.InsertLogsBatch(ctx, entries)
	telemetry.RecordFlush(s.clock.NowUTC().Sub(flushStart))
	telemetry.SetBufferOccupancy(len(s.buffer))
	if err != nil {
		log.Error().Err(err).Int("batchSize", len(batch)).Msg("ingestion: flush failed")
		for _, p := range batch {
			p.result <- outcome{err: apperr.Internal(err)}
		}
		return
	}

	counts := map[int64]domain.LogLevelCounts{}
	for i, p := range batch {
		p.result <- outcome{id: ids[i]}
		if p.entry.JobExecutionID != nil {
			c := counts[*p.entry.JobExecutionID]
			c.Add(p.entry.Level)
			counts[*p.entry.JobExecutionID] = c
		}
		s.publisher.Publish("logs.all", p.entry)
	}
	for execID, c := range counts {
		if err := s.recorder.RecordLogCounts(ctx, execID, c); err != nil {
			log.Warn().Err(err).Int64("executionId", execID).Msg("ingestion: log count reconciliation failed")
		}
	}
}
