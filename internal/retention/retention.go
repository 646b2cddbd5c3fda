// Package retention implements Component F of spec.md §2/§4.F: the
// daily retention and maintenance sweep. The row-level purge mechanics
// live in internal/store; this package owns the daily schedule and the
// dry-run/live switch, grounded on internal/persistence.JSONStore's
// scan-then-batch-delete idiom and the teacher's standalone cmd/dbctl
// maintenance CLI.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/fleetwatch/fleetwatch/internal/clock"
	"github.com/fleetwatch/fleetwatch/internal/store"
	"github.com/fleetwatch/fleetwatch/internal/telemetry"
)

// Policy mirrors the configuration keys of spec.md §6's Retention.* group.
type Policy struct {
	DefaultDays    int
	ErrorDays      int
	CriticalDays   int
	BatchSize      int
	CleanupTimeUTC string // "HH:MM", used only to build the cron schedule
}

// Report is the combined outcome of one retention pass, the shape
// RunRetention's {categoryCounts} or {deletedCount} response is built
// from per spec.md §6's endpoint table.
type Report struct {
	store.RetentionCounts
	DroppedPartitions []string
	DryRun            bool
}

// Service drives the scheduled and ad-hoc retention sweep.
type Service struct {
	store  *store.Store
	clock  clock.Clock
	policy Policy
	cron   *cron.Cron
}

func New(st *store.Store, clk clock.Clock, policy Policy) *Service {
	if policy.BatchSize <= 0 {
		policy.BatchSize = 10000
	}
	return &Service{store: st, clock: clk, policy: policy}
}

func (s *Service) storePolicy() store.RetentionPolicy {
	return store.RetentionPolicy{
		TraceDebugDays: 7,
		DefaultDays:    s.policy.DefaultDays,
		ErrorDays:      s.policy.ErrorDays,
		CriticalDays:   s.policy.CriticalDays,
		BatchSize:      s.policy.BatchSize,
	}
}

// Run performs one full pass of spec.md §4.F: log retention by level,
// whole-partition drops, and the ancillary AlertInstance/AuditLog/
// RefreshToken purges. Dashboard cache refresh and the server status
// sweep are driven by their own packages' RunLoop and are not repeated
// here.
func (s *Service) Run(ctx context.Context, dryRun bool) (Report, error) {
	now := s.clock.NowUTC()
	policy := s.storePolicy()

	logCounts, err := s.store.RunLogRetention(ctx, policy, now, dryRun)
	if err != nil {
		return Report{}, fmt.Errorf("log retention: %w", err)
	}

	var dropped []string
	if !dryRun {
		dropped, err = s.store.DropExhaustedPartitions(ctx, policy, now)
		if err != nil {
			return Report{}, fmt.Errorf("drop exhausted partitions: %w", err)
		}
	}

	ancillary, err := s.store.RunAncillaryRetention(ctx, now, dryRun)
	if err != nil {
		return Report{}, fmt.Errorf("ancillary retention: %w", err)
	}

	report := Report{
		RetentionCounts:   logCounts,
		DroppedPartitions: dropped,
		DryRun:            dryRun,
	}
	report.AlertInstances = ancillary.AlertInstances
	report.AuditLogs = ancillary.AuditLogs
	report.RefreshTokens = ancillary.RefreshTokens

	if !dryRun {
		telemetry.RecordRetentionDeleted("traceDebug", report.TraceDebug)
		telemetry.RecordRetentionDeleted("info", report.Info)
		telemetry.RecordRetentionDeleted("warningError", report.WarningError)
		telemetry.RecordRetentionDeleted("alertInstances", report.AlertInstances)
		telemetry.RecordRetentionDeleted("auditLogs", report.AuditLogs)
		telemetry.RecordRetentionDeleted("refreshTokens", report.RefreshTokens)
	}
	return report, nil
}

// Start schedules Run(dryRun=false) daily at Policy.CleanupTimeUTC,
// using robfig/cron/v3 since "every day at HH:MM" is exactly the
// granularity it's built for (the sub-minute pollers elsewhere in the
// system stay on plain time.Ticker, per SPEC_FULL.md §4.F). Returns a
// stop function.
func (s *Service) Start(ctx context.Context) (func(), error) {
	hour, minute, err := parseHHMM(s.policy.CleanupTimeUTC)
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup time %q: %w", s.policy.CleanupTimeUTC, err)
	}
	spec := fmt.Sprintf("%d %d * * *", minute, hour)

	c := cron.New(cron.WithLocation(time.UTC))
	_, err = c.AddFunc(spec, func() {
		report, err := s.Run(ctx, false)
		if err != nil {
			log.Error().Err(err).Msg("retention: scheduled run failed")
			return
		}
		log.Info().
			Int("traceDebug", report.TraceDebug).
			Int("info", report.Info).
			Int("warningError", report.WarningError).
			Int("alertInstances", report.AlertInstances).
			Int("auditLogs", report.AuditLogs).
			Int("refreshTokens", report.RefreshTokens).
			Strs("droppedPartitions", report.DroppedPartitions).
			Msg("retention: scheduled run complete")
	})
	if err != nil {
		return nil, fmt.Errorf("schedule retention cron: %w", err)
	}
	s.cron = c
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}

func parseHHMM(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
