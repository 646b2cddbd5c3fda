// Package alerts implements Component G of spec.md §2/§4.G: evaluating
// standing Alert rules on a cadence, firing AlertInstances, and driving
// their acknowledge/resolve/suppress lifecycle. Grounded on
// internal/metrics.AlertChecker's throttle-by-key-with-TTL idiom
// (generalized here into Alert.DueForEvaluation, already owned by
// internal/domain) and its four ad-hoc threshold checks, generalized
// into the six typed Condition variants of spec.md §4.G.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
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

// Notifier hands a fired AlertInstance off to the external channel
// dispatcher (internal/notifications.Dispatcher over its Router) and reports
// the outcome to be folded onto AlertInstance.notificationsSent, per
// spec.md §4.G's "the engine records the outcome onto notificationsSent".
type Notifier interface {
	Notify(ctx context.Context, alert *domain.Alert, instance *domain.AlertInstance) (json.RawMessage, error)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, *domain.Alert, *domain.AlertInstance) (json.RawMessage, error) {
	return nil, nil
}

// Service evaluates Alerts and manages AlertInstance lifecycle.
type Service struct {
	store     *store.Store
	clock     clock.Clock
	publisher Publisher
	notifier  Notifier
}

func New(st *store.Store, clk clock.Clock, publisher Publisher, notifier Notifier) *Service {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Service{store: st, clock: clk, publisher: publisher, notifier: notifier}
}

// EvaluateDue runs one pass of spec.md §4.G: every active, unthrottled
// Alert is evaluated; a match fires a new AlertInstance. Returns the
// number fired.
func (s *Service) EvaluateDue(ctx context.Context) (int, error) {
	now := s.clock.NowUTC()
	due, err := s.store.DueAlerts(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("load due alerts: %w", err)
	}
	fired := 0
	for _, alert := range due {
		matched, message, err := s.evaluate(ctx, alert, now)
		if err != nil {
			log.Warn().Err(err).Int64("alertId", alert.ID).Str("alertType", string(alert.AlertType)).Msg("alerts: evaluation failed")
			continue
		}
		if !matched {
			continue
		}
		if err := s.fire(ctx, alert, message, now); err != nil {
			log.Error().Err(err).Int64("alertId", alert.ID).Msg("alerts: fire failed")
			continue
		}
		fired++
	}
	return fired, nil
}

func (s *Service) evaluate(ctx context.Context, alert *domain.Alert, now time.Time) (matched bool, message string, err error) {
	cond, err := decodeCondition(alert.AlertType, alert.Condition)
	if err != nil {
		return false, "", err
	}

	switch c := cond.(type) {
	case ErrorThresholdCondition:
		return s.evalErrorThreshold(ctx, alert, c, now)
	case JobFailureCondition:
		return s.evalJobFailure(ctx, alert, c)
	case ServerOfflineCondition:
		return s.evalServerOffline(ctx, alert)
	case PerformanceWarningCondition:
		return s.evalPerformanceWarning(ctx, alert, c)
	case CustomQueryCondition:
		return s.evalCustomQuery(ctx, alert, c)
	case PatternMatchCondition:
		return s.evalPatternMatch(ctx, alert, c, now)
	default:
		return false, "", fmt.Errorf("unhandled condition type %T", cond)
	}
}

func (s *Service) evalErrorThreshold(ctx context.Context, alert *domain.Alert, c ErrorThresholdCondition, now time.Time) (bool, string, error) {
	if c.WindowMinutes <= 0 {
		c.WindowMinutes = 15
	}
	since := now.Add(-time.Duration(c.WindowMinutes) * time.Minute)
	count, err := s.store.CountLogsSince(ctx, c.Level, since, alert.JobID, alert.ServerName)
	if err != nil {
		return false, "", err
	}
	if count < c.Threshold {
		return false, "", nil
	}
	return true, fmt.Sprintf("%d logs at level %s or above in the last %dm (threshold %d)",
		count, domain.LogLevel(c.Level), c.WindowMinutes, c.Threshold), nil
}

func (s *Service) evalJobFailure(ctx context.Context, alert *domain.Alert, c JobFailureCondition) (bool, string, error) {
	if alert.JobID == "" {
		return false, "", apperr.Validation("JobFailure alert %d has no scoped jobId", alert.ID)
	}
	if c.Consecutive > 1 {
		n, err := s.store.ConsecutiveFailures(ctx, alert.JobID, c.Consecutive)
		if err != nil {
			return false, "", err
		}
		if n >= c.Consecutive {
			return true, fmt.Sprintf("job %s has failed %d consecutive times", alert.JobID, n), nil
		}
		return false, "", nil
	}
	latest, err := s.store.LatestExecutionForJob(ctx, alert.JobID)
	if err != nil {
		return false, "", err
	}
	if latest != nil && latest.Status == domain.StatusFailed {
		return true, fmt.Sprintf("job %s's latest execution failed", alert.JobID), nil
	}
	return false, "", nil
}

func (s *Service) evalServerOffline(ctx context.Context, alert *domain.Alert) (bool, string, error) {
	if alert.ServerName == "" {
		return false, "", apperr.Validation("ServerOffline alert %d has no scoped serverName", alert.ID)
	}
	srv, err := s.store.GetServer(ctx, alert.ServerName)
	if err != nil {
		return false, "", err
	}
	if srv != nil && srv.Status == domain.ServerOffline {
		return true, fmt.Sprintf("server %s is offline", alert.ServerName), nil
	}
	return false, "", nil
}

func (s *Service) evalPerformanceWarning(ctx context.Context, alert *domain.Alert, c PerformanceWarningCondition) (bool, string, error) {
	if alert.JobID == "" {
		return false, "", apperr.Validation("PerformanceWarning alert %d has no scoped jobId", alert.ID)
	}
	latest, err := s.store.LatestExecutionForJob(ctx, alert.JobID)
	if err != nil || latest == nil || latest.DurationMs == nil {
		return false, "", err
	}
	if c.DurationMs != nil && *latest.DurationMs > *c.DurationMs {
		return true, fmt.Sprintf("job %s's latest run took %dms (bound %dms)", alert.JobID, *latest.DurationMs, *c.DurationMs), nil
	}
	if c.PercentOfAvg != nil {
		job, err := s.store.GetJob(ctx, alert.JobID)
		if err != nil || job == nil || job.AvgDurationMs <= 0 {
			return false, "", err
		}
		bound := float64(job.AvgDurationMs) * (*c.PercentOfAvg / 100)
		if float64(*latest.DurationMs) > bound {
			return true, fmt.Sprintf("job %s's latest run took %dms (%.0f%% of avg %dms)",
				alert.JobID, *latest.DurationMs, *c.PercentOfAvg, job.AvgDurationMs), nil
		}
	}
	return false, "", nil
}

func (s *Service) evalCustomQuery(ctx context.Context, alert *domain.Alert, c CustomQueryCondition) (bool, string, error) {
	exists, err := s.store.RunCustomQuery(ctx, c.Query)
	if err != nil {
		return false, "", err
	}
	if !exists {
		return false, "", nil
	}
	return true, "custom query condition matched", nil
}

func (s *Service) evalPatternMatch(ctx context.Context, alert *domain.Alert, c PatternMatchCondition, now time.Time) (bool, string, error) {
	re, err := regexp.Compile(c.Regex)
	if err != nil {
		return false, "", apperr.Validation("invalid PatternMatch regex: %v", err)
	}
	if c.WindowMinutes <= 0 {
		c.WindowMinutes = 15
	}
	minLevel := -1
	if c.Level != nil {
		minLevel = *c.Level
	}
	since := now.Add(-time.Duration(c.WindowMinutes) * time.Minute)
	logs, err := s.store.LogsSince(ctx, minLevel, since, alert.JobID, alert.ServerName, 500)
	if err != nil {
		return false, "", err
	}
	for _, l := range logs {
		if re.MatchString(l.Message) {
			return true, fmt.Sprintf("log %d matched pattern %q", l.ID, c.Regex), nil
		}
	}
	return false, "", nil
}

// fire inserts an AlertInstance, bumps the Alert's trigger bookkeeping,
// emits the real-time NewAlert event, and hands notification dispatch
// off asynchronously, per spec.md §4.G's "On fire".
func (s *Service) fire(ctx context.Context, alert *domain.Alert, message string, now time.Time) error {
	instance := &domain.AlertInstance{
		AlertID:    alert.ID,
		TriggeredAt: now,
		Message:    message,
		JobID:      alert.JobID,
		ServerName: alert.ServerName,
		Severity:   alert.Severity,
		Status:     domain.InstanceNew,
	}
	id, err := s.store.FireAlert(ctx, instance, now)
	if err != nil {
		return fmt.Errorf("fire alert: %w", err)
	}
	instance.ID = id
	telemetry.RecordAlertFired(string(alert.AlertType))

	s.publisher.Publish("alerts.new", instance)

	go func() {
		payload, err := s.notifier.Notify(context.Background(), alert, instance)
		if err != nil {
			log.Warn().Err(err).Int64("alertInstanceId", id).Msg("alerts: notification dispatch failed")
			return
		}
		if payload == nil {
			return
		}
		if err := s.store.RecordNotificationsSent(context.Background(), id, payload); err != nil {
			log.Warn().Err(err).Int64("alertInstanceId", id).Msg("alerts: failed to record notification outcome")
		}
	}()
	return nil
}

// Acknowledge moves an instance New->Acknowledged, per spec.md §4.G's
// instance lifecycle.
func (s *Service) Acknowledge(ctx context.Context, instanceID int64, actor, note string) (*domain.AlertInstance, error) {
	inst, err := s.store.TransitionAlertInstance(ctx, instanceID, domain.InstanceAcknowledged, actor, note, s.clock.NowUTC())
	if err == nil {
		telemetry.RecordAlertTransition("acknowledge")
	}
	return inst, err
}

// Resolve moves an instance New|Acknowledged->Resolved.
func (s *Service) Resolve(ctx context.Context, instanceID int64, actor, note string) (*domain.AlertInstance, error) {
	inst, err := s.store.TransitionAlertInstance(ctx, instanceID, domain.InstanceResolved, actor, note, s.clock.NowUTC())
	if err == nil {
		telemetry.RecordAlertTransition("resolve")
	}
	return inst, err
}

// Suppress moves an instance to the terminal manual Suppressed state.
func (s *Service) Suppress(ctx context.Context, instanceID int64, actor, note string) (*domain.AlertInstance, error) {
	inst, err := s.store.TransitionAlertInstance(ctx, instanceID, domain.InstanceSuppressed, actor, note, s.clock.NowUTC())
	if err == nil {
		telemetry.RecordAlertTransition("suppress")
	}
	return inst, err
}

// AcknowledgeMany applies Acknowledge to each id independently and
// atomically, per spec.md §4.G's "Bulk variants are allowed".
func (s *Service) AcknowledgeMany(ctx context.Context, instanceIDs []int64, actor, note string) (int, []error) {
	return s.bulk(ctx, instanceIDs, func(id int64) error {
		_, err := s.Acknowledge(ctx, id, actor, note)
		return err
	})
}

// ResolveMany applies Resolve to each id independently and atomically.
func (s *Service) ResolveMany(ctx context.Context, instanceIDs []int64, actor, note string) (int, []error) {
	return s.bulk(ctx, instanceIDs, func(id int64) error {
		_, err := s.Resolve(ctx, id, actor, note)
		return err
	})
}

func (s *Service) bulk(ctx context.Context, ids []int64, fn func(int64) error) (int, []error) {
	ok := 0
	var errs []error
	for _, id := range ids {
		if err := fn(id); err != nil {
			errs = append(errs, fmt.Errorf("instance %d: %w", id, err))
			continue
		}
		ok++
	}
	return ok, errs
}

// RunLoop drives EvaluateDue on interval until ctx is cancelled, the
// mandatory background task spec.md §5 names as the "alert evaluator".
func (s *Service) RunLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.EvaluateDue(ctx); err != nil {
				log.Error().Err(err).Msg("alerts: evaluation pass failed")
			}
		}
	}
}
