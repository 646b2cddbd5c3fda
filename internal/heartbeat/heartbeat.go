// Package heartbeat implements Component E of spec.md §2: accepting
// agent heartbeats and periodically reclassifying Server status from
// heartbeat recency. Grounded on internal/server/heartbeat.go's
// ticker-driven sweep, generalized from "stop a stale agent's process"
// to "reclassify and publish a status transition".
package heartbeat

import (
	"context"
	"fmt"
	"time"

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

// Service processes heartbeats and runs the status sweep.
type Service struct {
	store     *store.Store
	clock     clock.Clock
	publisher Publisher
	// SweepInterval is the cadence of spec.md §4.E.2 (default 30s).
	SweepInterval time.Duration
}

func New(st *store.Store, clk clock.Clock, publisher Publisher) *Service {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Service{store: st, clock: clk, publisher: publisher, SweepInterval: 30 * time.Second}
}

// Params mirrors spec.md §4.E.1's ProcessHeartbeat inputs.
type Params struct {
	ServerName   string
	IPAddress    string
	AgentVersion string
	AgentType    string
	Metadata     []byte
}

// Process upserts the Server as Online with lastHeartbeat=now, per
// spec.md §4.E.1.
func (s *Service) Process(ctx context.Context, p Params) (*domain.Server, error) {
	srv, err := s.store.ProcessHeartbeat(ctx, store.HeartbeatParams{
		ServerName:   p.ServerName,
		IPAddress:    p.IPAddress,
		AgentVersion: p.AgentVersion,
		AgentType:    p.AgentType,
		Metadata:     p.Metadata,
	}, s.clock.NowUTC())
	if err != nil {
		return nil, err
	}
	telemetry.RecordHeartbeat(string(srv.Status))
	return srv, nil
}

// ServerStatusChange is the event payload spec.md §4.E.2 names.
type ServerStatusChange struct {
	ServerName string              `json:"serverName"`
	OldStatus  domain.ServerStatus `json:"oldStatus"`
	NewStatus  domain.ServerStatus `json:"newStatus"`
}

// RunSweep reclassifies every active Server per spec.md §4.E.2's
// deterministic function of (lastHeartbeat, heartbeatIntervalSeconds,
// now), persisting and publishing only actual transitions.
func (s *Service) RunSweep(ctx context.Context) (int, error) {
	servers, err := s.store.ListActiveServers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active servers: %w", err)
	}
	now := s.clock.NowUTC()
	changed := 0
	counts := map[string]int{}
	for _, srv := range servers {
		newStatus := domain.ClassifyStatus(srv.LastHeartbeat, srv.HeartbeatIntervalSeconds, now)
		if newStatus != srv.Status {
			if err := s.store.SetServerStatus(ctx, srv.ServerName, newStatus, now); err != nil {
				return changed, fmt.Errorf("set status for %s: %w", srv.ServerName, err)
			}
			s.publisher.Publish("servers.status", ServerStatusChange{
				ServerName: srv.ServerName, OldStatus: srv.Status, NewStatus: newStatus,
			})
			changed++
		}
		counts[string(newStatus)]++
	}
	telemetry.SetServerCounts(counts)
	return changed, nil
}

// RunLoop drives RunSweep on Service.SweepInterval until ctx is
// cancelled, the mandatory background task spec.md §5 names as the
// "heartbeat status sweeper".
func (s *Service) RunLoop(ctx context.Context) {
	ticker := time.NewTicker(s.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.RunSweep(ctx)
		}
	}
}
