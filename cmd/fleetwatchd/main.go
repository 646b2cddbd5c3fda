// Command fleetwatchd is the fleetwatch ingestion-and-monitoring
// daemon: it wires every Component of spec.md §2 into one process and
// serves spec.md §6's HTTP/JSON and websocket surface.
//
// Grounded on cmd/cliaimonitor/main.go's overall control flow (single-
// instance guard, construct components, bind-then-write-PID-file,
// signal-driven graceful shutdown with ordered teardown), generalized
// away from that program's agent-spawning specifics to fleetwatch's
// store/ingestion/execution/heartbeat/alerts/dashboard/retention
// components.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/fleetwatch/fleetwatch/internal/alerts"
	"github.com/fleetwatch/fleetwatch/internal/auth"
	"github.com/fleetwatch/fleetwatch/internal/clock"
	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/dashboard"
	"github.com/fleetwatch/fleetwatch/internal/execution"
	"github.com/fleetwatch/fleetwatch/internal/heartbeat"
	"github.com/fleetwatch/fleetwatch/internal/httpapi"
	"github.com/fleetwatch/fleetwatch/internal/ingestion"
	"github.com/fleetwatch/fleetwatch/internal/instance"
	natsbridge "github.com/fleetwatch/fleetwatch/internal/nats"
	"github.com/fleetwatch/fleetwatch/internal/notifications"
	"github.com/fleetwatch/fleetwatch/internal/realtime"
	"github.com/fleetwatch/fleetwatch/internal/retention"
	"github.com/fleetwatch/fleetwatch/internal/store"
	"github.com/fleetwatch/fleetwatch/internal/telemetry"
)

func main() {
	fs := config.NewFlagSet("fleetwatchd")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fleetwatchd: configuration error: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)
	snapshot := config.NewSnapshot(cfg)

	mgr := instance.NewManager("fleetwatchd.pid", "fleetwatchd.state.json", cfg.HTTPPort)
	if existing, err := mgr.CheckExistingInstance(); err != nil {
		log.Warn().Err(err).Msg("fleetwatchd: instance check failed, continuing")
	} else if existing != nil {
		log.Fatal().Int("pid", existing.PID).Int("port", existing.Port).
			Msg("fleetwatchd: another instance is already running")
	}

	if err := run(cfg, snapshot, mgr, fs); err != nil {
		log.Fatal().Err(err).Msg("fleetwatchd: fatal error")
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Caller().Logger()
}

func run(cfg *config.Config, snapshot *config.Snapshot, mgr *instance.InstanceManager, fs *pflag.FlagSet) error {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	clk := clock.New()
	bus := realtime.NewBus()
	hub := realtime.NewHub(bus)

	issuer := auth.NewTokenIssuer(cfg.JWTSecret, clk)
	authenticator := auth.NewAuthenticator(issuer, st, clk)
	limiter := auth.NewKeyedRateLimiter(50, 100)

	execSvc := execution.New(st, clk, bus)
	execSvc.TimeoutCheckInterval = time.Duration(cfg.ExecutionTimeoutCheckIntervalSeconds) * time.Second

	ingestSvc := ingestion.New(st, clk, bus, execSvc, ingestion.Options{
		MaxBatchSize:       cfg.IngestionMaxBatchSize,
		MaxQueueSize:       cfg.IngestionMaxQueueSize,
		ProcessingInterval: time.Duration(cfg.IngestionProcessingIntervalMs) * time.Millisecond,
		EnqueueDeadline:    time.Duration(cfg.IngestionEnqueueDeadlineMs) * time.Millisecond,
	})

	hbSvc := heartbeat.New(st, clk, bus)
	hbSvc.SweepInterval = time.Duration(cfg.ServerHeartbeatTimeoutSeconds) * time.Second / 2

	localChannel := notifications.NewLocalChannel(notifications.NewDefaultManager())
	router := notifications.NewRouter([]notifications.NotificationChannel{localChannel})
	dispatcher := notifications.NewDispatcher(router)
	alertSvc := alerts.New(st, clk, bus, dispatcher)

	dashSvc := dashboard.New(st, clk, cfg.DashboardStatsCacheTTLSeconds)

	retentionSvc := retention.New(st, clk, retention.Policy{
		DefaultDays:    cfg.RetentionDefaultDays,
		ErrorDays:      cfg.RetentionErrorDays,
		CriticalDays:   cfg.RetentionCriticalDays,
		BatchSize:      cfg.RetentionBatchSize,
		CleanupTimeUTC: cfg.RetentionCleanupTimeUTC,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go ingestSvc.RunLoop(ctx)
	go execSvc.RunLoop(ctx)
	go hbSvc.RunLoop(ctx)
	go alertSvc.RunLoop(ctx, time.Duration(cfg.AlertEvaluationIntervalSeconds)*time.Second)
	go dashSvc.RunLoop(ctx, 0)

	stopRetentionCron, err := retentionSvc.Start(ctx)
	if err != nil {
		return fmt.Errorf("start retention scheduler: %w", err)
	}
	defer stopRetentionCron()

	stopBridge := bridgeToNATS(cfg.NATSURL, bus)
	defer stopBridge()

	mux := httpapi.NewRouter(httpapi.Dependencies{
		Authenticator: authenticator,
		RateLimiter:   limiter,
		Clock:         clk,
		Logs:          httpapi.NewLogStore(ingestSvc, st),
		Jobs:          st,
		Executions:    execSvc,
		Servers:       hbSvc,
		Alerts:        alertSvc,
		Dashboard:     dashSvc,
		Retention:     retentionSvc,
		Realtime:      hub,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.HandlerTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.HandlerTimeoutSeconds) * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("fleetwatchd: starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- err
			return
		}
		serveErrCh <- nil
	}()

	waitForHealthy(cfg.HTTPPort, 2*time.Second)
	if err := mgr.WritePIDFile(os.Getpid(), cfg.HTTPPort, ""); err != nil {
		log.Warn().Err(err).Msg("fleetwatchd: failed to write PID file")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

waitLoop:
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if err := snapshot.RefreshCache(fs); err != nil {
					log.Error().Err(err).Msg("fleetwatchd: config reload failed, keeping previous snapshot")
				} else {
					log.Info().Msg("fleetwatchd: configuration snapshot refreshed")
				}
				continue
			}
			log.Info().Str("signal", sig.String()).Msg("fleetwatchd: shutdown signal received")
			break waitLoop
		case err := <-serveErrCh:
			if err != nil {
				log.Error().Err(err).Msg("fleetwatchd: HTTP server failed")
			}
			break waitLoop
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.MaintenanceOperationTimeoutSeconds)*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("fleetwatchd: HTTP shutdown error")
	}

	if err := mgr.RemovePIDFile(); err != nil {
		log.Warn().Err(err).Msg("fleetwatchd: failed to remove PID file")
	}

	log.Info().Msg("fleetwatchd: stopped")
	return nil
}

// waitForHealthy polls /healthz until it answers 200 or the deadline
// passes, so the PID file is only written once the listener is
// actually accepting connections, mirroring cmd/cliaimonitor/main.go's
// bind-then-write-PID-file ordering.
func waitForHealthy(port int, timeout time.Duration) {
	client := &http.Client{Timeout: 200 * time.Millisecond}
	deadline := time.Now().Add(timeout)
	url := fmt.Sprintf("http://127.0.0.1:%d/healthz", port)
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(25 * time.Millisecond)
	}
	log.Warn().Int("port", port).Msg("fleetwatchd: health check did not succeed before timeout, continuing anyway")
}

// bridgeToNATS forwards every Bus message to NATS under a
// "fleetwatch.<topic>" subject, satisfying internal/realtime's own doc
// comment ("via internal/nats, to other processes"). A dial failure is
// logged and treated as a no-op bridge: the in-process Bus still serves
// local websocket subscribers regardless of NATS availability.
func bridgeToNATS(url string, bus *realtime.Bus) func() {
	if url == "" {
		return func() {}
	}
	client, err := natsbridge.NewClient(url)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("fleetwatchd: NATS bridge disabled, dial failed")
		return func() {}
	}

	ch, unsubscribe := bus.Subscribe()
	go func() {
		for msg := range ch {
			subject := "fleetwatch." + msg.Topic
			if err := client.PublishJSON(subject, msg); err != nil {
				telemetry.RecordWebsocketDropped(msg.Topic)
				log.Debug().Err(err).Str("subject", subject).Msg("fleetwatchd: NATS publish failed")
			}
		}
	}()

	return func() {
		unsubscribe()
		client.Close()
	}
}
