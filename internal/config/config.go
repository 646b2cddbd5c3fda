// Package config loads the process-scoped configuration snapshot named
// in spec.md §6 and Design Notes §9 ("Configuration is a process-scoped
// snapshot refreshable on demand... load-on-start, reload-on-
// RefreshCache call. No ad-hoc singletons."), grounded on
// CrlsMrls-dummybox's pflag+viper composition.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config mirrors every key listed in spec.md §6 "Configuration keys",
// plus the connection/listen settings a runnable service needs.
type Config struct {
	HTTPPort   int    `mapstructure:"http-port"`
	DBPath     string `mapstructure:"db-path"`
	LogLevel   string `mapstructure:"log-level"`
	JWTSecret  string `mapstructure:"jwt-secret"`
	NATSURL    string `mapstructure:"nats-url"`

	RetentionDefaultDays     int    `mapstructure:"retention-default-days"`
	RetentionErrorDays       int    `mapstructure:"retention-error-days"`
	RetentionCriticalDays    int    `mapstructure:"retention-critical-days"`
	RetentionCleanupTimeUTC  string `mapstructure:"retention-cleanup-time-utc"`
	RetentionBatchSize       int    `mapstructure:"retention-batch-size"`

	IngestionMaxBatchSize        int `mapstructure:"ingestion-max-batch-size"`
	IngestionMaxQueueSize        int `mapstructure:"ingestion-max-queue-size"`
	IngestionProcessingIntervalMs int `mapstructure:"ingestion-processing-interval-ms"`
	IngestionEnqueueDeadlineMs   int `mapstructure:"ingestion-enqueue-deadline-ms"`

	DashboardStatsCacheTTLSeconds int `mapstructure:"dashboard-stats-cache-ttl-seconds"`

	AlertEvaluationIntervalSeconds int `mapstructure:"alert-evaluation-interval-seconds"`
	AlertDefaultThrottleMinutes    int `mapstructure:"alert-default-throttle-minutes"`

	ServerHeartbeatTimeoutSeconds int `mapstructure:"server-heartbeat-timeout-seconds"`

	ExecutionTimeoutCheckIntervalSeconds int `mapstructure:"execution-timeout-check-interval-seconds"`

	SystemMaintenanceMode bool `mapstructure:"system-maintenance-mode"`

	StoreOperationTimeoutSeconds    int `mapstructure:"store-operation-timeout-seconds"`
	MaintenanceOperationTimeoutSeconds int `mapstructure:"maintenance-operation-timeout-seconds"`
	HandlerTimeoutSeconds           int `mapstructure:"handler-timeout-seconds"`
	IngestHandlerTimeoutSeconds     int `mapstructure:"ingest-handler-timeout-seconds"`
}

// AbsoluteMaxBatchSize is the hard cap spec.md §4.C.1 places on batch ingest.
const AbsoluteMaxBatchSize = 10000

func defaults(v *viper.Viper) {
	v.SetDefault("http-port", 8080)
	v.SetDefault("db-path", "data/fleetwatch.db")
	v.SetDefault("log-level", "info")
	v.SetDefault("jwt-secret", "")
	v.SetDefault("nats-url", "nats://127.0.0.1:4222")

	v.SetDefault("retention-default-days", 90)
	v.SetDefault("retention-error-days", 180)
	v.SetDefault("retention-critical-days", 365)
	v.SetDefault("retention-cleanup-time-utc", "02:00")
	v.SetDefault("retention-batch-size", 10000)

	v.SetDefault("ingestion-max-batch-size", 1000)
	v.SetDefault("ingestion-max-queue-size", 50000)
	v.SetDefault("ingestion-processing-interval-ms", 100)
	v.SetDefault("ingestion-enqueue-deadline-ms", 100)

	v.SetDefault("dashboard-stats-cache-ttl-seconds", 30)

	v.SetDefault("alert-evaluation-interval-seconds", 30)
	v.SetDefault("alert-default-throttle-minutes", 15)

	v.SetDefault("server-heartbeat-timeout-seconds", 180)

	v.SetDefault("execution-timeout-check-interval-seconds", 60)

	v.SetDefault("system-maintenance-mode", false)

	v.SetDefault("store-operation-timeout-seconds", 30)
	v.SetDefault("maintenance-operation-timeout-seconds", 300)
	v.SetDefault("handler-timeout-seconds", 30)
	v.SetDefault("ingest-handler-timeout-seconds", 5)
}

func bindFlags(fs *pflag.FlagSet) {
	fs.Int("http-port", 8080, "HTTP API listen port")
	fs.String("db-path", "data/fleetwatch.db", "Path to the SQLite store file")
	fs.String("log-level", "info", "Logging level (trace, debug, info, warn, error)")
	fs.String("jwt-secret", "", "HMAC secret for bearer access tokens")
	fs.String("nats-url", "nats://127.0.0.1:4222", "NATS server URL for the real-time fan-out bridge")
	fs.String("config-file", "", "Path to a YAML config file. Can also be set with FLEETWATCH_CONFIG_FILE.")

	fs.Int("retention-default-days", 90, "Retention.DefaultDays")
	fs.Int("retention-error-days", 180, "Retention.ErrorDays")
	fs.Int("retention-critical-days", 365, "Retention.CriticalDays")
	fs.String("retention-cleanup-time-utc", "02:00", "Retention.CleanupTimeUtc (HH:MM, UTC)")
	fs.Int("retention-batch-size", 10000, "Retention batch size")

	fs.Int("ingestion-max-batch-size", 1000, "Ingestion.MaxBatchSize")
	fs.Int("ingestion-max-queue-size", 50000, "Ingestion.MaxQueueSize")
	fs.Int("ingestion-processing-interval-ms", 100, "Ingestion.ProcessingIntervalMs")

	fs.Int("dashboard-stats-cache-ttl-seconds", 30, "Dashboard.StatsCacheTtlSeconds")

	fs.Int("alert-evaluation-interval-seconds", 30, "Alert.EvaluationIntervalSeconds")
	fs.Int("alert-default-throttle-minutes", 15, "Alert.DefaultThrottleMinutes")

	fs.Int("server-heartbeat-timeout-seconds", 180, "Server.HeartbeatTimeoutSeconds")

	fs.Bool("system-maintenance-mode", false, "System.MaintenanceMode")
}

// NewFlagSet returns a pflag.FlagSet pre-populated with every flag
// bindFlags defines, for callers (cmd/fleetwatchd) that need to
// Parse(os.Args[1:]) before handing the set to Load.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	bindFlags(fs)
	return fs
}

// Load builds a Config from flags, environment (FLEETWATCH_* prefix),
// an optional YAML file, and defaults, in that descending precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	defaults(v)

	if fs == nil {
		fs = pflag.NewFlagSet("fleetwatch", pflag.ContinueOnError)
		bindFlags(fs)
		if err := fs.Parse(nil); err != nil {
			return nil, fmt.Errorf("parse flags: %w", err)
		}
	}
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	v.SetEnvPrefix("FLEETWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cf := v.GetString("config-file"); cf != "" {
		v.SetConfigFile(cf)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the cross-field invariants a misconfigured deployment
// would otherwise trip over at runtime.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port out of range: %d", c.HTTPPort)
	}
	if c.IngestionMaxBatchSize <= 0 || c.IngestionMaxBatchSize > AbsoluteMaxBatchSize {
		return fmt.Errorf("ingestion-max-batch-size must be in (0, %d]", AbsoluteMaxBatchSize)
	}
	if c.IngestionMaxQueueSize <= 0 {
		return fmt.Errorf("ingestion-max-queue-size must be positive")
	}
	if _, err := c.CleanupTime(); err != nil {
		return fmt.Errorf("retention-cleanup-time-utc: %w", err)
	}
	return nil
}

// CleanupTime parses RetentionCleanupTimeUTC ("HH:MM") into hour/minute.
func (c *Config) CleanupTime() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.RetentionCleanupTimeUTC)
	if err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q: %w", c.RetentionCleanupTimeUTC, err)
	}
	return t.Hour(), t.Minute(), nil
}

// Snapshot is a process-scoped, hot-swappable holder for *Config,
// implementing the "reload-on-RefreshCache call, no ad-hoc singletons"
// rule of Design Notes §9.
type Snapshot struct {
	mu  sync.RWMutex
	cfg *Config
}

func NewSnapshot(cfg *Config) *Snapshot {
	return &Snapshot{cfg: cfg}
}

func (s *Snapshot) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// RefreshCache reloads configuration from flags/env/file and atomically
// swaps it in, per spec.md Design Notes §9.
func (s *Snapshot) RefreshCache(fs *pflag.FlagSet) error {
	cfg, err := Load(fs)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}
