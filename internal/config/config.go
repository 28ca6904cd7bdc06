// Package config loads and validates monitor configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Pool      PoolConfig      `mapstructure:"pool"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Probe     ProbeConfig     `mapstructure:"probe"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Seed      SeedConfig      `mapstructure:"seed"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls tracing setup.
type TelemetryConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
}

// MonitorConfig governs the dispatch cycle.
type MonitorConfig struct {
	CycleInterval time.Duration `mapstructure:"cycle_interval"`
	Workers       int           `mapstructure:"workers"`
	DrainTimeout  time.Duration `mapstructure:"drain_timeout"`
	CheckTimeout  time.Duration `mapstructure:"check_timeout"`
	AllowedHosts  []string      `mapstructure:"allowed_hosts"`
}

// SchedulerConfig tunes tier intervals and demotion thresholds.
type SchedulerConfig struct {
	Unit          time.Duration `mapstructure:"unit"`
	LowAfter      int           `mapstructure:"low_after"`
	ColdAfter     int           `mapstructure:"cold_after"`
	VolatileFlips int           `mapstructure:"volatile_flips"`
}

// PoolConfig sizes the rendering session pool.
type PoolConfig struct {
	Capacity       int           `mapstructure:"capacity"`
	WarmSize       int           `mapstructure:"warm_size"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	IdleWait       time.Duration `mapstructure:"idle_wait"`
	PingTimeout    time.Duration `mapstructure:"ping_timeout"`
	ResetTimeout   time.Duration `mapstructure:"reset_timeout"`
}

// HeadlessConfig configures the chromedp sessions.
type HeadlessConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	ReadyTimeout      time.Duration `mapstructure:"ready_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	ExecPath          string        `mapstructure:"exec_path"`
	DisableImages     bool          `mapstructure:"disable_images"`
	NoSandbox         bool          `mapstructure:"no_sandbox"`
}

// ProbeConfig controls the reachability probe.
type ProbeConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// CacheConfig controls the snapshot and reachability caches.
type CacheConfig struct {
	SnapshotTTL     time.Duration `mapstructure:"snapshot_ttl"`
	ReachabilityTTL time.Duration `mapstructure:"reachability_ttl"`
	MaxEntries      int           `mapstructure:"max_entries"`
}

// DetectorConfig is injected into the detection pipeline at startup.
type DetectorConfig struct {
	Keyword            string   `mapstructure:"keyword"`
	SelectorHint       string   `mapstructure:"selector_hint"`
	UnavailablePhrases []string `mapstructure:"unavailable_phrases"`
	Proximity          int      `mapstructure:"proximity"`
}

// RateLimitConfig throttles renders per host. Zero RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// StorageConfig selects the target store.
type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	DSN        string `mapstructure:"dsn"`
	SQLitePath string `mapstructure:"sqlite_path"`
	MaxConns   int32  `mapstructure:"max_conns"`
}

// ArchiveConfig selects where rendered pages are kept when a target becomes available.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	BaseDir string `mapstructure:"base_dir"`
	Prefix  string `mapstructure:"prefix"`
}

// NotifyConfig selects the notification channel.
type NotifyConfig struct {
	Type       string        `mapstructure:"type"`
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// SeedConfig points at an optional YAML file of targets to import on start.
type SeedConfig struct {
	File string `mapstructure:"file"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RESTOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.service_name", "restock-watch")
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("monitor.cycle_interval", "30s")
	v.SetDefault("monitor.workers", 5)
	v.SetDefault("monitor.drain_timeout", "30s")
	v.SetDefault("monitor.check_timeout", "60s")
	v.SetDefault("scheduler.unit", "1m")
	v.SetDefault("scheduler.low_after", 10)
	v.SetDefault("scheduler.cold_after", 20)
	v.SetDefault("scheduler.volatile_flips", 3)
	v.SetDefault("pool.capacity", 3)
	v.SetDefault("pool.warm_size", 3)
	v.SetDefault("pool.acquire_timeout", "15s")
	v.SetDefault("pool.idle_wait", "500ms")
	v.SetDefault("pool.ping_timeout", "2s")
	v.SetDefault("pool.reset_timeout", "5s")
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("headless.navigation_timeout", "10s")
	v.SetDefault("headless.ready_timeout", "5s")
	v.SetDefault("headless.settle_delay", "500ms")
	v.SetDefault("headless.disable_images", true)
	v.SetDefault("probe.timeout", "3s")
	v.SetDefault("probe.user_agent", "restock-watch/0.1")
	v.SetDefault("cache.snapshot_ttl", "30s")
	v.SetDefault("cache.reachability_ttl", "60s")
	v.SetDefault("cache.max_entries", 100)
	v.SetDefault("detector.keyword", "Add to Bag")
	v.SetDefault("detector.unavailable_phrases", []string{"out of stock", "sold out", "notify me", "unavailable"})
	v.SetDefault("detector.proximity", 200)
	v.SetDefault("ratelimit.rps", 0)
	v.SetDefault("ratelimit.burst", 1)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.sqlite_path", "restock-watch.db")
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.prefix", "snapshots")
	v.SetDefault("notify.type", "log")
	v.SetDefault("notify.timeout", "10s")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.validateCore(); err != nil {
		return err
	}
	return c.validateBackends()
}

func (c Config) validateCore() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Monitor.CycleInterval <= 0 {
		return fmt.Errorf("monitor.cycle_interval must be > 0")
	}
	if c.Monitor.Workers <= 0 {
		return fmt.Errorf("monitor.workers must be > 0")
	}
	if c.Scheduler.Unit <= 0 {
		return fmt.Errorf("scheduler.unit must be > 0")
	}
	if c.Scheduler.LowAfter <= 0 || c.Scheduler.ColdAfter <= c.Scheduler.LowAfter {
		return fmt.Errorf("scheduler.cold_after must be greater than scheduler.low_after > 0")
	}
	if c.Pool.Capacity <= 0 {
		return fmt.Errorf("pool.capacity must be > 0")
	}
	if c.Pool.WarmSize < 0 || c.Pool.WarmSize > c.Pool.Capacity {
		return fmt.Errorf("pool.warm_size must be between 0 and pool.capacity")
	}
	if c.Pool.AcquireTimeout <= 0 {
		return fmt.Errorf("pool.acquire_timeout must be > 0")
	}
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("probe.timeout must be > 0")
	}
	if c.Cache.SnapshotTTL <= 0 || c.Cache.ReachabilityTTL <= 0 {
		return fmt.Errorf("cache.snapshot_ttl and cache.reachability_ttl must be > 0")
	}
	if strings.TrimSpace(c.Detector.Keyword) == "" {
		return fmt.Errorf("detector.keyword is required")
	}
	return nil
}

func (c Config) validateBackends() error {
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	switch c.Archive.Backend {
	case "", "none", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir is required for the local archive")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	switch c.Notify.Type {
	case "log":
	case "webhook":
		if c.Notify.WebhookURL == "" {
			return fmt.Errorf("notify.webhook_url is required for webhook notifications")
		}
	case "pubsub":
		if c.PubSub.ProjectID == "" || c.PubSub.Topic == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic are required for pubsub notifications")
		}
	default:
		return fmt.Errorf("notify.type %q is not supported", c.Notify.Type)
	}
	return nil
}
