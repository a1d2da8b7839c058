package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// PlaceholderAPIKey is the default api_key. It is never accepted by Validate.
	PlaceholderAPIKey = "dummy_api_key"
	// PlaceholderAppKey is the default app_key. It is never accepted by Validate.
	PlaceholderAppKey = "dummy_app_key"

	DefaultMetricNamespace = "luigi"

	envPrefix = "TASK_TELEMETRY"
)

// Backend kinds
const (
	BackendAPI       = "api"
	BackendDogStatsd = "dogstatsd"
	BackendInmem     = "inmem"
	BackendNone      = "none"
)

// Collector kinds
const (
	CollectorDatadog = "datadog"
	CollectorNone    = "none"
)

// Config is the complete bridge configuration. It is loaded once at startup
// and handed to constructors by value; nothing mutates it afterwards.
type Config struct {
	APIKey           string `mapstructure:"api_key"`
	AppKey           string `mapstructure:"app_key"`
	DefaultEventTags string `mapstructure:"default_event_tags"`
	Environment      string `mapstructure:"environment"`
	MetricNamespace  string `mapstructure:"metric_namespace"`
	Collector        string `mapstructure:"collector"`
	MetricsAddr      string `mapstructure:"metrics_addr"`

	Backend   BackendConfig   `mapstructure:"backend"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Journal   JournalConfig   `mapstructure:"journal"`
	HostStats HostStatsConfig `mapstructure:"host_stats"`
	Log       LogConfig       `mapstructure:"log"`
}

// BackendConfig selects and tunes the telemetry backend client
type BackendConfig struct {
	Kind       string        `mapstructure:"kind"`
	APIURL     string        `mapstructure:"api_url"`
	StatsdAddr string        `mapstructure:"statsd_addr"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryMax   int           `mapstructure:"retry_max"`
}

// DispatchConfig sizes the background emission lane
type DispatchConfig struct {
	QueueSize int `mapstructure:"queue_size"`
	Workers   int `mapstructure:"workers"`
}

// NATSConfig describes the lifecycle notification feed
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Stream        string        `mapstructure:"stream"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	Durable       string        `mapstructure:"durable"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// JournalConfig configures the optional emission journal
type JournalConfig struct {
	Path          string        `mapstructure:"path"`
	Retention     time.Duration `mapstructure:"retention"`
	PruneSchedule string        `mapstructure:"prune_schedule"`
}

// HostStatsConfig configures host gauges
type HostStatsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Development bool `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", PlaceholderAPIKey)
	v.SetDefault("app_key", PlaceholderAppKey)
	v.SetDefault("default_event_tags", "")
	v.SetDefault("environment", "")
	v.SetDefault("metric_namespace", DefaultMetricNamespace)
	v.SetDefault("collector", CollectorDatadog)
	v.SetDefault("metrics_addr", ":9102")

	v.SetDefault("backend.kind", BackendAPI)
	v.SetDefault("backend.api_url", "https://api.datadoghq.com")
	v.SetDefault("backend.statsd_addr", "127.0.0.1:8125")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("backend.retry_max", 3)

	v.SetDefault("dispatch.queue_size", 1024)
	v.SetDefault("dispatch.workers", 1)

	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.stream", "TASK_LIFECYCLE")
	v.SetDefault("nats.subject_prefix", "task.lifecycle")
	v.SetDefault("nats.durable", "task-telemetry")
	v.SetDefault("nats.max_reconnects", 60)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)

	v.SetDefault("journal.path", "")
	v.SetDefault("journal.retention", 7*24*time.Hour)
	v.SetDefault("journal.prune_schedule", "@every 1h")

	v.SetDefault("host_stats.enabled", false)
	v.SetDefault("host_stats.interval", 30*time.Second)

	v.SetDefault("log.development", false)
}

// Default returns the configuration with every option at its default value.
// The placeholder credentials make it fail Validate for the Datadog backends.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return cfg
}

// Load reads the configuration from path, or from ./config/config.yaml when path
// is empty, applies TASK_TELEMETRY_* environment overrides and validates the result.
// A missing default config file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("%w: failed to read config file: %v", ErrConfiguration, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration and returns an error wrapping ErrConfiguration
func (c Config) Validate() error {
	switch c.Backend.Kind {
	case BackendAPI, BackendDogStatsd:
		if c.APIKey == "" || c.APIKey == PlaceholderAPIKey {
			return fmt.Errorf("%w: api_key is required", ErrConfiguration)
		}
		if c.AppKey == "" || c.AppKey == PlaceholderAppKey {
			return fmt.Errorf("%w: app_key is required", ErrConfiguration)
		}
	case BackendInmem, BackendNone:
	default:
		return fmt.Errorf("%w: unknown backend kind %q", ErrConfiguration, c.Backend.Kind)
	}

	if c.Backend.Kind == BackendAPI && c.Backend.APIURL == "" {
		return fmt.Errorf("%w: backend.api_url is required", ErrConfiguration)
	}
	if c.Backend.Kind == BackendDogStatsd && c.Backend.StatsdAddr == "" {
		return fmt.Errorf("%w: backend.statsd_addr is required", ErrConfiguration)
	}
	if c.Backend.RetryMax < 0 {
		return fmt.Errorf("%w: backend.retry_max must not be negative", ErrConfiguration)
	}

	if c.MetricNamespace == "" {
		return fmt.Errorf("%w: metric_namespace must not be empty", ErrConfiguration)
	}

	switch c.Collector {
	case CollectorDatadog, CollectorNone:
	default:
		return fmt.Errorf("%w: unknown collector %q", ErrConfiguration, c.Collector)
	}

	if c.Dispatch.QueueSize <= 0 {
		return fmt.Errorf("%w: dispatch.queue_size must be positive", ErrConfiguration)
	}
	if c.Dispatch.Workers <= 0 {
		return fmt.Errorf("%w: dispatch.workers must be positive", ErrConfiguration)
	}

	if c.HostStats.Enabled && c.HostStats.Interval <= 0 {
		return fmt.Errorf("%w: host_stats.interval must be positive", ErrConfiguration)
	}
	if c.Journal.Path != "" && c.Journal.Retention <= 0 {
		return fmt.Errorf("%w: journal.retention must be positive", ErrConfiguration)
	}

	return nil
}
