package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, PlaceholderAPIKey, cfg.APIKey)
	assert.Equal(t, PlaceholderAppKey, cfg.AppKey)
	assert.Equal(t, "luigi", cfg.MetricNamespace)
	assert.Empty(t, cfg.DefaultEventTags)
	assert.Empty(t, cfg.Environment)
	assert.Equal(t, BackendAPI, cfg.Backend.Kind)
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 1024, cfg.Dispatch.QueueSize)
	assert.Equal(t, 1, cfg.Dispatch.Workers)
	assert.Equal(t, "task.lifecycle", cfg.NATS.SubjectPrefix)
	assert.Equal(t, "@every 1h", cfg.Journal.PruneSchedule)

	// Placeholder credentials are never valid for the Datadog backends.
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
api_key: real-api-key
app_key: real-app-key
default_event_tags: "team:data,tier:1"
environment: prod
metric_namespace: custom
backend:
  kind: dogstatsd
  statsd_addr: 10.0.0.1:8125
dispatch:
  queue_size: 16
  workers: 2
journal:
  path: /tmp/journal.db
  retention: 24h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "real-api-key", cfg.APIKey)
	assert.Equal(t, "real-app-key", cfg.AppKey)
	assert.Equal(t, "team:data,tier:1", cfg.DefaultEventTags)
	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, "custom", cfg.MetricNamespace)
	assert.Equal(t, BackendDogStatsd, cfg.Backend.Kind)
	assert.Equal(t, "10.0.0.1:8125", cfg.Backend.StatsdAddr)
	assert.Equal(t, 16, cfg.Dispatch.QueueSize)
	assert.Equal(t, 2, cfg.Dispatch.Workers)
	assert.Equal(t, 24*time.Hour, cfg.Journal.Retention)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
app_key: real-app-key
backend:
  kind: api
`)
	t.Setenv("TASK_TELEMETRY_API_KEY", "from-env")
	t.Setenv("TASK_TELEMETRY_METRIC_NAMESPACE", "envns")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, "envns", cfg.MetricNamespace)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.APIKey = "key"
		cfg.AppKey = "app"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "Valid",
			mutate: func(*Config) {},
		},
		{
			name:    "Missing API Key",
			mutate:  func(c *Config) { c.APIKey = "" },
			wantErr: true,
		},
		{
			name:    "Placeholder App Key",
			mutate:  func(c *Config) { c.AppKey = PlaceholderAppKey },
			wantErr: true,
		},
		{
			name: "Inmem Without Credentials",
			mutate: func(c *Config) {
				c.Backend.Kind = BackendInmem
				c.APIKey = ""
				c.AppKey = ""
			},
		},
		{
			name:    "Unknown Backend",
			mutate:  func(c *Config) { c.Backend.Kind = "carrier-pigeon" },
			wantErr: true,
		},
		{
			name:    "Empty Namespace",
			mutate:  func(c *Config) { c.MetricNamespace = "" },
			wantErr: true,
		},
		{
			name:    "Unknown Collector",
			mutate:  func(c *Config) { c.Collector = "prometheus" },
			wantErr: true,
		},
		{
			name:    "Zero Queue",
			mutate:  func(c *Config) { c.Dispatch.QueueSize = 0 },
			wantErr: true,
		},
		{
			name: "Host Stats Without Interval",
			mutate: func(c *Config) {
				c.HostStats.Enabled = true
				c.HostStats.Interval = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
