package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "api", cfg.Transport)
	assert.Equal(t, "https://api.mailgoat.ai/v1", cfg.APIBaseURL)
	assert.Equal(t, 5, cfg.Concurrency)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, 30*time.Second, cfg.SchedulerInterval.Std())
	assert.Equal(t, "8080", cfg.APIPort)
	assert.Equal(t, "9090", cfg.MetricsPort)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailgoat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport: smtp
smtp_host: mail.internal
smtp_port: 587
concurrency: 12
scheduler_interval: 1m
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "smtp", cfg.Transport)
	assert.Equal(t, "mail.internal", cfg.SMTPHost)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, 12, cfg.Concurrency)
	assert.Equal(t, time.Minute, cfg.SchedulerInterval.Std())
	assert.Equal(t, "sqlite", cfg.StoreDriver, "unset keys keep their defaults")
}

func TestLoadEnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailgoat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("concurrency: 12\napi_key: from-file\n"), 0o644))

	t.Setenv("MAILGOAT_CONCURRENCY", "25")
	t.Setenv("MAILGOAT_API_KEY", "from-env")
	t.Setenv("MAILGOAT_SCHEDULER_INTERVAL", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Concurrency)
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, 45*time.Second, cfg.SchedulerInterval.Std())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad transport", func(c *Config) { c.Transport = "pigeon" }, "transport must be"},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, "concurrency must be"},
		{"smtp without host", func(c *Config) { c.Transport = "smtp"; c.SMTPHost = "" }, "smtp_host"},
		{"postgres without dsn", func(c *Config) { c.StoreDriver = "postgres" }, "database_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
