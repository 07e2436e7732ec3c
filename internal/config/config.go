package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is resolved in three layers: built-in defaults, then the optional
// YAML file, then MAILGOAT_* environment variables. Env wins.
type Config struct {
	// ----------------------------
	// Transport
	// ----------------------------
	Transport  string `envconfig:"TRANSPORT" yaml:"transport"` // "api" or "smtp"
	APIBaseURL string `envconfig:"API_BASE_URL" yaml:"api_base_url"`
	APIKey     string `envconfig:"API_KEY" yaml:"api_key"`

	SMTPHost     string `envconfig:"SMTP_HOST" yaml:"smtp_host"`
	SMTPPort     int    `envconfig:"SMTP_PORT" yaml:"smtp_port"`
	SMTPUser     string `envconfig:"SMTP_USER" yaml:"smtp_user"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" yaml:"smtp_password"`
	SMTPFrom     string `envconfig:"SMTP_FROM" yaml:"smtp_from"`

	// ----------------------------
	// Dispatch
	// ----------------------------
	Concurrency int `envconfig:"CONCURRENCY" yaml:"concurrency"`
	RateLimit   int `envconfig:"RATE_LIMIT" yaml:"rate_limit"` // client-side sends/sec; 0 disables

	// ----------------------------
	// State store
	// ----------------------------
	StoreDriver string `envconfig:"STORE_DRIVER" yaml:"store_driver"` // sqlite | postgres | memory
	StorePath   string `envconfig:"STORE_PATH" yaml:"store_path"`
	DatabaseURL string `envconfig:"DATABASE_URL" yaml:"database_url"`

	// ----------------------------
	// Scheduler
	// ----------------------------
	SchedulerInterval Duration `envconfig:"SCHEDULER_INTERVAL" yaml:"scheduler_interval"`

	// ----------------------------
	// Serve mode
	// ----------------------------
	APIPort     string `envconfig:"API_PORT" yaml:"api_port"`
	MetricsPort string `envconfig:"METRICS_PORT" yaml:"metrics_port"`

	// ----------------------------
	// Logging
	// ----------------------------
	Development bool `envconfig:"DEVELOPMENT" yaml:"development"`
}

// Duration is a time.Duration that accepts "30s" style values from both YAML
// and environment variables.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value, err)
	}
	*d = Duration(parsed)
	return nil
}

func defaults() Config {
	return Config{
		Transport:         "api",
		APIBaseURL:        "https://api.mailgoat.ai/v1",
		SMTPHost:          "localhost",
		SMTPPort:          1025,
		SMTPFrom:          "noreply@mailgoat.ai",
		Concurrency:       5,
		StoreDriver:       "sqlite",
		StorePath:         stateDBPath(),
		SchedulerInterval: Duration(30 * time.Second),
		APIPort:           "8080",
		MetricsPort:       "9090",
	}
}

// Load resolves configuration. filePath may be empty; a missing file is an
// error only when one was explicitly requested.
func Load(filePath string) (*Config, error) {
	cfg := defaults()

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("mailgoat", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Transport {
	case "api", "smtp":
	default:
		return fmt.Errorf("transport must be api or smtp, got %q", c.Transport)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be > 0")
	}
	if c.Transport == "smtp" && c.SMTPHost == "" {
		return fmt.Errorf("smtp_host must be set for smtp transport")
	}
	if c.StoreDriver == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("database_url must be set for postgres store")
	}
	return nil
}

func stateDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mailgoat.db"
	}
	return home + "/.mailgoat/state.db"
}
