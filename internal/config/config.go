// Package config loads secretshare.yaml, applies SECRETSHARE_* environment
// overrides and converts the result into component options.
//
// Loading order: built-in defaults, then the YAML file (checked against the
// embedded CUE schema before decoding), then the environment. Validate runs
// last and checks what the schema cannot express.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sh1vu7/secreteshare/internal/account"
	"github.com/sh1vu7/secreteshare/internal/scheduler"
	"github.com/sh1vu7/secreteshare/internal/share"
)

// Config is the complete service configuration.
type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Flow      FlowConfig      `yaml:"flow"`
	Shares    SharesConfig    `yaml:"shares"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Tiers     TiersConfig     `yaml:"tiers"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BotConfig names the bot that deep links point at.
type BotConfig struct {
	Username string `yaml:"username"`
}

// DatabaseConfig selects the share store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite | postgres
	DSN    string `yaml:"dsn"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Address         string   `yaml:"address"`
	APIKeys         []string `yaml:"api_keys"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	ViewRate        struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"view_rate"`
}

// TransportConfig selects how messages reach users.
type TransportConfig struct {
	Kind    string `yaml:"kind"` // recorder | webhook
	Webhook struct {
		URL     string   `yaml:"url"`
		Token   string   `yaml:"token"`
		Timeout Duration `yaml:"timeout"`
	} `yaml:"webhook"`
}

// SessionsConfig selects the flow session store.
type SessionsConfig struct {
	Backend string `yaml:"backend"` // memory | pebble
	Path    string `yaml:"path"`
}

// FlowConfig tunes the share creation flow.
type FlowConfig struct {
	AskTimeout       Duration `yaml:"ask_timeout"`
	MaxMessageLength int      `yaml:"max_message_length"`
}

// SharesConfig tunes listings and the reconciliation sweep.
type SharesConfig struct {
	PageSize   int    `yaml:"page_size"`
	SweepCron  string `yaml:"sweep_cron"`
	SweepBatch int    `yaml:"sweep_batch"`
}

// SchedulerConfig mirrors scheduler.Options.
type SchedulerConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	MisfireGrace Duration `yaml:"misfire_grace"`
	MaxAttempts  int      `yaml:"max_attempts"`
	RetryBackoff Duration `yaml:"retry_backoff"`
	BatchSize    int      `yaml:"batch_size"`
	TaskTimeout  Duration `yaml:"task_timeout"`
}

// TiersConfig holds the limits of each tier.
type TiersConfig struct {
	Free    TierConfig `yaml:"free"`
	Premium TierConfig `yaml:"premium"`
}

// TierConfig is the YAML form of account.Limits.
type TierConfig struct {
	MaxFileSize     SizeBytes        `yaml:"max_file_size"`
	DestructTimers  []int            `yaml:"destruct_timers"`
	MaxViews        []share.MaxViews `yaml:"max_views"`
	DefaultMaxViews share.MaxViews   `yaml:"default_max_views"`
	MaxActiveShares int              `yaml:"max_active_shares"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// Default returns the built-in configuration.
func Default() *Config {
	limits := account.DefaultLimits()
	sched := scheduler.DefaultOptions()

	c := &Config{
		Bot:       BotConfig{Username: "SecretShareBot"},
		Database:  DatabaseConfig{Driver: "sqlite", DSN: "secretshare.db"},
		Transport: TransportConfig{Kind: "recorder"},
		Sessions:  SessionsConfig{Backend: "memory", Path: "sessions"},
		Flow: FlowConfig{
			AskTimeout:       Duration(5 * time.Minute),
			MaxMessageLength: 4000,
		},
		Shares: SharesConfig{PageSize: 5, SweepCron: "* * * * *", SweepBatch: 500},
		Scheduler: SchedulerConfig{
			PollInterval: Duration(sched.PollInterval),
			MisfireGrace: Duration(sched.MisfireGrace),
			MaxAttempts:  sched.MaxAttempts,
			RetryBackoff: Duration(sched.RetryBackoff),
			BatchSize:    sched.BatchSize,
			TaskTimeout:  Duration(sched.TaskTimeout),
		},
		Tiers: TiersConfig{
			Free:    tierConfig(limits[account.TierFree]),
			Premium: tierConfig(limits[account.TierPremium]),
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
	c.Server.Address = ":8080"
	c.Server.ShutdownTimeout = Duration(10 * time.Second)
	c.Server.ViewRate.RPS = 1
	c.Server.ViewRate.Burst = 5
	c.Transport.Webhook.Timeout = Duration(10 * time.Second)
	return c
}

func tierConfig(l account.Limits) TierConfig {
	return TierConfig{
		MaxFileSize:     SizeBytes(l.MaxFileSize),
		DestructTimers:  l.DestructTimerOptions,
		MaxViews:        l.MaxViewOptions,
		DefaultMaxViews: l.DefaultMaxViews,
		MaxActiveShares: l.MaxActiveShares,
	}
}

// Load reads the file at path over the defaults, then applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(path, data); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without consulting the environment.
func Parse(name string, data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(name, data); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(name string, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := CheckSchema(name, data); err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// Limits converts the tier sections into account limits.
func (c *Config) Limits() map[account.Tier]account.Limits {
	return map[account.Tier]account.Limits{
		account.TierFree:    c.Tiers.Free.limits(),
		account.TierPremium: c.Tiers.Premium.limits(),
	}
}

func (t TierConfig) limits() account.Limits {
	return account.Limits{
		MaxFileSize:          t.MaxFileSize.Int64(),
		DestructTimerOptions: t.DestructTimers,
		MaxViewOptions:       t.MaxViews,
		DefaultMaxViews:      t.DefaultMaxViews,
		MaxActiveShares:      t.MaxActiveShares,
	}
}

// SchedulerOptions converts the scheduler section.
func (c *Config) SchedulerOptions() scheduler.Options {
	s := c.Scheduler
	return scheduler.Options{
		PollInterval: s.PollInterval.Duration(),
		MisfireGrace: s.MisfireGrace.Duration(),
		MaxAttempts:  s.MaxAttempts,
		RetryBackoff: s.RetryBackoff.Duration(),
		BatchSize:    s.BatchSize,
		TaskTimeout:  s.TaskTimeout.Duration(),
	}
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Server.APIKeys = make([]string, len(c.Server.APIKeys))
	for i := range c.Server.APIKeys {
		out.Server.APIKeys[i] = "***"
	}
	if out.Transport.Webhook.Token != "" {
		out.Transport.Webhook.Token = "***"
	}
	if u, err := url.Parse(c.Database.DSN); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "***")
			out.Database.DSN = u.String()
		}
	}
	return &out
}
