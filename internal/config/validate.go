package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/adhocore/gronx"

	"github.com/sh1vu7/secreteshare/internal/store"
)

// Validate checks the rules the schema cannot express. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Bot.Username == "" {
		add("bot.username is required")
	}
	if _, err := store.ParseDialect(c.Database.Driver); err != nil {
		add("database.driver: %v", err)
	}
	if c.Database.DSN == "" {
		add("database.dsn is required")
	}
	if c.Server.Address == "" {
		add("server.address is required")
	}
	if c.Server.ViewRate.RPS <= 0 || c.Server.ViewRate.Burst <= 0 {
		add("server.view_rate needs a positive rps and burst")
	}

	switch c.Transport.Kind {
	case "recorder":
	case "webhook":
		if c.Transport.Webhook.URL == "" {
			add("transport.webhook.url is required for the webhook transport")
		}
	default:
		add("transport.kind: unknown transport %q", c.Transport.Kind)
	}

	switch c.Sessions.Backend {
	case "memory":
	case "pebble":
		if c.Sessions.Path == "" {
			add("sessions.path is required for the pebble backend")
		}
	default:
		add("sessions.backend: unknown backend %q", c.Sessions.Backend)
	}

	if c.Flow.AskTimeout <= 0 {
		add("flow.ask_timeout must be positive")
	}
	if c.Flow.MaxMessageLength <= 0 {
		add("flow.max_message_length must be positive")
	}

	if c.Shares.PageSize <= 0 {
		add("shares.page_size must be positive")
	}
	if !gronx.New().IsValid(c.Shares.SweepCron) {
		add("shares.sweep_cron: %q is not a valid cron expression", c.Shares.SweepCron)
	}

	if c.Scheduler.MisfireGrace < c.Scheduler.PollInterval {
		add("scheduler.misfire_grace (%s) is shorter than scheduler.poll_interval (%s)",
			c.Scheduler.MisfireGrace.Duration(), c.Scheduler.PollInterval.Duration())
	}

	errs = append(errs, c.Tiers.Free.validate("tiers.free")...)
	errs = append(errs, c.Tiers.Premium.validate("tiers.premium")...)

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		add("logging.level: %v", err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		add("logging.format must be text or json")
	}

	return errors.Join(errs...)
}

func (t TierConfig) validate(path string) []error {
	var errs []error
	if t.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("%s.max_file_size must be positive", path))
	}
	if len(t.DestructTimers) == 0 {
		errs = append(errs, fmt.Errorf("%s.destruct_timers is empty", path))
	}
	for i, m := range t.DestructTimers {
		if m < 0 {
			errs = append(errs, fmt.Errorf("%s.destruct_timers[%d] is negative", path, i))
		}
		if slices.Index(t.DestructTimers, m) != i {
			errs = append(errs, fmt.Errorf("%s.destruct_timers lists %d twice", path, m))
		}
	}
	if len(t.MaxViews) == 0 {
		errs = append(errs, fmt.Errorf("%s.max_views is empty", path))
	}
	if t.MaxActiveShares < 0 {
		errs = append(errs, fmt.Errorf("%s.max_active_shares is negative", path))
	}
	return errs
}
