package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/sh1vu7/secreteshare/internal/account"
	"github.com/sh1vu7/secreteshare/internal/clock"
	"github.com/sh1vu7/secreteshare/internal/config"
	"github.com/sh1vu7/secreteshare/internal/flow"
	"github.com/sh1vu7/secreteshare/internal/lifecycle"
	"github.com/sh1vu7/secreteshare/internal/metrics"
	"github.com/sh1vu7/secreteshare/internal/scheduler"
	"github.com/sh1vu7/secreteshare/internal/store"
	"github.com/sh1vu7/secreteshare/internal/transport"
)

// app is the fully wired service.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	clock     clock.Clock
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	store     *store.Store
	transport transport.Transport
	accounts  *account.Service
	scheduler *scheduler.Scheduler
	engine    *lifecycle.Engine
	sessions  flow.SessionStore
	flows     *flow.Controller

	closers []io.Closer
}

// openStore opens the configured database with migrations applied.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	dialect, err := store.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, dialect, cfg.Database.DSN)
}

// openTransport builds the configured transport. The recorder keeps
// everything in memory and only suits local runs.
func openTransport(cfg *config.Config, log *slog.Logger) (transport.Transport, error) {
	switch cfg.Transport.Kind {
	case "webhook":
		wh := cfg.Transport.Webhook
		return transport.NewWebhook(transport.WebhookConfig{
			URL:     wh.URL,
			Token:   wh.Token,
			Timeout: wh.Timeout.Duration(),
		}, log)
	case "recorder", "":
		log.Warn("using the in-memory recorder transport; nothing reaches real users")
		return transport.NewRecorder(), nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport.Kind)
}

// openSessions builds the configured flow session store.
func openSessions(cfg *config.Config) (flow.SessionStore, io.Closer, error) {
	switch cfg.Sessions.Backend {
	case "pebble":
		s, err := flow.OpenPebbleStore(cfg.Sessions.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "memory", "":
		return flow.NewMemoryStore(), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown session backend %q", cfg.Sessions.Backend)
}

// newApp wires every component from cfg. The caller must Close the app.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		log:      log,
		clock:    clock.System{},
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = st
	a.closers = append(a.closers, st)

	if a.transport, err = openTransport(cfg, log); err != nil {
		a.Close()
		return nil, err
	}

	sessions, closer, err := openSessions(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open sessions: %w", err)
	}
	a.sessions = sessions
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	a.accounts = account.NewService(st, cfg.Limits(), a.clock, log)
	a.scheduler = scheduler.New(st, a.clock, cfg.SchedulerOptions(), log, a.metrics)
	a.engine = lifecycle.New(st, a.scheduler, a.transport, a.accounts,
		lifecycle.WithClock(a.clock),
		lifecycle.WithLogger(log),
		lifecycle.WithMetrics(a.metrics),
		lifecycle.WithBotUsername(cfg.Bot.Username),
		lifecycle.WithPageSize(cfg.Shares.PageSize),
		lifecycle.WithSweepBatch(cfg.Shares.SweepBatch),
	)
	a.engine.RegisterTasks(a.scheduler)
	a.flows = flow.NewController(sessions, a.engine, a.accounts,
		flow.WithClock(a.clock),
		flow.WithLogger(log),
		flow.WithMetrics(a.metrics),
		flow.WithNotifier(a.transport),
		flow.WithAskTimeout(cfg.Flow.AskTimeout.Duration()),
		flow.WithMaxMessageLength(cfg.Flow.MaxMessageLength),
	)
	return a, nil
}

// Close releases the session store and the database, newest first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp loads the configuration, wires the app and runs fn with it.
// Configuration problems exit with ExitFailure, wiring problems with
// ExitCommandError.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app, out *OutputFormatter) error) error {
	out := o.formatter(cmd)
	cfg, err := o.loadConfig()
	if err != nil {
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid configuration", err)
	}
	log := cfg.Logging.NewLogger(out.GetErrWriter(), o.Verbose)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		_ = out.Error(ErrCodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("error closing resources", "error", err)
		}
	}()
	out.VerboseLog("Database: %s", cfg.Database.Driver)
	return fn(ctx, a, out)
}
