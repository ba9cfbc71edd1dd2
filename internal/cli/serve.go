package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sh1vu7/secreteshare/internal/api"
	"github.com/sh1vu7/secreteshare/internal/scheduler"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the task scheduler and the reconciliation sweep",
		Long: `Starts the service. Flow sessions that outlived a restart get their
timeouts re-armed, due tasks run, and overdue shares are expired on the
configured sweep schedule. SIGINT or SIGTERM stops everything gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.address)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return WrapExitError(ExitFailure, "invalid configuration", err)
	}
	if opts.Addr != "" {
		cfg.Server.Address = opts.Addr
	}
	log := cfg.Logging.NewLogger(cmd.ErrOrStderr(), opts.Verbose)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("error closing resources", "error", err)
		}
	}()

	resumed, err := a.flows.Resume(ctx)
	if err != nil {
		log.Error("failed to resume flow sessions", "error", err)
	} else if resumed > 0 {
		log.Info("resumed flow timeouts", "sessions", resumed)
	}

	if n, err := a.engine.ExpireOverdue(ctx); err != nil {
		log.Error("startup sweep failed", "error", err)
	} else if n > 0 {
		log.Info("expired shares overdue since last run", "count", n)
	}

	sweeper, err := scheduler.NewSweeper(cfg.Shares.SweepCron, a.engine.ExpireOverdue, a.clock, log)
	if err != nil {
		return WrapExitError(ExitFailure, "invalid sweep schedule", err)
	}

	srv, err := api.NewServer(a.flows, a.engine, a.accounts, api.Options{
		Addr:      cfg.Server.Address,
		APIKeys:   cfg.Server.APIKeys,
		ViewRPS:   cfg.Server.ViewRate.RPS,
		ViewBurst: cfg.Server.ViewRate.Burst,
		Gatherer:  a.registry,
		Health:    a.store.Ping,
		Logger:    log,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create server", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				errs <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}
	run("scheduler", func() error { return a.scheduler.Run(ctx) })
	run("sweeper", func() error { return sweeper.Run(ctx) })
	run("http", func() error {
		err := srv.Start()
		if err == nil && ctx.Err() == nil {
			err = errors.New("server stopped unexpectedly")
		}
		return err
	})

	fmt.Fprintf(cmd.OutOrStdout(), "secretshare listening on %s\n", cfg.Server.Address)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	<-ctx.Done()

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	wg.Wait()
	close(errs)

	if err := <-errs; err != nil {
		return WrapExitError(ExitFailure, "service error", err)
	}
	log.Info("stopped gracefully")
	return nil
}
