package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/sh1vu7/secreteshare/internal/clock"
)

// SweepFunc performs one reconciliation pass and reports how many items it
// fixed.
type SweepFunc func(ctx context.Context) (int, error)

// Sweeper runs a SweepFunc on a cron schedule. It backs up the task store:
// anything a lost or dropped task should have done is picked up on the next
// tick.
type Sweeper struct {
	expr  string
	fn    SweepFunc
	clock clock.Clock
	log   *slog.Logger
}

// NewSweeper validates the cron expression and returns a Sweeper.
func NewSweeper(expr string, fn SweepFunc, clk clock.Clock, log *slog.Logger) (*Sweeper, error) {
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid sweep cron expression %q", expr)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{expr: expr, fn: fn, clock: clk, log: log.With("component", "sweeper")}, nil
}

// Next returns the first tick strictly after t.
func (s *Sweeper) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.expr, t, false)
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("sweeper started", "cron", s.expr)
	for {
		now := s.clock.Now()
		next, err := s.Next(now)
		if err != nil {
			s.log.Error("sweep next tick failed", "cron", s.expr, "error", err)
			next = now.Add(30 * time.Second)
		}

		fired := make(chan struct{})
		timer := s.clock.AfterFunc(next.Sub(now), func() { close(fired) })
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("sweeper stopped")
			return ctx.Err()
		case <-fired:
		}

		n, err := s.fn(ctx)
		if err != nil {
			s.log.Error("sweep failed", "error", err)
			continue
		}
		if n > 0 {
			s.log.Info("sweep reconciled items", "count", n)
		}
	}
}
