// Package scheduler runs persisted, time-deferred tasks.
//
// Tasks live in a Store, so a schedule survives process restarts. Each task
// has a deterministic key: scheduling the same key again replaces the
// pending run, and cancelling by key is a no-op when nothing is pending.
//
// A task whose run time passed while the process was down runs once when
// the scheduler comes back, provided it is within the misfire grace window.
// Because there is one row per key, missed runs are coalesced. Tasks older
// than the grace window are dropped and their handler is told via Abandon.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sh1vu7/secreteshare/internal/clock"
	"github.com/sh1vu7/secreteshare/internal/metrics"
)

// Store persists tasks.
type Store interface {
	UpsertTask(ctx context.Context, t Task) error
	DeleteTask(ctx context.Context, key string) (bool, error)
	CompleteTask(ctx context.Context, key string, runAt time.Time) (bool, error)
	RetryTask(ctx context.Context, key string, prevRunAt, nextRunAt time.Time, attempts int, lastErr string) (bool, error)
	DueTasks(ctx context.Context, now time.Time, limit int) ([]Task, error)
}

// Handler executes tasks of one kind.
type Handler interface {
	Run(ctx context.Context, t Task) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, t Task) error

// Run calls f(ctx, t).
func (f HandlerFunc) Run(ctx context.Context, t Task) error {
	return f(ctx, t)
}

// Abandoner is implemented by handlers that want to react when a task is
// given up: retries exhausted, or dropped past the misfire grace window.
type Abandoner interface {
	Abandon(ctx context.Context, t Task, cause error)
}

// Options tune the scheduler.
type Options struct {
	// PollInterval is how often the store is checked for due tasks.
	PollInterval time.Duration
	// MisfireGrace is how late a task may run after its run time.
	MisfireGrace time.Duration
	// MaxAttempts bounds executions of a failing task.
	MaxAttempts int
	// RetryBackoff is multiplied by the attempt number to delay a retry.
	RetryBackoff time.Duration
	// BatchSize caps the tasks fetched per poll.
	BatchSize int
	// TaskTimeout bounds a single handler execution.
	TaskTimeout time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		PollInterval: time.Second,
		MisfireGrace: 30 * time.Minute,
		MaxAttempts:  5,
		RetryBackoff: 30 * time.Second,
		BatchSize:    100,
		TaskTimeout:  30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.MisfireGrace <= 0 {
		o.MisfireGrace = d.MisfireGrace
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = d.RetryBackoff
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = d.TaskTimeout
	}
	return o
}

// Scheduler executes due tasks from a Store.
//
// Thread-safety: Schedule and Cancel may be called from any goroutine.
// RunDue must not be called concurrently with itself; Run serializes it.
type Scheduler struct {
	store   Store
	clock   clock.Clock
	opts    Options
	log     *slog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	handlers map[Kind]Handler

	wake chan struct{}
}

// New creates a scheduler. Register handlers with Handle before Run.
func New(store Store, clk clock.Clock, opts Options, log *slog.Logger, m *metrics.Metrics) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		store:    store,
		clock:    clk,
		opts:     opts.withDefaults(),
		log:      log.With("component", "scheduler"),
		metrics:  m,
		handlers: make(map[Kind]Handler),
		wake:     make(chan struct{}, 1),
	}
}

// Handle registers h for kind, replacing any previous handler.
func (s *Scheduler) Handle(kind Kind, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

func (s *Scheduler) handler(kind Kind) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[kind]
	return h, ok
}

// Schedule persists t, replacing any pending task with the same key.
func (s *Scheduler) Schedule(ctx context.Context, t Task) error {
	if t.Key == "" {
		return errors.New("schedule: task key is required")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.clock.Now()
	}
	if err := s.store.UpsertTask(ctx, t); err != nil {
		return fmt.Errorf("schedule %s: %w", t.Key, err)
	}
	s.log.Debug("task scheduled", "key", t.Key, "kind", t.Kind, "run_at", t.RunAt)

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Cancel removes the pending task with key. Cancelling a task that already
// ran or never existed is not an error.
func (s *Scheduler) Cancel(ctx context.Context, key string) error {
	removed, err := s.store.DeleteTask(ctx, key)
	if err != nil {
		return fmt.Errorf("cancel %s: %w", key, err)
	}
	if removed {
		s.log.Debug("task cancelled", "key", key)
	}
	return nil
}

// RunDue executes every task that is due now and returns how many were
// processed, whatever their result.
func (s *Scheduler) RunDue(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.store.DueTasks(ctx, now, s.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("load due tasks: %w", err)
	}

	for _, t := range due {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		s.execute(ctx, t, now)
	}
	return len(due), nil
}

func (s *Scheduler) execute(ctx context.Context, t Task, now time.Time) {
	log := s.log.With("key", t.Key, "kind", t.Kind, "run_at", t.RunAt)

	h, ok := s.handler(t.Kind)
	if !ok {
		log.Error("no handler for task kind, dropping")
		s.complete(ctx, t)
		s.metrics.TaskRun(string(t.Kind), "abandoned")
		return
	}

	if late := now.Sub(t.RunAt); late > s.opts.MisfireGrace {
		log.Warn("task missed its grace window, dropping", "late_by", late)
		s.abandon(ctx, h, t, ErrMisfired)
		s.complete(ctx, t)
		s.metrics.TaskRun(string(t.Kind), "misfired")
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, s.opts.TaskTimeout)
	err := h.Run(runCtx, t)
	cancel()

	if err == nil {
		s.complete(ctx, t)
		s.metrics.TaskRun(string(t.Kind), "ok")
		log.Debug("task done")
		return
	}

	attempts := t.Attempts + 1
	if attempts >= s.opts.MaxAttempts {
		log.Error("task failed permanently", "attempts", attempts, "error", err)
		s.abandon(ctx, h, t, err)
		s.complete(ctx, t)
		s.metrics.TaskRun(string(t.Kind), "abandoned")
		return
	}

	next := now.Add(s.opts.RetryBackoff * time.Duration(attempts))
	if _, rerr := s.store.RetryTask(ctx, t.Key, t.RunAt, next, attempts, err.Error()); rerr != nil {
		log.Error("failed to reschedule task", "error", rerr)
	}
	s.metrics.TaskRun(string(t.Kind), "retry")
	log.Warn("task failed, will retry", "attempts", attempts, "next_run_at", next, "error", err)
}

func (s *Scheduler) abandon(ctx context.Context, h Handler, t Task, cause error) {
	if a, ok := h.(Abandoner); ok {
		a.Abandon(ctx, t, cause)
	}
}

func (s *Scheduler) complete(ctx context.Context, t Task) {
	if _, err := s.store.CompleteTask(ctx, t.Key, t.RunAt); err != nil {
		s.log.Error("failed to remove finished task", "key", t.Key, "error", err)
	}
}

// Run polls for due tasks until ctx is cancelled. Due tasks left over from
// a previous process run immediately on start.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started", "poll_interval", s.opts.PollInterval, "misfire_grace", s.opts.MisfireGrace)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := s.RunDue(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("scheduler poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-s.wake:
		}
	}
}
