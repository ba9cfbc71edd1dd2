package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sh1vu7/secreteshare/internal/account"
	"github.com/sh1vu7/secreteshare/internal/clock"
	"github.com/sh1vu7/secreteshare/internal/ids"
	"github.com/sh1vu7/secreteshare/internal/metrics"
	"github.com/sh1vu7/secreteshare/internal/share"
)

// Creator persists a confirmed share.
type Creator interface {
	Create(ctx context.Context, spec share.Spec) (*share.Share, error)
	ActiveCount(ctx context.Context, senderID int64) (int, error)
}

// Accounts supplies the per-user inputs of a flow.
type Accounts interface {
	LimitsFor(ctx context.Context, id int64) (account.Tier, account.Limits, error)
	Settings(ctx context.Context, id int64) (account.Settings, error)
	IsBanned(ctx context.Context, id int64) (bool, error)
}

// Notifier tells a user their flow timed out.
type Notifier interface {
	Notify(ctx context.Context, to int64, text string) error
}

// Defaults.
const (
	DefaultAskTimeout       = 5 * time.Minute
	DefaultMaxMessageLength = 4000
)

// TimeoutNotice is sent when a free-form step times out.
const TimeoutNotice = "Your secret was not created because no answer arrived in time. Start again whenever you are ready."

// Controller runs share flows.
//
// Thread-safety: Calls for the same user are serialized by a per-user lock.
// Calls for different users run concurrently.
type Controller struct {
	sessions SessionStore
	creator  Creator
	accounts Accounts
	notifier Notifier

	clock      clock.Clock
	ids        ids.Generator
	log        *slog.Logger
	metrics    *metrics.Metrics
	askTimeout time.Duration
	maxText    int

	locks  keyedMutex
	timers timerSet
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the time source and timer factory.
func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithIDs sets the flow id generator.
func WithIDs(g ids.Generator) Option {
	return func(ctl *Controller) { ctl.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ctl *Controller) { ctl.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ctl *Controller) { ctl.metrics = m }
}

// WithNotifier sets who tells users about timeouts.
func WithNotifier(n Notifier) Option {
	return func(ctl *Controller) { ctl.notifier = n }
}

// WithAskTimeout bounds free-form steps. Default: 5 minutes.
func WithAskTimeout(d time.Duration) Option {
	return func(ctl *Controller) { ctl.askTimeout = d }
}

// WithMaxMessageLength caps secret text, in characters. Default: 4000.
func WithMaxMessageLength(n int) Option {
	return func(ctl *Controller) { ctl.maxText = n }
}

// NewController creates a Controller.
func NewController(sessions SessionStore, creator Creator, accounts Accounts, opts ...Option) *Controller {
	c := &Controller{
		sessions:   sessions,
		creator:    creator,
		accounts:   accounts,
		clock:      clock.System{},
		ids:        ids.UUIDv7Generator{},
		log:        slog.Default(),
		askTimeout: DefaultAskTimeout,
		maxText:    DefaultMaxMessageLength,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "flow")
	c.timers.init()
	return c
}

func (c *Controller) renderer() renderer {
	return renderer{askTimeout: c.askTimeout, maxText: c.maxText}
}

// Start begins a new flow for the user, discarding any flow in progress.
func (c *Controller) Start(ctx context.Context, userID int64) (StepResult, error) {
	banned, err := c.accounts.IsBanned(ctx, userID)
	if err != nil {
		return StepResult{}, share.Persistence("start flow", err)
	}
	if banned {
		return StepResult{}, share.NotPermitted("start flow", "you are not allowed to create secrets")
	}

	unlock := c.locks.lock(userID)
	defer unlock()

	prev, err := c.sessions.Get(ctx, userID)
	if err != nil {
		return StepResult{}, share.Persistence("start flow", err)
	}
	if prev != nil {
		c.timers.disarm(userID)
		c.metrics.FlowEnded("replaced")
		c.log.Debug("previous flow discarded", "user_id", userID, "flow_id", prev.FlowID)
	}

	settings, err := c.accounts.Settings(ctx, userID)
	if err != nil {
		return StepResult{}, share.Persistence("start flow", err)
	}
	_, limits, err := c.accounts.LimitsFor(ctx, userID)
	if err != nil {
		return StepResult{}, share.Persistence("start flow", err)
	}

	now := c.clock.Now()
	s := &Session{
		UserID: userID,
		FlowID: c.ids.Generate(),
		State:  StateAwaitingContentType,
		Collected: Collected{
			Protection: share.Protection{
				HideAttribution:  !settings.ShowForwardTag,
				PreventResharing: settings.ProtectContent,
			},
		},
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := c.sessions.Set(ctx, s); err != nil {
		return StepResult{}, share.Persistence("start flow", err)
	}
	c.metrics.FlowStarted()
	c.log.Info("flow started", "user_id", userID, "flow_id", s.FlowID)
	return c.renderer().render(s, limits), nil
}

// Submit applies one event to the user's flow.
//
// The session is re-read on every call. An event for another flow or step
// returns a stale error and changes nothing. A validation failure aborts the
// flow and is returned as is.
func (c *Controller) Submit(ctx context.Context, userID int64, ev Event) (StepResult, error) {
	unlock := c.locks.lock(userID)
	defer unlock()

	s, err := c.current(ctx, userID, ev.FlowID)
	if err != nil {
		return StepResult{}, err
	}
	if ev.State != "" && ev.State != s.State {
		return StepResult{}, newError(CodeStale, "event was for step %s, flow is at %s", ev.State, s.State)
	}

	if ev.Action == ActionCancel {
		c.abort(ctx, s, "cancelled")
		return StepResult{FlowID: s.FlowID, State: StateCancelled, Prompt: "Cancelled."}, nil
	}
	if ev.Action == ActionConfirm {
		return StepResult{}, newError(CodeInvalidAction, "use confirm to create the secret")
	}
	fn, ok := transitions[s.State][ev.Action]
	if !ok {
		return StepResult{}, newError(CodeInvalidAction, "%s is not accepted at step %s", ev.Action, s.State)
	}

	_, limits, err := c.accounts.LimitsFor(ctx, userID)
	if err != nil {
		return StepResult{}, share.Persistence("submit step", err)
	}

	next, err := fn(&stepContext{session: s, limits: limits, payload: ev.Payload, maxText: c.maxText})
	if err != nil {
		c.log.Info("flow aborted by invalid input", "user_id", userID, "flow_id", s.FlowID, "state", s.State, "error", err)
		c.abort(ctx, s, "aborted")
		return StepResult{}, err
	}

	now := c.clock.Now()
	s.State = next
	s.UpdatedAt = now
	s.Deadline = nil
	if next.Freeform() {
		d := now.Add(c.askTimeout)
		s.Deadline = &d
	}
	if err := c.sessions.Set(ctx, s); err != nil {
		return StepResult{}, share.Persistence("submit step", err)
	}
	if s.Deadline != nil {
		c.arm(s)
	} else {
		c.timers.disarm(userID)
	}
	return c.renderer().render(s, limits), nil
}

// Confirm turns the collected answers into a share.
//
// Limits are checked again against the user's current tier. The session is
// cleared before the creator runs, so a repeated confirm is stale and at
// most one share results from a flow.
func (c *Controller) Confirm(ctx context.Context, userID int64, flowID string) (*share.Share, error) {
	unlock := c.locks.lock(userID)
	defer unlock()

	s, err := c.current(ctx, userID, flowID)
	if CodeOf(err) == CodeNoSession {
		return nil, newError(CodeStale, "this flow is already finished")
	}
	if err != nil {
		return nil, err
	}
	if s.State != StateAwaitingConfirmation {
		return nil, newError(CodeStale, "flow is at %s, not ready to confirm", s.State)
	}

	spec, err := c.buildSpec(ctx, s)
	if err != nil {
		if share.IsValidation(err) {
			c.abort(ctx, s, "aborted")
		}
		return nil, err
	}

	if err := c.clear(ctx, s); err != nil {
		return nil, err
	}

	sh, err := c.creator.Create(ctx, spec)
	if err != nil {
		c.metrics.FlowEnded("failed")
		c.log.Warn("share creation failed", "user_id", userID, "flow_id", s.FlowID, "error", err)
		return nil, err
	}
	c.metrics.FlowEnded("committed")
	c.log.Info("flow committed", "user_id", userID, "flow_id", s.FlowID, "share_id", sh.ID)
	return sh, nil
}

// Cancel ends the user's flow. Cancelling a flow that is not the current
// one, or when there is none, does nothing.
func (c *Controller) Cancel(ctx context.Context, userID int64, flowID string) error {
	unlock := c.locks.lock(userID)
	defer unlock()

	s, err := c.sessions.Get(ctx, userID)
	if err != nil {
		return share.Persistence("cancel flow", err)
	}
	if s == nil || s.FlowID != flowID {
		return nil
	}
	c.abort(ctx, s, "cancelled")
	return nil
}

// Session returns the user's current session, or nil.
func (c *Controller) Session(ctx context.Context, userID int64) (*Session, error) {
	s, err := c.sessions.Get(ctx, userID)
	if err != nil {
		return nil, share.Persistence("get session", err)
	}
	return s, nil
}

// current loads the session and checks flow id and deadline. A passed
// deadline aborts the flow.
func (c *Controller) current(ctx context.Context, userID int64, flowID string) (*Session, error) {
	s, err := c.sessions.Get(ctx, userID)
	if err != nil {
		return nil, share.Persistence("load session", err)
	}
	if s == nil {
		return nil, newError(CodeNoSession, "no flow in progress")
	}
	if s.FlowID != flowID {
		return nil, newError(CodeStale, "flow %s is no longer current", flowID)
	}
	if s.Deadline != nil && !c.clock.Now().Before(*s.Deadline) {
		c.abort(ctx, s, "timeout")
		return nil, newError(CodeTimeout, "no answer arrived in time")
	}
	return s, nil
}

func (c *Controller) buildSpec(ctx context.Context, s *Session) (share.Spec, error) {
	col := s.Collected
	if col.Content == nil || col.DestructMinutes == nil || col.MaxViews == nil || col.RecipientKind == "" {
		return share.Spec{}, share.Validation("confirm", "the flow is incomplete")
	}

	_, limits, err := c.accounts.LimitsFor(ctx, s.UserID)
	if err != nil {
		return share.Spec{}, share.Persistence("confirm", err)
	}
	if !limits.AllowsTimer(*col.DestructMinutes) {
		return share.Spec{}, share.Validation("confirm", "a %s timer is no longer available on your plan", TimerLabel(*col.DestructMinutes))
	}
	if !limits.AcceptsMaxViews(*col.MaxViews) {
		return share.Spec{}, share.Validation("confirm", "%s is no longer available on your plan", ViewsLabel(*col.MaxViews))
	}
	if limits.MaxActiveShares > 0 {
		n, err := c.creator.ActiveCount(ctx, s.UserID)
		if err != nil {
			return share.Spec{}, err
		}
		if n >= limits.MaxActiveShares {
			return share.Spec{}, share.Validation("confirm", "you already have %d active secrets, the limit on your plan", n)
		}
	}

	spec := share.Spec{
		SenderID:         s.UserID,
		RecipientKind:    col.RecipientKind,
		RecipientID:      col.RecipientID,
		RecipientDisplay: col.RecipientDisplay,
		Content:          *col.Content,
		Protection:       col.Protection,
		MaxViews:         *col.MaxViews,
	}
	if *col.DestructMinutes > 0 {
		at := c.clock.Now().Add(time.Duration(*col.DestructMinutes) * time.Minute)
		spec.ExpiresAt = &at
	}
	return spec, nil
}

// abort clears the session and records the outcome. Errors are logged:
// an abort is already the failure path.
func (c *Controller) abort(ctx context.Context, s *Session, outcome string) {
	if err := c.clear(ctx, s); err != nil {
		c.log.Error("failed to clear session", "user_id", s.UserID, "flow_id", s.FlowID, "error", err)
	}
	c.metrics.FlowEnded(outcome)
	c.log.Info("flow ended", "user_id", s.UserID, "flow_id", s.FlowID, "state", s.State, "outcome", outcome)
}

func (c *Controller) clear(ctx context.Context, s *Session) error {
	c.timers.disarm(s.UserID)
	if err := c.sessions.Clear(ctx, s.UserID); err != nil {
		return share.Persistence("clear session", fmt.Errorf("user %d: %w", s.UserID, err))
	}
	return nil
}
