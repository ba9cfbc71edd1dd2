package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sh1vu7/secreteshare/internal/account"
	"github.com/sh1vu7/secreteshare/internal/clock"
	"github.com/sh1vu7/secreteshare/internal/ids"
	"github.com/sh1vu7/secreteshare/internal/metrics"
	"github.com/sh1vu7/secreteshare/internal/scheduler"
	"github.com/sh1vu7/secreteshare/internal/share"
	"github.com/sh1vu7/secreteshare/internal/transport"
)

// Store is the share persistence the engine needs.
type Store interface {
	InsertShare(ctx context.Context, sh *share.Share) error
	GetShare(ctx context.Context, id string) (*share.Share, error)
	GetShareByToken(ctx context.Context, token string) (*share.Share, error)
	RegisterView(ctx context.Context, token string, viewer share.Viewer, now time.Time) (*share.Share, bool, error)
	RevokeShare(ctx context.Context, id string, now time.Time) (*share.Share, bool, error)
	ExpireShare(ctx context.Context, id string, now time.Time) (bool, error)
	DestructShare(ctx context.Context, id string, now time.Time) (bool, error)
	FinishViewedShare(ctx context.Context, id string, now time.Time) (bool, error)
	FailShare(ctx context.Context, id, reason string, now time.Time) (bool, error)
	ListSharesBySender(ctx context.Context, senderID int64, statuses []share.Status, limit, offset int) ([]*share.Share, error)
	CountSharesBySender(ctx context.Context, senderID int64, statuses []share.Status) (int, error)
	ListLiveShares(ctx context.Context, senderID int64, now time.Time, limit, offset int) ([]*share.Share, error)
	CountLiveShares(ctx context.Context, senderID int64, now time.Time) (int, error)
	ListOverdueShares(ctx context.Context, now time.Time, limit int) ([]*share.Share, error)
	DeleteShare(ctx context.Context, id string) (bool, error)
}

// Scheduler defers work to a later time.
type Scheduler interface {
	Schedule(ctx context.Context, t scheduler.Task) error
	Cancel(ctx context.Context, key string) error
}

// Accounts answers per-user questions during view resolution.
type Accounts interface {
	IsBanned(ctx context.Context, id int64) (bool, error)
	Settings(ctx context.Context, id int64) (account.Settings, error)
}

// Default option values.
const (
	DefaultBotUsername = "SecretShareBot"
	DefaultPageSize    = 5
	DefaultSweepBatch  = 500
)

// Engine performs share state transitions.
//
// Thread-safety: Engine holds no mutable state and is safe for concurrent
// use. Consistency across concurrent callers comes from the store's
// conditional updates.
type Engine struct {
	store     Store
	sched     Scheduler
	transport transport.Transport
	accounts  Accounts

	clock       clock.Clock
	ids         ids.Generator
	tokens      ids.Generator
	log         *slog.Logger
	metrics     *metrics.Metrics
	botUsername string
	pageSize    int
	sweepBatch  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source. Default: clock.System.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDs sets the share id generator. Default: UUIDv7.
func WithIDs(g ids.Generator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithTokens sets the access token generator. Default: random 128-bit hex.
func WithTokens(g ids.Generator) Option {
	return func(e *Engine) { e.tokens = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics sets the metrics sink. A nil sink records nothing.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithBotUsername sets the bot name used in deep links.
func WithBotUsername(name string) Option {
	return func(e *Engine) { e.botUsername = name }
}

// WithPageSize sets the page size of sender listings.
func WithPageSize(n int) Option {
	return func(e *Engine) { e.pageSize = n }
}

// WithSweepBatch caps the shares expired per reconciliation sweep.
func WithSweepBatch(n int) Option {
	return func(e *Engine) { e.sweepBatch = n }
}

// New creates an Engine.
func New(store Store, sched Scheduler, tr transport.Transport, accounts Accounts, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		sched:       sched,
		transport:   tr,
		accounts:    accounts,
		clock:       clock.System{},
		ids:         ids.UUIDv7Generator{},
		tokens:      ids.TokenGenerator{},
		log:         slog.Default(),
		botUsername: DefaultBotUsername,
		pageSize:    DefaultPageSize,
		sweepBatch:  DefaultSweepBatch,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pageSize <= 0 {
		e.pageSize = DefaultPageSize
	}
	if e.sweepBatch <= 0 {
		e.sweepBatch = DefaultSweepBatch
	}
	e.log = e.log.With("component", "lifecycle")
	return e
}

// Create persists a new active share and schedules its timers.
//
// For a specific-user share the control message is sent first: a transport
// failure aborts before anything is written. Scheduling failures are logged
// and left to the reconciliation sweep.
func (e *Engine) Create(ctx context.Context, spec share.Spec) (*share.Share, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	now := e.clock.Now()
	if spec.ExpiresAt != nil && !spec.ExpiresAt.After(now) {
		return nil, share.Validation("create", "the expiry must be in the future")
	}

	sh := &share.Share{
		ID:               e.ids.Generate(),
		AccessToken:      e.tokens.Generate(),
		SenderID:         spec.SenderID,
		RecipientKind:    spec.RecipientKind,
		RecipientID:      spec.RecipientID,
		RecipientDisplay: spec.RecipientDisplay,
		Content:          spec.Content,
		Protection:       spec.Protection,
		MaxViews:         spec.MaxViews,
		Status:           share.StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        spec.ExpiresAt,
	}
	log := e.log.With("share_id", sh.ID, "sender_id", sh.SenderID, "recipient_kind", sh.RecipientKind)

	if sh.RecipientKind == share.RecipientUser {
		ref, err := e.transport.SendControlMessage(ctx, *sh.RecipientID, transport.ControlPayload{
			ShareID:     sh.ID,
			AccessToken: sh.AccessToken,
			SenderID:    sh.SenderID,
			ContentKind: sh.Content.Kind,
			ExpiresAt:   sh.ExpiresAt,
			Link:        e.Link(sh.AccessToken),
		})
		if err != nil {
			log.Warn("control message failed, share not created", "error", err)
			return nil, share.Transport("create", err)
		}
		sh.ControlMessage = &ref
	}

	if err := e.store.InsertShare(ctx, sh); err != nil {
		if sh.ControlMessage != nil {
			log.Warn("share insert failed after control message was sent",
				"reconcile", true, "control_message", sh.ControlMessage.String(), "error", err)
			if _, derr := e.transport.DeleteMessage(ctx, *sh.ControlMessage); derr != nil {
				log.Warn("orphan control message not deleted", "reconcile", true, "error", derr)
			}
		}
		return nil, share.Persistence("create", err)
	}

	if sh.ExpiresAt != nil {
		if err := e.sched.Schedule(ctx, scheduler.ExpireShare(sh.ID, *sh.ExpiresAt)); err != nil {
			log.Error("failed to schedule expiry", "error", err)
		}
		if sh.ControlMessage != nil {
			task := scheduler.DeleteMessage(sh.ControlMessage.ChatID, sh.ControlMessage.MessageID, sh.ID, *sh.ExpiresAt)
			if err := e.sched.Schedule(ctx, task); err != nil {
				log.Error("failed to schedule control message deletion", "error", err)
			}
		}
	}

	e.metrics.ShareCreated(string(sh.RecipientKind))
	log.Info("share created", "max_views", sh.MaxViews.String(), "expires_at", sh.ExpiresAt)
	return sh, nil
}

// Get returns a share by id without an ownership check.
func (e *Engine) Get(ctx context.Context, id string) (*share.Share, error) {
	sh, err := e.store.GetShare(ctx, id)
	if errors.Is(err, share.ErrNotFound) {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	if err != nil {
		return nil, share.Persistence("get", err)
	}
	return sh, nil
}

// Detail returns a share for its sender. Anyone else gets NotPermitted.
func (e *Engine) Detail(ctx context.Context, id string, actorID int64) (*share.Share, error) {
	sh, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sh.SenderID != actorID {
		return nil, share.NotPermitted("detail", "only the sender can see this share")
	}
	return sh, nil
}

// Page is one page of a sender's shares.
type Page struct {
	Shares   []*share.Share `json:"shares"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Total    int            `json:"total"`
	Pages    int            `json:"pages"`
}

// ListBySender returns page (1-based) of the sender's live shares, newest
// first. Shares past their expiry are not live even before the sweep
// finalizes them. With all set, finished shares are listed too.
func (e *Engine) ListBySender(ctx context.Context, senderID int64, page int, all bool) (Page, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * e.pageSize

	var (
		total  int
		shares []*share.Share
		err    error
	)
	if all {
		total, err = e.store.CountSharesBySender(ctx, senderID, nil)
	} else {
		total, err = e.store.CountLiveShares(ctx, senderID, e.clock.Now())
	}
	if err != nil {
		return Page{}, share.Persistence("list", err)
	}
	if all {
		shares, err = e.store.ListSharesBySender(ctx, senderID, nil, e.pageSize, offset)
	} else {
		shares, err = e.store.ListLiveShares(ctx, senderID, e.clock.Now(), e.pageSize, offset)
	}
	if err != nil {
		return Page{}, share.Persistence("list", err)
	}
	return Page{
		Shares:   shares,
		Page:     page,
		PageSize: e.pageSize,
		Total:    total,
		Pages:    (total + e.pageSize - 1) / e.pageSize,
	}, nil
}

// ActiveCount returns how many live shares the sender has. A share past
// its expiry is not counted.
func (e *Engine) ActiveCount(ctx context.Context, senderID int64) (int, error) {
	n, err := e.store.CountLiveShares(ctx, senderID, e.clock.Now())
	if err != nil {
		return 0, share.Persistence("active count", err)
	}
	return n, nil
}

// HardDelete removes a share record entirely, after cancelling its tasks
// and deleting its control message. Operator use only.
func (e *Engine) HardDelete(ctx context.Context, id string) (bool, error) {
	sh, err := e.Get(ctx, id)
	if err != nil {
		return false, err
	}
	e.finalize(ctx, sh)
	removed, err := e.store.DeleteShare(ctx, id)
	if err != nil {
		return false, share.Persistence("delete", err)
	}
	if removed {
		e.log.Info("share deleted", "share_id", id)
	}
	return removed, nil
}
