package lifecycle

import (
	"context"

	"github.com/sh1vu7/secreteshare/internal/scheduler"
	"github.com/sh1vu7/secreteshare/internal/share"
)

// TaskRegistry accepts task handlers. *scheduler.Scheduler implements it.
type TaskRegistry interface {
	Handle(kind scheduler.Kind, h scheduler.Handler)
}

// RegisterTasks installs the engine's handlers for expiry and message
// deletion tasks.
func (e *Engine) RegisterTasks(r TaskRegistry) {
	r.Handle(scheduler.KindExpireShare, expireHandler{e})
	r.Handle(scheduler.KindDeleteMessage, deleteHandler{e})
}

type expireHandler struct{ e *Engine }

func (h expireHandler) Run(ctx context.Context, t scheduler.Task) error {
	_, err := h.e.ExpireByTimer(ctx, t.ShareID)
	return err
}

// Abandon leaves the share to the reconciliation sweep.
func (h expireHandler) Abandon(_ context.Context, t scheduler.Task, cause error) {
	h.e.log.Warn("expiry task abandoned, sweep will pick the share up",
		"share_id", t.ShareID, "cause", cause)
}

type deleteHandler struct{ e *Engine }

func (h deleteHandler) Run(ctx context.Context, t scheduler.Task) error {
	return h.e.DeleteMessageTimer(ctx, share.MessageRef{ChatID: t.ChatID, MessageID: t.MessageID}, t.ShareID)
}

// Abandon degrades the share: its control message may still be visible.
func (h deleteHandler) Abandon(ctx context.Context, t scheduler.Task, cause error) {
	h.e.degrade(ctx, t.ShareID, "control message deletion abandoned: "+cause.Error())
}
