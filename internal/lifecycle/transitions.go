package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/sh1vu7/secreteshare/internal/scheduler"
	"github.com/sh1vu7/secreteshare/internal/share"
	"github.com/sh1vu7/secreteshare/internal/transport"
)

// Revoke withdraws a live share. Only the sender may revoke.
//
// Returns false without touching the record when the share is already
// terminal, so a second revoke leaves revoked_at as the first one set it.
func (e *Engine) Revoke(ctx context.Context, shareID string, actorID int64) (bool, error) {
	sh, err := e.Get(ctx, shareID)
	if err != nil {
		return false, err
	}
	if sh.SenderID != actorID {
		return false, share.NotPermitted("revoke", "only the sender can revoke this share")
	}

	revoked, ok, err := e.store.RevokeShare(ctx, shareID, e.clock.Now())
	if err != nil {
		return false, share.Persistence("revoke", err)
	}
	if !ok {
		return false, nil
	}

	e.finalize(ctx, revoked)
	e.metrics.Transition(string(share.StatusRevoked))
	e.log.Info("share revoked", "share_id", shareID, "actor_id", actorID)
	return true, nil
}

// ExpireByTimer ends a share whose expiry has come. An active share moves
// to expired. A viewed share has spent part of its budget, so it moves to
// destructed and its control message is removed. Revoked and destructed
// shares are left as they are.
func (e *Engine) ExpireByTimer(ctx context.Context, shareID string) (bool, error) {
	now := e.clock.Now()
	ok, err := e.store.ExpireShare(ctx, shareID, now)
	if err != nil {
		return false, share.Persistence("expire", err)
	}
	if ok {
		e.metrics.Transition(string(share.StatusExpired))
		e.log.Info("share expired", "share_id", shareID)
		return true, nil
	}

	ok, err = e.store.FinishViewedShare(ctx, shareID, now)
	if err != nil {
		return false, share.Persistence("expire", err)
	}
	if !ok {
		e.log.Debug("expiry skipped, share no longer live", "share_id", shareID)
		return false, nil
	}
	e.metrics.Transition(string(share.StatusDestructed))
	e.log.Info("viewed share destructed at expiry", "share_id", shareID)

	sh, err := e.store.GetShare(ctx, shareID)
	if err != nil {
		e.log.Warn("share not reloaded after expiry", "share_id", shareID, "error", err)
		return true, nil
	}
	e.finalize(ctx, sh)
	return true, nil
}

// DeleteMessageTimer deletes a control message on schedule.
//
// On success a live share is marked destructed. When the message is gone or
// the bot may no longer touch it, the share is downgraded to expired with a
// failure reason and nil is returned. Any other transport error is returned
// so the scheduler retries.
func (e *Engine) DeleteMessageTimer(ctx context.Context, ref share.MessageRef, shareID string) error {
	log := e.log.With("message", ref.String(), "share_id", shareID)

	deleted, err := e.transport.DeleteMessage(ctx, ref)
	if err != nil && !transport.Permanent(err) {
		return fmt.Errorf("delete message %s: %w", ref, err)
	}
	if err != nil || !deleted {
		reason := "control message already gone"
		if err != nil {
			reason = "control message not deletable: " + err.Error()
		}
		log.Warn("scheduled message deletion failed", "reason", reason)
		e.degrade(ctx, shareID, reason)
		return nil
	}

	if shareID == "" {
		log.Debug("message deleted")
		return nil
	}
	ok, err := e.store.DestructShare(ctx, shareID, e.clock.Now())
	if err != nil {
		return share.Persistence("delete message timer", err)
	}
	if ok {
		e.metrics.Transition(string(share.StatusDestructed))
		e.cancel(ctx, scheduler.ExpireShareKey(shareID))
		log.Info("share destructed with its control message")
	}
	return nil
}

// ExpireOverdue ends live shares whose expiry has passed, the way
// ExpireByTimer does. It backs up the expiry tasks and runs from the
// reconciliation sweep.
func (e *Engine) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := e.store.ListOverdueShares(ctx, e.clock.Now(), e.sweepBatch)
	if err != nil {
		return 0, share.Persistence("expire overdue", err)
	}

	expired := 0
	for _, sh := range overdue {
		ok, err := e.ExpireByTimer(ctx, sh.ID)
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
			e.cancel(ctx, scheduler.ExpireShareKey(sh.ID))
		}
	}
	return expired, nil
}

// degrade marks a live share expired with reason.
func (e *Engine) degrade(ctx context.Context, shareID, reason string) {
	if shareID == "" {
		return
	}
	ok, err := e.store.FailShare(ctx, shareID, reason, e.clock.Now())
	if err != nil {
		e.log.Error("failed to degrade share", "share_id", shareID, "error", err)
		return
	}
	if ok {
		e.metrics.Transition(string(share.StatusExpired))
		e.cancel(ctx, scheduler.ExpireShareKey(shareID))
		e.log.Warn("share degraded to expired", "share_id", shareID, "reason", reason)
	}
}

// finalize cleans up after a share reached a terminal state: pending timers
// are cancelled and the control message is deleted. Every step is best
// effort.
func (e *Engine) finalize(ctx context.Context, sh *share.Share) {
	e.cancel(ctx, scheduler.ExpireShareKey(sh.ID))
	if sh.ControlMessage == nil {
		return
	}
	ref := *sh.ControlMessage
	e.cancel(ctx, scheduler.DeleteMessageKey(ref.ChatID, ref.MessageID, sh.ID))
	if _, err := e.transport.DeleteMessage(ctx, ref); err != nil && !errors.Is(err, transport.ErrNotFound) {
		e.log.Warn("control message not deleted", "share_id", sh.ID, "message", ref.String(), "error", err)
	}
}

func (e *Engine) cancel(ctx context.Context, key string) {
	if err := e.sched.Cancel(ctx, key); err != nil {
		e.log.Warn("failed to cancel task", "key", key, "error", err)
	}
}
