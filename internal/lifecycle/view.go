package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/sh1vu7/secreteshare/internal/share"
	"github.com/sh1vu7/secreteshare/internal/transport"
)

// RegisterView counts one view of the share holding token.
//
// The store performs the match and the write in one statement, so two
// concurrent viewers of a single-view share never both get ViewGranted.
// When nothing matched, a read-only lookup decides between NotPermitted
// (the share is bound to another user) and Conflict (everything else).
// Neither outcome mutates the share.
func (e *Engine) RegisterView(ctx context.Context, token string, viewer share.Viewer) (share.ViewOutcome, error) {
	now := e.clock.Now()
	sh, ok, err := e.store.RegisterView(ctx, token, viewer, now)
	if err != nil {
		return share.ViewOutcome{}, share.Persistence("register view", err)
	}
	if ok {
		e.metrics.ViewAttempt(string(share.ViewGranted))
		e.metrics.Transition(string(sh.Status))
		e.log.Info("view registered",
			"share_id", sh.ID, "viewer_id", viewer.ID, "view_count", sh.ViewCount, "status", sh.Status)
		return share.ViewOutcome{Result: share.ViewGranted, Share: sh}, nil
	}

	result := share.ViewConflict
	cur, err := e.store.GetShareByToken(ctx, token)
	switch {
	case errors.Is(err, share.ErrNotFound):
	case err != nil:
		return share.ViewOutcome{}, share.Persistence("register view", err)
	case cur.BoundTo(viewer.ID):
		result = share.ViewNotPermitted
	}

	e.metrics.ViewAttempt(string(result))
	e.log.Debug("view refused", "viewer_id", viewer.ID, "result", result)
	return share.ViewOutcome{Result: result}, nil
}

// ResolveView is the single entry point for viewers, used by both link
// clicks and button presses.
//
// A granted view is delivered with the share's protection flags. When
// delivery fails the view stays counted and a Transport error is returned
// together with the outcome. A share that ran out of views is finalized
// right away, and its sender is notified when they asked to be.
func (e *Engine) ResolveView(ctx context.Context, token string, viewer share.Viewer) (share.ViewOutcome, error) {
	banned, err := e.accounts.IsBanned(ctx, viewer.ID)
	if err != nil {
		return share.ViewOutcome{}, share.Persistence("resolve view", err)
	}
	if banned {
		e.metrics.ViewAttempt(string(share.ViewNotPermitted))
		return share.ViewOutcome{Result: share.ViewNotPermitted}, nil
	}

	out, err := e.RegisterView(ctx, ParseToken(token), viewer)
	if err != nil || !out.Granted() {
		return out, err
	}
	sh := out.Share
	log := e.log.With("share_id", sh.ID, "viewer_id", viewer.ID)

	_, derr := e.transport.Deliver(ctx, sh.Content, viewer.ID, transport.DeliverOptions{
		Attribution: !sh.Protection.HideAttribution,
		Protect:     sh.Protection.PreventResharing,
	})
	if derr != nil {
		log.Warn("delivery failed after view was counted", "reconcile", true, "error", derr)
	} else {
		out.Delivered = true
	}

	if sh.Status == share.StatusDestructed {
		e.finalize(ctx, sh)
	}
	if out.Delivered {
		e.notifySender(ctx, sh, viewer)
	}

	if derr != nil {
		return out, share.Transport("resolve view", derr)
	}
	return out, nil
}

func (e *Engine) notifySender(ctx context.Context, sh *share.Share, viewer share.Viewer) {
	settings, err := e.accounts.Settings(ctx, sh.SenderID)
	if err != nil {
		e.log.Warn("sender settings unavailable, skipping view notice", "share_id", sh.ID, "error", err)
		return
	}
	if !settings.NotifyOnView {
		return
	}
	if err := e.transport.Notify(ctx, sh.SenderID, viewNotice(sh, viewer)); err != nil {
		e.log.Warn("view notice not sent", "share_id", sh.ID, "sender_id", sh.SenderID, "error", err)
	}
}

func viewNotice(sh *share.Share, viewer share.Viewer) string {
	who := viewer.Display
	if who == "" {
		who = "user " + strconv.FormatInt(viewer.ID, 10)
	}
	msg := fmt.Sprintf("Your secret %s was viewed by %s.", shortID(sh.ID), who)
	switch left, limited := sh.RemainingViews(); {
	case sh.Status == share.StatusDestructed:
		msg += " It has now self-destructed."
	case !limited:
		msg += fmt.Sprintf(" Viewed %s times so far.", humanize.Comma(int64(sh.ViewCount)))
	default:
		msg += fmt.Sprintf(" %s views left.", humanize.Comma(int64(left)))
	}
	return msg
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}
