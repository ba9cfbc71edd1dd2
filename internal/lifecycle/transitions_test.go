package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sh1vu7/secreteshare/internal/scheduler"
	"github.com/sh1vu7/secreteshare/internal/share"
	"github.com/sh1vu7/secreteshare/internal/transport"
)

func TestRevoke_FinalAndIdempotent(t *testing.T) {
	f := newFixture(t)
	spec := f.userSpec(viewerA, share.Exactly(3))
	spec.ExpiresAt = f.in(hour)
	sh := f.create(t, spec)
	ctx := context.Background()

	ok, err := f.engine.Revoke(ctx, sh.ID, senderID)
	require.NoError(t, err)
	require.True(t, ok)

	revoked := f.reload(t, sh.ID)
	assert.Equal(t, share.StatusRevoked, revoked.Status)
	require.NotNil(t, revoked.RevokedAt)
	assert.Equal(t, *revoked.RevokedAt, *revoked.ExpiresAt, "expiry pulled to revoke time")
	assert.False(t, f.tr.Live(*sh.ControlMessage))

	tasks, err := f.store.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks, "expiry and deletion tasks cancelled")

	f.clock.Advance(minute)
	ok, err = f.engine.Revoke(ctx, sh.ID, senderID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, revoked, f.reload(t, sh.ID), "second revoke mutates nothing")

	out, err := f.engine.RegisterView(ctx, sh.AccessToken, share.Viewer{ID: viewerA})
	require.NoError(t, err)
	assert.Equal(t, share.ViewConflict, out.Result)
}

func TestRevoke_OnlySender(t *testing.T) {
	f := newFixture(t)
	sh := f.create(t, f.linkSpec(share.Exactly(1)))

	ok, err := f.engine.Revoke(context.Background(), sh.ID, viewerA)
	assert.False(t, ok)
	assert.True(t, share.IsNotPermitted(err))
	assert.Equal(t, share.StatusActive, f.reload(t, sh.ID).Status)
}

func TestRevoke_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Revoke(context.Background(), "missing", senderID)
	assert.ErrorIs(t, err, share.ErrNotFound)
}

func TestRevoke_ViewedShare(t *testing.T) {
	f := newFixture(t)
	sh := f.create(t, f.linkSpec(share.Exactly(3)))
	ctx := context.Background()
	_, err := f.engine.RegisterView(ctx, sh.AccessToken, share.Viewer{ID: viewerA})
	require.NoError(t, err)

	ok, err := f.engine.Revoke(ctx, sh.ID, senderID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpireByTimer_DoesNotOverrideDestruct(t *testing.T) {
	f := newFixture(t)
	spec := f.linkSpec(share.Exactly(1))
	spec.ExpiresAt = f.in(minute)
	sh := f.create(t, spec)
	ctx := context.Background()

	// Keep the expiry task around so it really fires after the view.
	_, ok, err := f.store.RegisterView(ctx, sh.AccessToken, share.Viewer{ID: viewerA}, f.clock.Now())
	require.NoError(t, err)
	require.True(t, ok)

	f.clock.Advance(minute)
	expired, err := f.engine.ExpireByTimer(ctx, sh.ID)
	require.NoError(t, err)
	assert.False(t, expired)

	after := f.reload(t, sh.ID)
	assert.Equal(t, share.StatusDestructed, after.Status)
	assert.Nil(t, after.ExpiredAt)
}

func TestRevoke_PastExpiryRefused(t *testing.T) {
	f := newFixture(t)
	spec := f.linkSpec(share.Exactly(3))
	spec.ExpiresAt = f.in(minute)
	sh := f.create(t, spec)
	ctx := context.Background()
	_, err := f.engine.RegisterView(ctx, sh.AccessToken, share.Viewer{ID: viewerA})
	require.NoError(t, err)

	// The expiry has passed but no task or sweep has run yet.
	f.clock.Advance(2 * minute)
	ok, err := f.engine.Revoke(ctx, sh.ID, senderID)
	require.NoError(t, err)
	assert.False(t, ok)

	after := f.reload(t, sh.ID)
	assert.Equal(t, share.StatusViewed, after.Status)
	assert.Nil(t, after.RevokedAt)
	assert.True(t, after.ExpiresAt.Equal(*spec.ExpiresAt), "expiry left as set")

	count, err := f.engine.ActiveCount(ctx, senderID)
	require.NoError(t, err)
	assert.Zero(t, count, "overdue shares do not count as live")
}

func TestExpireByTimer_ActiveShare(t *testing.T) {
	f := newFixture(t)
	spec := f.linkSpec(share.Exactly(1))
	spec.ExpiresAt = f.in(minute)
	sh := f.create(t, spec)
	ctx := context.Background()

	f.clock.Advance(minute)
	_, err := f.sched.RunDue(ctx)
	require.NoError(t, err)

	after := f.reload(t, sh.ID)
	assert.Equal(t, share.StatusExpired, after.Status)
	assert.NotNil(t, after.ExpiredAt)

	out, err := f.engine.RegisterView(ctx, sh.AccessToken, share.Viewer{ID: viewerA})
	require.NoError(t, err)
	assert.Equal(t, share.ViewConflict, out.Result)
}

func TestControlMessageDeletedAtExpiry(t *testing.T) {
	f := newFixture(t)
	spec := f.userSpec(viewerA, share.Exactly(1))
	spec.ExpiresAt = f.in(10 * minute)
	sh := f.create(t, spec)
	ctx := context.Background()

	f.clock.Advance(10 * minute)
	n, err := f.sched.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	after := f.reload(t, sh.ID)
	assert.Equal(t, share.StatusExpired, after.Status, "expiry runs before the deletion")
	assert.Empty(t, after.FailureReason)
	assert.False(t, f.tr.Live(*sh.ControlMessage))
}

func TestDeleteMessageTimer(t *testing.T) {
	ctx := context.Background()

	t.Run("success destructs live share", func(t *testing.T) {
		f := newFixture(t)
		sh := f.create(t, f.userSpec(viewerA, share.Exactly(1)))

		require.NoError(t, f.engine.DeleteMessageTimer(ctx, *sh.ControlMessage, sh.ID))
		after := f.reload(t, sh.ID)
		assert.Equal(t, share.StatusDestructed, after.Status)
		assert.NotNil(t, after.DestructedAt)
	})

	t.Run("message already gone degrades share", func(t *testing.T) {
		f := newFixture(t)
		sh := f.create(t, f.userSpec(viewerA, share.Exactly(1)))
		_, err := f.tr.DeleteMessage(ctx, *sh.ControlMessage)
		require.NoError(t, err)

		require.NoError(t, f.engine.DeleteMessageTimer(ctx, *sh.ControlMessage, sh.ID))
		after := f.reload(t, sh.ID)
		assert.Equal(t, share.StatusExpired, after.Status)
		assert.Equal(t, "control message already gone", after.FailureReason)
	})

	t.Run("forbidden degrades share", func(t *testing.T) {
		f := newFixture(t)
		sh := f.create(t, f.userSpec(viewerA, share.Exactly(1)))
		f.tr.FailNext(transport.OpDelete, transport.ErrForbidden)

		require.NoError(t, f.engine.DeleteMessageTimer(ctx, *sh.ControlMessage, sh.ID))
		after := f.reload(t, sh.ID)
		assert.Equal(t, share.StatusExpired, after.Status)
		assert.Contains(t, after.FailureReason, "forbidden")
	})

	t.Run("transient error is retried", func(t *testing.T) {
		f := newFixture(t)
		sh := f.create(t, f.userSpec(viewerA, share.Exactly(1)))
		f.tr.FailNext(transport.OpDelete, errors.New("gateway timeout"))

		err := f.engine.DeleteMessageTimer(ctx, *sh.ControlMessage, sh.ID)
		require.Error(t, err)
		assert.Equal(t, share.StatusActive, f.reload(t, sh.ID).Status)
	})

	t.Run("terminal share is left alone", func(t *testing.T) {
		f := newFixture(t)
		sh := f.create(t, f.userSpec(viewerA, share.Exactly(1)))
		_, ok, err := f.store.RevokeShare(ctx, sh.ID, f.clock.Now())
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, f.engine.DeleteMessageTimer(ctx, *sh.ControlMessage, sh.ID))
		assert.Equal(t, share.StatusRevoked, f.reload(t, sh.ID).Status)
	})

	t.Run("no share id", func(t *testing.T) {
		f := newFixture(t)
		ref, err := f.tr.SendControlMessage(ctx, viewerA, transport.ControlPayload{})
		require.NoError(t, err)
		require.NoError(t, f.engine.DeleteMessageTimer(ctx, ref, ""))
		assert.False(t, f.tr.Live(ref))
	})
}

func TestDeleteTaskAbandonDegradesShare(t *testing.T) {
	f := newFixture(t)
	spec := f.userSpec(viewerA, share.Exactly(1))
	spec.ExpiresAt = f.in(minute)
	sh := f.create(t, spec)
	ctx := context.Background()

	// Long outage: both tasks are past the misfire grace when processed.
	f.clock.Advance(2 * hour)
	_, err := f.sched.RunDue(ctx)
	require.NoError(t, err)

	after := f.reload(t, sh.ID)
	assert.Equal(t, share.StatusExpired, after.Status)
	assert.Contains(t, after.FailureReason, "abandoned")
}

func TestExpireOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	spec := f.linkSpec(share.Exactly(1))
	spec.ExpiresAt = f.in(minute)
	overdue := f.create(t, spec)
	spec.ExpiresAt = f.in(hour)
	later := f.create(t, spec)
	noExpiry := f.create(t, f.linkSpec(share.Exactly(1)))

	// Simulate lost tasks.
	require.NoError(t, f.sched.Cancel(ctx, scheduler.ExpireShareKey(overdue.ID)))

	f.clock.Advance(5 * minute)
	n, err := f.engine.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, share.StatusExpired, f.reload(t, overdue.ID).Status)
	assert.Equal(t, share.StatusActive, f.reload(t, later.ID).Status)
	assert.Equal(t, share.StatusActive, f.reload(t, noExpiry.ID).Status)

	n, err = f.engine.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExpireOverdue_ViewedShareDestructs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	spec := f.linkSpec(share.Exactly(3))
	spec.ExpiresAt = f.in(minute)
	viewed := f.create(t, spec)
	fresh := f.create(t, spec)

	_, err := f.engine.RegisterView(ctx, viewed.AccessToken, share.Viewer{ID: viewerA})
	require.NoError(t, err)

	// Simulate lost tasks.
	require.NoError(t, f.sched.Cancel(ctx, scheduler.ExpireShareKey(viewed.ID)))
	require.NoError(t, f.sched.Cancel(ctx, scheduler.ExpireShareKey(fresh.ID)))

	f.clock.Advance(2 * minute)
	n, err := f.engine.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, share.StatusDestructed, f.reload(t, viewed.ID).Status)
	assert.Equal(t, share.StatusExpired, f.reload(t, fresh.ID).Status)

	count, err := f.engine.ActiveCount(ctx, senderID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestExpireOverdue_ViewedUserShareDeletesControlMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	spec := f.userSpec(viewerA, share.Exactly(3))
	spec.ExpiresAt = f.in(minute)
	sh := f.create(t, spec)
	_, err := f.engine.RegisterView(ctx, sh.AccessToken, share.Viewer{ID: viewerA})
	require.NoError(t, err)

	f.clock.Advance(2 * minute)
	n, err := f.engine.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, share.StatusDestructed, f.reload(t, sh.ID).Status)
	assert.False(t, f.tr.Live(*sh.ControlMessage))

	tasks, err := f.store.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks, "expiry and deletion tasks cancelled")
}
