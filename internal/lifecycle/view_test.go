package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sh1vu7/secreteshare/internal/scheduler"
	"github.com/sh1vu7/secreteshare/internal/share"
	"github.com/sh1vu7/secreteshare/internal/transport"
)

func TestRegisterView_SingleViewDestructs(t *testing.T) {
	f := newFixture(t)
	sh := f.create(t, f.linkSpec(share.Exactly(1)))

	out, err := f.engine.RegisterView(context.Background(), sh.AccessToken, share.Viewer{ID: viewerA})
	require.NoError(t, err)
	require.True(t, out.Granted())
	assert.Equal(t, share.StatusDestructed, out.Share.Status)
	assert.Equal(t, 1, out.Share.ViewCount)
	assert.NotNil(t, out.Share.DestructedAt)
}

func TestRegisterView_ThreeViewsThenDestructs(t *testing.T) {
	f := newFixture(t)
	sh := f.create(t, f.linkSpec(share.Exactly(3)))

	want := []share.Status{share.StatusViewed, share.StatusViewed, share.StatusDestructed}
	for i, status := range want {
		out, err := f.engine.RegisterView(context.Background(), sh.AccessToken, share.Viewer{ID: viewerA})
		require.NoError(t, err)
		require.True(t, out.Granted(), "view %d", i+1)
		assert.Equal(t, status, out.Share.Status, "view %d", i+1)
		assert.Equal(t, i+1, out.Share.ViewCount)
	}
}

func TestRegisterView_LinkShareExhausted(t *testing.T) {
	f := newFixture(t)
	sh := f.create(t, f.linkSpec(share.Exactly(1)))
	ctx := context.Background()

	first, err := f.engine.RegisterView(ctx, sh.AccessToken, share.Viewer{ID: viewerA})
	require.NoError(t, err)
	require.True(t, first.Granted())

	second, err := f.engine.RegisterView(ctx, sh.AccessToken, share.Viewer{ID: viewerB})
	require.NoError(t, err)
	assert.Equal(t, share.ViewConflict, second.Result)
	assert.Nil(t, second.Share)
}

func TestRegisterView_WrongRecipient(t *testing.T) {
	f := newFixture(t)
	sh := f.create(t, f.userSpec(viewerA, share.Exactly(1)))
	before := f.reload(t, sh.ID)

	out, err := f.engine.RegisterView(context.Background(), sh.AccessToken, share.Viewer{ID: viewerB})
	require.NoError(t, err)
	assert.Equal(t, share.ViewNotPermitted, out.Result)

	after := f.reload(t, sh.ID)
	assert.Equal(t, before, after, "no field may change")
}

func TestRegisterView_UnknownToken(t *testing.T) {
	f := newFixture(t)
	out, err := f.engine.RegisterView(context.Background(), "nope", share.Viewer{ID: viewerA})
	require.NoError(t, err)
	assert.Equal(t, share.ViewConflict, out.Result)
}

func TestRegisterView_AtMostMaxViews(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		f := newFixture(t)
		sh := f.create(t, f.linkSpec(share.Exactly(n)))

		granted := 0
		for i := 0; i < n+3; i++ {
			out, err := f.engine.RegisterView(context.Background(), sh.AccessToken, share.Viewer{ID: int64(1000 + i)})
			require.NoError(t, err)
			if out.Granted() {
				granted++
			}
		}
		assert.Equal(t, n, granted, "max_views=%d", n)
		assert.Equal(t, n, f.reload(t, sh.ID).ViewCount)
	}
}

func TestRegisterView_ConcurrentViewersSingleWinner(t *testing.T) {
	f := newFixture(t)
	sh := f.create(t, f.linkSpec(share.Exactly(1)))

	const viewers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		granted   int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < viewers; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			<-start
			out, err := f.engine.ResolveView(context.Background(), sh.AccessToken, share.Viewer{ID: id})
			if err != nil {
				t.Errorf("ResolveView: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch out.Result {
			case share.ViewGranted:
				granted++
			case share.ViewConflict:
				conflicts++
			}
		}(int64(1000 + i))
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, granted)
	assert.Equal(t, viewers-1, conflicts)
	assert.Len(t, f.tr.Deliveries(), 1, "content delivered exactly once")
}

func TestRegisterView_UnlimitedNeverDestructs(t *testing.T) {
	f := newFixture(t)
	sh := f.create(t, f.linkSpec(share.Unlimited()))

	for i := 0; i < 10; i++ {
		out, err := f.engine.RegisterView(context.Background(), sh.AccessToken, share.Viewer{ID: viewerA})
		require.NoError(t, err)
		require.True(t, out.Granted())
		assert.Equal(t, share.StatusViewed, out.Share.Status)
	}
}

func TestRegisterView_PastExpiryIsConflict(t *testing.T) {
	f := newFixture(t)
	spec := f.linkSpec(share.Exactly(5))
	spec.ExpiresAt = f.in(minute)
	sh := f.create(t, spec)
	ctx := context.Background()

	out, err := f.engine.RegisterView(ctx, sh.AccessToken, share.Viewer{ID: viewerA})
	require.NoError(t, err)
	require.True(t, out.Granted())

	f.clock.Advance(2 * minute)
	out, err = f.engine.RegisterView(ctx, sh.AccessToken, share.Viewer{ID: viewerA})
	require.NoError(t, err)
	assert.Equal(t, share.ViewConflict, out.Result)
	assert.Equal(t, share.StatusViewed, f.reload(t, sh.ID).Status)
}

func TestResolveView_DeliversWithProtection(t *testing.T) {
	f := newFixture(t)
	spec := f.linkSpec(share.Exactly(2))
	spec.Protection = share.Protection{HideAttribution: true, PreventResharing: true}
	sh := f.create(t, spec)

	out, err := f.engine.ResolveView(context.Background(), DeepLinkPrefix+sh.AccessToken, share.Viewer{ID: viewerA, Display: "Bob"})
	require.NoError(t, err)
	require.True(t, out.Granted())
	assert.True(t, out.Delivered)

	deliveries := f.tr.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, viewerA, deliveries[0].To)
	assert.Equal(t, sh.Content, deliveries[0].Content)
	assert.Equal(t, transport.DeliverOptions{Attribution: false, Protect: true}, deliveries[0].Options)

	notices := f.tr.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, senderID, notices[0].To)
	assert.Equal(t, "Your secret share-1 was viewed by Bob. 1 views left.", notices[0].Text)
}

func TestResolveView_NoNoticeWhenDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.accounts.ToggleSetting(ctx, senderID, "notify_on_view")
	require.NoError(t, err)
	sh := f.create(t, f.linkSpec(share.Exactly(1)))

	_, err = f.engine.ResolveView(ctx, sh.AccessToken, share.Viewer{ID: viewerA})
	require.NoError(t, err)
	assert.Empty(t, f.tr.Notices())
}

func TestResolveView_DeliveryFailureKeepsView(t *testing.T) {
	f := newFixture(t)
	sh := f.create(t, f.linkSpec(share.Exactly(1)))
	f.tr.FailNext(transport.OpDeliver, transport.ErrBlocked)

	out, err := f.engine.ResolveView(context.Background(), sh.AccessToken, share.Viewer{ID: viewerA})
	require.Error(t, err)
	assert.True(t, share.IsTransport(err))
	assert.True(t, errors.Is(err, transport.ErrBlocked))
	assert.True(t, out.Granted())
	assert.False(t, out.Delivered)
	assert.Equal(t, share.ReasonUndelivered, share.Reason(out))

	after := f.reload(t, sh.ID)
	assert.Equal(t, share.StatusDestructed, after.Status, "the view is not rolled back")
	assert.Empty(t, f.tr.Notices())
}

func TestResolveView_BannedViewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.accounts.SetBanned(ctx, viewerA, true))
	sh := f.create(t, f.linkSpec(share.Exactly(1)))

	out, err := f.engine.ResolveView(ctx, sh.AccessToken, share.Viewer{ID: viewerA})
	require.NoError(t, err)
	assert.Equal(t, share.ViewNotPermitted, out.Result)
	assert.Zero(t, f.reload(t, sh.ID).ViewCount)
}

func TestResolveView_DestructFinalizesUserShare(t *testing.T) {
	f := newFixture(t)
	spec := f.userSpec(viewerA, share.Exactly(1))
	spec.ExpiresAt = f.in(hour)
	sh := f.create(t, spec)
	require.NotNil(t, sh.ControlMessage)
	ctx := context.Background()

	out, err := f.engine.ResolveView(ctx, sh.AccessToken, share.Viewer{ID: viewerA})
	require.NoError(t, err)
	require.True(t, out.Granted())

	assert.False(t, f.tr.Live(*sh.ControlMessage), "control message deleted on destruct")
	tasks, err := f.store.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks, "timers cancelled on destruct")
}

func TestResolveView_UnlimitedNoticeCountsViews(t *testing.T) {
	f := newFixture(t)
	sh := f.create(t, f.linkSpec(share.Unlimited()))
	for i := 0; i < 2; i++ {
		_, err := f.engine.ResolveView(context.Background(), sh.AccessToken, share.Viewer{ID: viewerA})
		require.NoError(t, err)
	}
	notices := f.tr.Notices()
	require.Len(t, notices, 2)
	assert.Equal(t, "Your secret share-1 was viewed by user 200. Viewed 2 times so far.", notices[1].Text)
}

func TestExpireByTimer_ViewedLinkShareDestructs(t *testing.T) {
	f := newFixture(t)
	spec := f.linkSpec(share.Exactly(3))
	spec.ExpiresAt = f.in(minute)
	sh := f.create(t, spec)
	ctx := context.Background()

	_, err := f.engine.RegisterView(ctx, sh.AccessToken, share.Viewer{ID: viewerA})
	require.NoError(t, err)

	f.clock.Advance(2 * minute)
	n, err := f.sched.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	after := f.reload(t, sh.ID)
	assert.Equal(t, share.StatusDestructed, after.Status)
	require.NotNil(t, after.DestructedAt)
	assert.True(t, after.DestructedAt.Equal(f.clock.Now()))
	assert.Nil(t, after.ExpiredAt, "a viewed share is never expired")
	assert.Equal(t, 1, after.ViewCount)

	_, err = f.store.GetTask(ctx, scheduler.ExpireShareKey(sh.ID))
	assert.ErrorIs(t, err, scheduler.ErrTaskNotFound)

	count, err := f.engine.ActiveCount(ctx, senderID)
	require.NoError(t, err)
	assert.Zero(t, count)

	page, err := f.engine.ListBySender(ctx, senderID, 1, false)
	require.NoError(t, err)
	assert.Empty(t, page.Shares)

	ok, err := f.engine.Revoke(ctx, sh.ID, senderID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, f.reload(t, sh.ID).RevokedAt)

	out, err := f.engine.RegisterView(ctx, sh.AccessToken, share.Viewer{ID: viewerB})
	require.NoError(t, err)
	assert.Equal(t, share.ViewConflict, out.Result)
}
