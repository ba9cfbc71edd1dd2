package lifecycle

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sh1vu7/secreteshare/internal/account"
	"github.com/sh1vu7/secreteshare/internal/scheduler"
	"github.com/sh1vu7/secreteshare/internal/share"
	"github.com/sh1vu7/secreteshare/internal/store"
	"github.com/sh1vu7/secreteshare/internal/testutil"
	"github.com/sh1vu7/secreteshare/internal/transport"
)

const (
	senderID int64 = 100
	viewerA  int64 = 200
	viewerB  int64 = 300
)

type fixture struct {
	store    *store.Store
	clock    *testutil.FakeClock
	sched    *scheduler.Scheduler
	tr       *transport.Recorder
	accounts *account.Service
	engine   *Engine
}

// newFixture wires an engine to a temp sqlite store, a fake clock and a
// recording transport.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, transport.NewRecorder())
}

func newFixtureWith(t *testing.T, tr transport.Transport) *fixture {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "lifecycle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clk := testutil.NewFakeClock(time.Time{})
	sched := scheduler.New(st, clk, scheduler.DefaultOptions(), nil, nil)
	accounts := account.NewService(st, nil, clk, nil)
	eng := New(st, sched, tr, accounts,
		WithClock(clk),
		WithIDs(testutil.NewSequentialGenerator("share")),
		WithTokens(testutil.NewSequentialGenerator("tok")),
		WithBotUsername("TestBot"),
	)
	eng.RegisterTasks(sched)

	f := &fixture{store: st, clock: clk, sched: sched, accounts: accounts, engine: eng}
	if rec, ok := tr.(*transport.Recorder); ok {
		f.tr = rec
	}
	return f
}

func (f *fixture) linkSpec(maxViews share.MaxViews) share.Spec {
	return share.Spec{
		SenderID:      senderID,
		RecipientKind: share.RecipientLink,
		Content:       share.ContentRef{ChatID: senderID, MessageID: 10, Kind: share.ContentText},
		MaxViews:      maxViews,
	}
}

func (f *fixture) userSpec(recipient int64, maxViews share.MaxViews) share.Spec {
	return share.Spec{
		SenderID:         senderID,
		RecipientKind:    share.RecipientUser,
		RecipientID:      &recipient,
		RecipientDisplay: "Alice",
		Content:          share.ContentRef{ChatID: senderID, MessageID: 11, Kind: share.ContentMedia},
		MaxViews:         maxViews,
	}
}

func (f *fixture) create(t *testing.T, spec share.Spec) *share.Share {
	t.Helper()
	sh, err := f.engine.Create(context.Background(), spec)
	require.NoError(t, err)
	return sh
}

func (f *fixture) reload(t *testing.T, id string) *share.Share {
	t.Helper()
	sh, err := f.store.GetShare(context.Background(), id)
	require.NoError(t, err)
	return sh
}

func (f *fixture) in(d time.Duration) *time.Time {
	at := f.clock.Now().Add(d)
	return &at
}

const (
	minute = time.Minute
	hour   = time.Hour
)
