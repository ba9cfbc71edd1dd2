package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sh1vu7/secreteshare/internal/share"
	"github.com/sh1vu7/secreteshare/internal/testutil"
)

type sessionBackend interface {
	SessionStore
	SessionLister
}

func sessionStores(t *testing.T) map[string]func(t *testing.T) sessionBackend {
	return map[string]func(t *testing.T) sessionBackend{
		"memory": func(*testing.T) sessionBackend { return NewMemoryStore() },
		"pebble": func(t *testing.T) sessionBackend {
			s, err := OpenPebbleStore(t.TempDir())
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func sampleSession(user int64) *Session {
	deadline := testutil.Epoch.Add(5 * time.Minute)
	minutes := 10
	views := share.Unlimited()
	recipient := int64(42)
	return &Session{
		UserID: user,
		FlowID: "flow-x",
		State:  StateAwaitingMaxViews,
		Collected: Collected{
			ContentType:      share.ContentMedia,
			Content:          &share.ContentRef{ChatID: user, MessageID: 9, Kind: share.ContentMedia},
			FileSize:         2048,
			FileName:         "a.png",
			RecipientKind:    share.RecipientUser,
			RecipientID:      &recipient,
			RecipientDisplay: "Zoë",
			Protection:       share.Protection{HideAttribution: true},
			DestructMinutes:  &minutes,
			MaxViews:         &views,
		},
		Deadline:  &deadline,
		StartedAt: testutil.Epoch,
		UpdatedAt: testutil.Epoch.Add(time.Minute),
	}
}

func TestSessionStores(t *testing.T) {
	for name, open := range sessionStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			got, err := store.Get(ctx, alice)
			require.NoError(t, err)
			assert.Nil(t, got)

			in := sampleSession(alice)
			require.NoError(t, store.Set(ctx, in))
			require.NoError(t, store.Set(ctx, sampleSession(bob)))

			got, err = store.Get(ctx, alice)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, in.FlowID, got.FlowID)
			assert.Equal(t, in.State, got.State)
			assert.True(t, in.Deadline.Equal(*got.Deadline))
			assert.Equal(t, in.Collected.Content, got.Collected.Content)
			assert.Equal(t, share.Unlimited(), *got.Collected.MaxViews)
			assert.Equal(t, int64(42), *got.Collected.RecipientID)

			// Stored copies are independent of the caller's value.
			got.State = StateAwaitingConfirmation
			again, err := store.Get(ctx, alice)
			require.NoError(t, err)
			assert.Equal(t, StateAwaitingMaxViews, again.State)

			list, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, alice, list[0].UserID)
			assert.Equal(t, bob, list[1].UserID)

			require.NoError(t, store.Clear(ctx, alice))
			require.NoError(t, store.Clear(ctx, alice), "clearing twice is fine")
			got, err = store.Get(ctx, alice)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestPebbleStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenPebbleStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, sampleSession(alice)))
	require.NoError(t, s.Close())

	s, err = OpenPebbleStore(dir)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, alice)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "flow-x", got.FlowID)
	assert.Equal(t, "Zoë", got.Collected.RecipientDisplay)
}
