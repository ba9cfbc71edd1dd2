package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sh1vu7/secreteshare/internal/account"
	"github.com/sh1vu7/secreteshare/internal/testutil"
)

func TestUsers_SaveAndGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.GetUser(ctx, 1)
	assert.ErrorIs(t, err, account.ErrUserNotFound)

	until := testNow.Add(30 * 24 * time.Hour)
	rec := account.Record{
		ID:              1,
		Tier:            account.TierPremium,
		PremiumUntil:    &until,
		Banned:          true,
		Settings:        []byte(`{"notify_on_view":false}`),
		SettingsVersion: account.SettingsVersion,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
	require.NoError(t, s.SaveUser(ctx, rec))

	got, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, rec, *got)
}

func TestUsers_SaveKeepsCreatedAt(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := account.Record{ID: 2, Tier: account.TierFree, CreatedAt: testNow, UpdatedAt: testNow}
	require.NoError(t, s.SaveUser(ctx, rec))

	rec.Tier = account.TierPremium
	rec.CreatedAt = testNow.Add(time.Hour)
	rec.UpdatedAt = testNow.Add(time.Hour)
	require.NoError(t, s.SaveUser(ctx, rec))

	got, err := s.GetUser(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, account.TierPremium, got.Tier)
	assert.True(t, got.CreatedAt.Equal(testNow))
	assert.True(t, got.UpdatedAt.Equal(testNow.Add(time.Hour)))
	assert.Equal(t, []byte("{}"), got.Settings)
}

func TestUsers_WorksWithAccountService(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	svc := account.NewService(s, nil, testutil.NewFakeClock(testNow), nil)
	settings, err := svc.ToggleSetting(ctx, 3, account.SettingProtectContent)
	require.NoError(t, err)
	assert.True(t, settings.ProtectContent)

	again, err := svc.Settings(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, settings, again)
}
