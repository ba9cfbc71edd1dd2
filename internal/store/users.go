package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sh1vu7/secreteshare/internal/account"
)

// GetUser returns the account record for id, or account.ErrUserNotFound.
func (s *Store) GetUser(ctx context.Context, id int64) (*account.Record, error) {
	var (
		rec          account.Record
		premiumUntil sql.NullInt64
		banned       int
		settings     string
		createdAt    int64
		updatedAt    int64
	)
	err := s.queryRow(ctx, `
		SELECT id, tier, premium_until, banned, settings, settings_version, created_at, updated_at
		FROM users WHERE id = ?
	`, id).Scan(&rec.ID, &rec.Tier, &premiumUntil, &banned, &settings, &rec.SettingsVersion, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	rec.PremiumUntil = fromNullMillis(premiumUntil)
	rec.Banned = banned != 0
	rec.Settings = []byte(settings)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return &rec, nil
}

// SaveUser inserts or replaces the account record. created_at is kept from
// the first insert.
func (s *Store) SaveUser(ctx context.Context, rec account.Record) error {
	settings := string(rec.Settings)
	if settings == "" {
		settings = "{}"
	}
	_, err := s.exec(ctx, `
		INSERT INTO users (id, tier, premium_until, banned, settings, settings_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tier = excluded.tier,
			premium_until = excluded.premium_until,
			banned = excluded.banned,
			settings = excluded.settings,
			settings_version = excluded.settings_version,
			updated_at = excluded.updated_at
	`,
		rec.ID, string(rec.Tier), nullMillis(rec.PremiumUntil), boolInt(rec.Banned),
		settings, rec.SettingsVersion, millis(rec.CreatedAt), millis(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}
