package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sh1vu7/secreteshare/internal/clock"
)

// ErrUserNotFound is returned by a Store when no record exists for an id.
var ErrUserNotFound = errors.New("user not found")

// Record is the persisted form of a user.
type Record struct {
	ID              int64
	Tier            Tier
	PremiumUntil    *time.Time
	Banned          bool
	Settings        []byte
	SettingsVersion int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Store persists user records.
type Store interface {
	GetUser(ctx context.Context, id int64) (*Record, error)
	SaveUser(ctx context.Context, rec Record) error
}

// User is a loaded account with migrated settings.
type User struct {
	ID           int64      `json:"id"`
	Tier         Tier       `json:"tier"`
	PremiumUntil *time.Time `json:"premium_until,omitempty"`
	Banned       bool       `json:"banned"`
	Settings     Settings   `json:"settings"`
	CreatedAt    time.Time  `json:"created_at"`

	persisted bool
}

// Service answers tier, limit and settings questions for the core.
type Service struct {
	store  Store
	limits map[Tier]Limits
	clock  clock.Clock
	log    *slog.Logger
}

// NewService creates a Service. A nil limits map uses DefaultLimits.
func NewService(store Store, limits map[Tier]Limits, clk clock.Clock, log *slog.Logger) *Service {
	if limits == nil {
		limits = DefaultLimits()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		limits: limits,
		clock:  clk,
		log:    log.With("component", "account"),
	}
}

// User loads the account for id. Unknown users get a free account that is
// only persisted once something about it changes.
//
// Settings stored under an older version are migrated here and written
// back once.
func (s *Service) User(ctx context.Context, id int64) (*User, error) {
	rec, err := s.store.GetUser(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return &User{
			ID:        id,
			Tier:      TierFree,
			Settings:  DefaultSettings(),
			CreatedAt: s.clock.Now(),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}

	settings, migrated, err := LoadSettings(rec.Settings, rec.SettingsVersion)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	u := &User{
		ID:           rec.ID,
		Tier:         rec.Tier,
		PremiumUntil: rec.PremiumUntil,
		Banned:       rec.Banned,
		Settings:     settings,
		CreatedAt:    rec.CreatedAt,
		persisted:    true,
	}
	if !u.Tier.Valid() {
		s.log.Warn("unknown tier, treating as free", "user_id", id, "tier", rec.Tier)
		u.Tier = TierFree
	}
	if migrated {
		s.log.Info("settings migrated", "user_id", id, "from_version", rec.SettingsVersion, "to_version", SettingsVersion)
		if err := s.save(ctx, u); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// Tier returns the user's current tier. A premium grant whose expiry has
// passed is reverted to free and persisted.
func (s *Service) Tier(ctx context.Context, id int64) (Tier, error) {
	u, err := s.User(ctx, id)
	if err != nil {
		return "", err
	}
	if u.Tier == TierPremium && u.PremiumUntil != nil && !s.clock.Now().Before(*u.PremiumUntil) {
		s.log.Info("premium expired", "user_id", id, "premium_until", *u.PremiumUntil)
		u.Tier = TierFree
		u.PremiumUntil = nil
		if err := s.save(ctx, u); err != nil {
			return "", err
		}
	}
	return u.Tier, nil
}

// Limits returns the limits for tier t, falling back to the free tier.
func (s *Service) Limits(t Tier) Limits {
	if l, ok := s.limits[t]; ok {
		return l
	}
	return s.limits[TierFree]
}

// LimitsFor resolves the user's tier and its limits in one call.
func (s *Service) LimitsFor(ctx context.Context, id int64) (Tier, Limits, error) {
	t, err := s.Tier(ctx, id)
	if err != nil {
		return "", Limits{}, err
	}
	return t, s.Limits(t), nil
}

// Settings returns the user's resolved settings.
func (s *Service) Settings(ctx context.Context, id int64) (Settings, error) {
	u, err := s.User(ctx, id)
	if err != nil {
		return Settings{}, err
	}
	return u.Settings, nil
}

// UpdateSettings applies fn to the user's settings and persists the result.
func (s *Service) UpdateSettings(ctx context.Context, id int64, fn func(*Settings) error) (Settings, error) {
	u, err := s.User(ctx, id)
	if err != nil {
		return Settings{}, err
	}
	if err := fn(&u.Settings); err != nil {
		return Settings{}, err
	}
	if err := s.save(ctx, u); err != nil {
		return Settings{}, err
	}
	return u.Settings, nil
}

// ToggleSetting flips one named setting.
func (s *Service) ToggleSetting(ctx context.Context, id int64, name string) (Settings, error) {
	return s.UpdateSettings(ctx, id, func(st *Settings) error {
		return st.Toggle(name)
	})
}

// GrantPremium upgrades the user. A nil until grants premium indefinitely.
func (s *Service) GrantPremium(ctx context.Context, id int64, until *time.Time) error {
	u, err := s.User(ctx, id)
	if err != nil {
		return err
	}
	u.Tier = TierPremium
	u.PremiumUntil = until
	s.log.Info("premium granted", "user_id", id, "until", until)
	return s.save(ctx, u)
}

// RevokePremium moves the user back to the free tier.
func (s *Service) RevokePremium(ctx context.Context, id int64) error {
	u, err := s.User(ctx, id)
	if err != nil {
		return err
	}
	u.Tier = TierFree
	u.PremiumUntil = nil
	s.log.Info("premium revoked", "user_id", id)
	return s.save(ctx, u)
}

// SetBanned bans or unbans the user.
func (s *Service) SetBanned(ctx context.Context, id int64, banned bool) error {
	u, err := s.User(ctx, id)
	if err != nil {
		return err
	}
	u.Banned = banned
	s.log.Info("ban updated", "user_id", id, "banned", banned)
	return s.save(ctx, u)
}

// IsBanned reports whether the user is banned.
func (s *Service) IsBanned(ctx context.Context, id int64) (bool, error) {
	u, err := s.User(ctx, id)
	if err != nil {
		return false, err
	}
	return u.Banned, nil
}

func (s *Service) save(ctx context.Context, u *User) error {
	raw, version, err := EncodeSettings(u.Settings)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	if !u.persisted {
		u.CreatedAt = now
	}
	rec := Record{
		ID:              u.ID,
		Tier:            u.Tier,
		PremiumUntil:    u.PremiumUntil,
		Banned:          u.Banned,
		Settings:        raw,
		SettingsVersion: version,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       now,
	}
	if err := s.store.SaveUser(ctx, rec); err != nil {
		return fmt.Errorf("save user %d: %w", u.ID, err)
	}
	u.persisted = true
	return nil
}
