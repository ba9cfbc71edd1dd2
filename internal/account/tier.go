package account

import (
	"slices"

	"github.com/sh1vu7/secreteshare/internal/share"
)

// Tier is the account level of a user.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierFree || t == TierPremium
}

// Limits are the per-tier constraints applied while creating a share.
type Limits struct {
	// MaxFileSize is the largest media file accepted, in bytes.
	MaxFileSize int64
	// DestructTimerOptions lists allowed timers in minutes; 0 means no timer.
	DestructTimerOptions []int
	// MaxViewOptions lists the view budgets offered to the sender.
	MaxViewOptions []share.MaxViews
	// DefaultMaxViews is preselected when the sender does not choose.
	DefaultMaxViews share.MaxViews
	// MaxActiveShares caps live shares per sender; 0 disables the cap.
	MaxActiveShares int
}

// AllowsTimer reports whether minutes is one of the offered timers.
func (l Limits) AllowsTimer(minutes int) bool {
	return slices.Contains(l.DestructTimerOptions, minutes)
}

// AllowsMaxViews reports whether m is one of the offered view budgets.
func (l Limits) AllowsMaxViews(m share.MaxViews) bool {
	return slices.Contains(l.MaxViewOptions, m)
}

// DefaultLimits returns the built-in limits for both tiers.
func DefaultLimits() map[Tier]Limits {
	free := Limits{
		MaxFileSize:          1024 << 20,
		DestructTimerOptions: []int{0, 1, 5, 10, 30, 60, 120, 360, 720, 1440},
		MaxViewOptions: []share.MaxViews{
			share.Exactly(1), share.Exactly(2), share.Exactly(30), share.Exactly(500),
			share.Exactly(10000), share.Exactly(250000), share.Exactly(5000000),
		},
		DefaultMaxViews: share.Exactly(1000000),
		MaxActiveShares: 500,
	}
	premium := Limits{
		MaxFileSize:          2048 << 20,
		DestructTimerOptions: append(slices.Clone(free.DestructTimerOptions), 2880),
		MaxViewOptions:       append(slices.Clone(free.MaxViewOptions), share.Unlimited()),
		DefaultMaxViews:      share.Exactly(3000000),
		MaxActiveShares:      4000,
	}
	return map[Tier]Limits{TierFree: free, TierPremium: premium}
}

// AcceptsMaxViews reports whether m is an offered budget or the tier default.
func (l Limits) AcceptsMaxViews(m share.MaxViews) bool {
	return m == l.DefaultMaxViews || l.AllowsMaxViews(m)
}
