package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sh1vu7/secreteshare/internal/account"
)

// NewAccountCommand creates the account command group.
func NewAccountCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Inspect and administer user accounts",
	}
	cmd.AddCommand(newAccountShowCommand(rootOpts))
	cmd.AddCommand(newGrantPremiumCommand(rootOpts))
	cmd.AddCommand(newAccountActionCommand(rootOpts, "revoke-premium", "Return a user to the free tier",
		func(ctx context.Context, s *account.Service, id int64) error { return s.RevokePremium(ctx, id) }))
	cmd.AddCommand(newAccountActionCommand(rootOpts, "ban", "Ban a user from creating and viewing shares",
		func(ctx context.Context, s *account.Service, id int64) error { return s.SetBanned(ctx, id, true) }))
	cmd.AddCommand(newAccountActionCommand(rootOpts, "unban", "Lift a ban",
		func(ctx context.Context, s *account.Service, id int64) error { return s.SetBanned(ctx, id, false) }))
	return cmd
}

// AccountView is a user account with its effective limits.
type AccountView struct {
	User        *account.User `json:"user"`
	Limits      LimitsView    `json:"limits"`
	ActiveCount int           `json:"active_shares"`
}

// LimitsView is account.Limits as printed.
type LimitsView struct {
	MaxFileSize     string   `json:"max_file_size"`
	DestructTimers  []int    `json:"destruct_timers"`
	MaxViews        []string `json:"max_views"`
	MaxActiveShares int      `json:"max_active_shares"`
}

func newLimitsView(l account.Limits) LimitsView {
	v := LimitsView{
		MaxFileSize:     humanize.IBytes(uint64(l.MaxFileSize)),
		DestructTimers:  l.DestructTimerOptions,
		MaxActiveShares: l.MaxActiveShares,
	}
	for _, m := range l.MaxViewOptions {
		v.MaxViews = append(v.MaxViews, m.String())
	}
	return v
}

func (v AccountView) String() string {
	u := v.User
	var b strings.Builder
	fmt.Fprintf(&b, "User %d\n", u.ID)
	tier := string(u.Tier)
	if u.PremiumUntil != nil {
		tier += " until " + u.PremiumUntil.UTC().Format(timeLayout)
	}
	fmt.Fprintf(&b, "  Tier:          %s\n", tier)
	fmt.Fprintf(&b, "  Banned:        %t\n", u.Banned)
	if v.Limits.MaxActiveShares > 0 {
		fmt.Fprintf(&b, "  Active shares: %d of %d\n", v.ActiveCount, v.Limits.MaxActiveShares)
	} else {
		fmt.Fprintf(&b, "  Active shares: %d\n", v.ActiveCount)
	}
	fmt.Fprintf(&b, "  Max file size: %s\n", v.Limits.MaxFileSize)
	fmt.Fprintf(&b, "  Settings:      notify_on_view=%t protect_content=%t show_forward_tag=%t",
		u.Settings.NotifyOnView, u.Settings.ProtectContent, u.Settings.ShowForwardTag)
	return b.String()
}

// showAccount resolves the tier first so a lapsed premium grant shows as
// free.
func showAccount(ctx context.Context, a *app, id int64) (AccountView, error) {
	tier, limits, err := a.accounts.LimitsFor(ctx, id)
	if err != nil {
		return AccountView{}, err
	}
	u, err := a.accounts.User(ctx, id)
	if err != nil {
		return AccountView{}, err
	}
	u.Tier = tier
	active, err := a.engine.ActiveCount(ctx, id)
	if err != nil {
		return AccountView{}, err
	}
	return AccountView{User: u, Limits: newLimitsView(limits), ActiveCount: active}, nil
}

func newAccountShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a user's tier, limits and settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app, out *OutputFormatter) error {
				v, err := showAccount(ctx, a, id)
				if err != nil {
					return out.Fail("account lookup failed", err)
				}
				return out.Success(v)
			})
		},
	}
}

func newGrantPremiumCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		until string
		dur   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "grant-premium <user-id>",
		Short: "Move a user to the premium tier",
		Long: `Grants premium, permanently or until a point in time given with --until
(RFC 3339) or --for (a duration such as 720h).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			if until != "" && dur != 0 {
				return NewExitError(ExitCommandError, "--until and --for are mutually exclusive")
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app, out *OutputFormatter) error {
				var expiry *time.Time
				switch {
				case until != "":
					t, err := time.Parse(time.RFC3339, until)
					if err != nil {
						return NewExitError(ExitCommandError, fmt.Sprintf("invalid --until %q: want RFC 3339", until))
					}
					expiry = &t
				case dur < 0:
					return NewExitError(ExitCommandError, "--for must be positive")
				case dur > 0:
					t := a.clock.Now().Add(dur)
					expiry = &t
				}
				if err := a.accounts.GrantPremium(ctx, id, expiry); err != nil {
					return out.Fail("grant failed", err)
				}
				v, err := showAccount(ctx, a, id)
				if err != nil {
					return out.Fail("account lookup failed", err)
				}
				return out.Success(v)
			})
		},
	}
	cmd.Flags().StringVar(&until, "until", "", "premium expiry as an RFC 3339 timestamp")
	cmd.Flags().DurationVar(&dur, "for", 0, "premium duration from now")
	return cmd
}

func newAccountActionCommand(rootOpts *RootOptions, use, short string, fn func(context.Context, *account.Service, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app, out *OutputFormatter) error {
				if err := fn(ctx, a.accounts, id); err != nil {
					return out.Fail(use+" failed", err)
				}
				v, err := showAccount(ctx, a, id)
				if err != nil {
					return out.Fail("account lookup failed", err)
				}
				return out.Success(v)
			})
		},
	}
}
