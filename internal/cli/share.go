package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sh1vu7/secreteshare/internal/lifecycle"
	"github.com/sh1vu7/secreteshare/internal/share"
)

// NewShareCommand creates the share command group.
func NewShareCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Inspect and administer shares",
	}
	cmd.AddCommand(newShareShowCommand(rootOpts))
	cmd.AddCommand(newShareListCommand(rootOpts))
	cmd.AddCommand(newShareRevokeCommand(rootOpts))
	cmd.AddCommand(newShareDeleteCommand(rootOpts))
	return cmd
}

// ShareView is a share as shown to an operator. The access token is never
// printed.
type ShareView struct {
	ID            string       `json:"id"`
	SenderID      int64        `json:"sender_id"`
	RecipientKind string       `json:"recipient_kind"`
	Recipient     string       `json:"recipient,omitempty"`
	ContentKind   string       `json:"content_kind"`
	Status        share.Status `json:"status"`
	ViewCount     int          `json:"view_count"`
	MaxViews      string       `json:"max_views"`
	CreatedAt     string       `json:"created_at"`
	ExpiresAt     string       `json:"expires_at,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`

	expiresIn string
}

func newShareView(sh *share.Share) ShareView {
	v := ShareView{
		ID:            sh.ID,
		SenderID:      sh.SenderID,
		RecipientKind: string(sh.RecipientKind),
		ContentKind:   string(sh.Content.Kind),
		Status:        sh.Status,
		ViewCount:     sh.ViewCount,
		MaxViews:      sh.MaxViews.String(),
		CreatedAt:     sh.CreatedAt.UTC().Format(timeLayout),
		FailureReason: sh.FailureReason,
	}
	if sh.RecipientID != nil {
		v.Recipient = strconv.FormatInt(*sh.RecipientID, 10)
		if sh.RecipientDisplay != "" {
			v.Recipient = fmt.Sprintf("%s (%d)", sh.RecipientDisplay, *sh.RecipientID)
		}
	}
	if sh.ExpiresAt != nil {
		v.ExpiresAt = sh.ExpiresAt.UTC().Format(timeLayout)
		v.expiresIn = humanize.Time(*sh.ExpiresAt)
	}
	return v
}

const timeLayout = "2006-01-02 15:04:05Z07:00"

func (v ShareView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Share %s\n", v.ID)
	fmt.Fprintf(&b, "  Status:     %s\n", v.Status)
	fmt.Fprintf(&b, "  Sender:     %d\n", v.SenderID)
	if v.Recipient != "" {
		fmt.Fprintf(&b, "  Recipient:  %s %s\n", v.RecipientKind, v.Recipient)
	} else {
		fmt.Fprintf(&b, "  Recipient:  %s\n", v.RecipientKind)
	}
	fmt.Fprintf(&b, "  Content:    %s\n", v.ContentKind)
	fmt.Fprintf(&b, "  Views:      %d of %s\n", v.ViewCount, v.MaxViews)
	fmt.Fprintf(&b, "  Created:    %s\n", v.CreatedAt)
	if v.ExpiresAt != "" {
		fmt.Fprintf(&b, "  Expires:    %s (%s)\n", v.ExpiresAt, v.expiresIn)
	}
	if v.FailureReason != "" {
		fmt.Fprintf(&b, "  Failure:    %s\n", v.FailureReason)
	}
	return strings.TrimRight(b.String(), "\n")
}

func newShareShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <share-id>",
		Short: "Show one share",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app, out *OutputFormatter) error {
				sh, err := a.engine.Get(ctx, args[0])
				if err != nil {
					return out.Fail("share lookup failed", err)
				}
				return out.Success(newShareView(sh))
			})
		},
	}
}

// ShareList is one page of a sender's shares.
type ShareList struct {
	SenderID int64       `json:"sender_id"`
	Shares   []ShareView `json:"shares"`
	Page     int         `json:"page"`
	Pages    int         `json:"pages"`
	Total    int         `json:"total"`
}

func newShareList(senderID int64, p lifecycle.Page) ShareList {
	l := ShareList{SenderID: senderID, Page: p.Page, Pages: p.Pages, Total: p.Total, Shares: []ShareView{}}
	for _, sh := range p.Shares {
		l.Shares = append(l.Shares, newShareView(sh))
	}
	return l
}

func (l ShareList) String() string {
	if l.Total == 0 {
		return fmt.Sprintf("No shares for user %d", l.SenderID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Shares of user %d (page %d of %d, %d total)\n", l.SenderID, l.Page, l.Pages, l.Total)
	for _, v := range l.Shares {
		fmt.Fprintf(&b, "  %s  %-10s %-4s %-5s views %d/%s\n", v.ID, v.Status, v.RecipientKind, v.ContentKind, v.ViewCount, v.MaxViews)
	}
	return strings.TrimRight(b.String(), "\n")
}

func newShareListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		page int
		all  bool
	)
	cmd := &cobra.Command{
		Use:   "list <sender-id>",
		Short: "List a sender's shares, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			senderID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			if page < 1 {
				return NewExitError(ExitCommandError, "--page must be at least 1")
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app, out *OutputFormatter) error {
				p, err := a.engine.ListBySender(ctx, senderID, page, all)
				if err != nil {
					return out.Fail("listing failed", err)
				}
				return out.Success(newShareList(senderID, p))
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number, starting at 1")
	cmd.Flags().BoolVar(&all, "all", false, "include expired, revoked and destructed shares")
	return cmd
}

// ShareActionResult reports the outcome of revoke or delete.
type ShareActionResult struct {
	ShareID string `json:"share_id"`
	Action  string `json:"action"`
	Changed bool   `json:"changed"`
}

func (r ShareActionResult) String() string {
	if !r.Changed {
		return fmt.Sprintf("Share %s unchanged (already finished)", r.ShareID)
	}
	return fmt.Sprintf("✓ Share %s %s", r.ShareID, r.Action)
}

func newShareRevokeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <share-id>",
		Short: "Revoke a live share on behalf of its sender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app, out *OutputFormatter) error {
				sh, err := a.engine.Get(ctx, args[0])
				if err != nil {
					return out.Fail("share lookup failed", err)
				}
				revoked, err := a.engine.Revoke(ctx, sh.ID, sh.SenderID)
				if err != nil {
					return out.Fail("revoke failed", err)
				}
				return out.Success(ShareActionResult{ShareID: sh.ID, Action: "revoked", Changed: revoked})
			})
		},
	}
}

func newShareDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <share-id>",
		Short: "Remove a share record, its tasks and its control message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app, out *OutputFormatter) error {
				removed, err := a.engine.HardDelete(ctx, args[0])
				if err != nil {
					return out.Fail("delete failed", err)
				}
				return out.Success(ShareActionResult{ShareID: args[0], Action: "deleted", Changed: removed})
			})
		},
	}
}

// parseUserID parses a numeric chat user id argument.
func parseUserID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid user id %q", arg))
	}
	return id, nil
}
