// Package transport defines how the core talks to the chat platform.
//
// The core never touches message content. It hands the transport an opaque
// share.ContentRef and a destination, and the transport copies the
// referenced message with the requested protection flags.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/sh1vu7/secreteshare/internal/share"
)

// Failure classes reported by transports. Wrap them so errors.Is works.
var (
	// ErrForbidden means the bot may not act on the chat or message.
	ErrForbidden = errors.New("transport: forbidden")
	// ErrNotFound means the message or chat no longer exists.
	ErrNotFound = errors.New("transport: not found")
	// ErrBlocked means the recipient has blocked the bot.
	ErrBlocked = errors.New("transport: blocked by user")
)

// Permanent reports whether err will not go away on retry.
func Permanent(err error) bool {
	return errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrBlocked)
}

// DeliverOptions are the delivery flags derived from a share's protection.
type DeliverOptions struct {
	// Attribution shows the original sender on the delivered copy.
	Attribution bool `json:"attribution"`
	// Protect prevents the recipient from forwarding or saving the copy.
	Protect bool `json:"protect"`
}

// DeliveryResult describes a delivered copy.
type DeliveryResult struct {
	Message share.MessageRef `json:"message"`
}

// ControlPayload is what a control message announces to a recipient.
type ControlPayload struct {
	ShareID     string            `json:"share_id"`
	AccessToken string            `json:"access_token"`
	SenderID    int64             `json:"sender_id"`
	ContentKind share.ContentKind `json:"content_kind"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	Link        string            `json:"link"`
}

// Transport is the message transport used by the lifecycle engine.
type Transport interface {
	// Deliver copies content to the chat of user to.
	Deliver(ctx context.Context, content share.ContentRef, to int64, opts DeliverOptions) (DeliveryResult, error)
	// SendControlMessage sends the "tap to view" message for a share.
	SendControlMessage(ctx context.Context, to int64, p ControlPayload) (share.MessageRef, error)
	// DeleteMessage removes a message. It returns false when the message
	// was already gone.
	DeleteMessage(ctx context.Context, ref share.MessageRef) (bool, error)
	// Notify sends a plain text notice to user to.
	Notify(ctx context.Context, to int64, text string) error
}

//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks github.com/sh1vu7/secreteshare/internal/transport Transport
