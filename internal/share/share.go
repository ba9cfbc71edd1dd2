package share

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a share.
//
// Transitions only move forward:
//
//	active -> viewed -> destructed
//	active -> {expired, revoked, destructed}
//	viewed -> {revoked, destructed}
type Status string

const (
	StatusActive     Status = "active"
	StatusViewed     Status = "viewed"
	StatusExpired    Status = "expired"
	StatusRevoked    Status = "revoked"
	StatusDestructed Status = "destructed"
)

// Live reports whether the share can still be viewed or revoked.
func (s Status) Live() bool {
	return s == StatusActive || s == StatusViewed
}

// Terminal reports whether the share has reached a final state.
func (s Status) Terminal() bool {
	return !s.Live()
}

// RecipientKind selects who may open a share.
type RecipientKind string

const (
	// RecipientUser binds the share to one user id.
	RecipientUser RecipientKind = "user"
	// RecipientLink lets anyone holding the access token open the share.
	RecipientLink RecipientKind = "link"
)

// Valid reports whether k is a known recipient kind.
func (k RecipientKind) Valid() bool {
	return k == RecipientUser || k == RecipientLink
}

// ContentKind describes what the referenced message carries.
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentMedia ContentKind = "media"
)

// Valid reports whether k is a known content kind.
func (k ContentKind) Valid() bool {
	return k == ContentText || k == ContentMedia
}

// ContentRef locates the secret inside the transport's storage.
// The core never reads the content itself.
type ContentRef struct {
	ChatID    int64       `json:"chat_id"`
	MessageID int64       `json:"message_id"`
	Kind      ContentKind `json:"kind"`
}

// MessageRef identifies a message the transport sent on our behalf.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

func (r MessageRef) String() string {
	return fmt.Sprintf("%d/%d", r.ChatID, r.MessageID)
}

// Protection holds the delivery flags chosen by the sender.
type Protection struct {
	HideAttribution  bool `json:"hide_attribution"`
	PreventResharing bool `json:"prevent_resharing"`
}

// Viewer identifies whoever is trying to open a share.
type Viewer struct {
	ID      int64  `json:"id"`
	Display string `json:"display,omitempty"`
}

// Share is the persisted record of one secret.
type Share struct {
	ID               string        `json:"id"`
	AccessToken      string        `json:"access_token"`
	SenderID         int64         `json:"sender_id"`
	RecipientKind    RecipientKind `json:"recipient_kind"`
	RecipientID      *int64        `json:"recipient_id,omitempty"`
	RecipientDisplay string        `json:"recipient_display,omitempty"`
	Content          ContentRef    `json:"content"`
	Protection       Protection    `json:"protection"`
	MaxViews         MaxViews      `json:"max_views"`
	ViewCount        int           `json:"view_count"`
	Status           Status        `json:"status"`
	ControlMessage   *MessageRef   `json:"control_message,omitempty"`
	FailureReason    string        `json:"failure_reason,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	ViewedAt     *time.Time `json:"viewed_at,omitempty"`
	ViewedBy     *int64     `json:"viewed_by,omitempty"`
	ExpiredAt    *time.Time `json:"expired_at,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	DestructedAt *time.Time `json:"destructed_at,omitempty"`
}

// RemainingViews returns how many views are left and false when unlimited.
func (s *Share) RemainingViews() (int, bool) {
	n, limited := s.MaxViews.Limit()
	if !limited {
		return 0, false
	}
	if left := n - s.ViewCount; left > 0 {
		return left, true
	}
	return 0, true
}

// BoundTo reports whether the share is reserved for a user other than id.
func (s *Share) BoundTo(id int64) bool {
	return s.RecipientKind == RecipientUser && s.RecipientID != nil && *s.RecipientID != id
}

// Spec is everything needed to create a share.
// Identifiers, status and counters are assigned by the lifecycle engine.
type Spec struct {
	SenderID         int64
	RecipientKind    RecipientKind
	RecipientID      *int64
	RecipientDisplay string
	Content          ContentRef
	Protection       Protection
	MaxViews         MaxViews
	ExpiresAt        *time.Time
}

// Validate checks the spec for structural problems.
func (s Spec) Validate() error {
	if s.SenderID <= 0 {
		return Validation("create", "sender is required")
	}
	if !s.RecipientKind.Valid() {
		return Validation("create", "unknown recipient kind %q", s.RecipientKind)
	}
	if s.RecipientKind == RecipientUser && s.RecipientID == nil {
		return Validation("create", "a specific-user share needs a recipient")
	}
	if s.RecipientID != nil && *s.RecipientID == s.SenderID {
		return Validation("create", "you cannot send a secret to yourself")
	}
	if !s.Content.Kind.Valid() {
		return Validation("create", "unknown content kind %q", s.Content.Kind)
	}
	return nil
}

// ViewResult classifies the outcome of a view attempt.
type ViewResult string

const (
	// ViewGranted means the view was counted and content may be delivered.
	ViewGranted ViewResult = "granted"
	// ViewConflict means no live share within budget matched the token.
	ViewConflict ViewResult = "conflict"
	// ViewNotPermitted means the share is bound to someone else.
	ViewNotPermitted ViewResult = "not_permitted"
)

// ViewOutcome is returned by view registration. Conflict and NotPermitted
// are normal outcomes, not errors.
type ViewOutcome struct {
	Result ViewResult `json:"result"`
	Share  *Share     `json:"share,omitempty"`
	// Delivered is false when the view was counted but the transport failed.
	Delivered bool `json:"delivered"`
}

// Granted reports whether the viewer may receive the content.
func (o ViewOutcome) Granted() bool {
	return o.Result == ViewGranted
}
