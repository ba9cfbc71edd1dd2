// Package flow drives the multi-step conversation that gathers a share.
//
// Each user has at most one session. Every event names the flow it belongs
// to; an event for any other flow is stale and is never applied. Steps that
// wait for free-form input are time-boxed, and a timeout resolves to the
// same abort transition as cancel. Nothing is persisted as a share until
// Confirm, which calls the creator exactly once.
package flow

import (
	"encoding/json"
	"time"

	"github.com/sh1vu7/secreteshare/internal/share"
)

// State is a step of the share flow.
type State string

const (
	StateAwaitingContentType       State = "awaiting_content_type"
	StateAwaitingContent           State = "awaiting_content"
	StateAwaitingRecipientType     State = "awaiting_recipient_type"
	StateAwaitingRecipientIdentity State = "awaiting_recipient_identity"
	StateAwaitingProtectionPrefs   State = "awaiting_protection_prefs"
	StateAwaitingDestructTimer     State = "awaiting_destruct_timer"
	StateAwaitingMaxViews          State = "awaiting_max_views"
	StateAwaitingConfirmation      State = "awaiting_confirmation"

	// Terminal states only appear in results; they are never stored.
	StateCommitted State = "committed"
	StateCancelled State = "cancelled"
)

// Freeform reports whether the state waits for typed or uploaded input and
// is therefore time-boxed.
func (s State) Freeform() bool {
	return s == StateAwaitingContent || s == StateAwaitingRecipientIdentity
}

// Action tags an event.
type Action string

const (
	ActionChooseContentType   Action = "choose_content_type"
	ActionSubmitContent       Action = "submit_content"
	ActionChooseRecipientType Action = "choose_recipient_type"
	ActionSubmitRecipient     Action = "submit_recipient"
	ActionToggleAttribution   Action = "toggle_attribution"
	ActionToggleResharing     Action = "toggle_resharing"
	ActionProtectionDone      Action = "protection_done"
	ActionChooseDestructTimer Action = "choose_destruct_timer"
	ActionChooseMaxViews      Action = "choose_max_views"
	ActionConfirm             Action = "confirm"
	ActionCancel              Action = "cancel"
)

// Event is one user input addressed to a flow.
type Event struct {
	Action Action `json:"action"`
	FlowID string `json:"flow_id"`
	// State optionally pins the step the event was rendered for. A
	// mismatch makes the event stale.
	State   State           `json:"state,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Collected holds the answers gathered so far.
type Collected struct {
	ContentType      share.ContentKind   `json:"content_type,omitempty"`
	Content          *share.ContentRef   `json:"content,omitempty"`
	TextLength       int                 `json:"text_length,omitempty"`
	FileSize         int64               `json:"file_size,omitempty"`
	FileName         string              `json:"file_name,omitempty"`
	RecipientKind    share.RecipientKind `json:"recipient_kind,omitempty"`
	RecipientID      *int64              `json:"recipient_id,omitempty"`
	RecipientDisplay string              `json:"recipient_display,omitempty"`
	Protection       share.Protection    `json:"protection"`
	DestructMinutes  *int                `json:"destruct_minutes,omitempty"`
	MaxViews         *share.MaxViews     `json:"max_views,omitempty"`
}

// Session is the persisted state of one user's flow.
type Session struct {
	UserID    int64      `json:"user_id"`
	FlowID    string     `json:"flow_id"`
	State     State      `json:"state"`
	Collected Collected  `json:"collected"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// clone returns a deep copy so stores never share memory with callers.
func (s *Session) clone() *Session {
	c := *s
	if s.Deadline != nil {
		d := *s.Deadline
		c.Deadline = &d
	}
	if s.Collected.Content != nil {
		ref := *s.Collected.Content
		c.Collected.Content = &ref
	}
	if s.Collected.RecipientID != nil {
		id := *s.Collected.RecipientID
		c.Collected.RecipientID = &id
	}
	if s.Collected.DestructMinutes != nil {
		m := *s.Collected.DestructMinutes
		c.Collected.DestructMinutes = &m
	}
	if s.Collected.MaxViews != nil {
		mv := *s.Collected.MaxViews
		c.Collected.MaxViews = &mv
	}
	return &c
}
