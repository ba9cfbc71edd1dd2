package flow

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/unicode/norm"

	"github.com/sh1vu7/secreteshare/internal/account"
	"github.com/sh1vu7/secreteshare/internal/share"
)

// step applies one event to a session copy and returns the next state.
// Returned errors are validation errors and abort the flow.
type step func(sc *stepContext) (State, error)

type stepContext struct {
	session *Session
	limits  account.Limits
	payload json.RawMessage
	maxText int
}

func (sc *stepContext) decode(op string, v any) error {
	if len(sc.payload) == 0 {
		return share.Validation(op, "missing payload")
	}
	dec := json.NewDecoder(bytes.NewReader(sc.payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return share.Validation(op, "malformed payload: %v", err)
	}
	return nil
}

// transitions lists the actions accepted in each state.
var transitions = map[State]map[Action]step{
	StateAwaitingContentType: {
		ActionChooseContentType: chooseContentType,
	},
	StateAwaitingContent: {
		ActionSubmitContent: submitContent,
	},
	StateAwaitingRecipientType: {
		ActionChooseRecipientType: chooseRecipientType,
	},
	StateAwaitingRecipientIdentity: {
		ActionSubmitRecipient: submitRecipient,
	},
	StateAwaitingProtectionPrefs: {
		ActionToggleAttribution: toggleAttribution,
		ActionToggleResharing:   toggleResharing,
		ActionProtectionDone:    protectionDone,
	},
	StateAwaitingDestructTimer: {
		ActionChooseDestructTimer: chooseDestructTimer,
	},
	StateAwaitingMaxViews: {
		ActionChooseMaxViews: chooseMaxViews,
	},
}

func chooseContentType(sc *stepContext) (State, error) {
	var in struct {
		ContentType share.ContentKind `json:"content_type"`
	}
	if err := sc.decode("content type", &in); err != nil {
		return "", err
	}
	if !in.ContentType.Valid() {
		return "", share.Validation("content type", "unknown content type %q", in.ContentType)
	}
	sc.session.Collected.ContentType = in.ContentType
	return StateAwaitingContent, nil
}

func submitContent(sc *stepContext) (State, error) {
	var in struct {
		ChatID    int64             `json:"chat_id"`
		MessageID int64             `json:"message_id"`
		Kind      share.ContentKind `json:"kind"`
		Text      string            `json:"text"`
		FileSize  int64             `json:"file_size"`
		FileName  string            `json:"file_name"`
	}
	if err := sc.decode("content", &in); err != nil {
		return "", err
	}
	c := &sc.session.Collected
	if in.Kind == "" {
		in.Kind = c.ContentType
	}
	if in.Kind != c.ContentType {
		return "", share.Validation("content", "expected %s content, got %s", c.ContentType, in.Kind)
	}
	if in.ChatID == 0 || in.MessageID <= 0 {
		return "", share.Validation("content", "the message reference is incomplete")
	}

	switch in.Kind {
	case share.ContentText:
		text := strings.TrimSpace(norm.NFC.String(in.Text))
		n := utf8.RuneCountInString(text)
		if n == 0 {
			return "", share.Validation("content", "the secret text is empty")
		}
		if n > sc.maxText {
			return "", share.Validation("content", "the secret text is too long (%s characters, limit %s)",
				humanize.Comma(int64(n)), humanize.Comma(int64(sc.maxText)))
		}
		c.TextLength = n
	case share.ContentMedia:
		if in.FileSize < 0 {
			return "", share.Validation("content", "invalid file size")
		}
		if in.FileSize > sc.limits.MaxFileSize {
			return "", share.Validation("content", "the file is too large (%s, limit %s)",
				humanize.IBytes(uint64(in.FileSize)), humanize.IBytes(uint64(sc.limits.MaxFileSize)))
		}
		c.FileSize = in.FileSize
		c.FileName = norm.NFC.String(strings.TrimSpace(in.FileName))
	}

	c.Content = &share.ContentRef{ChatID: in.ChatID, MessageID: in.MessageID, Kind: in.Kind}
	return StateAwaitingRecipientType, nil
}

func chooseRecipientType(sc *stepContext) (State, error) {
	var in struct {
		RecipientKind share.RecipientKind `json:"recipient_kind"`
	}
	if err := sc.decode("recipient type", &in); err != nil {
		return "", err
	}
	if !in.RecipientKind.Valid() {
		return "", share.Validation("recipient type", "unknown recipient type %q", in.RecipientKind)
	}
	c := &sc.session.Collected
	c.RecipientKind = in.RecipientKind
	c.RecipientID = nil
	c.RecipientDisplay = ""
	if in.RecipientKind == share.RecipientUser {
		return StateAwaitingRecipientIdentity, nil
	}
	return StateAwaitingProtectionPrefs, nil
}

func submitRecipient(sc *stepContext) (State, error) {
	var in struct {
		RecipientID int64  `json:"recipient_id"`
		Display     string `json:"display"`
		IsBot       bool   `json:"is_bot"`
	}
	if err := sc.decode("recipient", &in); err != nil {
		return "", err
	}
	switch {
	case in.RecipientID <= 0:
		return "", share.Validation("recipient", "that is not a valid user")
	case in.RecipientID == sc.session.UserID:
		return "", share.Validation("recipient", "you cannot send a secret to yourself")
	case in.IsBot:
		return "", share.Validation("recipient", "secrets cannot be sent to bots")
	}
	c := &sc.session.Collected
	id := in.RecipientID
	c.RecipientID = &id
	c.RecipientDisplay = norm.NFC.String(strings.TrimSpace(in.Display))
	return StateAwaitingProtectionPrefs, nil
}

func toggleAttribution(sc *stepContext) (State, error) {
	p := &sc.session.Collected.Protection
	p.HideAttribution = !p.HideAttribution
	return StateAwaitingProtectionPrefs, nil
}

func toggleResharing(sc *stepContext) (State, error) {
	p := &sc.session.Collected.Protection
	p.PreventResharing = !p.PreventResharing
	return StateAwaitingProtectionPrefs, nil
}

func protectionDone(*stepContext) (State, error) {
	return StateAwaitingDestructTimer, nil
}

func chooseDestructTimer(sc *stepContext) (State, error) {
	var in struct {
		Minutes *int `json:"minutes"`
	}
	if err := sc.decode("destruct timer", &in); err != nil {
		return "", err
	}
	if in.Minutes == nil {
		return "", share.Validation("destruct timer", "choose a timer")
	}
	if !sc.limits.AllowsTimer(*in.Minutes) {
		return "", share.Validation("destruct timer", "a %s timer is not available on your plan", TimerLabel(*in.Minutes))
	}
	m := *in.Minutes
	sc.session.Collected.DestructMinutes = &m
	return StateAwaitingMaxViews, nil
}

func chooseMaxViews(sc *stepContext) (State, error) {
	var in struct {
		MaxViews *share.MaxViews `json:"max_views"`
	}
	if len(sc.payload) > 0 {
		if err := sc.decode("max views", &in); err != nil {
			return "", err
		}
	}
	mv := sc.limits.DefaultMaxViews
	if in.MaxViews != nil {
		mv = *in.MaxViews
	}
	if !sc.limits.AcceptsMaxViews(mv) {
		return "", share.Validation("max views", "%s is not available on your plan", ViewsLabel(mv))
	}
	sc.session.Collected.MaxViews = &mv
	return StateAwaitingConfirmation, nil
}
