package flow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sh1vu7/secreteshare/internal/account"
	"github.com/sh1vu7/secreteshare/internal/share"
)

// StepOption is one button offered to the user. Posting Action with Payload
// back in an Event selects it.
type StepOption struct {
	Label   string          `json:"label"`
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StepResult is what the front end shows after every transition.
type StepResult struct {
	FlowID   string       `json:"flow_id"`
	State    State        `json:"state"`
	Prompt   string       `json:"prompt"`
	Options  []StepOption `json:"options,omitempty"`
	Deadline *time.Time   `json:"deadline,omitempty"`
}

// Text renders the result as plain text, one option per line.
func (r StepResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n%s\n", r.State, r.Prompt)
	for _, o := range r.Options {
		fmt.Fprintf(&b, "  - %s (%s", o.Label, o.Action)
		if len(o.Payload) > 0 {
			fmt.Fprintf(&b, " %s", o.Payload)
		}
		b.WriteString(")\n")
	}
	return b.String()
}

type renderer struct {
	askTimeout time.Duration
	maxText    int
}

func payload(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("flow: marshal option payload: %v", err))
	}
	return data
}

var cancelOption = StepOption{Label: "Cancel", Action: ActionCancel}

// render builds the view of s. Option lists come from the limits of the
// user's tier at render time.
func (r renderer) render(s *Session, limits account.Limits) StepResult {
	res := StepResult{FlowID: s.FlowID, State: s.State, Deadline: s.Deadline}
	c := s.Collected

	switch s.State {
	case StateAwaitingContentType:
		res.Prompt = "What would you like to share?"
		res.Options = []StepOption{
			{Label: "Text", Action: ActionChooseContentType, Payload: payload(map[string]string{"content_type": "text"})},
			{Label: "Photo, video or file", Action: ActionChooseContentType, Payload: payload(map[string]string{"content_type": "media"})},
		}

	case StateAwaitingContent:
		if c.ContentType == share.ContentText {
			res.Prompt = fmt.Sprintf("Send the text of your secret (up to %s characters).", humanize.Comma(int64(r.maxText)))
		} else {
			res.Prompt = fmt.Sprintf("Send the photo, video or file (up to %s).", humanize.IBytes(uint64(limits.MaxFileSize)))
		}
		res.Prompt += " " + r.waitHint()

	case StateAwaitingRecipientType:
		res.Prompt = "Who should be able to open it?"
		res.Options = []StepOption{
			{Label: "A specific user", Action: ActionChooseRecipientType, Payload: payload(map[string]string{"recipient_kind": "user"})},
			{Label: "Anyone with the link", Action: ActionChooseRecipientType, Payload: payload(map[string]string{"recipient_kind": "link"})},
		}

	case StateAwaitingRecipientIdentity:
		res.Prompt = "Send the recipient's user id, or forward one of their messages. " + r.waitHint()

	case StateAwaitingProtectionPrefs:
		res.Prompt = "Choose how the secret is protected."
		res.Options = []StepOption{
			{Label: "Hide sender: " + onOff(c.Protection.HideAttribution), Action: ActionToggleAttribution},
			{Label: "Prevent resharing: " + onOff(c.Protection.PreventResharing), Action: ActionToggleResharing},
			{Label: "Done", Action: ActionProtectionDone},
		}

	case StateAwaitingDestructTimer:
		res.Prompt = "When should the secret self-destruct?"
		for _, m := range limits.DestructTimerOptions {
			res.Options = append(res.Options, StepOption{
				Label:   TimerLabel(m),
				Action:  ActionChooseDestructTimer,
				Payload: payload(map[string]int{"minutes": m}),
			})
		}

	case StateAwaitingMaxViews:
		res.Prompt = "How many times can it be viewed?"
		for _, mv := range limits.MaxViewOptions {
			label := ViewsLabel(mv)
			if mv == limits.DefaultMaxViews {
				label += " (default)"
			}
			res.Options = append(res.Options, StepOption{
				Label:   label,
				Action:  ActionChooseMaxViews,
				Payload: payload(map[string]share.MaxViews{"max_views": mv}),
			})
		}

	case StateAwaitingConfirmation:
		res.Prompt = Summary(c)
		res.Options = []StepOption{{Label: "Create secret", Action: ActionConfirm}}
	}

	res.Options = append(res.Options, cancelOption)
	return res
}

func (r renderer) waitHint() string {
	return fmt.Sprintf("You have %s.", durationLabel(r.askTimeout))
}

// Summary is the confirmation text for the collected answers.
func Summary(c Collected) string {
	var b strings.Builder
	b.WriteString("Please confirm your secret:\n")

	switch {
	case c.ContentType == share.ContentText:
		fmt.Fprintf(&b, "Content: text, %s characters\n", humanize.Comma(int64(c.TextLength)))
	case c.FileName != "":
		fmt.Fprintf(&b, "Content: %s, %s\n", c.FileName, humanize.IBytes(uint64(c.FileSize)))
	default:
		fmt.Fprintf(&b, "Content: media, %s\n", humanize.IBytes(uint64(c.FileSize)))
	}

	if c.RecipientKind == share.RecipientUser && c.RecipientID != nil {
		fmt.Fprintf(&b, "Recipient: %s\n", displayName(c.RecipientDisplay, *c.RecipientID))
	} else {
		b.WriteString("Recipient: anyone with the link\n")
	}

	fmt.Fprintf(&b, "Hide sender: %s\n", yesNo(c.Protection.HideAttribution))
	fmt.Fprintf(&b, "Prevent resharing: %s\n", yesNo(c.Protection.PreventResharing))
	if c.DestructMinutes != nil {
		fmt.Fprintf(&b, "Self-destruct: %s\n", TimerLabel(*c.DestructMinutes))
	}
	if c.MaxViews != nil {
		fmt.Fprintf(&b, "Max views: %s", ViewsLabel(*c.MaxViews))
	}
	return strings.TrimRight(b.String(), "\n")
}

// TimerLabel names a destruct timer given in minutes.
func TimerLabel(minutes int) string {
	if minutes <= 0 {
		return "No timer (view-based)"
	}
	return durationLabel(time.Duration(minutes) * time.Minute)
}

func durationLabel(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return plural(int(d/(24*time.Hour)), "day")
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	}
	return plural(int(d/time.Second), "second")
}

// ViewsLabel names a view budget.
func ViewsLabel(m share.MaxViews) string {
	n, limited := m.Limit()
	if !limited {
		return "Unlimited"
	}
	return plural(n, "view")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return humanize.Comma(int64(n)) + " " + unit + "s"
}

func displayName(display string, id int64) string {
	if display == "" {
		return "user " + strconv.FormatInt(id, 10)
	}
	return display
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
