package flow

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/sh1vu7/secreteshare/internal/account"
	"github.com/sh1vu7/secreteshare/internal/share"
)

func TestRender_Golden(t *testing.T) {
	limits := account.DefaultLimits()
	r := renderer{askTimeout: DefaultAskTimeout, maxText: DefaultMaxMessageLength}

	bobID := bob
	day := 1440
	twoViews := share.Exactly(2)

	tests := []struct {
		name    string
		session Session
		tier    account.Tier
	}{
		{
			name:    "content_type",
			session: Session{State: StateAwaitingContentType},
			tier:    account.TierFree,
		},
		{
			name:    "content_text",
			session: Session{State: StateAwaitingContent, Collected: Collected{ContentType: share.ContentText}},
			tier:    account.TierFree,
		},
		{
			name:    "protection",
			session: Session{State: StateAwaitingProtectionPrefs, Collected: Collected{Protection: share.Protection{HideAttribution: true}}},
			tier:    account.TierFree,
		},
		{
			name:    "timer_free",
			session: Session{State: StateAwaitingDestructTimer},
			tier:    account.TierFree,
		},
		{
			name:    "timer_premium",
			session: Session{State: StateAwaitingDestructTimer},
			tier:    account.TierPremium,
		},
		{
			name:    "views_premium",
			session: Session{State: StateAwaitingMaxViews},
			tier:    account.TierPremium,
		},
		{
			name: "confirm_user_media",
			session: Session{
				State: StateAwaitingConfirmation,
				Collected: Collected{
					ContentType:      share.ContentMedia,
					FileSize:         5 << 20,
					FileName:         "plan.pdf",
					RecipientKind:    share.RecipientUser,
					RecipientID:      &bobID,
					RecipientDisplay: "Bob",
					Protection:       share.Protection{HideAttribution: true},
					DestructMinutes:  &day,
					MaxViews:         &twoViews,
				},
			},
			tier: account.TierFree,
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.session
			s.FlowID = "flow-1"
			res := r.render(&s, limits[tt.tier])
			g.Assert(t, "render_"+tt.name, []byte(res.Text()))
		})
	}
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "No timer (view-based)", TimerLabel(0))
	assert.Equal(t, "1 minute", TimerLabel(1))
	assert.Equal(t, "90 minutes", TimerLabel(90))
	assert.Equal(t, "6 hours", TimerLabel(360))
	assert.Equal(t, "2 days", TimerLabel(2880))
	assert.Equal(t, "30 seconds", durationLabel(30*time.Second))

	assert.Equal(t, "1 view", ViewsLabel(share.Exactly(1)))
	assert.Equal(t, "250,000 views", ViewsLabel(share.Exactly(250000)))
	assert.Equal(t, "Unlimited", ViewsLabel(share.Unlimited()))
}

func TestSummary_LinkText(t *testing.T) {
	minutes := 0
	views := share.Unlimited()
	got := Summary(Collected{
		ContentType:     share.ContentText,
		TextLength:      1234,
		RecipientKind:   share.RecipientLink,
		DestructMinutes: &minutes,
		MaxViews:        &views,
	})
	want := "Please confirm your secret:\n" +
		"Content: text, 1,234 characters\n" +
		"Recipient: anyone with the link\n" +
		"Hide sender: no\n" +
		"Prevent resharing: no\n" +
		"Self-destruct: No timer (view-based)\n" +
		"Max views: Unlimited"
	assert.Equal(t, want, got)
}
