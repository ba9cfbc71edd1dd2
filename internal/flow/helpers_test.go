package flow

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sh1vu7/secreteshare/internal/account"
	"github.com/sh1vu7/secreteshare/internal/ids"
	"github.com/sh1vu7/secreteshare/internal/share"
	"github.com/sh1vu7/secreteshare/internal/testutil"
	"github.com/sh1vu7/secreteshare/internal/transport"
)

const (
	alice int64 = 100
	bob   int64 = 200
)

type fakeCreator struct {
	mu     sync.Mutex
	specs  []share.Spec
	active int
	err    error
}

func (f *fakeCreator) Create(_ context.Context, spec share.Spec) (*share.Share, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.specs = append(f.specs, spec)
	return &share.Share{ID: "share-1", SenderID: spec.SenderID, Status: share.StatusActive}, nil
}

func (f *fakeCreator) ActiveCount(context.Context, int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

func (f *fakeCreator) created() []share.Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]share.Spec(nil), f.specs...)
}

type fakeAccounts struct {
	mu       sync.Mutex
	tiers    map[int64]account.Tier
	limits   map[account.Tier]account.Limits
	settings account.Settings
	banned   map[int64]bool
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		tiers:    map[int64]account.Tier{},
		limits:   account.DefaultLimits(),
		settings: account.DefaultSettings(),
		banned:   map[int64]bool{},
	}
}

func (f *fakeAccounts) setTier(id int64, t account.Tier) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tiers[id] = t
}

func (f *fakeAccounts) LimitsFor(_ context.Context, id int64) (account.Tier, account.Limits, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tiers[id]
	if !ok {
		t = account.TierFree
	}
	return t, f.limits[t], nil
}

func (f *fakeAccounts) Settings(context.Context, int64) (account.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings, nil
}

func (f *fakeAccounts) IsBanned(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.banned[id], nil
}

type fixture struct {
	ctl      *Controller
	sessions SessionStore
	creator  *fakeCreator
	accounts *fakeAccounts
	clock    *testutil.FakeClock
	notifier *transport.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, NewMemoryStore(), testutil.NewFakeClock(time.Time{}))
}

func newFixtureWithStore(t *testing.T, sessions SessionStore, clk *testutil.FakeClock) *fixture {
	t.Helper()
	f := &fixture{
		sessions: sessions,
		creator:  &fakeCreator{},
		accounts: newFakeAccounts(),
		clock:    clk,
		notifier: transport.NewRecorder(),
	}
	f.ctl = NewController(sessions, f.creator, f.accounts,
		WithClock(clk),
		WithIDs(ids.NewFixedGenerator("flow-1", "flow-2", "flow-3", "flow-4")),
		WithNotifier(f.notifier),
	)
	return f
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func (f *fixture) submit(t *testing.T, user int64, flowID string, action Action, p any) (StepResult, error) {
	t.Helper()
	ev := Event{Action: action, FlowID: flowID}
	if p != nil {
		ev.Payload = raw(t, p)
	}
	return f.ctl.Submit(context.Background(), user, ev)
}

func (f *fixture) mustSubmit(t *testing.T, user int64, flowID string, action Action, p any) StepResult {
	t.Helper()
	res, err := f.submit(t, user, flowID, action, p)
	require.NoError(t, err)
	return res
}

// textToConfirmation walks a text link share up to the confirmation step.
func (f *fixture) textToConfirmation(t *testing.T, user int64, flowID string, minutes int) StepResult {
	t.Helper()
	f.mustSubmit(t, user, flowID, ActionChooseContentType, map[string]string{"content_type": "text"})
	f.mustSubmit(t, user, flowID, ActionSubmitContent, map[string]any{"chat_id": user, "message_id": 7, "text": "the password is hunter2"})
	f.mustSubmit(t, user, flowID, ActionChooseRecipientType, map[string]string{"recipient_kind": "link"})
	f.mustSubmit(t, user, flowID, ActionProtectionDone, nil)
	f.mustSubmit(t, user, flowID, ActionChooseDestructTimer, map[string]int{"minutes": minutes})
	return f.mustSubmit(t, user, flowID, ActionChooseMaxViews, map[string]any{"max_views": 1})
}

func (f *fixture) session(t *testing.T, user int64) *Session {
	t.Helper()
	s, err := f.sessions.Get(context.Background(), user)
	require.NoError(t, err)
	return s
}
