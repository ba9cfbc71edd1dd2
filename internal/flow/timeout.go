package flow

import (
	"context"
	"sync"

	"github.com/sh1vu7/secreteshare/internal/clock"
)

// timerKey identifies the suspend point a timeout belongs to. A timer only
// aborts the flow if the session is still at exactly this point.
type timerKey struct {
	userID int64
	flowID string
	state  State
}

type armedTimer struct {
	key   timerKey
	timer clock.Timer
}

// timerSet holds at most one pending timeout per user.
type timerSet struct {
	mu     sync.Mutex
	byUser map[int64]armedTimer
}

func (t *timerSet) init() {
	t.byUser = make(map[int64]armedTimer)
}

func (t *timerSet) set(key timerKey, timer clock.Timer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.byUser[key.userID]; ok {
		prev.timer.Stop()
	}
	t.byUser[key.userID] = armedTimer{key: key, timer: timer}
}

func (t *timerSet) disarm(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.byUser[userID]; ok {
		prev.timer.Stop()
		delete(t.byUser, userID)
	}
}

// release forgets the timer for key if it is still the armed one.
func (t *timerSet) release(key timerKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.byUser[key.userID]; ok && cur.key == key {
		delete(t.byUser, key.userID)
	}
}

func (t *timerSet) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byUser)
}

// arm schedules the timeout of a free-form step. The caller holds the
// user's lock and s.Deadline lies in the future.
func (c *Controller) arm(s *Session) {
	key := timerKey{userID: s.UserID, flowID: s.FlowID, state: s.State}
	d := s.Deadline.Sub(c.clock.Now())
	timer := c.clock.AfterFunc(d, func() { c.onTimeout(key) })
	c.timers.set(key, timer)
}

func (c *Controller) onTimeout(key timerKey) {
	ctx := context.Background()
	unlock := c.locks.lock(key.userID)
	defer unlock()
	c.timers.release(key)

	s, err := c.sessions.Get(ctx, key.userID)
	if err != nil {
		c.log.Error("timeout: failed to load session", "user_id", key.userID, "error", err)
		return
	}
	if s == nil || s.FlowID != key.flowID || s.State != key.state {
		return
	}

	c.abort(ctx, s, "timeout")
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, key.userID, TimeoutNotice); err != nil {
		c.log.Warn("timeout notice not sent", "user_id", key.userID, "error", err)
	}
}

// Resume re-arms timeouts for sessions that outlived a restart. Sessions
// whose deadline already passed are aborted. Stores that cannot list
// sessions are skipped; their deadlines are still enforced on the next
// event.
func (c *Controller) Resume(ctx context.Context) (int, error) {
	lister, ok := c.sessions.(SessionLister)
	if !ok {
		return 0, nil
	}
	sessions, err := lister.List(ctx)
	if err != nil {
		return 0, err
	}

	armed := 0
	for _, listed := range sessions {
		if listed.Deadline == nil {
			continue
		}
		unlock := c.locks.lock(listed.UserID)
		s, err := c.sessions.Get(ctx, listed.UserID)
		switch {
		case err != nil:
			c.log.Error("resume: failed to load session", "user_id", listed.UserID, "error", err)
		case s == nil || s.Deadline == nil:
		case !c.clock.Now().Before(*s.Deadline):
			c.abort(ctx, s, "timeout")
		default:
			c.arm(s)
			armed++
		}
		unlock()
	}
	return armed, nil
}

// keyedMutex serializes work per user id and frees idle entries.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(id int64) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[int64]*refLock)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &refLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
