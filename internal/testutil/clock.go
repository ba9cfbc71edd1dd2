package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/sh1vu7/secreteshare/internal/clock"
)

// Epoch is the default start time of FakeClock.
var Epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// FakeClock is a manually advanced clock.Clock for tests.
//
// Timers registered with AfterFunc fire synchronously, in deadline order,
// inside Advance or Set once the clock reaches their deadline.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

var _ clock.Clock = (*FakeClock)(nil)

// NewFakeClock creates a clock at start, or at Epoch if start is zero.
func NewFakeClock(start time.Time) *FakeClock {
	if start.IsZero() {
		start = Epoch
	}
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and fires due timers.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	c.Set(target)
}

// Set moves the clock to t and fires due timers. Moving backwards is allowed
// and fires nothing.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	due := c.popDueLocked()
	c.mu.Unlock()

	for _, tm := range due {
		tm.f()
	}
}

// AfterFunc registers f to run when the clock reaches now+d.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	c.seq++
	tm := &fakeTimer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, tm)
	var due []*fakeTimer
	if d <= 0 {
		due = c.popDueLocked()
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
	return tm
}

// Pending returns the number of timers that have not fired or been stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *FakeClock) popDueLocked() []*fakeTimer {
	var due, keep []*fakeTimer
	for _, tm := range c.timers {
		if !tm.at.After(c.now) {
			due = append(due, tm)
		} else {
			keep = append(keep, tm)
		}
	}
	c.timers = keep
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	return due
}

type fakeTimer struct {
	clock *FakeClock
	at    time.Time
	seq   int
	f     func()
}

func (t *fakeTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, tm := range c.timers {
		if tm == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return true
		}
	}
	return false
}
