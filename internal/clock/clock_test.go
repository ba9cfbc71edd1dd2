package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystem_NowIsUTCMillis(t *testing.T) {
	now := System{}.Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.Zero(t, now.Nanosecond()%int(time.Millisecond), "sub-millisecond precision leaked")
}

func TestSystem_AfterFuncStop(t *testing.T) {
	fired := make(chan struct{}, 1)
	timer := System{}.AfterFunc(time.Hour, func() { fired <- struct{}{} })
	assert.True(t, timer.Stop(), "pending timer should stop")
	assert.False(t, timer.Stop(), "second stop reports already stopped")

	System{}.AfterFunc(time.Millisecond, func() { fired <- struct{}{} })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}
