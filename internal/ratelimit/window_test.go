package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.UnixMilli(0)}
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestWindowAdmitsUpToLimit(t *testing.T) {
	clock := newTestClock()
	w := NewWindowWithClock(DefaultLimit, DefaultWindow, 0, clock.Now)

	for i := 0; i < DefaultLimit; i++ {
		ok, wait := w.Allow()
		require.True(t, ok, "send %d should be admitted", i+1)
		require.Zero(t, wait)
	}

	ok, wait := w.Allow()
	assert.False(t, ok)
	assert.Equal(t, DefaultWindow, wait)
}

func TestWindowSlidesForward(t *testing.T) {
	clock := newTestClock()
	w := NewWindowWithClock(DefaultLimit, DefaultWindow, 0, clock.Now)

	for i := 0; i < DefaultLimit; i++ {
		ok, _ := w.Allow()
		require.True(t, ok)
		clock.Advance(2 * time.Second)
	}

	// 20s into the window with all ten stamps live; the first ages out 40s
	// from now.
	ok, wait := w.Allow()
	require.False(t, ok)
	assert.Equal(t, 40*time.Second, wait)

	clock.Advance(40*time.Second + time.Millisecond)
	ok, _ = w.Allow()
	assert.True(t, ok)
}

func TestWindowMinSpacing(t *testing.T) {
	clock := newTestClock()
	w := NewWindowWithClock(DefaultLimit, DefaultWindow, DefaultMinSpacing, clock.Now)

	ok, _ := w.Allow()
	require.True(t, ok)

	clock.Advance(500 * time.Millisecond)
	ok, wait := w.Allow()
	require.False(t, ok)
	assert.Equal(t, time.Second, wait)

	clock.Advance(time.Second)
	ok, _ = w.Allow()
	assert.True(t, ok)
}

func TestWindowDeniedAttemptConsumesNoSlot(t *testing.T) {
	clock := newTestClock()
	w := NewWindowWithClock(2, DefaultWindow, DefaultMinSpacing, clock.Now)

	ok, _ := w.Allow()
	require.True(t, ok)

	// Hammering during the spacing interval must not eat the second slot.
	for i := 0; i < 5; i++ {
		ok, _ = w.Allow()
		require.False(t, ok)
		clock.Advance(100 * time.Millisecond)
	}

	clock.Advance(time.Second)
	ok, _ = w.Allow()
	assert.True(t, ok)
}

func TestRetryAfterIsPassive(t *testing.T) {
	clock := newTestClock()
	w := NewWindowWithClock(1, DefaultWindow, DefaultMinSpacing, clock.Now)

	assert.Zero(t, w.RetryAfter())

	ok, _ := w.Allow()
	require.True(t, ok)

	// Window full: the wait is dominated by the window, not the spacing.
	assert.Equal(t, DefaultWindow, w.RetryAfter())
	assert.Equal(t, DefaultWindow, w.RetryAfter(), "reporting must not record an attempt")

	clock.Advance(DefaultWindow + time.Millisecond)
	assert.Zero(t, w.RetryAfter())
	ok, _ = w.Allow()
	assert.True(t, ok)
}
