package ratelimit

import (
	"sync"
	"time"
)

// Default send limits: at most Limit sends per Window, with MinSpacing between
// consecutive sends. Advisory on the client; the service enforces the same
// limit authoritatively.
const (
	DefaultLimit      = 10
	DefaultWindow     = 60 * time.Second
	DefaultMinSpacing = 1500 * time.Millisecond
)

// Window is a per-identity sliding-window send gate.
type Window struct {
	mu         sync.Mutex
	limit      int
	window     time.Duration
	minSpacing time.Duration
	now        func() time.Time
	stamps     []time.Time
}

// NewWindow builds a limiter with the default chat limits.
func NewWindow() *Window {
	return &Window{
		limit:      DefaultLimit,
		window:     DefaultWindow,
		minSpacing: DefaultMinSpacing,
		now:        time.Now,
	}
}

// NewWindowWithClock builds a limiter with explicit parameters and clock.
func NewWindowWithClock(limit int, window, minSpacing time.Duration, now func() time.Time) *Window {
	return &Window{limit: limit, window: window, minSpacing: minSpacing, now: now}
}

// Allow records a send attempt. It returns whether the send may proceed and,
// when denied, how long until the window frees up.
func (w *Window) Allow() (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)

	if n := len(w.stamps); n > 0 {
		if since := now.Sub(w.stamps[n-1]); since < w.minSpacing {
			return false, w.minSpacing - since
		}
	}
	if len(w.stamps) >= w.limit {
		return false, w.stamps[0].Add(w.window).Sub(now)
	}

	w.stamps = append(w.stamps, now)
	return true, 0
}

// RetryAfter reports how long until the next send would be admitted, without
// recording an attempt. Zero means a send is currently allowed.
func (w *Window) RetryAfter() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)

	var wait time.Duration
	if n := len(w.stamps); n > 0 {
		if since := now.Sub(w.stamps[n-1]); since < w.minSpacing {
			wait = w.minSpacing - since
		}
	}
	if len(w.stamps) >= w.limit {
		if windowWait := w.stamps[0].Add(w.window).Sub(now); windowWait > wait {
			wait = windowWait
		}
	}
	return wait
}

func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept
}
