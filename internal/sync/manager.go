package sync

import (
	"context"
	"log"
	gosync "sync"
	"time"

	"focuschat/internal/models"
)

// BackoffSchedule is the fixed wait before each subscribe attempt, indexed by
// the number of failed attempts so far. Once it is exhausted the manager
// settles in the errored state and waits for a manual retry.
var BackoffSchedule = []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second}

// WatchdogTimeout bounds a whole connect cycle. If no connected transition
// happens within it the manager forces the errored state and tears down any
// outstanding channel.
var WatchdogTimeout = 10 * time.Second

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Transport Transport
	ChannelID string

	// Events are forwarded from the live subscription. OnStatus is consumed
	// by the manager itself.
	Events Handlers

	// OnConnected fires on every transition into connected. reconnected is
	// true when the manager had already been connected before, meaning push
	// events may have been missed and a catch-up fetch is due.
	OnConnected func(reconnected bool)
	// OnDisconnected fires on every transition out of connected.
	OnDisconnected func()
	// OnStateChange reports the state and the current retry count.
	OnStateChange func(state models.ConnectionState, retryCount int)
}

// Manager owns the single active subscription to the combined
// message/presence channel. It is an explicit state machine driven by
// discrete events: identity changes, the enabled flag, tab visibility, ban
// state, subscription status, timer expiry, and manual retry. Only one
// subscribe attempt is ever in flight; timers armed under an older session
// generation are ignored, so a stale timer can never fire into a newer
// session.
type Manager struct {
	cfg ManagerConfig

	mu         gosync.Mutex
	state      models.ConnectionState
	failures   int
	session    int
	sub        Subscription
	retryTimer *time.Timer
	watchdog   *time.Timer

	// A status event can arrive from the channel's read loop while the
	// subscribe call is still in flight; it is buffered until the
	// subscription handle is registered. attemptSession is the session of
	// the in-flight subscribe, or -1 when none is in flight.
	attemptSession int
	pendingStatus  string
	pendingErr     error

	hasIdentity   bool
	enabled       bool
	visible       bool
	banned        bool
	everConnected bool
	shutdown      bool
}

// NewManager builds a manager in the disconnected state. The tab is assumed
// visible and chat enabled until told otherwise.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		cfg:            cfg,
		state:          models.StateDisconnected,
		attemptSession: -1,
		enabled:        true,
		visible:        true,
	}
}

// State returns the connection state and the retry count.
func (m *Manager) State() (models.ConnectionState, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.failures
}

// SetIdentityAvailable signals that an authenticated identity appeared or was
// cleared.
func (m *Manager) SetIdentityAvailable(available bool) {
	m.apply(func() { m.hasIdentity = available })
}

// SetEnabled flips the global chat-enabled flag.
func (m *Manager) SetEnabled(enabled bool) {
	m.apply(func() { m.enabled = enabled })
}

// SetVisible signals a tab visibility change. Hiding the tab aborts any
// in-flight attempt and forces disconnected, never errored.
func (m *Manager) SetVisible(visible bool) {
	m.apply(func() { m.visible = visible })
}

// SetBanned signals a live ban-state change for the current identity.
func (m *Manager) SetBanned(banned bool) {
	m.apply(func() { m.banned = banned })
}

// ManualRetry leaves the errored state, resetting the attempt counter.
func (m *Manager) ManualRetry() {
	m.mu.Lock()
	var notify []func()
	if m.state == models.StateErrored && m.desiredLocked() {
		m.beginCycleLocked(&notify)
	}
	m.mu.Unlock()
	runAll(notify)
}

// Shutdown tears everything down permanently.
func (m *Manager) Shutdown() {
	m.apply(func() { m.shutdown = true })
}

// Track forwards a presence record to the live subscription. It is a no-op
// unless connected.
func (m *Manager) Track(rec models.PresenceRecord) error {
	m.mu.Lock()
	sub := m.sub
	connected := m.state == models.StateConnected
	m.mu.Unlock()

	if !connected || sub == nil {
		return nil
	}
	return sub.Track(rec)
}

// apply mutates an input flag and re-evaluates the machine. Hooks and channel
// teardown always run outside the lock.
func (m *Manager) apply(mutate func()) {
	m.mu.Lock()
	mutate()
	var notify []func()
	if m.desiredLocked() {
		if m.state == models.StateDisconnected {
			m.beginCycleLocked(&notify)
		}
	} else if m.state != models.StateDisconnected || m.sub != nil || m.retryTimer != nil || m.watchdog != nil {
		m.teardownLocked(&notify)
	}
	m.mu.Unlock()
	runAll(notify)
}

func (m *Manager) desiredLocked() bool {
	return m.hasIdentity && m.enabled && m.visible && !m.banned && !m.shutdown
}

// beginCycleLocked starts a fresh connect cycle: attempt counter reset,
// watchdog armed, first attempt scheduled immediately.
func (m *Manager) beginCycleLocked(notify *[]func()) {
	m.failures = 0
	m.pendingStatus, m.pendingErr = "", nil
	m.armWatchdogLocked()
	m.setStateLocked(models.StateConnecting, notify)
	m.scheduleAttemptLocked()
}

// teardownLocked aborts the current cycle: bumps the session so pending
// timers and channel callbacks become stale, cancels timers, and closes the
// channel. Idempotent, safe to call when already disconnected.
func (m *Manager) teardownLocked(notify *[]func()) {
	m.session++
	m.stopTimersLocked()
	m.pendingStatus, m.pendingErr = "", nil
	if sub := m.sub; sub != nil {
		m.sub = nil
		*notify = append(*notify, func() { _ = sub.Close() })
	}
	m.failures = 0
	m.setStateLocked(models.StateDisconnected, notify)
}

func (m *Manager) stopTimersLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}
}

func (m *Manager) armWatchdogLocked() {
	if m.watchdog != nil {
		m.watchdog.Stop()
	}
	session := m.session
	m.watchdog = time.AfterFunc(WatchdogTimeout, func() { m.watchdogFired(session) })
}

func (m *Manager) scheduleAttemptLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	delay := BackoffSchedule[m.failures]
	session := m.session
	m.retryTimer = time.AfterFunc(delay, func() { m.attempt(session) })
}

func (m *Manager) attempt(session int) {
	m.mu.Lock()
	if session != m.session || m.shutdown ||
		(m.state != models.StateConnecting && m.state != models.StateReconnecting) {
		m.mu.Unlock()
		return
	}
	handlers := m.guardedHandlers(session)
	m.attemptSession = session
	m.mu.Unlock()

	sub, err := m.cfg.Transport.Subscribe(context.Background(), m.cfg.ChannelID, handlers)

	m.mu.Lock()
	if session != m.session {
		m.mu.Unlock()
		if sub != nil {
			_ = sub.Close()
		}
		return
	}
	m.attemptSession = -1
	var notify []func()
	if err != nil {
		log.Printf("channel subscribe failed: %v", err)
		m.pendingStatus, m.pendingErr = "", nil
		m.failLocked(&notify)
	} else {
		m.sub = sub
		if status := m.pendingStatus; status != "" {
			statusErr := m.pendingErr
			m.pendingStatus, m.pendingErr = "", nil
			m.handleStatusLocked(status, statusErr, &notify)
		}
	}
	m.mu.Unlock()
	runAll(notify)
}

// failLocked records a failed attempt and either schedules the next one or
// gives up into errored.
func (m *Manager) failLocked(notify *[]func()) {
	m.failures++
	if m.failures >= len(BackoffSchedule) {
		m.session++
		m.stopTimersLocked()
		m.setStateLocked(models.StateErrored, notify)
		return
	}
	m.setStateLocked(models.StateReconnecting, notify)
	m.scheduleAttemptLocked()
}

func (m *Manager) watchdogFired(session int) {
	m.mu.Lock()
	if session != m.session || m.state == models.StateConnected {
		m.mu.Unlock()
		return
	}
	var notify []func()
	m.session++
	m.stopTimersLocked()
	if sub := m.sub; sub != nil {
		m.sub = nil
		notify = append(notify, func() { _ = sub.Close() })
	}
	m.setStateLocked(models.StateErrored, &notify)
	m.mu.Unlock()
	log.Printf("channel %s: connect watchdog expired", m.cfg.ChannelID)
	runAll(notify)
}

func (m *Manager) handleStatus(session int, status string, err error) {
	m.mu.Lock()
	if session != m.session {
		m.mu.Unlock()
		return
	}
	if session == m.attemptSession {
		m.pendingStatus, m.pendingErr = status, err
		m.mu.Unlock()
		return
	}
	var notify []func()
	m.handleStatusLocked(status, err, &notify)
	m.mu.Unlock()
	runAll(notify)
}

func (m *Manager) handleStatusLocked(status string, err error, notify *[]func()) {
	switch status {
	case models.StatusSubscribed:
		if m.state == models.StateConnecting || m.state == models.StateReconnecting {
			m.stopTimersLocked()
			m.failures = 0
			reconnected := m.everConnected
			m.everConnected = true
			m.setStateLocked(models.StateConnected, notify)
			if cb := m.cfg.OnConnected; cb != nil {
				*notify = append(*notify, func() { cb(reconnected) })
			}
		}
	case models.StatusChannelError, models.StatusClosed:
		if err != nil {
			log.Printf("channel %s: %s: %v", m.cfg.ChannelID, status, err)
		}
		if sub := m.sub; sub != nil {
			m.sub = nil
			*notify = append(*notify, func() { _ = sub.Close() })
		}
		switch m.state {
		case models.StateConnected:
			// An established channel dropped: start a new cycle with the
			// attempt counter still at zero, so the first retry is immediate.
			m.armWatchdogLocked()
			m.setStateLocked(models.StateReconnecting, notify)
			m.scheduleAttemptLocked()
		case models.StateConnecting, models.StateReconnecting:
			m.failLocked(notify)
		}
	}
}

func (m *Manager) setStateLocked(state models.ConnectionState, notify *[]func()) {
	prev := m.state
	if prev == state {
		return
	}
	m.state = state
	retryCount := m.failures
	if cb := m.cfg.OnStateChange; cb != nil {
		*notify = append(*notify, func() { cb(state, retryCount) })
	}
	if prev == models.StateConnected {
		if cb := m.cfg.OnDisconnected; cb != nil {
			*notify = append(*notify, func() { cb() })
		}
	}
}

// guardedHandlers wraps the configured event handlers so that events from a
// torn-down session are dropped instead of mutating newer state.
func (m *Manager) guardedHandlers(session int) Handlers {
	current := func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return session == m.session
	}
	events := m.cfg.Events
	return Handlers{
		OnMessageInserted: func(msg models.ChatMessage) {
			if current() && events.OnMessageInserted != nil {
				events.OnMessageInserted(msg)
			}
		},
		OnMessageUpdated: func(msg models.ChatMessage) {
			if current() && events.OnMessageUpdated != nil {
				events.OnMessageUpdated(msg)
			}
		},
		OnBanInserted: func(ban models.Ban) {
			if current() && events.OnBanInserted != nil {
				events.OnBanInserted(ban)
			}
		},
		OnBanDeleted: func(userID string) {
			if current() && events.OnBanDeleted != nil {
				events.OnBanDeleted(userID)
			}
		},
		OnPresenceSync: func(records []models.PresenceRecord) {
			if current() && events.OnPresenceSync != nil {
				events.OnPresenceSync(records)
			}
		},
		OnStatus: func(status string, err error) {
			m.handleStatus(session, status, err)
		},
	}
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
