package sync

import (
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focuschat/internal/models"
)

// shortSchedules swaps the production timings for millisecond ones so the
// retry ladder runs in-process.
func shortSchedules(t *testing.T) {
	t.Helper()
	origBackoff, origWatchdog := BackoffSchedule, WatchdogTimeout
	BackoffSchedule = []time.Duration{0, 5 * time.Millisecond, 10 * time.Millisecond, 15 * time.Millisecond}
	WatchdogTimeout = 250 * time.Millisecond
	t.Cleanup(func() {
		BackoffSchedule, WatchdogTimeout = origBackoff, origWatchdog
	})
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

type stateRecorder struct {
	mu       gosync.Mutex
	states   []models.ConnectionState
	retries  []int
	connects []bool
}

func (r *stateRecorder) onStateChange(state models.ConnectionState, retryCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	r.retries = append(r.retries, retryCount)
}

func (r *stateRecorder) onConnected(reconnected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects = append(r.connects, reconnected)
}

func (r *stateRecorder) sequence() []models.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ConnectionState, len(r.states))
	copy(out, r.states)
	return out
}

func (r *stateRecorder) connections() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.connects))
	copy(out, r.connects)
	return out
}

func (r *stateRecorder) last() models.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return ""
	}
	return r.states[len(r.states)-1]
}

func newTestManager(tr *fakeTransport, rec *stateRecorder) *Manager {
	return NewManager(ManagerConfig{
		Transport:     tr,
		ChannelID:     models.GlobalChannelID,
		OnConnected:   rec.onConnected,
		OnStateChange: rec.onStateChange,
	})
}

func managerState(m *Manager) models.ConnectionState {
	state, _ := m.State()
	return state
}

func TestManagerConnectsWhenIdentityAppears(t *testing.T) {
	shortSchedules(t)
	tr := newFakeTransport()
	rec := &stateRecorder{}
	m := newTestManager(tr, rec)

	m.SetIdentityAvailable(true)
	waitUntil(t, func() bool { return len(rec.connections()) == 1 })

	assert.Equal(t, models.StateConnected, managerState(m))
	assert.Equal(t, 1, tr.attemptCount())
	assert.Equal(t, []models.ConnectionState{models.StateConnecting, models.StateConnected}, rec.sequence())
	require.Equal(t, []bool{false}, rec.connections())

	require.NoError(t, m.Track(models.PresenceRecord{UserID: "u1"}))
	assert.Len(t, tr.lastSub().trackedRecords(), 1)
}

func TestManagerStaysDownWithoutIdentity(t *testing.T) {
	shortSchedules(t)
	tr := newFakeTransport()
	m := newTestManager(tr, &stateRecorder{})

	m.SetEnabled(true)
	m.SetVisible(true)
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, models.StateDisconnected, managerState(m))
	assert.Zero(t, tr.attemptCount())
	require.NoError(t, m.Track(models.PresenceRecord{UserID: "u1"}))
}

func TestManagerBacksOffThenErrors(t *testing.T) {
	shortSchedules(t)
	tr := newFakeTransport()
	tr.setFailSubscribes(99)
	rec := &stateRecorder{}
	m := newTestManager(tr, rec)

	m.SetIdentityAvailable(true)
	waitUntil(t, func() bool { return rec.last() == models.StateErrored })

	// One attempt per schedule slot, then it gives up for good.
	assert.Equal(t, len(BackoffSchedule), tr.attemptCount())
	assert.Equal(t, []models.ConnectionState{
		models.StateConnecting, models.StateReconnecting, models.StateErrored,
	}, rec.sequence())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, len(BackoffSchedule), tr.attemptCount(), "errored state must not retry on its own")
}

func TestManagerManualRetryLeavesErrored(t *testing.T) {
	shortSchedules(t)
	tr := newFakeTransport()
	tr.setFailSubscribes(99)
	rec := &stateRecorder{}
	m := newTestManager(tr, rec)

	m.SetIdentityAvailable(true)
	waitUntil(t, func() bool { return managerState(m) == models.StateErrored })

	tr.setFailSubscribes(0)
	m.ManualRetry()
	waitUntil(t, func() bool { return managerState(m) == models.StateConnected })

	_, retries := m.State()
	assert.Zero(t, retries, "manual retry starts a fresh cycle")
}

func TestManagerRecoversAfterPartialFailures(t *testing.T) {
	shortSchedules(t)
	tr := newFakeTransport()
	tr.setFailSubscribes(2)
	rec := &stateRecorder{}
	m := newTestManager(tr, rec)

	m.SetIdentityAvailable(true)
	waitUntil(t, func() bool { return managerState(m) == models.StateConnected })

	assert.Equal(t, 3, tr.attemptCount())
	_, retries := m.State()
	assert.Zero(t, retries, "success resets the attempt counter")
}

func TestManagerHiddenTabDisconnects(t *testing.T) {
	shortSchedules(t)
	tr := newFakeTransport()
	rec := &stateRecorder{}
	m := newTestManager(tr, rec)

	m.SetIdentityAvailable(true)
	waitUntil(t, func() bool { return managerState(m) == models.StateConnected })
	sub := tr.lastSub()

	m.SetVisible(false)
	waitUntil(t, func() bool { return managerState(m) == models.StateDisconnected })
	assert.True(t, sub.isClosed())

	m.SetVisible(true)
	waitUntil(t, func() bool { return len(rec.connections()) == 2 })
	assert.Equal(t, []bool{false, true}, rec.connections())
}

func TestManagerHiddenTabAbortsRetryLadder(t *testing.T) {
	shortSchedules(t)
	tr := newFakeTransport()
	tr.setFailSubscribes(99)
	m := newTestManager(tr, &stateRecorder{})

	m.SetIdentityAvailable(true)
	waitUntil(t, func() bool { return managerState(m) == models.StateReconnecting })

	m.SetVisible(false)
	waitUntil(t, func() bool { return managerState(m) == models.StateDisconnected })

	attempts := tr.attemptCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, attempts, tr.attemptCount(), "hidden tab must cancel pending attempts")
}

func TestManagerChannelDropRetriesImmediately(t *testing.T) {
	shortSchedules(t)
	tr := newFakeTransport()
	rec := &stateRecorder{}
	m := newTestManager(tr, rec)

	m.SetIdentityAvailable(true)
	waitUntil(t, func() bool { return managerState(m) == models.StateConnected })
	first := tr.lastSub()

	tr.pushStatus(models.StatusClosed, nil)
	waitUntil(t, func() bool { return len(rec.connections()) == 2 })

	assert.Equal(t, 2, tr.attemptCount())
	assert.True(t, first.isClosed())
	assert.Equal(t, []bool{false, true}, rec.connections())
	_, retries := m.State()
	assert.Zero(t, retries, "a drop from connected does not consume a backoff slot")
}

func TestManagerWatchdogForcesErrored(t *testing.T) {
	shortSchedules(t)
	tr := newFakeTransport()
	tr.ackOnSubscribe = false
	rec := &stateRecorder{}
	m := newTestManager(tr, rec)

	m.SetIdentityAvailable(true)
	waitUntil(t, func() bool { return tr.attemptCount() == 1 })
	assert.Equal(t, models.StateConnecting, managerState(m))

	// The errored transition must reach the state hook, not just State().
	waitUntil(t, func() bool { return rec.last() == models.StateErrored })
	assert.Equal(t, models.StateErrored, managerState(m))
	assert.True(t, tr.lastSub().isClosed())
}

func TestManagerBanTearsDown(t *testing.T) {
	shortSchedules(t)
	tr := newFakeTransport()
	m := newTestManager(tr, &stateRecorder{})

	m.SetIdentityAvailable(true)
	waitUntil(t, func() bool { return managerState(m) == models.StateConnected })
	sub := tr.lastSub()

	m.SetBanned(true)
	waitUntil(t, func() bool { return managerState(m) == models.StateDisconnected })
	assert.True(t, sub.isClosed())

	m.SetBanned(false)
	waitUntil(t, func() bool { return managerState(m) == models.StateConnected })
}

func TestManagerShutdownIsPermanent(t *testing.T) {
	shortSchedules(t)
	tr := newFakeTransport()
	m := newTestManager(tr, &stateRecorder{})

	m.SetIdentityAvailable(true)
	waitUntil(t, func() bool { return managerState(m) == models.StateConnected })

	m.Shutdown()
	waitUntil(t, func() bool { return managerState(m) == models.StateDisconnected })

	m.ManualRetry()
	m.SetIdentityAvailable(true)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, tr.attemptCount())
	assert.Equal(t, models.StateDisconnected, managerState(m))
}

func TestManagerDropsEventsFromStaleSubscription(t *testing.T) {
	shortSchedules(t)
	tr := newFakeTransport()
	var mu gosync.Mutex
	var delivered []string
	m := NewManager(ManagerConfig{
		Transport: tr,
		ChannelID: models.GlobalChannelID,
		Events: Handlers{
			OnMessageInserted: func(msg models.ChatMessage) {
				mu.Lock()
				delivered = append(delivered, msg.ID)
				mu.Unlock()
			},
		},
	})

	m.SetIdentityAvailable(true)
	waitUntil(t, func() bool { return managerState(m) == models.StateConnected })
	stale := tr.lastSub()

	// Force a new session, then replay an event through the old handlers.
	m.SetVisible(false)
	waitUntil(t, func() bool { return managerState(m) == models.StateDisconnected })
	m.SetVisible(true)
	waitUntil(t, func() bool { return managerState(m) == models.StateConnected })

	stale.handlers.OnMessageInserted(models.ChatMessage{ID: "stale"})
	tr.lastSub().handlers.OnMessageInserted(models.ChatMessage{ID: "live"})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"live"}, delivered)
}
