package sync

import (
	"context"
	"errors"
	gosync "sync"

	"focuschat/internal/models"
)

// fakeSub is a controllable Subscription. Tests drive push events through its
// handlers.
type fakeSub struct {
	mu       gosync.Mutex
	handlers Handlers
	tracked  []models.PresenceRecord
	closed   bool
}

func (s *fakeSub) Track(rec models.PresenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked = append(s.tracked, rec)
	return nil
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSub) trackedRecords() []models.PresenceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PresenceRecord, len(s.tracked))
	copy(out, s.tracked)
	return out
}

// fakeTransport is an in-memory Transport. By default every subscribe
// succeeds and acknowledges synchronously, before Subscribe returns, which
// exercises the manager's buffered-status path.
type fakeTransport struct {
	mu gosync.Mutex

	failSubscribes int
	ackOnSubscribe bool
	attempts       int
	subs           []*fakeSub

	history      []models.ChatMessage
	historyErr   error
	historyCalls int

	insertErr error
	inserted  []models.ChatMessage

	softDeleteErr error
	softDeleted   []string

	bans         map[string]models.Ban
	insertedBans []models.Ban
	deletedBans  []models.Ban
	roles        map[string]models.Role
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		ackOnSubscribe: true,
		bans:           map[string]models.Ban{},
		roles:          map[string]models.Role{},
	}
}

func (t *fakeTransport) Subscribe(_ context.Context, _ string, h Handlers) (Subscription, error) {
	t.mu.Lock()
	t.attempts++
	if t.failSubscribes > 0 {
		t.failSubscribes--
		t.mu.Unlock()
		return nil, errors.New("dial refused")
	}
	sub := &fakeSub{handlers: h}
	t.subs = append(t.subs, sub)
	ack := t.ackOnSubscribe
	t.mu.Unlock()

	if ack {
		h.OnStatus(models.StatusSubscribed, nil)
	}
	return sub, nil
}

func (t *fakeTransport) InsertMessage(_ context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.insertErr != nil {
		return models.ChatMessage{}, t.insertErr
	}
	t.inserted = append(t.inserted, msg)
	return msg, nil
}

func (t *fakeTransport) SoftDeleteMessage(_ context.Context, messageID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.softDeleteErr != nil {
		return t.softDeleteErr
	}
	t.softDeleted = append(t.softDeleted, messageID)
	return nil
}

func (t *fakeTransport) FetchRecentMessages(_ context.Context, _ string, _ int) ([]models.ChatMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.historyCalls++
	if t.historyErr != nil {
		return nil, t.historyErr
	}
	out := make([]models.ChatMessage, len(t.history))
	copy(out, t.history)
	return out, nil
}

func (t *fakeTransport) InsertBan(_ context.Context, ban models.Ban) (models.Ban, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.insertedBans = append(t.insertedBans, ban)
	t.bans[ban.UserID] = ban
	return ban, nil
}

func (t *fakeTransport) DeleteBan(_ context.Context, ban models.Ban) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deletedBans = append(t.deletedBans, ban)
	delete(t.bans, ban.UserID)
	return nil
}

func (t *fakeTransport) FetchActiveBan(_ context.Context, userID string) (*models.Ban, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ban, ok := t.bans[userID]; ok {
		return &ban, nil
	}
	return nil, nil
}

func (t *fakeTransport) FetchRole(_ context.Context, userID string) (models.Role, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if role, ok := t.roles[userID]; ok {
		return role, nil
	}
	return models.RoleUser, nil
}

func (t *fakeTransport) attemptCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

func (t *fakeTransport) historyCallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.historyCalls
}

func (t *fakeTransport) lastSub() *fakeSub {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.subs) == 0 {
		return nil
	}
	return t.subs[len(t.subs)-1]
}

func (t *fakeTransport) setFailSubscribes(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failSubscribes = n
}

// pushStatus emits a status event on the most recent subscription.
func (t *fakeTransport) pushStatus(status string, err error) {
	sub := t.lastSub()
	sub.mu.Lock()
	h := sub.handlers
	sub.mu.Unlock()
	h.OnStatus(status, err)
}
