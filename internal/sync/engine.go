package sync

import (
	"context"
	"log"
	"strings"
	gosync "sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"focuschat/internal/models"
	"focuschat/internal/moderation"
	"focuschat/internal/ratelimit"
)

// Engine is the chat synchronization engine for one channel: it owns the
// message log, the presence roster, the live moderation state, the send rate
// limiter, and the connection manager, and exposes the surface the UI reads.
type Engine struct {
	transport Transport
	channelID string
	store     *Store
	roster    *Roster
	guard     *moderation.Guard
	limiter   *ratelimit.Window
	manager   *Manager

	mu       gosync.RWMutex
	state    models.ConnectionState
	chatOpen bool
	enabled  bool

	now   func() time.Time
	newID func() string
}

// EngineOption tweaks engine construction.
type EngineOption func(*Engine)

// WithClock overrides the engine clock, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides message/ban id generation, for tests.
func WithIDGenerator(newID func() string) EngineOption {
	return func(e *Engine) { e.newID = newID }
}

// WithRateLimiter overrides the send limiter, for tests.
func WithRateLimiter(w *ratelimit.Window) EngineOption {
	return func(e *Engine) { e.limiter = w }
}

// NewEngine builds an engine for the given identity and channel. Call Start
// to load history and bring the subscription up.
func NewEngine(transport Transport, self models.User, channelID string, opts ...EngineOption) *Engine {
	e := &Engine{
		transport: transport,
		channelID: channelID,
		store:     NewStore(),
		roster:    NewRoster(),
		guard:     moderation.NewGuard(self),
		limiter:   ratelimit.NewWindow(),
		state:     models.StateDisconnected,
		enabled:   true,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.manager = NewManager(ManagerConfig{
		Transport: transport,
		ChannelID: channelID,
		Events: Handlers{
			OnMessageInserted: e.store.Upsert,
			OnMessageUpdated:  e.applyMessageUpdate,
			OnBanInserted:     e.applyBanInserted,
			OnBanDeleted:      e.applyBanDeleted,
			OnPresenceSync:    e.roster.ApplySnapshot,
		},
		OnConnected:    e.handleConnected,
		OnDisconnected: e.handleDisconnected,
		OnStateChange:  e.handleStateChange,
	})
	return e
}

// Start loads the initial moderation state and history, then requests the
// subscription. Banned identities never subscribe.
func (e *Engine) Start(ctx context.Context) error {
	self := e.guard.Self()

	if ban, err := e.transport.FetchActiveBan(ctx, self.ID); err != nil {
		return &TransportError{Op: "fetch ban state", Err: err}
	} else if ban != nil {
		e.guard.ApplyBan(*ban)
		e.manager.SetBanned(true)
	}

	msgs, err := e.transport.FetchRecentMessages(ctx, e.channelID, LogCapacity)
	if err != nil {
		return &TransportError{Op: "fetch history", Err: err}
	}
	e.store.ReplaceAll(msgs)

	e.manager.SetIdentityAvailable(true)
	return nil
}

// Stop tears the subscription down permanently.
func (e *Engine) Stop() {
	e.manager.Shutdown()
}

// SetVisible signals a tab visibility change.
func (e *Engine) SetVisible(visible bool) {
	e.manager.SetVisible(visible)
}

// SetEnabled flips the global chat-enabled flag. Disabled chat both rejects
// sends and drops the subscription.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	e.enabled = enabled
	e.mu.Unlock()
	e.manager.SetEnabled(enabled)
}

// SetChatOpen toggles the "actively viewing the chat panel" flag and
// re-publishes the presence record without resubscribing.
func (e *Engine) SetChatOpen(open bool) {
	e.mu.Lock()
	e.chatOpen = open
	e.mu.Unlock()
	if err := e.manager.Track(e.presenceRecord()); err != nil {
		log.Printf("presence track failed: %v", err)
	}
}

// ManualRetry resets the attempt counter after the errored state.
func (e *Engine) ManualRetry() {
	e.manager.ManualRetry()
}

// Messages returns the ordered message log.
func (e *Engine) Messages() []models.ChatMessage {
	return e.store.Snapshot()
}

// OnlineUsers returns the live roster.
func (e *Engine) OnlineUsers() []models.OnlineUser {
	return e.roster.Snapshot()
}

// ConnectionState returns the manager's current state.
func (e *Engine) ConnectionState() models.ConnectionState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// RetryCount returns the failed attempt count of the current connect cycle.
// It reads the manager directly: repeated failures keep the state at
// reconnecting, so a count cached off the state-change hook would go stale.
func (e *Engine) RetryCount() int {
	_, retries := e.manager.State()
	return retries
}

// IsBanned reports the live ban flag for the current identity.
func (e *Engine) IsBanned() bool {
	return e.guard.IsBanned()
}

// BanReason returns the reason of the active ban, if any.
func (e *Engine) BanReason() string {
	return e.guard.BanReason()
}

// UserRole returns the current identity's role.
func (e *Engine) UserRole() models.Role {
	return e.guard.Self().Role
}

// SendCooldown reports how long until the rate limiter admits the next send.
func (e *Engine) SendCooldown() time.Duration {
	return e.limiter.RetryAfter()
}

// SendMessage validates, gates, and optimistically appends a message, then
// persists it under the same client-generated UUID. On persist failure
// exactly the optimistic entry is rolled back and the failure surfaced; the
// change feed reconciles the confirmed copy by id, never duplicating it.
func (e *Engine) SendMessage(ctx context.Context, content string) (models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.ChatMessage{}, &ValidationError{Reason: "message is empty"}
	}
	if utf8.RuneCountInString(content) > models.MaxContentLength {
		return models.ChatMessage{}, &ValidationError{Reason: "message exceeds 500 characters"}
	}

	e.mu.RLock()
	enabled := e.enabled
	e.mu.RUnlock()
	if !enabled {
		return models.ChatMessage{}, &ModerationError{Reason: "chat is currently disabled"}
	}
	if e.guard.IsBanned() {
		return models.ChatMessage{}, &ModerationError{Reason: "you are banned from chat"}
	}
	if ok, wait := e.limiter.Allow(); !ok {
		return models.ChatMessage{}, &RateLimitError{RetryAfter: wait}
	}

	self := e.guard.Self()
	msg := models.ChatMessage{
		ID:             e.newID(),
		ChannelID:      e.channelID,
		SenderID:       self.ID,
		SenderUsername: self.Username,
		SenderAvatar:   self.Avatar,
		SenderRole:     self.Role,
		Content:        content,
		CreatedAtMs:    e.now().UnixMilli(),
	}

	e.store.Upsert(msg)

	if _, err := e.transport.InsertMessage(ctx, msg); err != nil {
		e.store.Remove(msg.ID)
		return models.ChatMessage{}, &TransportError{Op: "send message", Err: err}
	}
	return msg, nil
}

// DeleteMessage soft-deletes a message after the moderation guard authorizes
// the actor (own message, or moderator privilege).
func (e *Engine) DeleteMessage(ctx context.Context, messageID string) error {
	msg, ok := e.store.Get(messageID)
	if !ok {
		return ErrUnknownMessage
	}
	if err := moderation.CanDeleteMessage(e.guard.Self(), msg); err != nil {
		return &PermissionError{Rule: err}
	}
	if err := e.transport.SoftDeleteMessage(ctx, messageID); err != nil {
		return &TransportError{Op: "delete message", Err: err}
	}
	e.store.MarkDeleted(messageID)
	return nil
}

// BanUser issues a ban against the target. durationMinutes of zero means
// permanent.
func (e *Engine) BanUser(ctx context.Context, targetID, reason string, durationMinutes int) error {
	self := e.guard.Self()

	targetRole, err := e.transport.FetchRole(ctx, targetID)
	if err != nil {
		return &TransportError{Op: "fetch target role", Err: err}
	}
	if err := moderation.CanBan(self, targetID, targetRole); err != nil {
		return &PermissionError{Rule: err}
	}

	ban := models.Ban{
		ID:           e.newID(),
		UserID:       targetID,
		BannedByID:   self.ID,
		BannedByRole: self.Role,
		Reason:       reason,
		CreatedAt:    e.now(),
	}
	if durationMinutes > 0 {
		expires := e.now().Add(time.Duration(durationMinutes) * time.Minute)
		ban.ExpiresAt = &expires
	}

	if _, err := e.transport.InsertBan(ctx, ban); err != nil {
		return &TransportError{Op: "insert ban", Err: err}
	}
	return nil
}

// UnbanUser lifts the target's active ban, subject to the issuer-role rule.
func (e *Engine) UnbanUser(ctx context.Context, targetID string) error {
	ban, err := e.transport.FetchActiveBan(ctx, targetID)
	if err != nil {
		return &TransportError{Op: "fetch ban", Err: err}
	}
	if ban == nil {
		return &ValidationError{Reason: "user has no active ban"}
	}
	if err := moderation.CanUnban(e.guard.Self(), *ban); err != nil {
		return &PermissionError{Rule: err}
	}
	if err := e.transport.DeleteBan(ctx, *ban); err != nil {
		return &TransportError{Op: "delete ban", Err: err}
	}
	return nil
}

func (e *Engine) presenceRecord() models.PresenceRecord {
	self := e.guard.Self()
	e.mu.RLock()
	open := e.chatOpen
	e.mu.RUnlock()
	return models.PresenceRecord{
		UserID:   self.ID,
		Username: self.Username,
		Avatar:   self.Avatar,
		Role:     self.Role,
		IsActive: open,
		LastSeen: e.now(),
	}
}

// handleConnected re-publishes presence and, after a reconnection gap, issues
// exactly one catch-up fetch to close the window of missed pushes.
func (e *Engine) handleConnected(reconnected bool) {
	if err := e.manager.Track(e.presenceRecord()); err != nil {
		log.Printf("presence track failed: %v", err)
	}
	if !reconnected {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	msgs, err := e.transport.FetchRecentMessages(ctx, e.channelID, LogCapacity)
	if err != nil {
		log.Printf("catch-up fetch failed: %v", err)
		return
	}
	e.store.ReplaceAll(msgs)
}

func (e *Engine) handleDisconnected() {
	e.roster.Clear()
}

func (e *Engine) handleStateChange(state models.ConnectionState, _ int) {
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()
}

// applyMessageUpdate merges a row-update event. The soft-delete flag is
// monotonic; Upsert never reverts it.
func (e *Engine) applyMessageUpdate(msg models.ChatMessage) {
	e.store.Upsert(msg)
}

func (e *Engine) applyBanInserted(ban models.Ban) {
	if e.guard.ApplyBan(ban) {
		e.manager.SetBanned(true)
	}
}

func (e *Engine) applyBanDeleted(userID string) {
	if e.guard.ClearBan(userID) {
		e.manager.SetBanned(false)
	}
}
