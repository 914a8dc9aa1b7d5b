package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"focuschat/internal/models"
	"focuschat/internal/observability"
)

// member pairs a channel connection with its metadata. writeMu serializes
// writes to the socket; gorilla/websocket permits a single concurrent writer
// per connection and broadcasts run from many request goroutines.
type member struct {
	writeMu sync.Mutex
	info    ConnInfo
}

func (m *member) write(conn *websocket.Conn, payload []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub maintains active channel subscriptions and their presence state. Every
// membership change or track call broadcasts a full presence snapshot to the
// channel, so clients can rebuild their roster wholesale.
type Hub struct {
	channels map[string]map[*websocket.Conn]*member
	mu       sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{channels: make(map[string]map[*websocket.Conn]*member)}
}

// AddClient registers a websocket connection to a channel and broadcasts the
// updated presence snapshot.
func (h *Hub) AddClient(channelID string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	if _, ok := h.channels[channelID]; !ok {
		h.channels[channelID] = make(map[*websocket.Conn]*member)
	}
	h.channels[channelID][conn] = &member{info: info}
	h.mu.Unlock()

	h.BroadcastPresence(channelID)
}

// RemoveClient removes a channel websocket connection and broadcasts the
// updated presence snapshot.
func (h *Hub) RemoveClient(channelID string, conn *websocket.Conn) {
	h.mu.Lock()
	if conns, ok := h.channels[channelID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.channels, channelID)
		}
	}
	h.mu.Unlock()

	h.BroadcastPresence(channelID)
}

// UpdatePresence replaces the presence record of one connection and
// broadcasts the updated snapshot.
func (h *Hub) UpdatePresence(channelID string, conn *websocket.Conn, rec models.PresenceRecord) {
	h.mu.Lock()
	if conns, ok := h.channels[channelID]; ok {
		if m, exists := conns[conn]; exists {
			m.info.Presence = rec
		}
	}
	h.mu.Unlock()

	h.BroadcastPresence(channelID)
}

// BroadcastPresence sends the full presence snapshot to every client in the
// channel.
func (h *Hub) BroadcastPresence(channelID string) {
	h.mu.RLock()
	conns := h.channels[channelID]
	records := make([]models.PresenceRecord, 0, len(conns))
	for _, m := range conns {
		records = append(records, m.info.Presence)
	}
	h.mu.RUnlock()

	h.broadcast(channelID, models.ChannelEvent{Type: models.EventPresenceSync, Presence: records})
}

// BroadcastMessageInserted notifies a channel of a newly persisted message.
func (h *Hub) BroadcastMessageInserted(channelID string, msg models.ChatMessage) {
	h.broadcast(channelID, models.ChannelEvent{Type: models.EventMessageInserted, Message: &msg})
	observability.IncWSEvent("channel", "message_inserted")
}

// BroadcastMessageUpdated notifies a channel of a soft-deleted message row.
func (h *Hub) BroadcastMessageUpdated(channelID string, msg models.ChatMessage) {
	h.broadcast(channelID, models.ChannelEvent{Type: models.EventMessageUpdated, Message: &msg})
	observability.IncWSEvent("channel", "message_updated")
}

// BroadcastBanInserted notifies every channel of a new ban so the target's
// clients drop their subscriptions.
func (h *Hub) BroadcastBanInserted(ban models.Ban) {
	for _, channelID := range h.channelIDs() {
		h.broadcast(channelID, models.ChannelEvent{Type: models.EventBanInserted, Ban: &ban})
	}
	observability.IncWSEvent("channel", "ban_inserted")
}

// BroadcastBanDeleted notifies every channel that a user's ban was lifted.
func (h *Hub) BroadcastBanDeleted(userID string) {
	for _, channelID := range h.channelIDs() {
		h.broadcast(channelID, models.ChannelEvent{Type: models.EventBanDeleted, BanUserID: userID})
	}
	observability.IncWSEvent("channel", "ban_deleted")
}

func (h *Hub) channelIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.channels))
	for id := range h.channels {
		ids = append(ids, id)
	}
	return ids
}

type broadcastTarget struct {
	conn *websocket.Conn
	m    *member
	info ConnInfo
}

func (h *Hub) broadcast(channelID string, event models.ChannelEvent) {
	h.mu.RLock()
	targets := make([]broadcastTarget, 0, len(h.channels[channelID]))
	for conn, m := range h.channels[channelID] {
		targets = append(targets, broadcastTarget{conn: conn, m: m, info: m.info})
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	for _, t := range targets {
		if err := t.m.write(t.conn, payload); err != nil {
			log.Printf("websocket write error: %v", err)
			t.conn.Close()
			h.removeSilently(channelID, t.conn)
			h.publishWSError(channelID, t.info, err)
		}
	}
}

// removeSilently drops a dead connection without re-broadcasting presence;
// the read loop's close path handles that.
func (h *Hub) removeSilently(channelID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.channels[channelID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.channels, channelID)
		}
	}
}

func (h *Hub) publishWSError(channelID string, info ConnInfo, err error) {
	_ = observability.PublishEvent(context.Background(), lifecycleEvent(channelID, info, "ws_error", err.Error()))
	observability.IncWSEvent("channel", "ws_error")
}

// lifecycleEvent shapes a channel socket lifecycle event for the events
// exchange.
func lifecycleEvent(channelID string, info ConnInfo, event, reason string) observability.Event {
	return observability.Event{
		Stream:    "ws_events.channels",
		Type:      "ws_events",
		Name:      event,
		RequestID: info.RequestID,
		TraceID:   info.TraceID,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"channel_id":  channelID,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}
}
