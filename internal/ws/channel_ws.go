package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"focuschat/internal/middleware"
	"focuschat/internal/models"
	"focuschat/internal/observability"
	"focuschat/internal/repositories"
)

// ChannelWebSocketHandler upgrades channel subscriptions. One socket carries
// the combined message change feed and presence stream for a channel.
type ChannelWebSocketHandler struct {
	hub       *Hub
	banRepo   repositories.BanRepository
	jwtSecret string
}

// NewChannelWebSocketHandler constructs a ChannelWebSocketHandler.
func NewChannelWebSocketHandler(hub *Hub, banRepo repositories.BanRepository, jwtSecret string) *ChannelWebSocketHandler {
	return &ChannelWebSocketHandler{hub: hub, banRepo: banRepo, jwtSecret: jwtSecret}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the client. Banned users are
// refused before the upgrade; their clients must not hold a subscription.
func (h *ChannelWebSocketHandler) Handle(c *gin.Context) {
	channelID := c.Param("channel_id")
	if channelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}

	ctx, span := otel.Tracer("focuschat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.Query("token")
	if token == "" {
		token = bearerToken(c.GetHeader("Authorization"))
	}

	user, err := middleware.ParseToken(h.jwtSecret, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ban, err := h.banRepo.FetchActiveBan(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check ban state"})
		return
	}
	if ban != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "banned from chat"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	traceID := span.SpanContext().TraceID().String()
	meta := observability.ClientMetaFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      user.ID,
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
		Presence: models.PresenceRecord{
			UserID:   user.ID,
			Username: user.Username,
			Avatar:   user.Avatar,
			Role:     user.Role,
			LastSeen: time.Now(),
		},
	}

	// The subscribed ack must be on the wire before the first presence
	// snapshot so clients observe the status transition first.
	ack, _ := json.Marshal(models.ChannelEvent{Type: models.EventStatus, Status: models.StatusSubscribed})
	if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
		conn.Close()
		return
	}

	h.hub.AddClient(channelID, conn, info)

	observability.IncWSActive("channel")
	observability.IncWSEvent("channel", "ws_connect")
	h.publishLifecycle(ctx, channelID, info, "ws_connect", "")

	go h.readLoop(ctx, channelID, conn, info)
}

// readLoop consumes track frames until the peer goes away, then cleans up.
func (h *ChannelWebSocketHandler) readLoop(ctx context.Context, channelID string, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.hub.RemoveClient(channelID, conn)
		observability.DecWSActive("channel")
		observability.IncWSEvent("channel", "ws_disconnect")
		h.publishLifecycle(ctx, channelID, info, "ws_disconnect", closeReason)
		conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("channel", "ws_error")
				h.publishLifecycle(ctx, channelID, info, "ws_error", closeReason)
			}
			return
		}

		var frame models.TrackFrame
		if err := json.Unmarshal(payload, &frame); err != nil || frame.Type != "track" {
			continue
		}
		// A client only speaks for itself.
		if frame.Presence.UserID != info.UserID {
			continue
		}
		frame.Presence.LastSeen = time.Now()
		h.hub.UpdatePresence(channelID, conn, frame.Presence)
	}
}

func (h *ChannelWebSocketHandler) publishLifecycle(ctx context.Context, channelID string, info ConnInfo, event, reason string) {
	_ = observability.PublishEvent(ctx, lifecycleEvent(channelID, info, event, reason))
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
