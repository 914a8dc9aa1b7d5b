package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"focuschat/internal/middleware"
	"focuschat/internal/models"
	"focuschat/internal/moderation"
	"focuschat/internal/observability"
	"focuschat/internal/ratelimit"
	"focuschat/internal/repositories"
	"focuschat/internal/telemetry"
	"focuschat/internal/ws"
)

const defaultHistoryLimit = 50

// MessageHandler manages channel message endpoints.
type MessageHandler struct {
	messageRepo repositories.MessageRepository
	banRepo     repositories.BanRepository
	limiter     *ratelimit.RedisLimiter
	hub         *ws.Hub
	emitter     *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messageRepo repositories.MessageRepository, banRepo repositories.BanRepository, limiter *ratelimit.RedisLimiter, hub *ws.Hub, emitter *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		messageRepo: messageRepo,
		banRepo:     banRepo,
		limiter:     limiter,
		hub:         hub,
		emitter:     emitter,
	}
}

// GetChannelMessages returns the most recent messages of a channel in
// ascending creation order.
func (h *MessageHandler) GetChannelMessages(c *gin.Context) {
	channelID := c.Param("channel_id")

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	msgs, err := h.messageRepo.FetchRecentMessages(c.Request.Context(), channelID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type postMessageRequest struct {
	ID          string `json:"id" binding:"required"`
	Content     string `json:"content" binding:"required"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

// PostChannelMessage persists a message under its client-generated UUID and
// broadcasts the change-feed event. The same limits the client enforces
// advisorily are enforced here authoritatively.
func (h *MessageHandler) PostChannelMessage(c *gin.Context) {
	channelID := c.Param("channel_id")

	user, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		observability.IncSendRejected("empty")
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is empty"})
		return
	}
	if utf8.RuneCountInString(content) > models.MaxContentLength {
		observability.IncSendRejected("too_long")
		c.JSON(http.StatusBadRequest, gin.H{"error": "message exceeds 500 characters"})
		return
	}
	if _, err := uuid.Parse(req.ID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	ban, err := h.banRepo.FetchActiveBan(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check ban state"})
		return
	}
	if ban != nil {
		observability.IncSendRejected("banned")
		c.JSON(http.StatusForbidden, gin.H{"error": "you are banned from chat"})
		return
	}

	if h.limiter != nil {
		allowed, resetAt, err := h.limiter.Allow(c.Request.Context(), user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "rate limit check failed"})
			return
		}
		if !allowed {
			observability.IncSendRejected("rate_limited")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":    "too many messages",
				"reset_at": resetAt.UTC().Format(time.RFC3339),
			})
			return
		}
	}

	createdAt := req.CreatedAtMs
	if createdAt <= 0 {
		createdAt = time.Now().UnixMilli()
	}

	msg := models.ChatMessage{
		ID:             req.ID,
		ChannelID:      channelID,
		SenderID:       user.ID,
		SenderUsername: user.Username,
		SenderAvatar:   user.Avatar,
		SenderRole:     user.Role,
		Content:        content,
		CreatedAtMs:    createdAt,
	}

	stored, err := h.messageRepo.InsertMessage(c.Request.Context(), msg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	h.hub.BroadcastMessageInserted(channelID, stored)
	observability.IncMessageSent()

	c.JSON(http.StatusOK, gin.H{"message": stored})
}

// DeleteMessage soft-deletes a message: the sender may delete their own,
// otherwise moderator privilege is required.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID := c.Param("message_id")

	user, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}

	if err := moderation.CanDeleteMessage(user, msg); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	if err := h.messageRepo.SoftDeleteMessage(c.Request.Context(), messageID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
		return
	}

	msg.Deleted = true
	h.hub.BroadcastMessageUpdated(msg.ChannelID, msg)
	observability.IncModerationAction("delete_message")
	h.emitter.Emit(c.Request.Context(), "INFO",
		fmt.Sprintf("message %s deleted by %s", messageID, user.ID),
		requestIDFromContext(c), userIDFromContext(c))

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
