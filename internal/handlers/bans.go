package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"focuschat/internal/middleware"
	"focuschat/internal/models"
	"focuschat/internal/moderation"
	"focuschat/internal/observability"
	"focuschat/internal/repositories"
	"focuschat/internal/telemetry"
	"focuschat/internal/ws"
)

// BanHandler manages moderation endpoints.
type BanHandler struct {
	banRepo  repositories.BanRepository
	roleRepo repositories.RoleRepository
	hub      *ws.Hub
	emitter  *telemetry.AuditEmitter
}

// NewBanHandler builds a BanHandler.
func NewBanHandler(banRepo repositories.BanRepository, roleRepo repositories.RoleRepository, hub *ws.Hub, emitter *telemetry.AuditEmitter) *BanHandler {
	return &BanHandler{banRepo: banRepo, roleRepo: roleRepo, hub: hub, emitter: emitter}
}

type createBanRequest struct {
	UserID          string `json:"user_id" binding:"required"`
	Reason          string `json:"reason"`
	DurationMinutes int    `json:"duration_minutes"`
}

// CreateBan issues a ban, enforcing the role hierarchy. Zero duration means
// permanent.
func (h *BanHandler) CreateBan(c *gin.Context) {
	actor, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	var req createBanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	targetRole, err := h.roleRepo.FetchRole(c.Request.Context(), req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load target role"})
		return
	}

	if err := moderation.CanBan(actor, req.UserID, targetRole); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	ban := models.Ban{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		BannedByID:   actor.ID,
		BannedByRole: actor.Role,
		Reason:       req.Reason,
		CreatedAt:    time.Now(),
	}
	if req.DurationMinutes > 0 {
		expires := time.Now().Add(time.Duration(req.DurationMinutes) * time.Minute)
		ban.ExpiresAt = &expires
	}

	stored, err := h.banRepo.InsertBan(c.Request.Context(), ban)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store ban"})
		return
	}

	h.hub.BroadcastBanInserted(stored)
	observability.IncModerationAction("ban")
	h.emitter.Emit(c.Request.Context(), "WARN",
		fmt.Sprintf("user %s banned by %s", req.UserID, actor.ID),
		requestIDFromContext(c), userIDFromContext(c))

	c.JSON(http.StatusOK, gin.H{"ban": stored})
}

// DeleteBan lifts a user's active ban, subject to the issuer-role rule.
func (h *BanHandler) DeleteBan(c *gin.Context) {
	targetID := c.Param("user_id")

	actor, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	ban, err := h.banRepo.FetchActiveBan(c.Request.Context(), targetID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load ban"})
		return
	}
	if ban == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active ban"})
		return
	}

	if err := moderation.CanUnban(actor, *ban); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	if err := h.banRepo.DeleteBan(c.Request.Context(), ban.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete ban"})
		return
	}

	h.hub.BroadcastBanDeleted(targetID)
	observability.IncModerationAction("unban")
	h.emitter.Emit(c.Request.Context(), "INFO",
		fmt.Sprintf("user %s unbanned by %s", targetID, actor.ID),
		requestIDFromContext(c), userIDFromContext(c))

	c.JSON(http.StatusOK, gin.H{"status": "unbanned"})
}

// GetBan returns the active ban of a user, or null.
func (h *BanHandler) GetBan(c *gin.Context) {
	ban, err := h.banRepo.FetchActiveBan(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load ban"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ban": ban})
}

// GetRole returns the stored role of a user.
func (h *BanHandler) GetRole(c *gin.Context) {
	role, err := h.roleRepo.FetchRole(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load role"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": role})
}
