package moderation

import (
	"sync"
	"time"

	"focuschat/internal/models"
)

// Guard caches the live ban status of one identity. It is fed by the initial
// ban lookup and by ban-table change events; readers never touch the network.
type Guard struct {
	mu     sync.RWMutex
	self   models.User
	ban    *models.Ban
	banned bool
}

// NewGuard builds a guard for the given identity.
func NewGuard(self models.User) *Guard {
	return &Guard{self: self}
}

// Self returns the guarded identity.
func (g *Guard) Self() models.User {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.self
}

// ApplyBan records a ban change event. It returns true when the event targets
// this identity and flipped the live flag to banned.
func (g *Guard) ApplyBan(ban models.Ban) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ban.UserID != g.self.ID {
		return false
	}
	g.ban = &ban
	g.banned = ban.ActiveAt(time.Now())
	return g.banned
}

// ClearBan records an unban event for the given user. It returns true when
// the event targets this identity.
func (g *Guard) ClearBan(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if userID != g.self.ID {
		return false
	}
	g.ban = nil
	g.banned = false
	return true
}

// IsBanned reports the live ban flag, re-checking passive expiry.
func (g *Guard) IsBanned() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ban == nil {
		return false
	}
	g.banned = g.ban.ActiveAt(time.Now())
	if !g.banned {
		g.ban = nil
	}
	return g.banned
}

// BanReason returns the reason of the active ban, if any.
func (g *Guard) BanReason() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.ban == nil {
		return ""
	}
	return g.ban.Reason
}
