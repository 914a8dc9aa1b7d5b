package sync

import (
	gosync "sync"

	"focuschat/internal/models"
)

// Roster holds the live presence list. Every snapshot from the transport is
// authoritative and replaces the previous roster wholesale; when duplicates
// appear for an identity the first entry wins. The roster has no retry logic
// of its own and is cleared whenever the connection leaves the connected
// state.
type Roster struct {
	mu    gosync.RWMutex
	users []models.OnlineUser
}

// NewRoster builds an empty roster.
func NewRoster() *Roster {
	return &Roster{}
}

// ApplySnapshot replaces the roster from a full presence-sync event.
func (r *Roster) ApplySnapshot(records []models.PresenceRecord) {
	seen := make(map[string]bool, len(records))
	users := make([]models.OnlineUser, 0, len(records))
	for _, rec := range records {
		if seen[rec.UserID] {
			continue
		}
		seen[rec.UserID] = true
		users = append(users, models.OnlineUser{
			ID:       rec.UserID,
			Username: rec.Username,
			Avatar:   rec.Avatar,
			Role:     rec.Role,
			IsActive: rec.IsActive,
			LastSeen: rec.LastSeen,
		})
	}

	r.mu.Lock()
	r.users = users
	r.mu.Unlock()
}

// Clear empties the roster.
func (r *Roster) Clear() {
	r.mu.Lock()
	r.users = nil
	r.mu.Unlock()
}

// Snapshot returns a copy of the current roster.
func (r *Roster) Snapshot() []models.OnlineUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.OnlineUser, len(r.users))
	copy(out, r.users)
	return out
}
