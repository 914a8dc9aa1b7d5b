package models

import "time"

// User is the authenticated identity supplied by the auth collaborator.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
	Role      Role   `json:"role"`
	DiscordID string `json:"discord_id,omitempty"`
}

// PresenceRecord is the payload a client publishes about itself. It is
// replaced wholesale on every track call.
type PresenceRecord struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Avatar   string    `json:"avatar"`
	Role     Role      `json:"role"`
	IsActive bool      `json:"is_active"`
	LastSeen time.Time `json:"last_seen"`
}

// OnlineUser is one entry in the live roster, rebuilt in full from every
// presence snapshot.
type OnlineUser struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Avatar   string    `json:"avatar"`
	Role     Role      `json:"role"`
	IsActive bool      `json:"is_active"`
	LastSeen time.Time `json:"last_seen"`
}
