package models

import "time"

// Ban is a moderation record against a user. A nil ExpiresAt means the ban is
// permanent. BannedByRole is recorded at issue time so unban permission can be
// evaluated without a second role lookup.
type Ban struct {
	ID           string     `db:"id" json:"id"`
	UserID       string     `db:"user_id" json:"user_id"`
	BannedByID   string     `db:"banned_by_id" json:"banned_by_id"`
	BannedByRole Role       `db:"banned_by_role" json:"banned_by_role"`
	Reason       string     `db:"reason" json:"reason"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt    *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}

// ActiveAt reports whether the ban is in force at the given instant.
func (b Ban) ActiveAt(now time.Time) bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}
