package models

// ChatMessage represents one message in a channel. The ID is a client-generated
// UUID so the optimistic copy and the persisted copy share one identity.
type ChatMessage struct {
	ID             string `db:"id" json:"id"`
	ChannelID      string `db:"channel_id" json:"channel_id"`
	SenderID       string `db:"sender_id" json:"sender_id"`
	SenderUsername string `db:"sender_username" json:"sender_username"`
	SenderAvatar   string `db:"sender_avatar" json:"sender_avatar"`
	SenderRole     Role   `db:"sender_role" json:"sender_role"`
	Content        string `db:"content" json:"content"`
	CreatedAtMs    int64  `db:"created_at_ms" json:"created_at_ms"`
	Deleted        bool   `db:"deleted" json:"deleted"`
}

// MaxContentLength bounds message content after trimming.
const MaxContentLength = 500

// GlobalChannelID is the single shared room every user may join.
const GlobalChannelID = "global"

// DirectChannelID returns the canonical channel id for a one-to-one thread.
// The pair is sorted so both participants derive the same id.
func DirectChannelID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "dm:" + a + ":" + b
}
