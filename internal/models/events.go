package models

// ChannelEvent is the wire envelope pushed over a channel subscription.
type ChannelEvent struct {
	Type      string           `json:"type"`
	Message   *ChatMessage     `json:"message,omitempty"`
	Ban       *Ban             `json:"ban,omitempty"`
	BanUserID string           `json:"ban_user_id,omitempty"`
	Presence  []PresenceRecord `json:"presence,omitempty"`
	Status    string           `json:"status,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

// Channel event types.
const (
	EventMessageInserted = "message_inserted"
	EventMessageUpdated  = "message_updated"
	EventBanInserted     = "ban_inserted"
	EventBanDeleted      = "ban_deleted"
	EventPresenceSync    = "presence_sync"
	EventStatus          = "status"
)

// Subscription status values carried by EventStatus.
const (
	StatusSubscribed   = "subscribed"
	StatusChannelError = "channel_error"
	StatusClosed       = "closed"
)

// TrackFrame is the only client-to-server frame on a channel socket: it
// publishes or refreshes the sender's presence record.
type TrackFrame struct {
	Type     string         `json:"type"`
	Presence PresenceRecord `json:"presence"`
}
