package sync

import (
	"context"

	"focuschat/internal/models"
)

// Handlers receive push events from an active channel subscription. Any
// handler may be nil.
type Handlers struct {
	OnMessageInserted func(models.ChatMessage)
	OnMessageUpdated  func(models.ChatMessage)
	OnBanInserted     func(models.Ban)
	OnBanDeleted      func(userID string)
	OnPresenceSync    func([]models.PresenceRecord)
	OnStatus          func(status string, err error)
}

// Subscription is one live channel. Close is idempotent.
type Subscription interface {
	// Track publishes or refreshes this identity's presence record without
	// tearing down the subscription.
	Track(rec models.PresenceRecord) error
	Close() error
}

// Transport is the realtime pub/sub, change-feed, and presence service the
// engine runs against. Subscribe returns as soon as the channel is set up;
// the subscribed acknowledgement (or failure) arrives through OnStatus.
// The remaining operations are single request/response calls against the
// backing store.
type Transport interface {
	Subscribe(ctx context.Context, channelID string, h Handlers) (Subscription, error)

	InsertMessage(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error)
	SoftDeleteMessage(ctx context.Context, messageID string) error
	FetchRecentMessages(ctx context.Context, channelID string, limit int) ([]models.ChatMessage, error)

	InsertBan(ctx context.Context, ban models.Ban) (models.Ban, error)
	DeleteBan(ctx context.Context, ban models.Ban) error
	FetchActiveBan(ctx context.Context, userID string) (*models.Ban, error)
	FetchRole(ctx context.Context, userID string) (models.Role, error)
}
