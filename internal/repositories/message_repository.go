package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"focuschat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for channel messages.
type MessageRepository interface {
	InsertMessage(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error)
	GetMessage(ctx context.Context, messageID string) (models.ChatMessage, error)
	SoftDeleteMessage(ctx context.Context, messageID string) error
	FetchRecentMessages(ctx context.Context, channelID string, limit int) ([]models.ChatMessage, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// InsertMessage stores a message under its client-generated UUID. A retried
// send with the same id is a no-op, so the operation stays idempotent.
func (r *MessageRepo) InsertMessage(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	var stored models.ChatMessage
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (id, channel_id, sender_id, sender_username, sender_avatar, sender_role, content, created_at_ms)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO UPDATE SET id = messages.id
        RETURNING id, channel_id, sender_id, sender_username, sender_avatar, sender_role, content, deleted, created_at_ms`,
		msg.ID, msg.ChannelID, msg.SenderID, msg.SenderUsername, msg.SenderAvatar, msg.SenderRole, msg.Content, msg.CreatedAtMs).
		StructScan(&stored)
	return stored, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.ChatMessage, error) {
	var msg models.ChatMessage
	err := r.db.GetContext(ctx, &msg, `SELECT id, channel_id, sender_id, sender_username, sender_avatar, sender_role, content, deleted, created_at_ms FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatMessage{}, ErrMessageNotFound
	}
	return msg, err
}

// SoftDeleteMessage marks a message deleted. The flag is monotonic: nothing in
// this repository ever sets it back to FALSE.
func (r *MessageRepo) SoftDeleteMessage(ctx context.Context, messageID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET deleted = TRUE WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// FetchRecentMessages returns the most recent non-deleted messages of a
// channel in ascending creation order.
func (r *MessageRepo) FetchRecentMessages(ctx context.Context, channelID string, limit int) ([]models.ChatMessage, error) {
	query := `SELECT id, channel_id, sender_id, sender_username, sender_avatar, sender_role, content, deleted, created_at_ms
        FROM (
            SELECT * FROM messages
            WHERE channel_id=$1 AND deleted = FALSE
            ORDER BY created_at_ms DESC
            LIMIT $2
        ) recent
        ORDER BY created_at_ms ASC`
	var msgs []models.ChatMessage
	err := r.db.SelectContext(ctx, &msgs, query, channelID, limit)
	return msgs, err
}
