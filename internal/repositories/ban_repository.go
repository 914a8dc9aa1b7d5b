package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"focuschat/internal/models"
)

var ErrBanNotFound = errors.New("ban not found")

// BanRepository defines interactions for moderation bans.
type BanRepository interface {
	InsertBan(ctx context.Context, ban models.Ban) (models.Ban, error)
	DeleteBan(ctx context.Context, banID string) error
	FetchActiveBan(ctx context.Context, userID string) (*models.Ban, error)
}

// BanRepo is a sqlx-backed repository.
type BanRepo struct {
	db *sqlx.DB
}

// NewBanRepo constructs BanRepo.
func NewBanRepo(db *sqlx.DB) *BanRepo {
	return &BanRepo{db: db}
}

// InsertBan stores a ban record.
func (r *BanRepo) InsertBan(ctx context.Context, ban models.Ban) (models.Ban, error) {
	var stored models.Ban
	err := r.db.QueryRowxContext(ctx, `INSERT INTO bans (id, user_id, banned_by_id, banned_by_role, reason, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, user_id, banned_by_id, banned_by_role, reason, created_at, expires_at`,
		ban.ID, ban.UserID, ban.BannedByID, ban.BannedByRole, ban.Reason, ban.ExpiresAt).
		StructScan(&stored)
	return stored, err
}

// DeleteBan removes a ban record.
func (r *BanRepo) DeleteBan(ctx context.Context, banID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bans WHERE id=$1`, banID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrBanNotFound
	}
	return nil
}

// FetchActiveBan returns the ban currently in force for a user, or nil.
// Expiry is evaluated at query time; expired rows are never swept.
func (r *BanRepo) FetchActiveBan(ctx context.Context, userID string) (*models.Ban, error) {
	var ban models.Ban
	err := r.db.GetContext(ctx, &ban, `SELECT id, user_id, banned_by_id, banned_by_role, reason, created_at, expires_at
        FROM bans
        WHERE user_id=$1 AND (expires_at IS NULL OR expires_at > NOW())
        ORDER BY created_at DESC
        LIMIT 1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ban, nil
}
