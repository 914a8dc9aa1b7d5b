package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"focuschat/internal/models"
)

// RoleRepository defines role lookups.
type RoleRepository interface {
	FetchRole(ctx context.Context, userID string) (models.Role, error)
}

// RoleRepo is a sqlx-backed repository.
type RoleRepo struct {
	db *sqlx.DB
}

// NewRoleRepo constructs RoleRepo.
func NewRoleRepo(db *sqlx.DB) *RoleRepo {
	return &RoleRepo{db: db}
}

// FetchRole returns the stored role of a user, defaulting to user.
func (r *RoleRepo) FetchRole(ctx context.Context, userID string) (models.Role, error) {
	var role models.Role
	err := r.db.GetContext(ctx, &role, `SELECT role FROM user_roles WHERE user_id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RoleUser, nil
	}
	if err != nil {
		return "", err
	}
	if !role.Valid() {
		return models.RoleUser, nil
	}
	return role, nil
}
