package moderation

import (
	"errors"

	"focuschat/internal/models"
)

// Denial reasons. Each rule violation carries its own user-facing message so
// the UI can name the rule that was broken instead of a generic error.
var (
	ErrInsufficientRole = errors.New("only moderators and administrators may perform moderation actions")
	ErrDeleteNotOwn     = errors.New("you can only delete your own messages")
	ErrSelfBan          = errors.New("you cannot ban yourself")
	ErrAdminImmune      = errors.New("administrators cannot be banned")
	ErrPeerModerator    = errors.New("moderators cannot ban other moderators")
	ErrAdminIssuedBan   = errors.New("this ban was issued by an administrator and can only be lifted by an administrator")
)

// banPolicy maps an issuer role to the target roles it may ban. All hierarchy
// rules live in this one table.
var banPolicy = map[models.Role]map[models.Role]bool{
	models.RoleAdmin:     {models.RoleUser: true, models.RoleModerator: true},
	models.RoleModerator: {models.RoleUser: true},
	models.RoleUser:      {},
}

// CanDeleteMessage reports whether actor may delete the given message. A user
// may always delete their own message; otherwise moderator privilege is
// required.
func CanDeleteMessage(actor models.User, msg models.ChatMessage) error {
	if actor.ID == msg.SenderID {
		return nil
	}
	if !actor.Role.AtLeast(models.RoleModerator) {
		return ErrDeleteNotOwn
	}
	return nil
}

// CanBan reports whether actor may ban the target, naming the violated rule
// when not.
func CanBan(actor models.User, targetID string, targetRole models.Role) error {
	if actor.ID == targetID {
		return ErrSelfBan
	}
	if !actor.Role.AtLeast(models.RoleModerator) {
		return ErrInsufficientRole
	}
	if banPolicy[actor.Role][targetRole] {
		return nil
	}
	if targetRole == models.RoleAdmin {
		return ErrAdminImmune
	}
	return ErrPeerModerator
}

// CanUnban reports whether actor may lift the given ban.
func CanUnban(actor models.User, ban models.Ban) error {
	if !actor.Role.AtLeast(models.RoleModerator) {
		return ErrInsufficientRole
	}
	if ban.BannedByRole == models.RoleAdmin && actor.Role != models.RoleAdmin {
		return ErrAdminIssuedBan
	}
	return nil
}
