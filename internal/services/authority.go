package services

import (
	"net/http"

	"github.com/revaristo12/chatliver1404/internal/models"
	apperrors "github.com/revaristo12/chatliver1404/pkg/errors"
)

// RoleNone marks the absence of a membership.
const RoleNone models.RoomRole = ""

var (
	// ErrSelfTarget signals a promote/demote/remove attempt on oneself.
	ErrSelfTarget = apperrors.New("MEMBER_SELF_TARGET", "You cannot perform this action on yourself", http.StatusBadRequest)
	// ErrCreatorImmutable signals an attempt to change or remove the creator membership.
	ErrCreatorImmutable = apperrors.New("CREATOR_IMMUTABLE", "The room creator cannot be modified or removed", http.StatusBadRequest)
)

func roleRank(role models.RoomRole) int {
	switch role {
	case models.RoleCreator:
		return 3
	case models.RoleAdmin:
		return 2
	case models.RoleMember:
		return 1
	default:
		return 0
	}
}

// IsMember reports whether the role grants basic room access: sending
// messages, editing or deleting one's own messages, subscribing to the room.
func IsMember(role models.RoomRole) bool {
	return roleRank(role) >= roleRank(models.RoleMember)
}

// CanManageRoom reports whether the role may create or delete invites,
// approve or reject access requests, and delete any message in the room.
func CanManageRoom(role models.RoomRole) bool {
	return roleRank(role) >= roleRank(models.RoleAdmin)
}

// CanAdministerMembers reports whether the role may promote, demote, or
// remove members, or delete the room itself.
func CanAdministerMembers(role models.RoomRole) bool {
	return role == models.RoleCreator
}

// checkMemberTarget enforces the invariants shared by promote, demote, and
// remove: no self-targeting, and the creator membership is untouchable.
func checkMemberTarget(actorID, targetID string, targetRole models.RoomRole) error {
	if actorID == targetID {
		return ErrSelfTarget
	}
	if targetRole == models.RoleCreator {
		return ErrCreatorImmutable
	}
	return nil
}
