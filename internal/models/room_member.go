package models

import "time"

// RoomRole enumerates the membership roles inside a room.
type RoomRole string

const (
	RoleCreator RoomRole = "creator"
	RoleAdmin   RoomRole = "admin"
	RoleMember  RoomRole = "member"
)

// Valid reports whether the role is one of the known room roles.
func (r RoomRole) Valid() bool {
	switch r {
	case RoleCreator, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// RoomMember is the (room, user, role) relation granting access and
// permissions. A user holds at most one membership row per room.
type RoomMember struct {
	BaseModel

	RoomID string   `gorm:"type:uuid;not null;uniqueIndex:idx_room_user" json:"room_id"`
	UserID string   `gorm:"type:uuid;not null;uniqueIndex:idx_room_user" json:"user_id"`
	Role   RoomRole `gorm:"type:varchar(20);not null;default:member" json:"role"`

	JoinedAt time.Time `json:"joined_at"`

	Room *Room `gorm:"foreignKey:RoomID" json:"-"`
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
