package models

import "time"

// User describes a chat participant. Credential management beyond the stored
// hash is delegated to the identity layer.
type User struct {
	BaseModel

	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	IsAdmin  bool `gorm:"default:false" json:"is_admin"`
	IsActive bool `gorm:"default:true" json:"is_active"`

	LastSeenAt *time.Time `json:"last_seen_at"`

	Memberships []RoomMember `gorm:"foreignKey:UserID" json:"-"`
}
