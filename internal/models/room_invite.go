package models

import "time"

// RoomInvite is a redeemable code granting membership, bounded by expiry and
// optionally by a use count. Codes are stored lowercase so lookups compare
// case-insensitively.
type RoomInvite struct {
	BaseModel

	RoomID    string `gorm:"type:uuid;not null;index" json:"room_id"`
	Code      string `gorm:"uniqueIndex;not null" json:"code"`
	CreatedBy string `gorm:"type:uuid;not null" json:"created_by"`

	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	MaxUses   *int      `json:"max_uses"`
	UsedCount int       `gorm:"default:0" json:"used_count"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`

	Room    *Room `gorm:"foreignKey:RoomID" json:"room,omitempty"`
	Creator *User `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
}

// Usable reports whether the invite can still be redeemed at the given time.
func (i *RoomInvite) Usable(now time.Time) bool {
	if !i.IsActive || !now.Before(i.ExpiresAt) {
		return false
	}
	return i.MaxUses == nil || i.UsedCount < *i.MaxUses
}

// Exhausted reports whether the invite has reached its use limit.
func (i *RoomInvite) Exhausted() bool {
	return i.MaxUses != nil && i.UsedCount >= *i.MaxUses
}
