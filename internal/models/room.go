package models

// Room is a named channel grouping members and messages. The slug is the
// URL-safe identifier derived from the name at creation time.
type Room struct {
	BaseModel

	Name        string `gorm:"not null" json:"name"`
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"`
	Description string `json:"description"`
	IsPrivate   bool   `gorm:"default:false" json:"is_private"`
	AllowImages bool   `gorm:"default:true" json:"allow_images"`
	AllowVideos bool   `gorm:"default:true" json:"allow_videos"`

	CreatorID string `gorm:"type:uuid;not null;index" json:"creator_id"`
	Creator   *User  `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`

	Members  []RoomMember `gorm:"foreignKey:RoomID" json:"members,omitempty"`
	Messages []Message    `gorm:"foreignKey:RoomID" json:"-"`
	Invites  []RoomInvite `gorm:"foreignKey:RoomID" json:"-"`
}
