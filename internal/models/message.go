package models

// Message belongs exclusively to its room and references its author. The
// display content is authoritative; EncodedContent carries the at-rest
// encoded copy produced by the configured codec.
type Message struct {
	BaseModel

	RoomID string `gorm:"type:uuid;not null;index" json:"room_id"`
	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`

	Content        string `gorm:"type:text" json:"content"`
	EncodedContent string `gorm:"type:text" json:"-"`
	AttachmentRef  string `json:"attachment_ref,omitempty"`

	Room *Room `gorm:"foreignKey:RoomID" json:"-"`
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
