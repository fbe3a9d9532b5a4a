package models

import "time"

// RequestStatus enumerates the access request lifecycle. Processed statuses
// are terminal.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// AccessRequest is a pending ask from a non-member to join a room, resolved
// by a room admin or the creator. At most one pending request exists per
// (room, user) pair.
type AccessRequest struct {
	BaseModel

	RoomID string        `gorm:"type:uuid;not null;index" json:"room_id"`
	UserID string        `gorm:"type:uuid;not null;index" json:"user_id"`
	Status RequestStatus `gorm:"type:varchar(20);not null;default:pending;index" json:"status"`
	Notes  string        `gorm:"type:text" json:"notes"`

	RequestedAt time.Time  `json:"requested_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	ProcessedBy *string    `gorm:"type:uuid" json:"processed_by"`

	Room *Room `gorm:"foreignKey:RoomID" json:"room,omitempty"`
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// Pending reports whether the request is still awaiting processing.
func (r *AccessRequest) Pending() bool {
	return r.Status == RequestPending
}
