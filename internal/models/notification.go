package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification types.
const (
	NotificationFriendRequest  = "friend_request"
	NotificationFriendAccepted = "friend_accepted"
	NotificationRoomInvite     = "room_invite"
)

type Notification struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"-"`
	Type         string    `json:"type"`
	RoomCode     string    `json:"roomCode,omitempty"`
	FromUser     uuid.UUID `json:"fromUser"`
	FromUsername string    `json:"fromUsername"`
	Timestamp    time.Time `json:"timestamp"`
	Read         bool      `json:"read"`
}
