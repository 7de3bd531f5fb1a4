// internal/models/friend.go

package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	FriendRequestPending  = "pending"
	FriendRequestAccepted = "accepted"
	FriendRequestDeclined = "declined"
)

// FriendRequest is a directed request from Sender to Receiver.
type FriendRequest struct {
	SenderID         uuid.UUID `json:"senderId"`
	SenderUsername   string    `json:"senderUsername"`
	ReceiverID       uuid.UUID `json:"receiverId"`
	ReceiverUsername string    `json:"receiverUsername"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
}
