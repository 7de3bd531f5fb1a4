// internal/models/user.go

package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account. Password holds the argon2id hash once stored and is never serialized.
type User struct {
	ID             uuid.UUID `json:"uid"`
	Email          string    `json:"email"`
	Password       string    `json:"-"`
	Username       string    `json:"username"`
	ProfilePicture string    `json:"profilePicture"`
	IsAdmin        bool      `json:"isAdmin"`
	CreatedAt      time.Time `json:"createdAt"`

	// Filled in only for the signed-in user's own account view.
	Friends        []uuid.UUID     `json:"friends,omitempty"`
	FriendRequests []FriendRequest `json:"friendRequests,omitempty"`
	Notifications  []Notification  `json:"notifications,omitempty"`
}

// Profile is the public view of a user.
type Profile struct {
	ID             uuid.UUID `json:"uid"`
	Username       string    `json:"username"`
	ProfilePicture string    `json:"profilePicture"`
	IsAdmin        bool      `json:"isAdmin"`
}

// Profile returns the public view of u.
func (u *User) Profile() Profile {
	return Profile{
		ID:             u.ID,
		Username:       u.Username,
		ProfilePicture: u.ProfilePicture,
		IsAdmin:        u.IsAdmin,
	}
}
