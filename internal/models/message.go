// internal/models/message.go

package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser   = "user"
	RoleSystem = "system"

	// NarratorUserID and NarratorName identify messages written by the AI narrator.
	NarratorUserID = "bot"
	NarratorName   = "Dungeon Master"
)

// Message is one entry in a room's append-only log. IDs are ULIDs so they sort by creation.
type Message struct {
	ID            string    `json:"id"`
	Role          string    `json:"role"`
	UserID        string    `json:"userId"`
	Username      string    `json:"username"`
	CharacterName string    `json:"characterName,omitempty"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	AudioContent  string    `json:"audioContent,omitempty"`
}

// ActivityRecord is one room event queued for the historian.
type ActivityRecord struct {
	RoomCode  string                 `json:"room_code"`
	ActorID   uuid.UUID              `json:"actor_id"`
	Action    string                 `json:"action"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}
