// internal/models/room.go

package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoomStatusOpen      = "open"
	RoomStatusAbandoned = "abandoned"

	PlayerStatusJoined = "joined"
	PlayerStatusLeft   = "left"
)

// Room is a shared storytelling session identified by a short code.
type Room struct {
	Code             string     `json:"code"`
	AdventureTitle   string     `json:"adventureTitle"`
	AdventureSetting string     `json:"adventureSetting"`
	WorldLore        string     `json:"worldLore"`
	Plot             string     `json:"plot"`
	Context          string     `json:"context"`
	HostUID          uuid.UUID  `json:"hostUid"`
	IsStarted        bool       `json:"isStarted"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"createdAt"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`

	Players  []Player  `json:"players"`
	Messages []Message `json:"messages,omitempty"`
}

// Player returns the room's record for userID, if any.
func (r *Room) Player(userID uuid.UUID) (Player, bool) {
	for _, p := range r.Players {
		if p.UserID == userID {
			return p, true
		}
	}
	return Player{}, false
}

// Character is what a player brings to the story.
type Character struct {
	Name      string `json:"characterName" validate:"required,max=64"`
	Type      string `json:"characterType" validate:"required,max=64"`
	Backstory string `json:"characterBackstory" validate:"max=4000"`
}

// Player is a participant record nested in a room.
type Player struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
	Character
	IsReady  bool      `json:"isReady"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Active reports whether the player is currently in the room.
func (p Player) Active() bool {
	return p.Status != PlayerStatusLeft
}
