// internal/room/event.go

package room

import (
	"time"

	"github.com/jason-s-yu/realms/internal/models"
)

// Event types pushed to live room connections.
const (
	EventRoomState     = "room_state"
	EventPlayerJoined  = "player_joined"
	EventPlayerLeft    = "player_left"
	EventPlayerUpdated = "player_updated"
	EventPlayerReady   = "player_ready"
	EventRoomStarted   = "room_started"
	EventMessage       = "message"
	EventError         = "error"
)

// Event is a change to a room. Room carries the post-change snapshot (without messages);
// Messages carries newly appended log entries.
type Event struct {
	Type     string           `json:"type"`
	RoomCode string           `json:"roomCode"`
	Room     *models.Room     `json:"room,omitempty"`
	Messages []models.Message `json:"messages,omitempty"`
	Error    string           `json:"error,omitempty"`
	At       time.Time        `json:"at"`
}
