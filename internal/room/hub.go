// internal/room/hub.go

package room

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// outBuffer is how many events may queue for a slow connection before new ones are dropped.
const outBuffer = 16

// Connection is one user's live websocket presence in a room.
type Connection struct {
	UserID   uuid.UUID
	Username string
	Cancel   func()
	OutChan  chan Event

	done      chan struct{}
	closeOnce sync.Once
}

func NewConnection(userID uuid.UUID, username string, cancel func()) *Connection {
	return &Connection{
		UserID:   userID,
		Username: username,
		Cancel:   cancel,
		OutChan:  make(chan Event, outBuffer),
		done:     make(chan struct{}),
	}
}

// Write queues ev without blocking. Events for a full or closed connection are dropped.
func (c *Connection) Write(ev Event) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.OutChan <- ev:
	default:
		log.WithFields(log.Fields{"user": c.UserID, "event": ev.Type}).Warn("connection out channel full, dropped event")
	}
}

// WriteError sends an error event to this connection only.
func (c *Connection) WriteError(roomCode, msg string) {
	c.Write(Event{Type: EventError, RoomCode: roomCode, Error: msg})
}

// Done is closed once the connection has been removed from its hub.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close stops delivery and cancels the connection's context. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.Cancel != nil {
			c.Cancel()
		}
	})
}

// Hub holds the live connections for one room.
type Hub struct {
	Code        string
	Connections map[uuid.UUID]*Connection

	// OnEmpty is called after the last connection is removed.
	OnEmpty func(code string)

	Mu sync.Mutex
}

func NewHub(code string) *Hub {
	return &Hub{
		Code:        code,
		Connections: make(map[uuid.UUID]*Connection),
	}
}

// AddConnection registers conn, replacing and closing any previous connection for the same user.
func (h *Hub) AddConnection(conn *Connection) {
	h.Mu.Lock()
	old, replaced := h.Connections[conn.UserID]
	h.Connections[conn.UserID] = conn
	h.Mu.Unlock()

	if replaced && old != conn {
		log.WithFields(log.Fields{"room": h.Code, "user": conn.UserID}).Info("replacing existing room connection")
		old.Close()
	}
	log.WithFields(log.Fields{"room": h.Code, "user": conn.UserID, "username": conn.Username}).Info("room connection added")
}

// RemoveConnection drops conn if it is still the user's current connection.
func (h *Hub) RemoveConnection(conn *Connection) {
	h.Mu.Lock()
	current, ok := h.Connections[conn.UserID]
	if ok && current == conn {
		delete(h.Connections, conn.UserID)
	}
	isEmpty := len(h.Connections) == 0
	onEmpty := h.OnEmpty
	h.Mu.Unlock()

	conn.Close()

	if isEmpty && onEmpty != nil {
		onEmpty(h.Code)
	}
}

// BroadcastAllUnsafe sends ev to every connection. Assumes Mu is held.
func (h *Hub) BroadcastAllUnsafe(ev Event) {
	for _, c := range h.Connections {
		c.Write(ev)
	}
}

func (h *Hub) BroadcastAll(ev Event) {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	h.BroadcastAllUnsafe(ev)
}

func (h *Hub) Count() int {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	return len(h.Connections)
}

// HubStore tracks the hubs with at least one connection on this instance.
type HubStore struct {
	mu   sync.Mutex
	hubs map[string]*Hub
}

func NewHubStore() *HubStore {
	return &HubStore{hubs: make(map[string]*Hub)}
}

// Attach adds conn to the room's hub under the store lock, so a hub that is being
// removed as empty never receives a new connection.
func (s *HubStore) Attach(code string, conn *Connection) *Hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hubs[code]
	if !ok {
		h = NewHub(code)
		h.OnEmpty = func(code string) { s.deleteIfEmpty(code, h) }
		s.hubs[code] = h
	}
	h.AddConnection(conn)
	return h
}

func (s *HubStore) Get(code string) (*Hub, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hubs[code]
	return h, ok
}

func (s *HubStore) deleteIfEmpty(code string, h *Hub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.hubs[code]; ok && cur == h && h.Count() == 0 {
		delete(s.hubs, code)
		log.WithField("room", code).Debug("room hub removed")
	}
}

// Deliver broadcasts ev to the room's hub if anyone on this instance is connected.
func (s *HubStore) Deliver(ev Event) {
	if h, ok := s.Get(ev.RoomCode); ok {
		h.BroadcastAll(ev)
	}
}

// Len returns the number of rooms with live connections.
func (s *HubStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hubs)
}
