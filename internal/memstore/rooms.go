// internal/memstore/rooms.go

package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/realms/internal/database"
	"github.com/jason-s-yu/realms/internal/models"
)

func cloneRoom(r *models.Room) *models.Room {
	cp := *r
	cp.Players = append([]models.Player{}, r.Players...)
	cp.Messages = nil
	if r.StartedAt != nil {
		t := *r.StartedAt
		cp.StartedAt = &t
	}
	return &cp
}

func (s *Store) InsertRoom(_ context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return database.ErrRoomCodeTaken
	}
	now := s.now()
	if room.Status == "" {
		room.Status = models.RoomStatusOpen
	}
	room.CreatedAt = now
	for i := range room.Players {
		if room.Players[i].Status == "" {
			room.Players[i].Status = models.PlayerStatusJoined
		}
		room.Players[i].JoinedAt = now
	}
	s.rooms[room.Code] = &roomRecord{room: *cloneRoom(room), lastActivity: now}
	return nil
}

func (s *Store) GetRoom(_ context.Context, code string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rooms[code]
	if !ok {
		return nil, database.ErrNotFound
	}
	return cloneRoom(&rec.room), nil
}

// playerLocked returns a pointer into the stored player slice.
func (s *Store) playerLocked(code string, userID uuid.UUID) (*models.Player, error) {
	rec, ok := s.rooms[code]
	if !ok {
		return nil, database.ErrNotFound
	}
	for i := range rec.room.Players {
		if rec.room.Players[i].UserID == userID {
			return &rec.room.Players[i], nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *Store) UpsertPlayer(_ context.Context, code string, p *models.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[code]
	if !ok {
		return database.ErrNotFound
	}
	if p.Status == "" {
		p.Status = models.PlayerStatusJoined
	}
	rec.touch(s.now())
	if existing, err := s.playerLocked(code, p.UserID); err == nil {
		existing.Status = p.Status
		existing.Username = p.Username
		*p = *existing
		return nil
	}
	p.JoinedAt = s.now()
	rec.room.Players = append(rec.room.Players, *p)
	return nil
}

func (s *Store) UpdateCharacter(_ context.Context, code string, userID uuid.UUID, c models.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.playerLocked(code, userID)
	if err != nil {
		return err
	}
	p.Character = c
	p.IsReady = false
	return nil
}

func (s *Store) SetPlayerReady(_ context.Context, code string, userID uuid.UUID, ready bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.playerLocked(code, userID)
	if err != nil {
		return err
	}
	p.IsReady = ready
	return nil
}

func (s *Store) SetPlayerStatus(_ context.Context, code string, userID uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.playerLocked(code, userID)
	if err != nil {
		return err
	}
	p.Status = status
	if status == models.PlayerStatusLeft {
		p.IsReady = false
	}
	return nil
}

func (s *Store) MarkRoomStarted(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[code]
	if !ok || rec.room.IsStarted {
		return false, nil
	}
	now := s.now()
	rec.room.IsStarted = true
	rec.room.StartedAt = &now
	return true, nil
}

func (s *Store) ListRoomsForUser(_ context.Context, userID uuid.UUID) ([]models.Room, error) {
	s.mu.RLock()
	rooms := []models.Room{}
	for _, rec := range s.rooms {
		r := &rec.room
		p, joined := r.Player(userID)
		if r.HostUID == userID || (joined && p.Active()) {
			rooms = append(rooms, *cloneRoom(r))
		}
	}
	s.mu.RUnlock()
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.After(rooms[j].CreatedAt) })
	return rooms, nil
}

func (s *Store) AppendMessages(_ context.Context, code string, msgs ...models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[code]
	if !ok {
		return database.ErrNotFound
	}
	rec.messages = append(rec.messages, msgs...)
	rec.touch(s.now())
	return nil
}

func (s *Store) ListMessages(_ context.Context, code string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rooms[code]
	if !ok {
		return []models.Message{}, nil
	}
	msgs := rec.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.Message{}, msgs...), nil
}

func (s *Store) InsertActivityBatch(_ context.Context, records []models.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, records...)
	for _, r := range records {
		if rec, ok := s.rooms[r.RoomCode]; ok {
			if at := time.UnixMilli(r.Timestamp).UTC(); at.After(rec.lastActivity) {
				rec.touch(at)
			}
		}
	}
	return nil
}

// touch records activity at and reopens an abandoned room.
func (r *roomRecord) touch(at time.Time) {
	r.lastActivity = at
	r.room.Status = models.RoomStatusOpen
}

func (s *Store) MarkRoomsAbandoned(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var codes []string
	for code, rec := range s.rooms {
		if rec.room.Status == models.RoomStatusOpen && rec.lastActivity.Before(cutoff) {
			rec.room.Status = models.RoomStatusAbandoned
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes, nil
}

// Activity returns a copy of every activity record written so far.
func (s *Store) Activity() []models.ActivityRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ActivityRecord{}, s.activity...)
}
