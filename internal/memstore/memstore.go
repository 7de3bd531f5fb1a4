// internal/memstore/memstore.go

// Package memstore is a process-local implementation of the database.Store API,
// used by the memory storage driver and by tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/realms/internal/auth"
	"github.com/jason-s-yu/realms/internal/database"
	"github.com/jason-s-yu/realms/internal/models"
)

type friendKey struct{ sender, receiver uuid.UUID }

type roomRecord struct {
	room         models.Room
	messages     []models.Message
	lastActivity time.Time
}

// Store keeps everything in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	users         map[uuid.UUID]*models.User
	requests      map[friendKey]*models.FriendRequest
	friends       map[uuid.UUID]map[uuid.UUID]struct{}
	notifications map[uuid.UUID][]*models.Notification
	rooms         map[string]*roomRecord
	activity      []models.ActivityRecord

	now func() time.Time
}

func New() *Store {
	return &Store{
		users:         make(map[uuid.UUID]*models.User),
		requests:      make(map[friendKey]*models.FriendRequest),
		friends:       make(map[uuid.UUID]map[uuid.UUID]struct{}),
		notifications: make(map[uuid.UUID][]*models.Notification),
		rooms:         make(map[string]*roomRecord),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Close() {}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// users

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	user.Username = normalize(user.Username)
	user.Email = normalize(user.Email)

	hash, err := auth.HashPassword(user.Password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == user.Username {
			return database.ErrUsernameTaken
		}
		if u.Email == user.Email {
			return database.ErrEmailTaken
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Password = hash
	user.CreatedAt = s.now()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) findUser(match func(*models.User) bool) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	email = normalize(email)
	return s.findUser(func(u *models.User) bool { return u.Email == email })
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	username = normalize(username)
	return s.findUser(func(u *models.User) bool { return u.Username == username })
}

func (s *Store) IsUsernameTaken(ctx context.Context, username string) (bool, error) {
	_, err := s.GetUserByUsername(ctx, username)
	if err == database.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) SearchUsers(_ context.Context, query string, limit int) ([]models.Profile, error) {
	if limit <= 0 {
		limit = 20
	}
	query = strings.ToLower(query)

	s.mu.RLock()
	profiles := []models.Profile{}
	for _, u := range s.users {
		if strings.Contains(u.Username, query) {
			profiles = append(profiles, u.Profile())
		}
	}
	s.mu.RUnlock()

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Username < profiles[j].Username })
	if len(profiles) > limit {
		profiles = profiles[:limit]
	}
	return profiles, nil
}

func (s *Store) AuthenticateUser(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, database.ErrInvalidCredentials
	}
	ok, err := auth.VerifyPassword(password, u.Password)
	if err != nil || !ok {
		return nil, database.ErrInvalidCredentials
	}
	return u, nil
}

func (s *Store) UpdateProfile(_ context.Context, id uuid.UUID, picture string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return database.ErrNotFound
	}
	u.ProfilePicture = picture
	return nil
}

func (s *Store) UpdatePassword(_ context.Context, id uuid.UUID, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return database.ErrNotFound
	}
	u.Password = hash
	return nil
}

// friends

func (s *Store) areFriendsLocked(a, b uuid.UUID) bool {
	_, ok := s.friends[a][b]
	return ok
}

func (s *Store) InsertFriendRequest(_ context.Context, sender, receiver uuid.UUID) (*models.FriendRequest, error) {
	if sender == receiver {
		return nil, database.ErrSelfRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	from, ok := s.users[sender]
	if !ok {
		return nil, database.ErrNotFound
	}
	to, ok := s.users[receiver]
	if !ok {
		return nil, database.ErrNotFound
	}
	if s.areFriendsLocked(sender, receiver) {
		return nil, database.ErrAlreadyFriends
	}
	for _, k := range []friendKey{{sender, receiver}, {receiver, sender}} {
		if r, ok := s.requests[k]; ok && r.Status == models.FriendRequestPending {
			return nil, database.ErrRequestExists
		}
	}

	req := &models.FriendRequest{
		SenderID:         sender,
		SenderUsername:   from.Username,
		ReceiverID:       receiver,
		ReceiverUsername: to.Username,
		Status:           models.FriendRequestPending,
		CreatedAt:        s.now(),
	}
	s.requests[friendKey{sender, receiver}] = req
	cp := *req
	return &cp, nil
}

func (s *Store) RespondFriendRequest(_ context.Context, sender, receiver uuid.UUID, accept bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[friendKey{sender, receiver}]
	if !ok || req.Status != models.FriendRequestPending {
		return database.ErrNoPendingRequest
	}
	if !accept {
		req.Status = models.FriendRequestDeclined
		return nil
	}
	req.Status = models.FriendRequestAccepted
	for _, pair := range [][2]uuid.UUID{{sender, receiver}, {receiver, sender}} {
		if s.friends[pair[0]] == nil {
			s.friends[pair[0]] = make(map[uuid.UUID]struct{})
		}
		s.friends[pair[0]][pair[1]] = struct{}{}
	}
	return nil
}

func (s *Store) ListFriends(_ context.Context, userID uuid.UUID) ([]models.Profile, error) {
	s.mu.RLock()
	friends := []models.Profile{}
	for id := range s.friends[userID] {
		if u, ok := s.users[id]; ok {
			friends = append(friends, u.Profile())
		}
	}
	s.mu.RUnlock()
	sort.Slice(friends, func(i, j int) bool { return friends[i].Username < friends[j].Username })
	return friends, nil
}

func (s *Store) ListFriendRequests(_ context.Context, userID uuid.UUID) ([]models.FriendRequest, error) {
	s.mu.RLock()
	reqs := []models.FriendRequest{}
	for k, r := range s.requests {
		if k.sender == userID || k.receiver == userID {
			reqs = append(reqs, *r)
		}
	}
	s.mu.RUnlock()
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].CreatedAt.After(reqs[j].CreatedAt) })
	return reqs, nil
}

func (s *Store) AreFriends(_ context.Context, a, b uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.areFriendsLocked(a, b), nil
}

func (s *Store) RemoveFriend(_ context.Context, a, b uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.areFriendsLocked(a, b) {
		return database.ErrNotFound
	}
	delete(s.friends[a], b)
	delete(s.friends[b], a)
	delete(s.requests, friendKey{a, b})
	delete(s.requests, friendKey{b, a})
	return nil
}

// notifications

func (s *Store) InsertNotification(_ context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = s.now()
	}
	cp := *n
	s.mu.Lock()
	s.notifications[n.UserID] = append(s.notifications[n.UserID], &cp)
	s.mu.Unlock()
	return nil
}

func (s *Store) ListNotifications(_ context.Context, userID uuid.UUID, unreadOnly bool) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.notifications[userID]
	out := []models.Notification{}
	for i := len(list) - 1; i >= 0; i-- {
		if unreadOnly && list[i].Read {
			continue
		}
		out = append(out, *list[i])
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications[userID] {
		if n.ID == id {
			n.Read = true
			return nil
		}
	}
	return database.ErrNotFound
}

func (s *Store) MarkAllNotificationsRead(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications[userID] {
		n.Read = true
	}
	return nil
}
