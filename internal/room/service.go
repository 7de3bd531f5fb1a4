// internal/room/service.go

// Package room runs adventure rooms: membership, the ready-up lobby, the shared message log
// and the narrator that answers it. Live connections are fanned out through Hub.
package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jason-s-yu/realms/internal/database"
	"github.com/jason-s-yu/realms/internal/models"
	"github.com/jason-s-yu/realms/internal/narrator"
	"github.com/sirupsen/logrus"
)

// GuestName is used when a joining user's profile cannot be loaded.
const GuestName = "Guest"

const codeAttempts = 5

// Store is the persistence the room service needs. database.Store and memstore.Store satisfy it.
type Store interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error)
	InsertNotification(ctx context.Context, n *models.Notification) error

	InsertRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, code string) (*models.Room, error)
	UpsertPlayer(ctx context.Context, code string, p *models.Player) error
	UpdateCharacter(ctx context.Context, code string, userID uuid.UUID, c models.Character) error
	SetPlayerReady(ctx context.Context, code string, userID uuid.UUID, ready bool) error
	SetPlayerStatus(ctx context.Context, code string, userID uuid.UUID, status string) error
	MarkRoomStarted(ctx context.Context, code string) (bool, error)
	ListRoomsForUser(ctx context.Context, userID uuid.UUID) ([]models.Room, error)
	AppendMessages(ctx context.Context, code string, msgs ...models.Message) error
	ListMessages(ctx context.Context, code string, limit int) ([]models.Message, error)
}

type Narrator interface {
	Narrate(ctx context.Context, p narrator.Prompt) (string, error)
}

type Speaker interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Publisher delivers events to live connections, locally or across instances.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// ActivitySink receives an audit record per room mutation.
type ActivitySink interface {
	Record(ctx context.Context, rec models.ActivityRecord) error
}

// Deps wires a Service. Speaker, Publisher and Activity are optional.
type Deps struct {
	Store     Store
	Narrator  Narrator
	Speaker   Speaker
	Publisher Publisher
	Activity  ActivitySink
	Logger    *logrus.Logger

	// History is how many prior messages are sent to the narrator.
	History int
}

type Service struct {
	store     Store
	narrator  Narrator
	speaker   Speaker
	publisher Publisher
	activity  ActivitySink
	log       *logrus.Logger
	history   int
	validate  *validator.Validate

	now     func() time.Time
	newCode func() (string, error)
}

func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	history := d.History
	if history <= 0 {
		history = 20
	}
	return &Service{
		store:     d.Store,
		narrator:  d.Narrator,
		speaker:   d.Speaker,
		publisher: d.Publisher,
		activity:  d.Activity,
		log:       logger,
		history:   history,
		validate:  validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
		newCode:   NewRoomCode,
	}
}

// AdventureSetup is what the host fills in to create a room, including their own character.
type AdventureSetup struct {
	AdventureTitle   string `json:"adventureTitle" validate:"max=120"`
	AdventureSetting string `json:"adventureSetting" validate:"required,max=2000"`
	WorldLore        string `json:"worldLore" validate:"max=4000"`
	Plot             string `json:"plot" validate:"max=4000"`
	Context          string `json:"context" validate:"max=4000"`
	models.Character
}

// AllReady reports whether at least one player is in the room and every present player is ready.
func AllReady(players []models.Player) bool {
	active := 0
	for _, p := range players {
		if !p.Active() {
			continue
		}
		if !p.IsReady {
			return false
		}
		active++
	}
	return active > 0
}

func (s *Service) getRoom(ctx context.Context, code string) (*models.Room, error) {
	r, err := s.store.GetRoom(ctx, strings.ToLower(strings.TrimSpace(code)))
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room: %w", err)
	}
	return r, nil
}

func (s *Service) username(ctx context.Context, userID uuid.UUID) string {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil || u.Username == "" {
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			s.log.WithError(err).WithField("user", userID).Warn("failed to load username")
		}
		return GuestName
	}
	return u.Username
}

// activePlayer returns the caller's player record if they are currently in the room.
func activePlayer(r *models.Room, userID uuid.UUID) (models.Player, error) {
	p, ok := r.Player(userID)
	if !ok || !p.Active() {
		return models.Player{}, ErrNotPlayer
	}
	return p, nil
}

// CreateRoom allocates a code and stores the room with the host as its first player.
func (s *Service) CreateRoom(ctx context.Context, hostID uuid.UUID, setup AdventureSetup) (*models.Room, error) {
	setup.Character.Name = strings.TrimSpace(setup.Character.Name)
	setup.Character.Type = strings.TrimSpace(setup.Character.Type)
	setup.AdventureSetting = strings.TrimSpace(setup.AdventureSetting)
	if err := s.validate.Struct(setup); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSetup, err)
	}

	host := models.Player{
		UserID:    hostID,
		Username:  s.username(ctx, hostID),
		Character: setup.Character,
		Status:    models.PlayerStatusJoined,
	}

	for i := 0; i < codeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate room code: %w", err)
		}
		r := &models.Room{
			Code:             code,
			AdventureTitle:   strings.TrimSpace(setup.AdventureTitle),
			AdventureSetting: setup.AdventureSetting,
			WorldLore:        setup.WorldLore,
			Plot:             setup.Plot,
			Context:          setup.Context,
			HostUID:          hostID,
			Status:           models.RoomStatusOpen,
			Players:          []models.Player{host},
		}
		err = s.store.InsertRoom(ctx, r)
		if errors.Is(err, database.ErrRoomCodeTaken) {
			s.log.WithField("code", code).Debug("room code collision, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}

		s.log.WithFields(logrus.Fields{"room": code, "host": hostID}).Info("room created")
		s.record(ctx, code, hostID, "create", map[string]interface{}{"adventureSetting": r.AdventureSetting})
		return s.getRoom(ctx, code)
	}
	return nil, ErrCodeExhausted
}

// Join adds the user to the room, or re-activates them if they left earlier. Joining an
// adventure that already started is allowed.
func (s *Service) Join(ctx context.Context, code string, userID uuid.UUID) (*models.Room, error) {
	r, err := s.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if p, ok := r.Player(userID); ok && p.Active() {
		return r, nil
	}

	p := &models.Player{UserID: userID, Username: s.username(ctx, userID), Status: models.PlayerStatusJoined}
	if err := s.store.UpsertPlayer(ctx, r.Code, p); err != nil {
		return nil, fmt.Errorf("failed to join room: %w", err)
	}
	return s.mutated(ctx, r.Code, userID, EventPlayerJoined, "join", nil)
}

func (s *Service) Leave(ctx context.Context, code string, userID uuid.UUID) (*models.Room, error) {
	r, err := s.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if _, err := activePlayer(r, userID); err != nil {
		return nil, err
	}
	if err := s.store.SetPlayerStatus(ctx, r.Code, userID, models.PlayerStatusLeft); err != nil {
		return nil, fmt.Errorf("failed to leave room: %w", err)
	}
	return s.mutated(ctx, r.Code, userID, EventPlayerLeft, "leave", nil)
}

// SetupCharacter saves the player's character. Any change clears their ready flag.
func (s *Service) SetupCharacter(ctx context.Context, code string, userID uuid.UUID, c models.Character) (*models.Room, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Type = strings.TrimSpace(c.Type)
	if err := s.validate.Struct(c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCharacter, err)
	}

	r, err := s.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if _, err := activePlayer(r, userID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateCharacter(ctx, r.Code, userID, c); err != nil {
		return nil, fmt.Errorf("failed to save character: %w", err)
	}
	return s.mutated(ctx, r.Code, userID, EventPlayerUpdated, "character",
		map[string]interface{}{"characterName": c.Name, "characterType": c.Type})
}

func (s *Service) SetReady(ctx context.Context, code string, userID uuid.UUID, ready bool) (*models.Room, error) {
	r, err := s.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if _, err := activePlayer(r, userID); err != nil {
		return nil, err
	}
	if err := s.store.SetPlayerReady(ctx, r.Code, userID, ready); err != nil {
		return nil, fmt.Errorf("failed to set ready: %w", err)
	}
	return s.mutated(ctx, r.Code, userID, EventPlayerReady, "ready", map[string]interface{}{"ready": ready})
}

// Start begins the adventure. Only the host may start it, only once, and only when every
// present player is ready. The opening narration is appended before returning; if the
// narrator fails the room stays started without it.
func (s *Service) Start(ctx context.Context, code string, userID uuid.UUID) (*models.Room, error) {
	r, err := s.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if r.HostUID != userID {
		return nil, ErrNotHost
	}
	// a host who left no longer counts toward AllReady and cannot start the room
	if _, err := activePlayer(r, userID); err != nil {
		return nil, err
	}
	if r.IsStarted {
		return nil, ErrAlreadyStarted
	}
	if !AllReady(r.Players) {
		return nil, ErrNotAllReady
	}

	started, err := s.store.MarkRoomStarted(ctx, r.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to start room: %w", err)
	}
	if !started {
		return nil, ErrAlreadyStarted
	}

	r, err = s.mutated(ctx, r.Code, userID, EventRoomStarted, "start", nil)
	if err != nil {
		return nil, err
	}

	opening, err := s.narrator.Narrate(ctx, narrator.OpeningPrompt(r))
	if err != nil {
		s.log.WithError(err).WithField("room", r.Code).Error("opening narration failed")
		return r, nil
	}
	msg := s.narratorMessage(ctx, opening)
	if err := s.store.AppendMessages(ctx, r.Code, msg); err != nil {
		s.log.WithError(err).WithField("room", r.Code).Error("failed to store opening narration")
		return r, nil
	}
	s.publish(ctx, Event{Type: EventMessage, RoomCode: r.Code, Messages: []models.Message{msg}})
	r.Messages = []models.Message{msg}
	return r, nil
}

// SendMessage appends the player's line and the narrator's reply. On narrator failure the
// player's message is still kept and returned alongside ErrNarrationFailed.
func (s *Service) SendMessage(ctx context.Context, code string, userID uuid.UUID, content string) ([]models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	r, err := s.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	player, err := activePlayer(r, userID)
	if err != nil {
		return nil, err
	}

	history, err := s.store.ListMessages(ctx, r.Code, s.history)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	now := s.now()
	userMsg := models.Message{
		ID:            NewMessageID(now),
		Role:          models.RoleUser,
		UserID:        userID.String(),
		Username:      player.Username,
		CharacterName: player.Character.Name,
		Content:       content,
		Timestamp:     now,
	}
	if err := s.store.AppendMessages(ctx, r.Code, userMsg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	s.publish(ctx, Event{Type: EventMessage, RoomCode: r.Code, Messages: []models.Message{userMsg}})
	s.record(ctx, r.Code, userID, "message", map[string]interface{}{"messageId": userMsg.ID})

	reply, err := s.narrator.Narrate(ctx, narrator.BuildPrompt(r, history, player, content))
	if err != nil {
		s.log.WithError(err).WithField("room", r.Code).Error("narration failed")
		return []models.Message{userMsg}, fmt.Errorf("%w: %v", ErrNarrationFailed, err)
	}

	botMsg := s.narratorMessage(ctx, reply)
	if err := s.store.AppendMessages(ctx, r.Code, botMsg); err != nil {
		return []models.Message{userMsg}, fmt.Errorf("failed to store narration: %w", err)
	}
	s.publish(ctx, Event{Type: EventMessage, RoomCode: r.Code, Messages: []models.Message{botMsg}})
	return []models.Message{userMsg, botMsg}, nil
}

// narratorMessage builds the Dungeon Master's message, attaching audio when speech works.
func (s *Service) narratorMessage(ctx context.Context, text string) models.Message {
	now := s.now()
	msg := models.Message{
		ID:        NewMessageID(now),
		Role:      models.RoleSystem,
		UserID:    models.NarratorUserID,
		Username:  models.NarratorName,
		Content:   text,
		Timestamp: now,
	}
	if s.speaker != nil {
		audio, err := s.speaker.Synthesize(ctx, text)
		if err != nil {
			s.log.WithError(err).Warn("speech synthesis failed, sending narration without audio")
		} else {
			msg.AudioContent = audio
		}
	}
	return msg
}

// Snapshot returns the room with its full message log.
func (s *Service) Snapshot(ctx context.Context, code string) (*models.Room, error) {
	r, err := s.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, r.Code, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	r.Messages = msgs
	return r, nil
}

// Messages returns the last limit messages, or all of them when limit <= 0.
func (s *Service) Messages(ctx context.Context, code string, limit int) ([]models.Message, error) {
	r, err := s.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, r.Code, limit)
}

func (s *Service) ListRooms(ctx context.Context, userID uuid.UUID) ([]models.Room, error) {
	return s.store.ListRoomsForUser(ctx, userID)
}

// Invite sends a room_invite notification to one of the inviter's friends.
func (s *Service) Invite(ctx context.Context, code string, from, to uuid.UUID) (*models.Notification, error) {
	r, err := s.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	player, err := activePlayer(r, from)
	if err != nil {
		return nil, err
	}
	friends, err := s.store.AreFriends(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to check friendship: %w", err)
	}
	if !friends {
		return nil, ErrNotFriends
	}

	n := &models.Notification{
		UserID:       to,
		Type:         models.NotificationRoomInvite,
		RoomCode:     r.Code,
		FromUser:     from,
		FromUsername: player.Username,
		Timestamp:    s.now(),
	}
	if err := s.store.InsertNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to store invite: %w", err)
	}
	s.record(ctx, r.Code, from, "invite", map[string]interface{}{"invitee": to.String()})
	return n, nil
}

// Prompt builds a narrator prompt for message in the context of the room, as spoken by userID.
func (s *Service) Prompt(ctx context.Context, code string, userID uuid.UUID, message string) (narrator.Prompt, error) {
	r, err := s.getRoom(ctx, code)
	if err != nil {
		return narrator.Prompt{}, err
	}
	player, err := activePlayer(r, userID)
	if err != nil {
		return narrator.Prompt{}, err
	}
	history, err := s.store.ListMessages(ctx, r.Code, s.history)
	if err != nil {
		return narrator.Prompt{}, fmt.Errorf("failed to load history: %w", err)
	}
	return narrator.BuildPrompt(r, history, player, message), nil
}

// mutated reloads the room after a change, then publishes and records it.
func (s *Service) mutated(ctx context.Context, code string, actor uuid.UUID, eventType, action string, payload map[string]interface{}) (*models.Room, error) {
	r, err := s.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, Event{Type: eventType, RoomCode: code, Room: r})
	s.record(ctx, code, actor, action, payload)
	return r, nil
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if s.publisher == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"room": ev.RoomCode, "event": ev.Type}).Warn("failed to publish room event")
	}
}

func (s *Service) record(ctx context.Context, code string, actor uuid.UUID, action string, payload map[string]interface{}) {
	if s.activity == nil {
		return
	}
	rec := models.ActivityRecord{
		RoomCode:  code,
		ActorID:   actor,
		Action:    action,
		Payload:   payload,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.activity.Record(ctx, rec); err != nil {
		s.log.WithError(err).WithField("room", code).Warn("failed to record room activity")
	}
}
