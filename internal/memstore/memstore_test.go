package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/jason-s-yu/realms/internal/database"
	"github.com/jason-s-yu/realms/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserLowercasesAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := New()

	u := &models.User{Email: "Eowyn@Rohan.example", Username: "Eowyn", Password: "shieldmaiden"}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.Equal(t, "eowyn", u.Username)

	err := s.CreateUser(ctx, &models.User{Email: "x@example.com", Username: "EOWYN", Password: "x"})
	assert.ErrorIs(t, err, database.ErrUsernameTaken)

	got, err := s.AuthenticateUser(ctx, "eowyn@rohan.example", "shieldmaiden")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestFriendRequestLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := &models.User{Email: "a@example.com", Username: "merry", Password: "pw"}
	b := &models.User{Email: "b@example.com", Username: "pippin", Password: "pw"}
	require.NoError(t, s.CreateUser(ctx, a))
	require.NoError(t, s.CreateUser(ctx, b))

	_, err := s.InsertFriendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = s.InsertFriendRequest(ctx, b.ID, a.ID)
	assert.ErrorIs(t, err, database.ErrRequestExists)

	require.NoError(t, s.RespondFriendRequest(ctx, a.ID, b.ID, true))
	ok, _ := s.AreFriends(ctx, b.ID, a.ID)
	assert.True(t, ok)

	_, err = s.InsertFriendRequest(ctx, b.ID, a.ID)
	assert.ErrorIs(t, err, database.ErrAlreadyFriends)
}

func TestRoomPlayersAndAbandonment(t *testing.T) {
	ctx := context.Background()
	s := New()
	host := &models.User{Email: "h@example.com", Username: "host", Password: "pw"}
	require.NoError(t, s.CreateUser(ctx, host))

	room := &models.Room{Code: "abc123", AdventureSetting: "Moria", HostUID: host.ID,
		Players: []models.Player{{UserID: host.ID, Username: "host"}}}
	require.NoError(t, s.InsertRoom(ctx, room))
	assert.ErrorIs(t, s.InsertRoom(ctx, room), database.ErrRoomCodeTaken)

	require.NoError(t, s.SetPlayerReady(ctx, "abc123", host.ID, true))
	require.NoError(t, s.UpdateCharacter(ctx, "abc123", host.ID, models.Character{Name: "Gimli", Type: "Dwarf"}))
	got, err := s.GetRoom(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, got.Players[0].IsReady)

	// mutating the returned copy must not leak into the store
	got.Players[0].IsReady = true
	again, _ := s.GetRoom(ctx, "abc123")
	assert.False(t, again.Players[0].IsReady)

	started, _ := s.MarkRoomStarted(ctx, "abc123")
	assert.True(t, started)
	started, _ = s.MarkRoomStarted(ctx, "abc123")
	assert.False(t, started)

	codes, err := s.MarkRoomsAbandoned(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"abc123"}, codes)
}

func TestActivityReopensAbandonedRoom(t *testing.T) {
	ctx := context.Background()
	s := New()
	host := &models.User{Email: "h@example.com", Username: "host", Password: "pw"}
	guest := &models.User{Email: "g@example.com", Username: "guest", Password: "pw"}
	require.NoError(t, s.CreateUser(ctx, host))
	require.NoError(t, s.CreateUser(ctx, guest))
	require.NoError(t, s.InsertRoom(ctx, &models.Room{Code: "dale01", AdventureSetting: "Dale", HostUID: host.ID,
		Players: []models.Player{{UserID: host.ID, Username: "host"}}}))

	abandon := func() {
		codes, err := s.MarkRoomsAbandoned(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		require.Equal(t, []string{"dale01"}, codes)
		room, _ := s.GetRoom(ctx, "dale01")
		require.Equal(t, models.RoomStatusAbandoned, room.Status)
	}
	status := func() string {
		room, err := s.GetRoom(ctx, "dale01")
		require.NoError(t, err)
		return room.Status
	}

	abandon()
	require.NoError(t, s.AppendMessages(ctx, "dale01", models.Message{ID: "m1", Role: models.RoleUser, Content: "hello"}))
	assert.Equal(t, models.RoomStatusOpen, status())

	abandon()
	require.NoError(t, s.UpsertPlayer(ctx, "dale01", &models.Player{UserID: guest.ID, Username: "guest"}))
	assert.Equal(t, models.RoomStatusOpen, status())

	abandon()
	require.NoError(t, s.InsertActivityBatch(ctx, []models.ActivityRecord{
		{RoomCode: "dale01", ActorID: guest.ID, Action: "message", Timestamp: time.Now().Add(2 * time.Minute).UnixMilli()},
	}))
	assert.Equal(t, models.RoomStatusOpen, status())

	// an open room with fresh activity is not swept
	codes, err := s.MarkRoomsAbandoned(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, codes)
}
