// internal/handlers/handlers_test.go

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jason-s-yu/realms/internal/auth"
	"github.com/jason-s-yu/realms/internal/memstore"
	"github.com/jason-s-yu/realms/internal/middleware"
	"github.com/jason-s-yu/realms/internal/models"
	"github.com/jason-s-yu/realms/internal/narrator"
	"github.com/jason-s-yu/realms/internal/room"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCookie = "auth_token"

type stubNarrator struct {
	mu    sync.Mutex
	reply string
	err   error
	last  narrator.Prompt
}

func (n *stubNarrator) Narrate(_ context.Context, p narrator.Prompt) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.last = p
	return n.reply, n.err
}

func (n *stubNarrator) fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

type stubSpeaker struct{}

func (stubSpeaker) Synthesize(_ context.Context, text string) (string, error) {
	return "QUFB", nil
}

type testEnv struct {
	srv      *Server
	handler  http.Handler
	store    *memstore.Store
	narrator *stubNarrator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger, _ := test.NewNullLogger()
	signer, err := auth.NewSigner(time.Hour)
	require.NoError(t, err)

	store := memstore.New()
	hubs := room.NewHubStore()
	nar := &stubNarrator{reply: "The tavern door creaks open."}
	rooms := room.NewService(room.Deps{
		Store:     store,
		Narrator:  nar,
		Publisher: room.LocalPublisher{Hubs: hubs},
		Logger:    logger,
	})

	srv := &Server{
		Users:          store,
		Rooms:          rooms,
		Hubs:           hubs,
		Tokens:         signer,
		Narrator:       nar,
		Logger:         logger,
		CookieName:     testCookie,
		TokenTTL:       time.Hour,
		OriginPatterns: []string{"*"},
		Limiter:        middleware.NewRateLimiter(600, 100),
	}
	return &testEnv{srv: srv, handler: srv.Routes(), store: store, narrator: nar}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: testCookie, Value: token})
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

// signup registers a user and returns it with its session token.
func (e *testEnv) signup(t *testing.T, username string) (models.User, string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"email":    username + "@example.com",
		"username": username,
		"password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		User  models.User `json:"user"`
		Token string      `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.User, resp.Token
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestSignupLoginMe(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.signup(t, "alice")

	w := env.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"email": "other@example.com", "username": "Alice", "password": "hunter22",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, UsernameTakenMessage, decodeBody[map[string]string](t, w)["error"])

	w = env.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"email": "not-an-email", "username": "bob", "password": "hunter22",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeBody[map[string]string](t, w)["error"], "email")

	w = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "ALICE@example.com", "password": "hunter22"})
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, testCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	w = env.do(t, http.MethodGet, "/auth/me", cookies[0].Value, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decodeBody[models.User](t, w)
	assert.Equal(t, alice.ID, me.ID)
	assert.Equal(t, "alice", me.Username)
	assert.NotContains(t, w.Body.String(), "password")

	w = env.do(t, http.MethodPost, "/auth/logout", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, w.Result().Cookies(), 1)
	assert.Equal(t, -1, w.Result().Cookies()[0].MaxAge)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/auth/me", "garbage", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthzUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.srv.Health = func(context.Context) error { return errors.New("db down") }
	handler := env.srv.Routes()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUsers(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signup(t, "alice")
	env.signup(t, "alicia")
	env.signup(t, "bob")

	w := env.do(t, http.MethodGet, "/users/search?q=al", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = env.do(t, http.MethodGet, "/users/search?q=ALI", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	profiles := decodeBody[[]models.Profile](t, w)
	require.Len(t, profiles, 2)
	assert.Equal(t, "alice", profiles[0].Username)
	assert.Equal(t, "alicia", profiles[1].Username)

	w = env.do(t, http.MethodGet, "/users/bob", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob", decodeBody[models.Profile](t, w).Username)

	w = env.do(t, http.MethodGet, "/users/nobody", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPatch, "/users/me", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, "/users/me", token, map[string]string{
		"profilePicture": "https://img.example.com/a.png",
		"password":       "newsecret",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://img.example.com/a.png", decodeBody[models.User](t, w).ProfilePicture)

	w = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": "newsecret"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFriendFlow(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.signup(t, "alice")
	bob, bobToken := env.signup(t, "bob")

	w := env.do(t, http.MethodPost, "/friends/requests", aliceToken, map[string]string{"receiverId": bob.ID.String()})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/friends/requests", aliceToken, map[string]string{"receiverId": bob.ID.String()})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/friends/requests", aliceToken, map[string]string{"receiverId": alice.ID.String()})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/notifications?unread=true", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	notes := decodeBody[[]models.Notification](t, w)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationFriendRequest, notes[0].Type)
	assert.Equal(t, alice.ID, notes[0].FromUser)
	assert.Equal(t, "alice", notes[0].FromUsername)

	w = env.do(t, http.MethodPost, "/notifications/"+notes[0].ID.String()+"/read", bobToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodGet, "/notifications?unread=true", bobToken, nil)
	assert.JSONEq(t, "[]", w.Body.String())

	w = env.do(t, http.MethodPost, "/friends/requests/"+alice.ID.String()+"/accept", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/friends/requests/"+alice.ID.String()+"/accept", bobToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/friends", aliceToken, nil)
	friends := decodeBody[[]models.Profile](t, w)
	require.Len(t, friends, 1)
	assert.Equal(t, bob.ID, friends[0].ID)

	w = env.do(t, http.MethodGet, "/notifications", aliceToken, nil)
	notes = decodeBody[[]models.Notification](t, w)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationFriendAccepted, notes[0].Type)

	w = env.do(t, http.MethodPost, "/notifications/read", aliceToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/auth/me", aliceToken, nil)
	assert.Equal(t, []interface{}{bob.ID.String()}, decodeBody[map[string]interface{}](t, w)["friends"])

	w = env.do(t, http.MethodDelete, "/friends/"+bob.ID.String(), aliceToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodDelete, "/friends/"+bob.ID.String(), aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/friends/not-a-uuid", aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeclineFriendRequest(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.signup(t, "alice")
	bob, bobToken := env.signup(t, "bob")

	w := env.do(t, http.MethodPost, "/friends/requests", aliceToken, map[string]string{"receiverId": bob.ID.String()})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/friends/requests/"+alice.ID.String()+"/decline", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.FriendRequestDeclined, decodeBody[map[string]string](t, w)["status"])

	w = env.do(t, http.MethodGet, "/friends", bobToken, nil)
	assert.JSONEq(t, "[]", w.Body.String())
}

var testSetup = map[string]string{
	"adventureTitle":     "The Sunken Crown",
	"adventureSetting":   "A drowned kingdom",
	"characterName":      "Mira",
	"characterType":      "Rogue",
	"characterBackstory": "Raised by smugglers",
}

func (e *testEnv) createRoom(t *testing.T, token string) models.Room {
	t.Helper()
	w := e.do(t, http.MethodPost, "/rooms", token, testSetup)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody[models.Room](t, w)
}

func TestRoomLifecycle(t *testing.T) {
	env := newTestEnv(t)
	_, hostToken := env.signup(t, "alice")
	bob, bobToken := env.signup(t, "bob")

	w := env.do(t, http.MethodPost, "/rooms", hostToken, map[string]string{"characterName": "Mira"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	rm := env.createRoom(t, hostToken)
	assert.Len(t, rm.Code, 6)
	require.Len(t, rm.Players, 1)
	assert.Equal(t, "Mira", rm.Players[0].Character.Name)

	w = env.do(t, http.MethodGet, "/rooms/zzzzzz", hostToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPut, "/rooms/"+rm.Code+"/character", bobToken, map[string]string{"characterName": "Tor", "characterType": "Bard"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/rooms/"+rm.Code+"/join", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[models.Room](t, w).Players, 2)

	w = env.do(t, http.MethodPut, "/rooms/"+rm.Code+"/character", bobToken, map[string]string{"characterName": "Tor", "characterType": "Bard"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/rooms/"+rm.Code+"/ready", hostToken, map[string]bool{"ready": true})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/rooms/"+rm.Code+"/start", hostToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/rooms/"+rm.Code+"/ready", bobToken, map[string]bool{"ready": true})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/rooms/"+rm.Code+"/start", bobToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/rooms/"+rm.Code+"/start", hostToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	started := decodeBody[models.Room](t, w)
	assert.True(t, started.IsStarted)
	require.Len(t, started.Messages, 1)
	assert.Equal(t, models.NarratorName, started.Messages[0].Username)

	w = env.do(t, http.MethodPost, "/rooms/"+rm.Code+"/start", hostToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/rooms/"+rm.Code+"/messages", bobToken, map[string]string{"content": "I pick the lock."})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sent := decodeBody[struct {
		Messages []models.Message `json:"messages"`
	}](t, w)
	require.Len(t, sent.Messages, 2)
	assert.Equal(t, bob.ID.String(), sent.Messages[0].UserID)
	assert.Equal(t, "Tor", sent.Messages[0].CharacterName)
	assert.Equal(t, models.NarratorUserID, sent.Messages[1].UserID)

	w = env.do(t, http.MethodGet, "/rooms/"+rm.Code+"/messages?limit=2", hostToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]models.Message](t, w), 2)

	w = env.do(t, http.MethodGet, "/rooms/"+rm.Code+"/messages?limit=-1", hostToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/rooms", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]models.Room](t, w), 1)

	w = env.do(t, http.MethodPost, "/rooms/"+rm.Code+"/leave", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodPost, "/rooms/"+rm.Code+"/leave", bobToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSendMessageNarrationFailure(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signup(t, "alice")
	rm := env.createRoom(t, token)
	env.narrator.fail(errors.New("upstream timeout"))

	w := env.do(t, http.MethodPost, "/rooms/"+rm.Code+"/messages", token, map[string]string{"content": "Hello?"})
	require.Equal(t, http.StatusBadGateway, w.Code)
	body := decodeBody[struct {
		Error    string           `json:"error"`
		Messages []models.Message `json:"messages"`
	}](t, w)
	assert.Equal(t, room.ErrNarrationFailed.Error(), body.Error)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "Hello?", body.Messages[0].Content)

	w = env.do(t, http.MethodPost, "/rooms/"+rm.Code+"/messages", token, map[string]string{"content": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvite(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.signup(t, "alice")
	bob, bobToken := env.signup(t, "bob")
	rm := env.createRoom(t, aliceToken)

	w := env.do(t, http.MethodPost, "/rooms/"+rm.Code+"/invite", aliceToken, map[string]string{"userId": bob.ID.String()})
	assert.Equal(t, http.StatusForbidden, w.Code)

	ctx := context.Background()
	_, err := env.store.InsertFriendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.NoError(t, env.store.RespondFriendRequest(ctx, alice.ID, bob.ID, true))

	w = env.do(t, http.MethodPost, "/rooms/"+rm.Code+"/invite", aliceToken, map[string]string{"userId": bob.ID.String()})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/notifications", bobToken, nil)
	notes := decodeBody[[]models.Notification](t, w)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationRoomInvite, notes[0].Type)
	assert.Equal(t, rm.Code, notes[0].RoomCode)
}

func TestNarrateAndTTS(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signup(t, "alice")

	w := env.do(t, http.MethodPost, "/api/narrate", token, map[string]string{"message": "Describe the gate."})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, narrateResponse{Role: "assistant", Content: "The tavern door creaks open."}, decodeBody[narrateResponse](t, w))
	assert.Equal(t, narrator.SystemPrompt, env.narrator.last.System)

	rm := env.createRoom(t, token)
	w = env.do(t, http.MethodPost, "/api/narrate", token, map[string]string{"message": "Look around", "roomCode": rm.Code})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, env.narrator.last.System, "A drowned kingdom")

	w = env.do(t, http.MethodPost, "/tts", token, map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	env.srv.Speaker = stubSpeaker{}
	w = env.do(t, http.MethodPost, "/tts", token, map[string]string{"text": "hello"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "QUFB", decodeBody[map[string]string](t, w)["audioContent"])

	env.narrator.fail(errors.New("boom"))
	w = env.do(t, http.MethodPost, "/api/narrate", token, map[string]string{"message": "again"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestNarrateRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.srv.Limiter = middleware.NewRateLimiter(1, 1)
	env.handler = env.srv.Routes()
	_, token := env.signup(t, "alice")

	w := env.do(t, http.MethodPost, "/api/narrate", token, map[string]string{"message": "one"})
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodPost, "/api/narrate", token, map[string]string{"message": "two"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRoomWebSocket(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signup(t, "alice")
	_, outsiderToken := env.signup(t, "bob")
	rm := env.createRoom(t, token)

	ts := httptest.NewServer(env.handler)
	defer ts.Close()
	url := "ws" + ts.URL[len("http"):] + "/rooms/" + rm.Code + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dial := func(tok string) (*websocket.Conn, *http.Response, error) {
		h := http.Header{}
		h.Set("Cookie", testCookie+"="+tok)
		return websocket.Dial(ctx, url, &websocket.DialOptions{Subprotocols: []string{"room"}, HTTPHeader: h})
	}

	_, resp, err := dial(outsiderToken)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	c, _, err := dial(token)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	var ev room.Event
	require.NoError(t, wsjson.Read(ctx, c, &ev))
	assert.Equal(t, room.EventRoomState, ev.Type)
	require.NotNil(t, ev.Room)
	assert.Equal(t, rm.Code, ev.Room.Code)

	require.NoError(t, wsjson.Write(ctx, c, roomPacket{Type: "chat", Content: "I light a torch."}))

	var got []models.Message
	for len(got) < 2 {
		var ev room.Event
		require.NoError(t, wsjson.Read(ctx, c, &ev))
		if ev.Type == room.EventMessage {
			got = append(got, ev.Messages...)
		}
	}
	assert.Equal(t, "I light a torch.", got[0].Content)
	assert.Equal(t, "The tavern door creaks open.", got[1].Content)

	ready := true
	require.NoError(t, wsjson.Write(ctx, c, roomPacket{Type: "ready", Ready: &ready}))
	for {
		var ev room.Event
		require.NoError(t, wsjson.Read(ctx, c, &ev))
		if ev.Type == room.EventPlayerReady {
			require.NotNil(t, ev.Room)
			assert.True(t, ev.Room.Players[0].IsReady)
			break
		}
	}

	require.NoError(t, wsjson.Write(ctx, c, roomPacket{Type: "dance"}))
	require.NoError(t, wsjson.Read(ctx, c, &ev))
	assert.Equal(t, room.EventError, ev.Type)
}
