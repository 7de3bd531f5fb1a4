// internal/handlers/server.go
package handlers

import (
	"context"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jason-s-yu/realms/internal/middleware"
	"github.com/jason-s-yu/realms/internal/models"
	"github.com/jason-s-yu/realms/internal/narrator"
	"github.com/jason-s-yu/realms/internal/room"
	"github.com/sirupsen/logrus"
)

// UserStore is the account, friend and notification persistence behind the API.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]models.Profile, error)
	AuthenticateUser(ctx context.Context, email, password string) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, picture string) error
	UpdatePassword(ctx context.Context, id uuid.UUID, password string) error

	InsertFriendRequest(ctx context.Context, sender, receiver uuid.UUID) (*models.FriendRequest, error)
	RespondFriendRequest(ctx context.Context, sender, receiver uuid.UUID, accept bool) error
	ListFriends(ctx context.Context, userID uuid.UUID) ([]models.Profile, error)
	ListFriendRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error)
	RemoveFriend(ctx context.Context, a, b uuid.UUID) error

	InsertNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) error
}

// TokenIssuer signs and verifies session tokens.
type TokenIssuer interface {
	Sign(userID uuid.UUID, username string) (string, error)
	Verify(token string) (uuid.UUID, string, error)
}

type Narrator interface {
	Narrate(ctx context.Context, p narrator.Prompt) (string, error)
}

type Speaker interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Server holds everything the HTTP API needs. Speaker may be nil when speech is disabled.
type Server struct {
	Users    UserStore
	Rooms    *room.Service
	Hubs     *room.HubStore
	Tokens   TokenIssuer
	Narrator Narrator
	Speaker  Speaker
	Logger   *logrus.Logger

	CookieName   string
	SecureCookie bool
	TokenTTL     time.Duration

	// OriginPatterns are the hosts allowed to open room websockets.
	OriginPatterns []string
	// Limiter throttles the vendor-backed endpoints per user.
	Limiter *middleware.RateLimiter
	// Health, when set, is checked by /healthz.
	Health func(ctx context.Context) error

	validate *validator.Validate
}

// Routes builds the API mux wrapped in request logging, panic recovery and real-IP detection.
func (s *Server) Routes() http.Handler {
	if s.validate == nil {
		s.validate = validator.New()
	}
	if s.Limiter == nil {
		s.Limiter = middleware.NewRateLimiter(12, 3)
	}
	authed := middleware.RequireAuth(s.Tokens, s.CookieName)
	limited := func(h http.HandlerFunc) http.Handler {
		return authed(middleware.RateLimit(s.Limiter)(h))
	}
	private := func(h http.HandlerFunc) http.Handler {
		return authed(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)

	mux.HandleFunc("POST /auth/signup", s.signup)
	mux.HandleFunc("POST /auth/login", s.login)
	mux.HandleFunc("POST /auth/logout", s.logout)
	mux.Handle("GET /auth/me", private(s.me))

	mux.Handle("GET /users/search", private(s.searchUsers))
	mux.Handle("PATCH /users/me", private(s.updateMe))
	mux.Handle("GET /users/{username}", private(s.getProfile))

	mux.Handle("GET /friends", private(s.listFriends))
	mux.Handle("DELETE /friends/{friendId}", private(s.removeFriend))
	mux.Handle("GET /friends/requests", private(s.listFriendRequests))
	mux.Handle("POST /friends/requests", private(s.sendFriendRequest))
	mux.Handle("POST /friends/requests/{senderId}/accept", private(s.acceptFriendRequest))
	mux.Handle("POST /friends/requests/{senderId}/decline", private(s.declineFriendRequest))

	mux.Handle("GET /notifications", private(s.listNotifications))
	mux.Handle("POST /notifications/read", private(s.markAllNotificationsRead))
	mux.Handle("POST /notifications/{id}/read", private(s.markNotificationRead))

	mux.Handle("POST /rooms", private(s.createRoom))
	mux.Handle("GET /rooms", private(s.listRooms))
	mux.Handle("GET /rooms/{code}", private(s.getRoom))
	mux.Handle("POST /rooms/{code}/join", private(s.joinRoom))
	mux.Handle("POST /rooms/{code}/leave", private(s.leaveRoom))
	mux.Handle("PUT /rooms/{code}/character", private(s.setupCharacter))
	mux.Handle("POST /rooms/{code}/ready", private(s.setReady))
	mux.Handle("POST /rooms/{code}/start", private(s.startRoom))
	mux.Handle("GET /rooms/{code}/messages", private(s.listMessages))
	mux.Handle("POST /rooms/{code}/messages", limited(s.sendMessage))
	mux.Handle("POST /rooms/{code}/invite", private(s.inviteToRoom))
	mux.Handle("GET /rooms/{code}/ws", private(s.roomWS))

	mux.Handle("POST /api/narrate", limited(s.narrate))
	mux.Handle("POST /tts", limited(s.tts))

	var h http.Handler = mux
	h = middleware.LogMiddleware(s.Logger)(h)
	h = chimw.Recoverer(h)
	h = chimw.RequestID(h)
	h = chimw.RealIP(h)
	return h
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.Health(ctx); err != nil {
			s.Logger.WithError(err).Warn("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
