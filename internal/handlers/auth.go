// internal/handlers/auth.go

package handlers

import (
	"net/http"

	"github.com/jason-s-yu/realms/internal/auth"
	"github.com/jason-s-yu/realms/internal/models"
)

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	u := &models.User{Email: req.Email, Username: req.Username, Password: req.Password}
	if err := s.Users.CreateUser(r.Context(), u); err != nil {
		s.fail(w, r, err)
		return
	}
	s.Logger.WithField("user", u.ID).Info("user signed up")

	token, err := s.startSession(w, u)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{User: u, Token: token})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	u, err := s.Users.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := s.startSession(w, u)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: u, Token: token})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, s.CookieName, s.SecureCookie)
	w.WriteHeader(http.StatusNoContent)
}

// me returns the caller's account with friends, requests and notifications filled in.
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := caller(r).UserID

	u, err := s.Users.GetUserByID(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	friends, err := s.Users.ListFriends(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	for _, f := range friends {
		u.Friends = append(u.Friends, f.ID)
	}
	if u.FriendRequests, err = s.Users.ListFriendRequests(ctx, id); err != nil {
		s.fail(w, r, err)
		return
	}
	if u.Notifications, err = s.Users.ListNotifications(ctx, id, false); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) startSession(w http.ResponseWriter, u *models.User) (string, error) {
	token, err := s.Tokens.Sign(u.ID, u.Username)
	if err != nil {
		return "", err
	}
	auth.SetSessionCookie(w, s.CookieName, token, s.TokenTTL, s.SecureCookie)
	return token, nil
}
