// internal/handlers/user.go

package handlers

import (
	"net/http"
	"strings"

	"github.com/jason-s-yu/realms/internal/models"
)

// minSearchLen is the shortest query that runs a user search.
const minSearchLen = 3

func (s *Server) searchUsers(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(q) < minSearchLen {
		writeJSON(w, http.StatusOK, []models.Profile{})
		return
	}
	profiles, err := s.Users.SearchUsers(r.Context(), q, 20)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if profiles == nil {
		profiles = []models.Profile{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	u, err := s.Users.GetUserByUsername(r.Context(), r.PathValue("username"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u.Profile())
}

type updateMeRequest struct {
	ProfilePicture *string `json:"profilePicture" validate:"omitempty,max=2048"`
	Password       *string `json:"password" validate:"omitempty,min=6"`
}

// updateMe changes the caller's profile picture and/or password.
func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.ProfilePicture == nil && req.Password == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	ctx := r.Context()
	id := caller(r).UserID
	if req.ProfilePicture != nil {
		if err := s.Users.UpdateProfile(ctx, id, *req.ProfilePicture); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if req.Password != nil {
		if err := s.Users.UpdatePassword(ctx, id, *req.Password); err != nil {
			s.fail(w, r, err)
			return
		}
		s.Logger.WithField("user", id).Info("password changed")
	}

	u, err := s.Users.GetUserByID(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
