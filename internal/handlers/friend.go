// internal/handlers/friend.go

package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/realms/internal/middleware"
	"github.com/jason-s-yu/realms/internal/models"
	"github.com/sirupsen/logrus"
)

type friendRequestBody struct {
	ReceiverID uuid.UUID `json:"receiverId" validate:"required"`
}

func (s *Server) listFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := s.Users.ListFriends(r.Context(), caller(r).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if friends == nil {
		friends = []models.Profile{}
	}
	writeJSON(w, http.StatusOK, friends)
}

func (s *Server) listFriendRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.Users.ListFriendRequests(r.Context(), caller(r).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []models.FriendRequest{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

// sendFriendRequest stores a pending request and notifies the receiver.
func (s *Server) sendFriendRequest(w http.ResponseWriter, r *http.Request) {
	var body friendRequestBody
	if err := s.decode(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	me := caller(r)
	fr, err := s.Users.InsertFriendRequest(r.Context(), me.UserID, body.ReceiverID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.notify(r, body.ReceiverID, models.NotificationFriendRequest, me)
	writeJSON(w, http.StatusCreated, fr)
}

func (s *Server) acceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	s.respondFriendRequest(w, r, true)
}

func (s *Server) declineFriendRequest(w http.ResponseWriter, r *http.Request) {
	s.respondFriendRequest(w, r, false)
}

func (s *Server) respondFriendRequest(w http.ResponseWriter, r *http.Request, accept bool) {
	sender, err := pathUUID(r, "senderId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	me := caller(r)
	if err := s.Users.RespondFriendRequest(r.Context(), sender, me.UserID, accept); err != nil {
		s.fail(w, r, err)
		return
	}
	status := models.FriendRequestDeclined
	if accept {
		status = models.FriendRequestAccepted
		s.notify(r, sender, models.NotificationFriendAccepted, me)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) removeFriend(w http.ResponseWriter, r *http.Request) {
	friend, err := pathUUID(r, "friendId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Users.RemoveFriend(r.Context(), caller(r).UserID, friend); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// notify stores a notification for to. Failures are logged; the triggering action already succeeded.
func (s *Server) notify(r *http.Request, to uuid.UUID, kind string, from middleware.Identity) {
	n := &models.Notification{
		UserID:       to,
		Type:         kind,
		FromUser:     from.UserID,
		FromUsername: from.Username,
	}
	if err := s.Users.InsertNotification(r.Context(), n); err != nil {
		s.Logger.WithError(err).WithFields(logrus.Fields{"to": to, "type": kind}).Warn("failed to store notification")
	}
}
