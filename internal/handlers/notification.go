// internal/handlers/notification.go

package handlers

import (
	"net/http"

	"github.com/jason-s-yu/realms/internal/models"
)

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	unread := r.URL.Query().Get("unread") == "true"
	ns, err := s.Users.ListNotifications(r.Context(), caller(r).UserID, unread)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ns == nil {
		ns = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, ns)
}

func (s *Server) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Users.MarkNotificationRead(r.Context(), caller(r).UserID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if err := s.Users.MarkAllNotificationsRead(r.Context(), caller(r).UserID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
