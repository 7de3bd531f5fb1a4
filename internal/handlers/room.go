// internal/handlers/room.go

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jason-s-yu/realms/internal/models"
	"github.com/jason-s-yu/realms/internal/room"
)

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var setup room.AdventureSetup
	if err := s.decode(w, r, &setup); err != nil {
		s.fail(w, r, err)
		return
	}
	rm, err := s.Rooms.CreateRoom(r.Context(), caller(r).UserID, setup)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rm)
}

func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.Rooms.ListRooms(r.Context(), caller(r).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if rooms == nil {
		rooms = []models.Room{}
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	rm, err := s.Rooms.Snapshot(r.Context(), r.PathValue("code"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	rm, err := s.Rooms.Join(r.Context(), r.PathValue("code"), caller(r).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

func (s *Server) leaveRoom(w http.ResponseWriter, r *http.Request) {
	rm, err := s.Rooms.Leave(r.Context(), r.PathValue("code"), caller(r).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

func (s *Server) setupCharacter(w http.ResponseWriter, r *http.Request) {
	var c models.Character
	if err := s.decode(w, r, &c); err != nil {
		s.fail(w, r, err)
		return
	}
	rm, err := s.Rooms.SetupCharacter(r.Context(), r.PathValue("code"), caller(r).UserID, c)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

type readyRequest struct {
	Ready bool `json:"ready"`
}

func (s *Server) setReady(w http.ResponseWriter, r *http.Request) {
	var req readyRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	rm, err := s.Rooms.SetReady(r.Context(), r.PathValue("code"), caller(r).UserID, req.Ready)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

func (s *Server) startRoom(w http.ResponseWriter, r *http.Request) {
	rm, err := s.Rooms.Start(r.Context(), r.PathValue("code"), caller(r).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	msgs, err := s.Rooms.Messages(r.Context(), r.PathValue("code"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

// sendMessage appends the caller's line and the narrator's reply. If narration fails the
// stored player message is still returned with a 502.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	msgs, err := s.Rooms.SendMessage(r.Context(), r.PathValue("code"), caller(r).UserID, req.Content)
	if errors.Is(err, room.ErrNarrationFailed) {
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":    room.ErrNarrationFailed.Error(),
			"messages": msgs,
		})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"messages": msgs})
}

type inviteRequest struct {
	UserID uuid.UUID `json:"userId" validate:"required"`
}

func (s *Server) inviteToRoom(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.Rooms.Invite(r.Context(), r.PathValue("code"), caller(r).UserID, req.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}
