// internal/handlers/vendor.go

package handlers

import (
	"net/http"

	"github.com/jason-s-yu/realms/internal/narrator"
)

type narrateRequest struct {
	Message  string `json:"message" validate:"required,max=4000"`
	RoomCode string `json:"roomCode" validate:"omitempty,max=16"`
}

type narrateResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// narrate forwards a single message to the narrator. With a roomCode the room's setting,
// cast and recent history are included; nothing is stored either way.
func (s *Server) narrate(w http.ResponseWriter, r *http.Request) {
	var req narrateRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	prompt := narrator.Simple(req.Message)
	if req.RoomCode != "" {
		p, err := s.Rooms.Prompt(r.Context(), req.RoomCode, caller(r).UserID, req.Message)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		prompt = p
	}

	reply, err := s.Narrator.Narrate(r.Context(), prompt)
	if err != nil {
		s.Logger.WithError(err).Error("narrate request failed")
		writeError(w, http.StatusBadGateway, "narrator unavailable")
		return
	}
	writeJSON(w, http.StatusOK, narrateResponse{Role: "assistant", Content: reply})
}

type ttsRequest struct {
	Text string `json:"text" validate:"required,max=5000"`
}

func (s *Server) tts(w http.ResponseWriter, r *http.Request) {
	if s.Speaker == nil {
		writeError(w, http.StatusServiceUnavailable, "speech is disabled")
		return
	}
	var req ttsRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	audio, err := s.Speaker.Synthesize(r.Context(), req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"audioContent": audio})
}
