// internal/handlers/errors.go

package handlers

import (
	"errors"
	"net/http"

	"github.com/jason-s-yu/realms/internal/database"
	"github.com/jason-s-yu/realms/internal/room"
	"github.com/jason-s-yu/realms/internal/speech"
)

// UsernameTakenMessage is shown when signup picks a name already in use.
const UsernameTakenMessage = "Username is already taken. Please choose another one."

type errorStatus struct {
	err    error
	status int
	msg    string
}

// errorStatuses maps domain errors to responses. An empty msg uses err.Error().
var errorStatuses = []errorStatus{
	{database.ErrNotFound, http.StatusNotFound, "not found"},
	{database.ErrUsernameTaken, http.StatusConflict, UsernameTakenMessage},
	{database.ErrEmailTaken, http.StatusConflict, ""},
	{database.ErrInvalidCredentials, http.StatusForbidden, "authentication failed"},
	{database.ErrSelfRequest, http.StatusBadRequest, ""},
	{database.ErrAlreadyFriends, http.StatusConflict, ""},
	{database.ErrRequestExists, http.StatusConflict, ""},
	{database.ErrNoPendingRequest, http.StatusNotFound, ""},

	{room.ErrRoomNotFound, http.StatusNotFound, ""},
	{room.ErrNotHost, http.StatusForbidden, ""},
	{room.ErrNotPlayer, http.StatusForbidden, ""},
	{room.ErrNotFriends, http.StatusForbidden, ""},
	{room.ErrNotAllReady, http.StatusConflict, ""},
	{room.ErrAlreadyStarted, http.StatusConflict, ""},
	{room.ErrEmptyMessage, http.StatusBadRequest, ""},
	{room.ErrInvalidSetup, http.StatusBadRequest, ""},
	{room.ErrInvalidCharacter, http.StatusBadRequest, ""},
	{room.ErrNarrationFailed, http.StatusBadGateway, room.ErrNarrationFailed.Error()},
	{room.ErrCodeExhausted, http.StatusServiceUnavailable, ""},

	{speech.ErrEmptyText, http.StatusBadRequest, ""},
	{speech.ErrSynthesisFailed, http.StatusBadGateway, speech.ErrSynthesisFailed.Error()},
}

// statusFor resolves err to an HTTP status and a caller-safe message.
func statusFor(err error) (int, string) {
	if msg, ok := validationMessage(err); ok {
		return http.StatusBadRequest, msg
	}
	if errors.Is(err, errBadPayload) {
		return http.StatusBadRequest, err.Error()
	}
	for _, es := range errorStatuses {
		if errors.Is(err, es.err) {
			if es.msg != "" {
				return es.status, es.msg
			}
			// wrapped validation details are useful to the caller
			if es.status == http.StatusBadRequest {
				return es.status, err.Error()
			}
			return es.status, es.err.Error()
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

// fail writes the mapped error response, logging anything unexpected.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.Logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeError(w, status, msg)
}
