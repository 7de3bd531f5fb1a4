// internal/room/errors.go

package room

import "errors"

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrNotHost          = errors.New("only the host can start the adventure")
	ErrNotAllReady      = errors.New("not every player is ready")
	ErrAlreadyStarted   = errors.New("adventure already started")
	ErrNotPlayer        = errors.New("you are not a player in this room")
	ErrEmptyMessage     = errors.New("message is empty")
	ErrNarrationFailed  = errors.New("the dungeon master could not respond")
	ErrNotFriends       = errors.New("you can only invite friends")
	ErrInvalidSetup     = errors.New("invalid adventure setup")
	ErrInvalidCharacter = errors.New("character name and type are required")
	ErrCodeExhausted    = errors.New("could not allocate a room code")
)
