package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when the addressed user, game, or room does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrUsernameExists is returned by RegisterUser for a taken username.
	ErrUsernameExists = errors.New("username already exists")

	// ErrRoomFull is returned by JoinRoom when the room has no free slot.
	ErrRoomFull = errors.New("room is full")

	// ErrNotInRoom is returned by SetReady for a non-member.
	ErrNotInRoom = errors.New("player is not in the room")

	// ErrNotHost is returned by StartRoom when the caller does not host the
	// room.
	ErrNotHost = errors.New("only the host can start the game")

	// ErrRoomStarted is returned by StartRoom when the room is already
	// playing.
	ErrRoomStarted = errors.New("game already started")

	// ErrTooFewPlayers is returned by StartRoom with fewer than two members.
	ErrTooFewPlayers = errors.New("need at least 2 players to start")
)

// NotReadyError reports which members still have to flag ready before the
// host can start.
type NotReadyError struct {
	Waiting []string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("not all players are ready, waiting for: %s", strings.Join(e.Waiting, ", "))
}
