package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/udisondev/playhub/internal/auth"
	"github.com/udisondev/playhub/internal/games"
	"github.com/udisondev/playhub/internal/lobby"
	"github.com/udisondev/playhub/internal/protocol"
	"github.com/udisondev/playhub/internal/store"
)

// errorResponse maps a handler error onto the client-visible message. The
// sentinel taxonomy keeps wording stable across backends; anything
// unrecognized is logged and surfaced as a generic server error.
func errorResponse(err error) protocol.Response {
	var notReady *store.NotReadyError
	var hostBusy *lobby.HostBusyError

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return protocol.Error("Invalid credentials")
	case errors.Is(err, auth.ErrNotLoggedIn):
		return protocol.Error("Not logged in")
	case errors.Is(err, store.ErrUsernameExists):
		return protocol.Error("Username already exists")
	case errors.Is(err, store.ErrRoomFull):
		return protocol.Error("Room is full")
	case errors.Is(err, store.ErrNotInRoom), errors.Is(err, lobby.ErrNotMember):
		return protocol.Error("You are not in this room")
	case errors.Is(err, store.ErrNotHost):
		return protocol.Error("Only the host can start the game")
	case errors.Is(err, store.ErrRoomStarted), errors.Is(err, lobby.ErrRoomNotWaiting):
		return protocol.Error("Game already started")
	case errors.Is(err, store.ErrTooFewPlayers):
		return protocol.Error("Need at least 2 players to start")
	case errors.As(err, &notReady):
		return protocol.Error(fmt.Sprintf("Not all players are ready. Waiting for: %s",
			strings.Join(notReady.Waiting, ", ")))
	case errors.As(err, &hostBusy):
		return protocol.Error(fmt.Sprintf("You already have a room (ID: %s). Please close it first.", hostBusy.RoomID))
	case errors.Is(err, lobby.ErrNotHost):
		return protocol.Error("Only the host can close the room")
	case errors.Is(err, lobby.ErrNoMatch):
		return protocol.Error("No game is running in this room")
	case errors.Is(err, games.ErrUploadNotFound):
		return protocol.Error("Invalid upload_id")
	default:
		slog.Warn("unhandled request error", "err", err)
		return protocol.Error("Server error: " + err.Error())
	}
}

// notFound builds the entity-specific not-found message handlers use when
// the store reports store.ErrNotFound.
func notFound(entity string) protocol.Response {
	return protocol.Error(entity + " not found")
}
