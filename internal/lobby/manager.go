// Package lobby implements the room state machine and wraps match start and
// stop around the store and the runtime.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/udisondev/playhub/internal/model"
	"github.com/udisondev/playhub/internal/protocol"
	"github.com/udisondev/playhub/internal/runtime"
	"github.com/udisondev/playhub/internal/store"
)

var (
	// ErrRoomNotWaiting is returned when joining a room that already started.
	ErrRoomNotWaiting = errors.New("room already started")

	// ErrNotHost is returned when a non-host tries to close a room.
	ErrNotHost = errors.New("only the host can close the room")

	// ErrNotMember is returned when a non-member tries to end a match.
	ErrNotMember = errors.New("caller is not in the room")

	// ErrNoMatch is returned by EndGame on a room that is not playing.
	ErrNoMatch = errors.New("no match is running in this room")
)

// HostBusyError reports the room a host must close before creating another.
type HostBusyError struct {
	RoomID string
}

func (e *HostBusyError) Error() string {
	return fmt.Sprintf("host already owns room %s", e.RoomID)
}

// Notifier receives room change events for push delivery to subscribers.
type Notifier interface {
	RoomChanged(room *model.Room)
	RoomDestroyed(roomID string)
	GameStarted(room *model.Room, gamePort int)
}

// noopNotifier keeps the manager usable without a push layer (tests).
type noopNotifier struct{}

func (noopNotifier) RoomChanged(*model.Room)      {}
func (noopNotifier) RoomDestroyed(string)         {}
func (noopNotifier) GameStarted(*model.Room, int) {}

// PortAllocator reserves game ports for new rooms.
type PortAllocator interface {
	AllocatePort() int
}

// Manager drives the room lifecycle.
type Manager struct {
	store    store.Store
	runtime  *runtime.Runtime
	ports    PortAllocator
	notifier Notifier
}

// NewManager wires the lobby over the store, runtime, and port allocator.
func NewManager(st store.Store, rt *runtime.Runtime, ports PortAllocator) *Manager {
	return &Manager{store: st, runtime: rt, ports: ports, notifier: noopNotifier{}}
}

// SetNotifier installs the push layer. Must be called before serving.
func (m *Manager) SetNotifier(n Notifier) {
	if n != nil {
		m.notifier = n
	}
}

// RunningServers returns the number of tracked game-server children.
func (m *Manager) RunningServers() int {
	return m.runtime.Count()
}

// ListRooms returns a snapshot of all rooms.
func (m *Manager) ListRooms(ctx context.Context) ([]*model.Room, error) {
	return m.store.ListRooms(ctx)
}

// GetRoom returns one room snapshot.
func (m *Manager) GetRoom(ctx context.Context, roomID string) (*model.Room, error) {
	return m.store.GetRoom(ctx, roomID)
}

// CreateRoom opens a new waiting room for the host. A host owns at most one
// room at a time, and the requested size is clamped to the game's own player
// limit.
func (m *Manager) CreateRoom(ctx context.Context, host string, req protocol.CreateRoomRequest) (*model.Room, error) {
	game, err := m.store.GetGame(ctx, req.GameID)
	if err != nil {
		return nil, err
	}

	if existing, err := m.store.GetRoomByHost(ctx, host); err == nil {
		return nil, &HostBusyError{RoomID: existing.RoomID}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	maxPlayers := req.MaxPlayers
	if maxPlayers < model.MinRoomPlayers {
		maxPlayers = model.MinRoomPlayers
	}
	if maxPlayers > game.MaxPlayers {
		maxPlayers = game.MaxPlayers
	}

	roomName := req.RoomName
	if roomName == "" {
		roomName = "Room"
	}

	port := m.ports.AllocatePort()
	roomID, err := m.store.CreateRoom(ctx, roomName, host, game.GameID, maxPlayers, port)
	if err != nil {
		return nil, err
	}
	return m.store.GetRoom(ctx, roomID)
}

// JoinRoom adds the player to a waiting room and returns the fresh snapshot.
func (m *Manager) JoinRoom(ctx context.Context, username, roomID string) (*model.Room, error) {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != model.RoomWaiting {
		return nil, ErrRoomNotWaiting
	}

	if err := m.store.JoinRoom(ctx, roomID, username); err != nil {
		return nil, err
	}

	room, err = m.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	m.notifier.RoomChanged(room)
	return room, nil
}

// LeaveRoom removes the player. Leaving a playing room does not stop the
// child; the game server ends the match on its own when its clients drop.
func (m *Manager) LeaveRoom(ctx context.Context, username, roomID string) error {
	if err := m.store.LeaveRoom(ctx, roomID, username); err != nil {
		return err
	}

	room, err := m.store.GetRoom(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		m.notifier.RoomDestroyed(roomID)
		return nil
	}
	if err != nil {
		return err
	}
	m.notifier.RoomChanged(room)
	return nil
}

// SetReady flips the caller's ready flag and returns the fresh snapshot.
func (m *Manager) SetReady(ctx context.Context, username, roomID string, ready bool) (*model.Room, error) {
	if err := m.store.SetReady(ctx, roomID, username, ready); err != nil {
		return nil, err
	}
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	m.notifier.RoomChanged(room)
	return room, nil
}

// StartGame runs the host's start request: the store validates every
// precondition and flips the room to playing in one transaction, then the
// runtime launches the game server on the room's pre-allocated port. A
// launch failure reverts the room to waiting.
func (m *Manager) StartGame(ctx context.Context, host, roomID string) (*model.Room, error) {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	game, err := m.store.GetGame(ctx, room.GameID)
	if err != nil {
		return nil, err
	}

	room, err = m.store.StartRoom(ctx, roomID, host)
	if err != nil {
		return nil, err
	}

	if err := m.runtime.Start(roomID, game, room.GamePort, len(room.Players)); err != nil {
		if _, revertErr := m.store.FinishRoom(ctx, roomID); revertErr != nil {
			slog.Error("reverting room after failed launch", "room_id", roomID, "err", revertErr)
		}
		return nil, err
	}

	m.notifier.GameStarted(room, room.GamePort)
	m.notifier.RoomChanged(room)
	return room, nil
}

// EndGame stops the match on a member's request and puts the room back to
// waiting with a cleared ready set, so the same room can play again.
func (m *Manager) EndGame(ctx context.Context, caller, roomID string) (*model.Room, error) {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasPlayer(caller) {
		return nil, ErrNotMember
	}
	if room.Status != model.RoomPlaying {
		return nil, ErrNoMatch
	}

	m.runtime.Stop(roomID)

	room, err = m.store.FinishRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	m.notifier.RoomChanged(room)
	return room, nil
}

// CloseRoom destroys the room on the host's request, stopping any running
// match first.
func (m *Manager) CloseRoom(ctx context.Context, caller, roomID string) error {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Host != caller {
		return ErrNotHost
	}

	m.runtime.Stop(roomID)

	if err := m.store.DeleteRoom(ctx, roomID); err != nil {
		return err
	}
	m.notifier.RoomDestroyed(roomID)
	return nil
}
