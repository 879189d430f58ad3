package jsonstore

import (
	"context"
	"log/slog"
	"slices"

	"github.com/udisondev/playhub/internal/model"
	"github.com/udisondev/playhub/internal/store"
)

// findRoomLocked returns the live record for roomID. Callers hold roomsMu.
func (s *Store) findRoomLocked(roomID string) *model.Room {
	for _, r := range s.rooms {
		if r.RoomID == roomID {
			return r
		}
	}
	return nil
}

// ListRooms returns a snapshot of all rooms.
func (s *Store) ListRooms(_ context.Context) ([]*model.Room, error) {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	out := make([]*model.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r.Clone())
	}
	return out, nil
}

// GetRoom returns a snapshot of one room.
func (s *Store) GetRoom(_ context.Context, roomID string) (*model.Room, error) {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	r := s.findRoomLocked(roomID)
	if r == nil {
		return nil, store.ErrNotFound
	}
	return r.Clone(), nil
}

// GetRoomByHost returns the room hosted by the given user, if any.
func (s *Store) GetRoomByHost(_ context.Context, host string) (*model.Room, error) {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	for _, r := range s.rooms {
		if r.Host == host {
			return r.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

// CreateRoom registers a new waiting room with the host as first member.
func (s *Store) CreateRoom(_ context.Context, roomName, host, gameID string, maxPlayers, gamePort int) (string, error) {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	roomID := model.NewShortID()
	s.rooms = append(s.rooms, &model.Room{
		RoomID:       roomID,
		RoomName:     roomName,
		Host:         host,
		GameID:       gameID,
		MaxPlayers:   maxPlayers,
		Players:      []string{host},
		ReadyPlayers: []string{},
		Status:       model.RoomWaiting,
		GamePort:     gamePort,
	})
	if err := s.saveRoomsLocked(); err != nil {
		s.rooms = s.rooms[:len(s.rooms)-1]
		return "", err
	}

	slog.Info("room created", "room_id", roomID, "name", roomName, "game_id", gameID, "host", host, "port", gamePort)
	return roomID, nil
}

// JoinRoom adds username to the room. A second join by the same user is a
// no-op success; a full room rejects the caller without touching players.
func (s *Store) JoinRoom(_ context.Context, roomID, username string) error {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	r := s.findRoomLocked(roomID)
	if r == nil {
		return store.ErrNotFound
	}
	if r.HasPlayer(username) {
		return nil
	}
	if len(r.Players) >= r.MaxPlayers {
		return store.ErrRoomFull
	}

	r.Players = append(r.Players, username)
	return s.saveRoomsLocked()
}

// LeaveRoom removes username from players and ready set, destroying the room
// once it is empty. Leaving an unknown room is a no-op.
func (s *Store) LeaveRoom(_ context.Context, roomID, username string) error {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	r := s.findRoomLocked(roomID)
	if r == nil {
		return nil
	}

	r.Players = slices.DeleteFunc(r.Players, func(p string) bool { return p == username })
	r.ReadyPlayers = slices.DeleteFunc(r.ReadyPlayers, func(p string) bool { return p == username })

	if len(r.Players) == 0 {
		s.rooms = slices.DeleteFunc(s.rooms, func(e *model.Room) bool {
			return e.RoomID == roomID
		})
		slog.Info("room destroyed", "room_id", roomID)
	}
	return s.saveRoomsLocked()
}

// SetReady flips the ready flag for a member. Idempotent in both directions.
func (s *Store) SetReady(_ context.Context, roomID, username string, ready bool) error {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	r := s.findRoomLocked(roomID)
	if r == nil {
		return store.ErrNotFound
	}
	if !r.HasPlayer(username) {
		return store.ErrNotInRoom
	}

	if ready {
		if !r.IsReady(username) {
			r.ReadyPlayers = append(r.ReadyPlayers, username)
		}
	} else {
		r.ReadyPlayers = slices.DeleteFunc(r.ReadyPlayers, func(p string) bool { return p == username })
	}
	return s.saveRoomsLocked()
}

// AllReady reports whether the room holds at least two members and every
// member has flagged ready.
func (s *Store) AllReady(_ context.Context, roomID string) (bool, error) {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	r := s.findRoomLocked(roomID)
	if r == nil {
		return false, store.ErrNotFound
	}
	return allReady(r), nil
}

func allReady(r *model.Room) bool {
	if len(r.Players) < model.MinRoomPlayers {
		return false
	}
	for _, p := range r.Players {
		if !r.IsReady(p) {
			return false
		}
	}
	return true
}

// DeleteRoom forcefully removes a room.
func (s *Store) DeleteRoom(_ context.Context, roomID string) error {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	s.rooms = slices.DeleteFunc(s.rooms, func(e *model.Room) bool {
		return e.RoomID == roomID
	})
	return s.saveRoomsLocked()
}

// UpdateRoomStatus sets the room's status field.
func (s *Store) UpdateRoomStatus(_ context.Context, roomID string, status model.RoomStatus) error {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	r := s.findRoomLocked(roomID)
	if r == nil {
		return store.ErrNotFound
	}
	r.Status = status
	return s.saveRoomsLocked()
}

// StartRoom validates every start precondition and flips the room to playing
// in one table transaction, so a concurrent leave or unready cannot slip in
// between the check and the transition.
func (s *Store) StartRoom(_ context.Context, roomID, host string) (*model.Room, error) {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	r := s.findRoomLocked(roomID)
	if r == nil {
		return nil, store.ErrNotFound
	}
	if r.Host != host {
		return nil, store.ErrNotHost
	}
	if r.Status != model.RoomWaiting {
		return nil, store.ErrRoomStarted
	}
	if len(r.Players) < model.MinRoomPlayers {
		return nil, store.ErrTooFewPlayers
	}
	if !allReady(r) {
		return nil, &store.NotReadyError{Waiting: r.NotReady()}
	}

	r.Status = model.RoomPlaying
	if err := s.saveRoomsLocked(); err != nil {
		r.Status = model.RoomWaiting
		return nil, err
	}
	return r.Clone(), nil
}

// FinishRoom flips a playing room back to waiting and clears the ready set
// so the same room can run another match.
func (s *Store) FinishRoom(_ context.Context, roomID string) (*model.Room, error) {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	r := s.findRoomLocked(roomID)
	if r == nil {
		return nil, store.ErrNotFound
	}
	r.Status = model.RoomWaiting
	r.ReadyPlayers = []string{}
	if err := s.saveRoomsLocked(); err != nil {
		return nil, err
	}
	return r.Clone(), nil
}
