package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/udisondev/playhub/internal/model"
	"github.com/udisondev/playhub/internal/store"
)

const roomColumns = `room_id, room_name, host, game_id, max_players,
	players, ready_players, status, game_port`

func scanRoom(row pgx.Row) (*model.Room, error) {
	var r model.Room
	var players, ready []byte
	err := row.Scan(&r.RoomID, &r.RoomName, &r.Host, &r.GameID, &r.MaxPlayers,
		&players, &ready, &r.Status, &r.GamePort)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if err := json.Unmarshal(players, &r.Players); err != nil {
		return nil, fmt.Errorf("decoding players for %q: %w", r.RoomID, err)
	}
	if err := json.Unmarshal(ready, &r.ReadyPlayers); err != nil {
		return nil, fmt.Errorf("decoding ready_players for %q: %w", r.RoomID, err)
	}
	return &r, nil
}

// lockRoom reads a room row FOR UPDATE inside a transaction.
func lockRoom(ctx context.Context, tx pgx.Tx, roomID string) (*model.Room, error) {
	return scanRoom(tx.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE room_id = $1 FOR UPDATE`, roomID))
}

// saveMembers writes back players and ready_players after a membership
// mutation.
func saveMembers(ctx context.Context, tx pgx.Tx, r *model.Room) error {
	players, err := jsonColumn(r.Players)
	if err != nil {
		return err
	}
	ready, err := jsonColumn(r.ReadyPlayers)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`UPDATE rooms SET players = $2, ready_players = $3 WHERE room_id = $1`,
		r.RoomID, players, ready,
	)
	if err != nil {
		return fmt.Errorf("saving members for %q: %w", r.RoomID, err)
	}
	return nil
}

// ListRooms returns all rooms.
func (s *Store) ListRooms(ctx context.Context) ([]*model.Room, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY room_id`)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	defer rows.Close()

	var out []*model.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRoom returns one room by id.
func (s *Store) GetRoom(ctx context.Context, roomID string) (*model.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE room_id = $1`, roomID))
}

// GetRoomByHost returns the room hosted by the given user.
func (s *Store) GetRoomByHost(ctx context.Context, host string) (*model.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE host = $1 LIMIT 1`, host))
}

// CreateRoom inserts a new waiting room with the host as first member.
func (s *Store) CreateRoom(ctx context.Context, roomName, host, gameID string, maxPlayers, gamePort int) (string, error) {
	roomID := model.NewShortID()
	players, err := jsonColumn([]string{host})
	if err != nil {
		return "", err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO rooms (room_id, room_name, host, game_id, max_players,
		        players, ready_players, status, game_port)
		 VALUES ($1, $2, $3, $4, $5, $6, '[]', $7, $8)`,
		roomID, roomName, host, gameID, maxPlayers, players, model.RoomWaiting, gamePort,
	)
	if err != nil {
		return "", fmt.Errorf("creating room: %w", err)
	}
	return roomID, nil
}

// JoinRoom adds username under a row lock so two concurrent joins cannot
// both take the last slot.
func (s *Store) JoinRoom(ctx context.Context, roomID, username string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		r, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if r.HasPlayer(username) {
			return nil
		}
		if len(r.Players) >= r.MaxPlayers {
			return store.ErrRoomFull
		}
		r.Players = append(r.Players, username)
		return saveMembers(ctx, tx, r)
	})
}

// LeaveRoom removes username, destroying the room once empty.
func (s *Store) LeaveRoom(ctx context.Context, roomID, username string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		r, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}

		r.Players = slices.DeleteFunc(r.Players, func(p string) bool { return p == username })
		r.ReadyPlayers = slices.DeleteFunc(r.ReadyPlayers, func(p string) bool { return p == username })

		if len(r.Players) == 0 {
			_, err := tx.Exec(ctx, `DELETE FROM rooms WHERE room_id = $1`, roomID)
			return err
		}
		return saveMembers(ctx, tx, r)
	})
}

// SetReady flips the ready flag for a member.
func (s *Store) SetReady(ctx context.Context, roomID, username string, ready bool) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		r, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
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
		return saveMembers(ctx, tx, r)
	})
}

// AllReady reports whether at least two members are in and all are ready.
func (s *Store) AllReady(ctx context.Context, roomID string) (bool, error) {
	r, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	return len(r.Players) >= model.MinRoomPlayers && len(r.NotReady()) == 0, nil
}

// DeleteRoom forcefully removes a room.
func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE room_id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("deleting room %q: %w", roomID, err)
	}
	return nil
}

// UpdateRoomStatus sets the status field.
func (s *Store) UpdateRoomStatus(ctx context.Context, roomID string, status model.RoomStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE rooms SET status = $2 WHERE room_id = $1`, roomID, status)
	if err != nil {
		return fmt.Errorf("updating status for %q: %w", roomID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// StartRoom validates the start preconditions and flips the room to playing
// under a row lock.
func (s *Store) StartRoom(ctx context.Context, roomID, host string) (*model.Room, error) {
	var out *model.Room
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		r, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if r.Host != host {
			return store.ErrNotHost
		}
		if r.Status != model.RoomWaiting {
			return store.ErrRoomStarted
		}
		if len(r.Players) < model.MinRoomPlayers {
			return store.ErrTooFewPlayers
		}
		if waiting := r.NotReady(); len(waiting) > 0 {
			return &store.NotReadyError{Waiting: waiting}
		}

		if _, err := tx.Exec(ctx,
			`UPDATE rooms SET status = $2 WHERE room_id = $1`, roomID, model.RoomPlaying,
		); err != nil {
			return fmt.Errorf("flipping room %q to playing: %w", roomID, err)
		}
		r.Status = model.RoomPlaying
		out = r
		return nil
	})
	return out, err
}

// FinishRoom puts a room back to waiting with a cleared ready set.
func (s *Store) FinishRoom(ctx context.Context, roomID string) (*model.Room, error) {
	var out *model.Room
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		r, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE rooms SET status = $2, ready_players = '[]' WHERE room_id = $1`,
			roomID, model.RoomWaiting,
		); err != nil {
			return fmt.Errorf("finishing room %q: %w", roomID, err)
		}
		r.Status = model.RoomWaiting
		r.ReadyPlayers = []string{}
		out = r
		return nil
	})
	return out, err
}
