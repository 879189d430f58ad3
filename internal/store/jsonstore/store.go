// Package jsonstore implements the catalog contract on three JSON documents
// (users.json, games.json, rooms.json) with an in-memory cache per table and
// atomic write-temp-then-rename persistence. It is the default backend; the
// pgstore package provides the same contract on PostgreSQL.
package jsonstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/udisondev/playhub/internal/model"
	"github.com/udisondev/playhub/internal/store"
)

var _ store.Store = (*Store)(nil)

const (
	usersFile = "users.json"
	gamesFile = "games.json"
	roomsFile = "rooms.json"
)

// Store keeps the three catalog tables behind coarse per-table locks.
// Multi-table operations take Games before Users; Rooms is independent.
type Store struct {
	dir string

	usersMu sync.Mutex
	users   []*model.User

	gamesMu sync.Mutex
	games   []*model.Game

	roomsMu sync.Mutex
	rooms   []*model.Room
}

// Open loads (or creates) the catalog under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating db dir %s: %w", dir, err)
	}

	s := &Store{dir: dir}

	if err := loadTable(filepath.Join(dir, usersFile), "users", &s.users); err != nil {
		return nil, err
	}
	if err := loadTable(filepath.Join(dir, gamesFile), "games", &s.games); err != nil {
		return nil, err
	}
	if err := loadTable(filepath.Join(dir, roomsFile), "rooms", &s.rooms); err != nil {
		return nil, err
	}

	return s, nil
}

// Close flushes all three tables.
func (s *Store) Close() error {
	s.gamesMu.Lock()
	gamesErr := s.saveGamesLocked()
	s.gamesMu.Unlock()

	s.usersMu.Lock()
	usersErr := s.saveUsersLocked()
	s.usersMu.Unlock()

	s.roomsMu.Lock()
	roomsErr := s.saveRoomsLocked()
	s.roomsMu.Unlock()

	if usersErr != nil {
		return usersErr
	}
	if gamesErr != nil {
		return gamesErr
	}
	return roomsErr
}

// loadTable reads the document at path shaped {"<root>": [...]} into rows.
// A missing file leaves rows empty; a corrupted one is reset with a warning
// so a damaged db file never takes the server down.
func loadTable[T any](path, root string, rows *[]T) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var doc map[string][]T
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Warn("corrupted table file, resetting", "path", path, "err", err)
		return nil
	}
	*rows = doc[root]
	return nil
}

// saveTable marshals {"<root>": rows} and atomically replaces the document
// at path, so readers never observe a partial file.
func saveTable[T any](path, root string, rows []T) error {
	if rows == nil {
		rows = []T{}
	}
	data, err := json.MarshalIndent(map[string][]T{root: rows}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

func (s *Store) saveUsersLocked() error {
	return saveTable(filepath.Join(s.dir, usersFile), "users", s.users)
}

func (s *Store) saveGamesLocked() error {
	return saveTable(filepath.Join(s.dir, gamesFile), "games", s.games)
}

func (s *Store) saveRoomsLocked() error {
	return saveTable(filepath.Join(s.dir, roomsFile), "rooms", s.rooms)
}
