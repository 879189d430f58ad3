package jsonstore

import (
	"context"
	"crypto/subtle"
	"log/slog"

	"github.com/udisondev/playhub/internal/model"
	"github.com/udisondev/playhub/internal/store"
)

// findUserLocked returns the live record for username. Callers hold usersMu.
func (s *Store) findUserLocked(username string) *model.User {
	for _, u := range s.users {
		if u.Username == username {
			return u
		}
	}
	return nil
}

// RegisterUser creates a new account with a hashed password.
func (s *Store) RegisterUser(_ context.Context, username, password string, role model.Role) error {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	if s.findUserLocked(username) != nil {
		return store.ErrUsernameExists
	}

	s.users = append(s.users, &model.User{
		Username:      username,
		PasswordHash:  store.HashPassword(password),
		Role:          role,
		OwnedGames:    []string{},
		UploadedGames: []string{},
	})
	if err := s.saveUsersLocked(); err != nil {
		s.users = s.users[:len(s.users)-1]
		return err
	}

	slog.Info("user registered", "username", username, "role", role)
	return nil
}

// ValidateLogin checks username, password hash, and role.
func (s *Store) ValidateLogin(_ context.Context, username, password string, role model.Role) (bool, error) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	u := s.findUserLocked(username)
	if u == nil || u.Role != role {
		return false, nil
	}
	want := store.HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(u.PasswordHash), []byte(want)) == 1, nil
}

// GetUser returns a snapshot of the account.
func (s *Store) GetUser(_ context.Context, username string) (*model.User, error) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	u := s.findUserLocked(username)
	if u == nil {
		return nil, store.ErrNotFound
	}
	return u.Clone(), nil
}
