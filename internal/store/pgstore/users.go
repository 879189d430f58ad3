package pgstore

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/udisondev/playhub/internal/model"
	"github.com/udisondev/playhub/internal/store"
)

// RegisterUser inserts a new account; a duplicate username surfaces as
// store.ErrUsernameExists via the primary key.
func (s *Store) RegisterUser(ctx context.Context, username, password string, role model.Role) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (username, password_hash, role) VALUES ($1, $2, $3)`,
		username, store.HashPassword(password), role,
	)
	if isUniqueViolation(err) {
		return store.ErrUsernameExists
	}
	if err != nil {
		return fmt.Errorf("creating user %q: %w", username, err)
	}
	return nil
}

// ValidateLogin checks username, password hash, and role.
func (s *Store) ValidateLogin(ctx context.Context, username, password string, role model.Role) (bool, error) {
	var hash string
	var storedRole model.Role
	err := s.pool.QueryRow(ctx,
		`SELECT password_hash, role FROM users WHERE username = $1`, username,
	).Scan(&hash, &storedRole)
	if err != nil {
		if errors.Is(mapNoRows(err), store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("querying user %q: %w", username, err)
	}
	if storedRole != role {
		return false, nil
	}
	want := store.HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(hash), []byte(want)) == 1, nil
}

// GetUser returns the account by username.
func (s *Store) GetUser(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	var owned, uploaded []byte
	err := s.pool.QueryRow(ctx,
		`SELECT username, password_hash, role, owned_games, uploaded_games
		 FROM users WHERE username = $1`, username,
	).Scan(&u.Username, &u.PasswordHash, &u.Role, &owned, &uploaded)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if err := json.Unmarshal(owned, &u.OwnedGames); err != nil {
		return nil, fmt.Errorf("decoding owned_games for %q: %w", username, err)
	}
	if err := json.Unmarshal(uploaded, &u.UploadedGames); err != nil {
		return nil, fmt.Errorf("decoding uploaded_games for %q: %w", username, err)
	}
	return &u, nil
}
