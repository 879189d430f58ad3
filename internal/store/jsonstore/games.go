package jsonstore

import (
	"context"
	"log/slog"
	"slices"

	"github.com/udisondev/playhub/internal/model"
	"github.com/udisondev/playhub/internal/store"
)

// findGameLocked returns the live record for gameID. Callers hold gamesMu.
func (s *Store) findGameLocked(gameID string) *model.Game {
	for _, g := range s.games {
		if g.GameID == gameID {
			return g
		}
	}
	return nil
}

// ListGames returns a snapshot of the catalog.
func (s *Store) ListGames(_ context.Context) ([]*model.Game, error) {
	s.gamesMu.Lock()
	defer s.gamesMu.Unlock()

	out := make([]*model.Game, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, g.Clone())
	}
	return out, nil
}

// GetGame returns a snapshot of one game.
func (s *Store) GetGame(_ context.Context, gameID string) (*model.Game, error) {
	s.gamesMu.Lock()
	defer s.gamesMu.Unlock()

	g := s.findGameLocked(gameID)
	if g == nil {
		return nil, store.ErrNotFound
	}
	return g.Clone(), nil
}

// UpsertGame registers a finalized upload. With an empty GameID a new record
// is created and appended to the developer's uploaded_games; otherwise the
// existing record is re-published in place. Locks Games then Users.
func (s *Store) UpsertGame(_ context.Context, up store.GameUpsert) (string, error) {
	s.gamesMu.Lock()
	defer s.gamesMu.Unlock()
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	var g *model.Game
	if up.GameID != "" {
		g = s.findGameLocked(up.GameID)
	}

	if g == nil {
		gameID := up.GameID
		if gameID == "" {
			gameID = model.NewID()
		}
		g = &model.Game{
			GameID:      gameID,
			Name:        up.Name,
			Developer:   up.Developer,
			Version:     up.Version,
			Description: up.Description,
			BundlePath:  up.BundlePath,
			ClientEntry: up.ClientEntry,
			ServerEntry: up.ServerEntry,
			MaxPlayers:  model.ClampPlayers(up.MaxPlayers),
			Reviews:     []model.Review{},
		}
		s.games = append(s.games, g)

		if u := s.findUserLocked(up.Developer); u != nil {
			u.UploadedGames = append(u.UploadedGames, g.GameID)
		}
	} else {
		g.Name = up.Name
		g.Version = up.Version
		g.Description = up.Description
		g.BundlePath = up.BundlePath
		g.ClientEntry = up.ClientEntry
		g.ServerEntry = up.ServerEntry
		g.MaxPlayers = model.ClampPlayers(up.MaxPlayers)
	}

	if err := s.saveGamesLocked(); err != nil {
		return "", err
	}
	if err := s.saveUsersLocked(); err != nil {
		return "", err
	}

	slog.Info("game saved", "game_id", g.GameID, "name", g.Name, "version", g.Version, "developer", g.Developer)
	return g.GameID, nil
}

// DeleteGame removes a game and drops it from the developer's uploaded list.
// Authorization is the dispatcher's job. Locks Games then Users.
func (s *Store) DeleteGame(_ context.Context, gameID string) error {
	s.gamesMu.Lock()
	defer s.gamesMu.Unlock()
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	g := s.findGameLocked(gameID)
	if g == nil {
		return store.ErrNotFound
	}

	s.games = slices.DeleteFunc(s.games, func(e *model.Game) bool {
		return e.GameID == gameID
	})
	if u := s.findUserLocked(g.Developer); u != nil {
		u.UploadedGames = slices.DeleteFunc(u.UploadedGames, func(id string) bool {
			return id == gameID
		})
	}

	if err := s.saveGamesLocked(); err != nil {
		return err
	}
	return s.saveUsersLocked()
}

// IncrementDownload bumps the download counter and records ownership.
// The ownership set is idempotent per (user, game). Locks Games then Users.
func (s *Store) IncrementDownload(_ context.Context, username, gameID string) error {
	s.gamesMu.Lock()
	defer s.gamesMu.Unlock()
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	if g := s.findGameLocked(gameID); g != nil {
		g.Downloads++
	}
	if u := s.findUserLocked(username); u != nil && !u.Owns(gameID) {
		u.OwnedGames = append(u.OwnedGames, gameID)
	}

	if err := s.saveGamesLocked(); err != nil {
		return err
	}
	return s.saveUsersLocked()
}

// AddReview appends a review to the game's append-only list.
func (s *Store) AddReview(_ context.Context, gameID, username string, rating int, comment string) error {
	s.gamesMu.Lock()
	defer s.gamesMu.Unlock()

	g := s.findGameLocked(gameID)
	if g == nil {
		return store.ErrNotFound
	}
	g.Reviews = append(g.Reviews, model.Review{Username: username, Rating: rating, Comment: comment})
	return s.saveGamesLocked()
}
