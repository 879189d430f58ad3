package pgstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/udisondev/playhub/internal/model"
	"github.com/udisondev/playhub/internal/store"
)

const gameColumns = `game_id, name, developer, version, description,
	bundle_path, client_entry, server_entry, max_players, downloads, reviews`

func scanGame(row pgx.Row) (*model.Game, error) {
	var g model.Game
	var reviews []byte
	err := row.Scan(&g.GameID, &g.Name, &g.Developer, &g.Version, &g.Description,
		&g.BundlePath, &g.ClientEntry, &g.ServerEntry, &g.MaxPlayers, &g.Downloads, &reviews)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if err := json.Unmarshal(reviews, &g.Reviews); err != nil {
		return nil, fmt.Errorf("decoding reviews for %q: %w", g.GameID, err)
	}
	return &g, nil
}

// ListGames returns the whole catalog.
func (s *Store) ListGames(ctx context.Context) ([]*model.Game, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+gameColumns+` FROM games ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}
	defer rows.Close()

	var out []*model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GetGame returns one game by id.
func (s *Store) GetGame(ctx context.Context, gameID string) (*model.Game, error) {
	return scanGame(s.pool.QueryRow(ctx,
		`SELECT `+gameColumns+` FROM games WHERE game_id = $1`, gameID))
}

// UpsertGame registers a finalized upload and keeps the developer's
// uploaded_games in sync, all in one transaction.
func (s *Store) UpsertGame(ctx context.Context, up store.GameUpsert) (string, error) {
	gameID := up.GameID
	if gameID == "" {
		gameID = model.NewID()
	}
	maxPlayers := model.ClampPlayers(up.MaxPlayers)

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE games SET name=$2, version=$3, description=$4, bundle_path=$5,
			        client_entry=$6, server_entry=$7, max_players=$8
			 WHERE game_id=$1`,
			gameID, up.Name, up.Version, up.Description, up.BundlePath,
			up.ClientEntry, up.ServerEntry, maxPlayers,
		)
		if err != nil {
			return fmt.Errorf("updating game %q: %w", gameID, err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO games (game_id, name, developer, version, description,
			        bundle_path, client_entry, server_entry, max_players)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			gameID, up.Name, up.Developer, up.Version, up.Description,
			up.BundlePath, up.ClientEntry, up.ServerEntry, maxPlayers,
		)
		if err != nil {
			return fmt.Errorf("inserting game %q: %w", gameID, err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE users SET uploaded_games = uploaded_games || to_jsonb($2::text)
			 WHERE username = $1`,
			up.Developer, gameID,
		)
		if err != nil {
			return fmt.Errorf("recording upload for %q: %w", up.Developer, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return gameID, nil
}

// DeleteGame removes the record and drops it from the developer's uploaded
// list in one transaction.
func (s *Store) DeleteGame(ctx context.Context, gameID string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var developer string
		err := tx.QueryRow(ctx,
			`DELETE FROM games WHERE game_id = $1 RETURNING developer`, gameID,
		).Scan(&developer)
		if err != nil {
			return mapNoRows(err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE users SET uploaded_games = (
			    SELECT COALESCE(jsonb_agg(e), '[]'::jsonb)
			    FROM jsonb_array_elements(uploaded_games) e
			    WHERE e <> to_jsonb($2::text)
			 ) WHERE username = $1`,
			developer, gameID,
		)
		if err != nil {
			return fmt.Errorf("dropping upload record for %q: %w", developer, err)
		}
		return nil
	})
}

// IncrementDownload bumps the counter and records ownership once per
// (user, game) in one transaction.
func (s *Store) IncrementDownload(ctx context.Context, username, gameID string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE games SET downloads = downloads + 1 WHERE game_id = $1`, gameID,
		); err != nil {
			return fmt.Errorf("bumping downloads for %q: %w", gameID, err)
		}

		_, err := tx.Exec(ctx,
			`UPDATE users SET owned_games = owned_games || to_jsonb($2::text)
			 WHERE username = $1 AND NOT owned_games ? $2`,
			username, gameID,
		)
		if err != nil {
			return fmt.Errorf("recording ownership for %q: %w", username, err)
		}
		return nil
	})
}

// AddReview appends one review to the game's jsonb list.
func (s *Store) AddReview(ctx context.Context, gameID, username string, rating int, comment string) error {
	review, err := json.Marshal(model.Review{Username: username, Rating: rating, Comment: comment})
	if err != nil {
		return fmt.Errorf("encoding review: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE games SET reviews = reviews || $2::jsonb WHERE game_id = $1`,
		gameID, review,
	)
	if err != nil {
		return fmt.Errorf("adding review to %q: %w", gameID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
