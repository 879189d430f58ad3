package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/udisondev/playhub/internal/model"
)

// GameUpsert carries the fields of a finalized upload. An empty GameID
// creates a new game; a non-empty one re-publishes an existing record.
type GameUpsert struct {
	GameID      string
	Developer   string
	Name        string
	Version     string
	Description string
	BundlePath  string
	ClientEntry string
	ServerEntry string
	MaxPlayers  int
}

// Store is the catalog contract: users, games, and rooms with per-table
// transactional operations. The two-table mutations (UpsertGame,
// IncrementDownload, DeleteGame) are atomic across Games and Users;
// implementations acquire the tables in that fixed order.
//
// After any mutating operation returns, the change is durably persisted.
type Store interface {
	// Users.
	RegisterUser(ctx context.Context, username, password string, role model.Role) error
	ValidateLogin(ctx context.Context, username, password string, role model.Role) (bool, error)
	GetUser(ctx context.Context, username string) (*model.User, error)

	// Games.
	ListGames(ctx context.Context) ([]*model.Game, error)
	GetGame(ctx context.Context, gameID string) (*model.Game, error)
	UpsertGame(ctx context.Context, up GameUpsert) (string, error)
	DeleteGame(ctx context.Context, gameID string) error
	IncrementDownload(ctx context.Context, username, gameID string) error
	AddReview(ctx context.Context, gameID, username string, rating int, comment string) error

	// Rooms.
	ListRooms(ctx context.Context) ([]*model.Room, error)
	GetRoom(ctx context.Context, roomID string) (*model.Room, error)
	GetRoomByHost(ctx context.Context, host string) (*model.Room, error)
	CreateRoom(ctx context.Context, roomName, host, gameID string, maxPlayers, gamePort int) (string, error)
	JoinRoom(ctx context.Context, roomID, username string) error
	LeaveRoom(ctx context.Context, roomID, username string) error
	SetReady(ctx context.Context, roomID, username string, ready bool) error
	AllReady(ctx context.Context, roomID string) (bool, error)
	DeleteRoom(ctx context.Context, roomID string) error
	UpdateRoomStatus(ctx context.Context, roomID string, status model.RoomStatus) error

	// StartRoom atomically validates the start-game preconditions (room
	// exists, caller is host, status waiting, at least two players, all
	// ready) and flips the room to playing, returning the flipped snapshot.
	// The caller launches the game server afterwards and reverts the status
	// on launch failure.
	StartRoom(ctx context.Context, roomID, host string) (*model.Room, error)

	// FinishRoom clears the ready set and flips playing back to waiting so
	// the room can host another match.
	FinishRoom(ctx context.Context, roomID string) (*model.Room, error)

	Close() error
}

// HashPassword hashes a password with SHA-256 and returns the hex encoding.
// Matches the format already present in deployed user databases.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
