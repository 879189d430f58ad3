package jsonstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/playhub/internal/model"
	"github.com/udisondev/playhub/internal/store"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func upsertTestGame(t *testing.T, s *Store, developer, name string) string {
	t.Helper()
	gameID, err := s.UpsertGame(context.Background(), store.GameUpsert{
		Developer:   developer,
		Name:        name,
		Version:     "1",
		Description: "d",
		BundlePath:  filepath.Join(t.TempDir(), "bundle.zip"),
		ClientEntry: "c.py",
		ServerEntry: "s.py",
		MaxPlayers:  4,
	})
	require.NoError(t, err)
	return gameID
}

func TestRegisterUserDuplicate(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.RegisterUser(ctx, "alice", "pw", model.RoleDeveloper))
	err := s.RegisterUser(ctx, "alice", "other", model.RolePlayer)
	assert.ErrorIs(t, err, store.ErrUsernameExists)
}

func TestValidateLogin(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.RegisterUser(ctx, "alice", "pw", model.RoleDeveloper))

	tests := []struct {
		name     string
		username string
		password string
		role     model.Role
		want     bool
	}{
		{"correct", "alice", "pw", model.RoleDeveloper, true},
		{"wrong password", "alice", "nope", model.RoleDeveloper, false},
		{"wrong role", "alice", "pw", model.RolePlayer, false},
		{"unknown user", "bob", "pw", model.RolePlayer, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := s.ValidateLogin(ctx, tt.username, tt.password, tt.role)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestPasswordStoredAsSHA256Hex(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.RegisterUser(ctx, "alice", "pw", model.RolePlayer))

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, store.HashPassword("pw"), u.PasswordHash)
	assert.Len(t, u.PasswordHash, 64)
}

func TestUpsertGameCreatesAndRecordsUpload(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.RegisterUser(ctx, "alice", "pw", model.RoleDeveloper))

	gameID := upsertTestGame(t, s, "alice", "gomoku")

	g, err := s.GetGame(ctx, gameID)
	require.NoError(t, err)
	assert.Equal(t, "gomoku", g.Name)
	assert.Equal(t, "alice", g.Developer)
	assert.Equal(t, 0, g.Downloads)
	assert.Empty(t, g.Reviews)

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Contains(t, u.UploadedGames, gameID)
}

func TestUpsertGameUpdateInPlace(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.RegisterUser(ctx, "alice", "pw", model.RoleDeveloper))
	gameID := upsertTestGame(t, s, "alice", "gomoku")

	updated, err := s.UpsertGame(ctx, store.GameUpsert{
		GameID:     gameID,
		Developer:  "alice",
		Name:       "gomoku",
		Version:    "2",
		BundlePath: "storage/new.zip",
		MaxPlayers: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, gameID, updated)

	g, err := s.GetGame(ctx, gameID)
	require.NoError(t, err)
	assert.Equal(t, "2", g.Version)
	assert.Equal(t, "storage/new.zip", g.BundlePath)

	// The developer's upload list must not grow on re-publish.
	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, u.UploadedGames, 1)
}

func TestUpsertGameClampsMaxPlayers(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	gameID, err := s.UpsertGame(ctx, store.GameUpsert{
		Developer:  "alice",
		Name:       "big",
		Version:    "1",
		MaxPlayers: 99,
	})
	require.NoError(t, err)

	g, err := s.GetGame(ctx, gameID)
	require.NoError(t, err)
	assert.Equal(t, model.MaxRoomPlayers, g.MaxPlayers)
}

func TestDeleteGame(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.RegisterUser(ctx, "alice", "pw", model.RoleDeveloper))
	gameID := upsertTestGame(t, s, "alice", "gomoku")

	require.NoError(t, s.DeleteGame(ctx, gameID))

	_, err := s.GetGame(ctx, gameID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.NotContains(t, u.UploadedGames, gameID)

	assert.ErrorIs(t, s.DeleteGame(ctx, gameID), store.ErrNotFound)
}

func TestIncrementDownloadIdempotentOwnership(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.RegisterUser(ctx, "bob", "pw", model.RolePlayer))
	gameID := upsertTestGame(t, s, "alice", "gomoku")

	require.NoError(t, s.IncrementDownload(ctx, "bob", gameID))
	require.NoError(t, s.IncrementDownload(ctx, "bob", gameID))

	g, err := s.GetGame(ctx, gameID)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Downloads)

	u, err := s.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{gameID}, u.OwnedGames)
}

func TestAddReview(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	gameID := upsertTestGame(t, s, "alice", "gomoku")

	require.NoError(t, s.AddReview(ctx, gameID, "bob", 5, "great"))
	require.NoError(t, s.AddReview(ctx, gameID, "carol", 3, "ok"))

	g, err := s.GetGame(ctx, gameID)
	require.NoError(t, err)
	require.Len(t, g.Reviews, 2)
	assert.Equal(t, "bob", g.Reviews[0].Username)
	assert.Equal(t, 5, g.Reviews[0].Rating)

	assert.ErrorIs(t, s.AddReview(ctx, "missing", "bob", 4, ""), store.ErrNotFound)
}

func TestSnapshotsAreIsolated(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	gameID := upsertTestGame(t, s, "alice", "gomoku")

	g, err := s.GetGame(ctx, gameID)
	require.NoError(t, err)
	g.Name = "mutated"
	g.Reviews = append(g.Reviews, model.Review{Username: "x", Rating: 1})

	fresh, err := s.GetGame(ctx, gameID)
	require.NoError(t, err)
	assert.Equal(t, "gomoku", fresh.Name)
	assert.Empty(t, fresh.Reviews)
}

func TestRoomLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	roomID, err := s.CreateRoom(ctx, "fun", "bob", "g1", 2, 10002)
	require.NoError(t, err)

	room, err := s.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, "bob", room.Host)
	assert.Equal(t, []string{"bob"}, room.Players)
	assert.Equal(t, model.RoomWaiting, room.Status)
	assert.Equal(t, 10002, room.GamePort)

	require.NoError(t, s.JoinRoom(ctx, roomID, "carol"))
	// Idempotent second join.
	require.NoError(t, s.JoinRoom(ctx, roomID, "carol"))

	room, err = s.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, room.Players)

	assert.ErrorIs(t, s.JoinRoom(ctx, roomID, "dave"), store.ErrRoomFull)

	room, err = s.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, room.Players)

	require.NoError(t, s.LeaveRoom(ctx, roomID, "carol"))
	require.NoError(t, s.LeaveRoom(ctx, roomID, "bob"))

	_, err = s.GetRoom(ctx, roomID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRoomInvariants(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	roomID, err := s.CreateRoom(ctx, "fun", "bob", "g1", 3, 10002)
	require.NoError(t, err)
	require.NoError(t, s.JoinRoom(ctx, roomID, "carol"))
	require.NoError(t, s.SetReady(ctx, roomID, "carol", true))

	room, err := s.GetRoom(ctx, roomID)
	require.NoError(t, err)

	assert.True(t, room.HasPlayer(room.Host), "host must be a member")
	assert.LessOrEqual(t, len(room.Players), room.MaxPlayers)
	for _, p := range room.ReadyPlayers {
		assert.True(t, room.HasPlayer(p), "ready set must be a subset of players")
	}
	seen := map[string]bool{}
	for _, p := range room.Players {
		assert.False(t, seen[p], "players must be unique")
		seen[p] = true
	}
}

func TestSetReadyAndAllReady(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	roomID, err := s.CreateRoom(ctx, "fun", "bob", "g1", 4, 10002)
	require.NoError(t, err)

	assert.ErrorIs(t, s.SetReady(ctx, roomID, "stranger", true), store.ErrNotInRoom)

	// A single ready player is never "all ready": two players minimum.
	require.NoError(t, s.SetReady(ctx, roomID, "bob", true))
	ready, err := s.AllReady(ctx, roomID)
	require.NoError(t, err)
	assert.False(t, ready)

	require.NoError(t, s.JoinRoom(ctx, roomID, "carol"))
	ready, err = s.AllReady(ctx, roomID)
	require.NoError(t, err)
	assert.False(t, ready)

	require.NoError(t, s.SetReady(ctx, roomID, "carol", true))
	// Idempotent double set.
	require.NoError(t, s.SetReady(ctx, roomID, "carol", true))
	ready, err = s.AllReady(ctx, roomID)
	require.NoError(t, err)
	assert.True(t, ready)

	room, err := s.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Len(t, room.ReadyPlayers, 2)

	require.NoError(t, s.SetReady(ctx, roomID, "carol", false))
	ready, err = s.AllReady(ctx, roomID)
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestLeaveRoomClearsReady(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	roomID, err := s.CreateRoom(ctx, "fun", "bob", "g1", 4, 10002)
	require.NoError(t, err)
	require.NoError(t, s.JoinRoom(ctx, roomID, "carol"))
	require.NoError(t, s.SetReady(ctx, roomID, "carol", true))

	require.NoError(t, s.LeaveRoom(ctx, roomID, "carol"))

	room, err := s.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.NotContains(t, room.ReadyPlayers, "carol")
}

func TestStartRoomPreconditions(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	roomID, err := s.CreateRoom(ctx, "fun", "bob", "g1", 4, 10002)
	require.NoError(t, err)

	_, err = s.StartRoom(ctx, roomID, "carol")
	assert.ErrorIs(t, err, store.ErrNotHost)

	_, err = s.StartRoom(ctx, roomID, "bob")
	assert.ErrorIs(t, err, store.ErrTooFewPlayers)

	require.NoError(t, s.JoinRoom(ctx, roomID, "carol"))
	require.NoError(t, s.SetReady(ctx, roomID, "bob", true))

	_, err = s.StartRoom(ctx, roomID, "bob")
	var notReady *store.NotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, []string{"carol"}, notReady.Waiting)

	// The failed attempts must not have flipped the status.
	room, err := s.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomWaiting, room.Status)

	require.NoError(t, s.SetReady(ctx, roomID, "carol", true))
	started, err := s.StartRoom(ctx, roomID, "bob")
	require.NoError(t, err)
	assert.Equal(t, model.RoomPlaying, started.Status)

	_, err = s.StartRoom(ctx, roomID, "bob")
	assert.ErrorIs(t, err, store.ErrRoomStarted)
}

func TestUpdateRoomStatus(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	roomID, err := s.CreateRoom(ctx, "fun", "bob", "g1", 2, 10002)
	require.NoError(t, err)

	require.NoError(t, s.UpdateRoomStatus(ctx, roomID, model.RoomPlaying))
	room, err := s.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomPlaying, room.Status)

	assert.ErrorIs(t, s.UpdateRoomStatus(ctx, "missing", model.RoomWaiting), store.ErrNotFound)
}

func TestFinishRoomAllowsSecondMatch(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	roomID, err := s.CreateRoom(ctx, "fun", "bob", "g1", 4, 10002)
	require.NoError(t, err)
	require.NoError(t, s.JoinRoom(ctx, roomID, "carol"))
	require.NoError(t, s.SetReady(ctx, roomID, "bob", true))
	require.NoError(t, s.SetReady(ctx, roomID, "carol", true))

	_, err = s.StartRoom(ctx, roomID, "bob")
	require.NoError(t, err)

	room, err := s.FinishRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomWaiting, room.Status)
	assert.Empty(t, room.ReadyPlayers)

	require.NoError(t, s.SetReady(ctx, roomID, "bob", true))
	require.NoError(t, s.SetReady(ctx, roomID, "carol", true))
	_, err = s.StartRoom(ctx, roomID, "bob")
	require.NoError(t, err)
}

func TestConcurrentJoinOneSlot(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	roomID, err := s.CreateRoom(ctx, "fun", "bob", "g1", 2, 10002)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, name := range []string{"carol", "dave"} {
		wg.Go(func() {
			errs[i] = s.JoinRoom(ctx, roomID, name)
		})
	}
	wg.Wait()

	var full, joined int
	for _, err := range errs {
		switch {
		case err == nil:
			joined++
		case assert.ErrorIs(t, err, store.ErrRoomFull):
			full++
		}
	}
	assert.Equal(t, 1, joined)
	assert.Equal(t, 1, full)

	room, err := s.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Len(t, room.Players, 2)
}

func TestPersistenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.RegisterUser(ctx, "alice", "pw", model.RoleDeveloper))
	gameID, err := s.UpsertGame(ctx, store.GameUpsert{
		Developer: "alice", Name: "gomoku", Version: "1", MaxPlayers: 2,
	})
	require.NoError(t, err)
	_, err = s.CreateRoom(ctx, "fun", "bob", gameID, 2, 10002)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	ok, err := reopened.ValidateLogin(ctx, "alice", "pw", model.RoleDeveloper)
	require.NoError(t, err)
	assert.True(t, ok)

	g, err := reopened.GetGame(ctx, gameID)
	require.NoError(t, err)
	assert.Equal(t, "gomoku", g.Name)

	rooms, err := reopened.ListRooms(ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

func TestCorruptedTableResets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.json"), []byte("{broken"), 0o644))

	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.RegisterUser(context.Background(), "alice", "pw", model.RolePlayer))
}

func TestNoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.RegisterUser(context.Background(), "alice", "pw", model.RolePlayer))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}
