package lobby

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/playhub/internal/games"
	"github.com/udisondev/playhub/internal/model"
	"github.com/udisondev/playhub/internal/protocol"
	"github.com/udisondev/playhub/internal/runtime"
	"github.com/udisondev/playhub/internal/store"
	"github.com/udisondev/playhub/internal/store/jsonstore"
)

type fixture struct {
	store *jsonstore.Store
	lobby *Manager
	rt    *runtime.Runtime
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := jsonstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	rt := runtime.New(runtime.Config{
		Interpreter:  "sh",
		ScriptSuffix: ".sh",
		ReadyWindow:  200 * time.Millisecond,
		StopGrace:    time.Second,
	})
	t.Cleanup(rt.Shutdown)

	gm, err := games.NewManager(st, filepath.Join(t.TempDir(), "storage"), 10002)
	require.NoError(t, err)

	return &fixture{store: st, lobby: NewManager(st, rt, gm), rt: rt}
}

// publishGame registers a game whose bundle holds the given script as its
// server entry (match_server.sh).
func (f *fixture) publishGame(t *testing.T, maxPlayers int, script string) string {
	t.Helper()

	bundle := filepath.Join(t.TempDir(), "bundle.zip")
	bf, err := os.Create(bundle)
	require.NoError(t, err)
	zw := zip.NewWriter(bf)
	w, err := zw.Create("match_server.sh")
	require.NoError(t, err)
	_, err = w.Write([]byte(script))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, bf.Close())

	gameID, err := f.store.UpsertGame(context.Background(), store.GameUpsert{
		Developer:  "alice",
		Name:       "gomoku",
		Version:    "1",
		BundlePath: bundle,
		MaxPlayers: maxPlayers,
	})
	require.NoError(t, err)
	return gameID
}

func TestCreateRoomClampsToGameLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID := f.publishGame(t, 4, "sleep 30\n")

	room, err := f.lobby.CreateRoom(ctx, "bob", protocol.CreateRoomRequest{
		GameID:     gameID,
		RoomName:   "big",
		MaxPlayers: 8,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, room.MaxPlayers, "room size is clamped to the game's limit")
	assert.Equal(t, "bob", room.Host)
	assert.Equal(t, []string{"bob"}, room.Players)
	assert.GreaterOrEqual(t, room.GamePort, 10002)
}

func TestCreateRoomFloorsAtTwo(t *testing.T) {
	f := newFixture(t)
	gameID := f.publishGame(t, 4, "sleep 30\n")

	room, err := f.lobby.CreateRoom(context.Background(), "bob", protocol.CreateRoomRequest{
		GameID:     gameID,
		MaxPlayers: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, model.MinRoomPlayers, room.MaxPlayers)
	assert.Equal(t, "Room", room.RoomName)
}

func TestCreateRoomUnknownGame(t *testing.T) {
	f := newFixture(t)
	_, err := f.lobby.CreateRoom(context.Background(), "bob", protocol.CreateRoomRequest{GameID: "missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateRoomOnePerHost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID := f.publishGame(t, 4, "sleep 30\n")

	first, err := f.lobby.CreateRoom(ctx, "bob", protocol.CreateRoomRequest{GameID: gameID})
	require.NoError(t, err)

	_, err = f.lobby.CreateRoom(ctx, "bob", protocol.CreateRoomRequest{GameID: gameID})
	var busy *HostBusyError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, first.RoomID, busy.RoomID)
}

func TestPortsAreUniqueAcrossRooms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID := f.publishGame(t, 4, "sleep 30\n")

	seen := map[int]bool{}
	for _, host := range []string{"bob", "carol", "dave"} {
		room, err := f.lobby.CreateRoom(ctx, host, protocol.CreateRoomRequest{GameID: gameID})
		require.NoError(t, err)
		assert.False(t, seen[room.GamePort], "port reused")
		seen[room.GamePort] = true
	}
}

func TestJoinRejectedWhilePlaying(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID := f.publishGame(t, 4, "sleep 30\n")

	room := f.startedRoom(t, gameID)

	_, err := f.lobby.JoinRoom(ctx, "dave", room.RoomID)
	assert.ErrorIs(t, err, ErrRoomNotWaiting)
}

// startedRoom creates a room with bob+carol, readies both, and starts it.
func (f *fixture) startedRoom(t *testing.T, gameID string) *model.Room {
	t.Helper()
	ctx := context.Background()

	room, err := f.lobby.CreateRoom(ctx, "bob", protocol.CreateRoomRequest{GameID: gameID})
	require.NoError(t, err)
	_, err = f.lobby.JoinRoom(ctx, "carol", room.RoomID)
	require.NoError(t, err)
	_, err = f.lobby.SetReady(ctx, "bob", room.RoomID, true)
	require.NoError(t, err)
	_, err = f.lobby.SetReady(ctx, "carol", room.RoomID, true)
	require.NoError(t, err)

	started, err := f.lobby.StartGame(ctx, "bob", room.RoomID)
	require.NoError(t, err)
	return started
}

func TestStartGameHappyPath(t *testing.T) {
	f := newFixture(t)
	gameID := f.publishGame(t, 4, "sleep 30\n")

	room := f.startedRoom(t, gameID)
	assert.Equal(t, model.RoomPlaying, room.Status)
	assert.True(t, f.rt.Running(room.RoomID), "a child must exist after ok start")
}

func TestStartGameNotAllReady(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID := f.publishGame(t, 4, "sleep 30\n")

	room, err := f.lobby.CreateRoom(ctx, "bob", protocol.CreateRoomRequest{GameID: gameID})
	require.NoError(t, err)
	_, err = f.lobby.JoinRoom(ctx, "carol", room.RoomID)
	require.NoError(t, err)
	_, err = f.lobby.SetReady(ctx, "bob", room.RoomID, true)
	require.NoError(t, err)

	_, err = f.lobby.StartGame(ctx, "bob", room.RoomID)
	var notReady *store.NotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Contains(t, notReady.Waiting, "carol")

	fresh, err := f.lobby.GetRoom(ctx, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomWaiting, fresh.Status)
	assert.False(t, f.rt.Running(room.RoomID))
}

func TestStartGameLaunchFailureRevertsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID := f.publishGame(t, 4, "echo nope >&2\nexit 3\n")

	room, err := f.lobby.CreateRoom(ctx, "bob", protocol.CreateRoomRequest{GameID: gameID})
	require.NoError(t, err)
	_, err = f.lobby.JoinRoom(ctx, "carol", room.RoomID)
	require.NoError(t, err)
	_, err = f.lobby.SetReady(ctx, "bob", room.RoomID, true)
	require.NoError(t, err)
	_, err = f.lobby.SetReady(ctx, "carol", room.RoomID, true)
	require.NoError(t, err)

	_, err = f.lobby.StartGame(ctx, "bob", room.RoomID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")

	fresh, err := f.lobby.GetRoom(ctx, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomWaiting, fresh.Status)
}

func TestEndGameAllowsRematch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID := f.publishGame(t, 4, "sleep 30\n")
	room := f.startedRoom(t, gameID)

	_, err := f.lobby.EndGame(ctx, "eve", room.RoomID)
	assert.ErrorIs(t, err, ErrNotMember)

	finished, err := f.lobby.EndGame(ctx, "carol", room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomWaiting, finished.Status)
	assert.Empty(t, finished.ReadyPlayers)
	assert.False(t, f.rt.Running(room.RoomID))

	_, err = f.lobby.EndGame(ctx, "carol", room.RoomID)
	assert.ErrorIs(t, err, ErrNoMatch)

	// Second match in the same room.
	_, err = f.lobby.SetReady(ctx, "bob", room.RoomID, true)
	require.NoError(t, err)
	_, err = f.lobby.SetReady(ctx, "carol", room.RoomID, true)
	require.NoError(t, err)
	again, err := f.lobby.StartGame(ctx, "bob", room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomPlaying, again.Status)
}

func TestCloseRoomHostOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID := f.publishGame(t, 4, "sleep 30\n")
	room := f.startedRoom(t, gameID)

	assert.ErrorIs(t, f.lobby.CloseRoom(ctx, "carol", room.RoomID), ErrNotHost)

	require.NoError(t, f.lobby.CloseRoom(ctx, "bob", room.RoomID))
	assert.False(t, f.rt.Running(room.RoomID), "closing the room kills the child")

	_, err := f.lobby.GetRoom(ctx, room.RoomID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLeaveDuringPlayingKeepsChild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID := f.publishGame(t, 4, "sleep 30\n")
	room := f.startedRoom(t, gameID)

	require.NoError(t, f.lobby.LeaveRoom(ctx, "carol", room.RoomID))
	assert.True(t, f.rt.Running(room.RoomID), "leaving a playing room must not stop the child")
}

type recordingNotifier struct {
	changed   []string
	destroyed []string
	started   []string
}

func (n *recordingNotifier) RoomChanged(r *model.Room) { n.changed = append(n.changed, r.RoomID) }
func (n *recordingNotifier) RoomDestroyed(id string)   { n.destroyed = append(n.destroyed, id) }
func (n *recordingNotifier) GameStarted(r *model.Room, port int) {
	n.started = append(n.started, r.RoomID)
}

func TestNotifierSeesLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := &recordingNotifier{}
	f.lobby.SetNotifier(rec)

	gameID := f.publishGame(t, 4, "sleep 30\n")
	room := f.startedRoom(t, gameID)

	assert.NotEmpty(t, rec.changed)
	assert.Equal(t, []string{room.RoomID}, rec.started)

	require.NoError(t, f.lobby.CloseRoom(ctx, "bob", room.RoomID))
	assert.Equal(t, []string{room.RoomID}, rec.destroyed)
}
