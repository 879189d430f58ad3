// Package runtime owns the per-room game-server subprocesses: bundle
// extraction, spawn, tracking, termination, and temp dir cleanup.
package runtime

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/udisondev/playhub/internal/model"
)

// Config tunes how game servers are launched.
type Config struct {
	// Interpreter runs the bundle's server entry, e.g. "python3".
	Interpreter string
	// ScriptSuffix is the file extension of runnable entries, e.g. ".py".
	ScriptSuffix string
	// ReadyWindow is how long a child gets to bind its port before the
	// launch is considered successful. A child exiting inside the window is
	// a start failure.
	ReadyWindow time.Duration
	// StopGrace is how long a terminated child gets before SIGKILL.
	StopGrace time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Interpreter:  "python3",
		ScriptSuffix: ".py",
		ReadyWindow:  time.Second,
		StopGrace:    5 * time.Second,
	}
}

// gameServer is one tracked child. done is closed by the wait goroutine, so
// exit can be observed without polling.
type gameServer struct {
	roomID  string
	cmd     *exec.Cmd
	tempDir string
	stderr  *bytes.Buffer
	done    chan struct{}
}

func (g *gameServer) exited() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// Runtime tracks running game servers by room id.
type Runtime struct {
	cfg Config

	mu      sync.Mutex
	servers map[string]*gameServer
}

// New creates an empty runtime.
func New(cfg Config) *Runtime {
	if cfg.Interpreter == "" {
		cfg = DefaultConfig()
	}
	return &Runtime{cfg: cfg, servers: make(map[string]*gameServer)}
}

// Start extracts the game bundle and spawns its server on the given port.
// The child gets the whole ready window to come up; an early exit fails the
// start and surfaces captured stderr.
func (r *Runtime) Start(roomID string, game *model.Game, port, players int) error {
	// A previous match in the same room may have left an exited entry.
	r.reap(roomID)

	r.mu.Lock()
	if _, running := r.servers[roomID]; running {
		r.mu.Unlock()
		return fmt.Errorf("room %s already has a running game server", roomID)
	}
	r.mu.Unlock()

	if _, err := os.Stat(game.BundlePath); err != nil {
		return fmt.Errorf("game bundle missing: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "game_"+roomID+"_")
	if err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}

	gs, err := r.launch(roomID, game, tempDir, port, players)
	if err != nil {
		_ = os.RemoveAll(tempDir)
		return err
	}

	r.mu.Lock()
	r.servers[roomID] = gs
	r.mu.Unlock()

	slog.Info("game server started",
		"room_id", roomID, "game_id", game.GameID, "port", port, "players", players, "pid", gs.cmd.Process.Pid)
	return nil
}

func (r *Runtime) launch(roomID string, game *model.Game, tempDir string, port, players int) (*gameServer, error) {
	if err := extractBundle(game.BundlePath, tempDir); err != nil {
		return nil, err
	}

	entry, err := findServerEntry(tempDir, game.ServerEntry, r.cfg.ScriptSuffix)
	if err != nil {
		return nil, err
	}

	var stderr bytes.Buffer
	cmd := exec.Command(r.cfg.Interpreter, entry,
		"--host", "0.0.0.0",
		"--port", strconv.Itoa(port),
		"--players", strconv.Itoa(players),
	)
	cmd.Dir = filepath.Dir(entry)
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting game server: %w", err)
	}

	gs := &gameServer{
		roomID:  roomID,
		cmd:     cmd,
		tempDir: tempDir,
		stderr:  &stderr,
		done:    make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(gs.done)
	}()

	select {
	case <-gs.done:
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "exited immediately"
		}
		return nil, fmt.Errorf("game server failed to start: %s", msg)
	case <-time.After(r.cfg.ReadyWindow):
	}

	return gs, nil
}

// Stop terminates the child for roomID (if any) and removes its temp dir.
// Reports whether a tracked child existed.
func (r *Runtime) Stop(roomID string) bool {
	r.mu.Lock()
	gs := r.servers[roomID]
	delete(r.servers, roomID)
	r.mu.Unlock()

	if gs == nil {
		return false
	}

	r.terminate(gs)
	return true
}

// Running reports whether a live child is tracked for roomID, reaping an
// exited entry on the way.
func (r *Runtime) Running(roomID string) bool {
	r.reap(roomID)

	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.servers[roomID]
	return ok
}

// Count returns the number of tracked children.
func (r *Runtime) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.servers)
}

// Shutdown terminates every tracked child and removes all temp dirs.
func (r *Runtime) Shutdown() {
	r.mu.Lock()
	servers := make([]*gameServer, 0, len(r.servers))
	for _, gs := range r.servers {
		servers = append(servers, gs)
	}
	r.servers = make(map[string]*gameServer)
	r.mu.Unlock()

	for _, gs := range servers {
		r.terminate(gs)
	}
}

// reap drops a tracked entry whose child already exited on its own, cleaning
// its temp dir. Exit is observed opportunistically, not polled.
func (r *Runtime) reap(roomID string) {
	r.mu.Lock()
	gs := r.servers[roomID]
	if gs != nil && gs.exited() {
		delete(r.servers, roomID)
	} else {
		gs = nil
	}
	r.mu.Unlock()

	if gs != nil {
		_ = os.RemoveAll(gs.tempDir)
		slog.Info("game server exited on its own", "room_id", gs.roomID)
	}
}

// terminate sends SIGTERM, waits out the grace period, then SIGKILLs.
// The temp dir is removed on every path.
func (r *Runtime) terminate(gs *gameServer) {
	defer func() {
		_ = os.RemoveAll(gs.tempDir)
	}()

	if gs.exited() {
		return
	}

	_ = gs.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-gs.done:
	case <-time.After(r.cfg.StopGrace):
		_ = gs.cmd.Process.Kill()
		<-gs.done
	}
	slog.Info("game server stopped", "room_id", gs.roomID)
}
