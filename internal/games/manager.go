// Package games owns upload sessions, bundle staging, game record
// finalization, and the room port allocator.
package games

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/udisondev/playhub/internal/model"
	"github.com/udisondev/playhub/internal/protocol"
	"github.com/udisondev/playhub/internal/store"
)

// ErrUploadNotFound is returned for chunks addressed at an unknown or
// already finalized upload session.
var ErrUploadNotFound = errors.New("invalid upload_id")

// Manager tracks in-flight uploads and allocates game ports.
type Manager struct {
	store      store.Store
	storageDir string
	ports      *PortAllocator

	uploadsMu sync.Mutex
	uploads   map[string]*UploadSession
}

// NewManager creates the manager and its storage directory.
func NewManager(st store.Store, storageDir string, basePort int) (*Manager, error) {
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage dir %s: %w", storageDir, err)
	}
	return &Manager{
		store:      st,
		storageDir: storageDir,
		ports:      NewPortAllocator(basePort),
		uploads:    make(map[string]*UploadSession),
	}, nil
}

// StartUpload opens a staging file and registers a new upload session.
// Returns the session and the advisory chunk size.
func (m *Manager) StartUpload(connID uint64, developer string, req protocol.UploadInitRequest) (*UploadSession, int, error) {
	uploadID := model.NewID()
	path := filepath.Join(m.storageDir, uploadID+".zip")

	f, err := os.Create(path)
	if err != nil {
		return nil, 0, fmt.Errorf("creating staging file %s: %w", path, err)
	}

	sess := &UploadSession{
		UploadID:  uploadID,
		Developer: developer,
		ConnID:    connID,
		Meta: store.GameUpsert{
			GameID:      req.GameID,
			Developer:   developer,
			Name:        req.Name,
			Version:     req.Version,
			Description: req.Description,
			BundlePath:  path,
			ClientEntry: req.ClientEntry,
			ServerEntry: req.ServerEntry,
			MaxPlayers:  req.MaxPlayers,
		},
		file: f,
		path: path,
	}

	m.uploadsMu.Lock()
	m.uploads[uploadID] = sess
	m.uploadsMu.Unlock()

	slog.Info("upload session created", "upload_id", uploadID, "developer", developer, "target", path)
	return sess, protocol.DefaultChunkSize, nil
}

// WriteChunk appends one decoded chunk to the session. On eof the staging
// file becomes the game's bundle and the record is upserted; the returned
// game id is empty for non-final chunks.
func (m *Manager) WriteChunk(ctx context.Context, uploadID string, chunk []byte, eof bool) (string, error) {
	m.uploadsMu.Lock()
	sess := m.uploads[uploadID]
	m.uploadsMu.Unlock()
	if sess == nil {
		return "", ErrUploadNotFound
	}

	if err := sess.WriteChunk(chunk, eof); err != nil {
		return "", err
	}
	if !eof {
		return "", nil
	}

	gameID, err := m.store.UpsertGame(ctx, sess.Meta)
	if err != nil {
		return "", fmt.Errorf("finalizing upload %s: %w", uploadID, err)
	}

	m.uploadsMu.Lock()
	delete(m.uploads, uploadID)
	m.uploadsMu.Unlock()

	slog.Info("upload finished", "upload_id", uploadID, "game_id", gameID)
	return gameID, nil
}

// AbortConnection drops all unfinished sessions owned by a closed
// connection and deletes their staging files.
func (m *Manager) AbortConnection(connID uint64) {
	m.uploadsMu.Lock()
	var orphans []*UploadSession
	for id, sess := range m.uploads {
		if sess.ConnID == connID {
			orphans = append(orphans, sess)
			delete(m.uploads, id)
		}
	}
	m.uploadsMu.Unlock()

	for _, sess := range orphans {
		sess.Abort()
		slog.Info("orphaned upload aborted", "upload_id", sess.UploadID, "developer", sess.Developer)
	}
}

// ActiveUploads returns the number of in-flight sessions.
func (m *Manager) ActiveUploads() int {
	m.uploadsMu.Lock()
	defer m.uploadsMu.Unlock()
	return len(m.uploads)
}

// AllocatePort reserves the next game port for a new room.
func (m *Manager) AllocatePort() int {
	return m.ports.Next()
}
