package games

import (
	"fmt"
	"os"
	"sync"

	"github.com/udisondev/playhub/internal/store"
)

// UploadSession is one in-flight chunked bundle transfer. The session owns
// its staging file exclusively until finalized or aborted; chunks arrive in
// order from a single connection, the lock only guards against teardown
// racing a late chunk.
type UploadSession struct {
	UploadID  string
	Developer string
	ConnID    uint64
	Meta      store.GameUpsert

	mu       sync.Mutex
	file     *os.File
	path     string
	finished bool
}

// Path returns the staging file location; it becomes the game's bundle_path
// after finalization.
func (s *UploadSession) Path() string {
	return s.path
}

// WriteChunk appends one decoded chunk; on eof the staging file is flushed
// and closed. Chunks after eof are dropped.
func (s *UploadSession) WriteChunk(chunk []byte, eof bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return nil
	}
	if _, err := s.file.Write(chunk); err != nil {
		return fmt.Errorf("writing chunk to %s: %w", s.path, err)
	}
	if eof {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("syncing %s: %w", s.path, err)
		}
		if err := s.file.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", s.path, err)
		}
		s.finished = true
	}
	return nil
}

// Abort closes and deletes the staging file of an unfinished session.
func (s *UploadSession) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}
	s.finished = true
	_ = s.file.Close()
	_ = os.Remove(s.path)
}
