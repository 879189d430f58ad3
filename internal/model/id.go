package model

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a 32-character hex identifier for games and upload sessions.
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// NewShortID returns an 8-character hex identifier. Rooms use short ids so
// players can type them into a join prompt.
func NewShortID() string {
	return NewID()[:8]
}
