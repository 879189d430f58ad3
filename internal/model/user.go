package model

import "slices"

// Role determines which platform actions a connection may perform.
type Role string

const (
	RolePlayer    Role = "player"
	RoleDeveloper Role = "developer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RolePlayer || r == RoleDeveloper
}

// User represents a registered account.
// PasswordHash is the hex-encoded SHA-256 of the password; the persisted
// field is named "password" for compatibility with existing db files.
type User struct {
	Username      string   `json:"username"`
	PasswordHash  string   `json:"password"`
	Role          Role     `json:"role"`
	OwnedGames    []string `json:"owned_games"`
	UploadedGames []string `json:"uploaded_games"`
}

// Owns reports whether the user has downloaded the given game.
func (u *User) Owns(gameID string) bool {
	return slices.Contains(u.OwnedGames, gameID)
}

// Clone returns a deep copy safe to hand out past the table lock.
func (u *User) Clone() *User {
	c := *u
	c.OwnedGames = slices.Clone(u.OwnedGames)
	c.UploadedGames = slices.Clone(u.UploadedGames)
	return &c
}
