// Package auth keeps the per-connection session table and fronts the store
// for registration and credential checks.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/udisondev/playhub/internal/model"
	"github.com/udisondev/playhub/internal/store"
)

var (
	// ErrInvalidCredentials is returned for a bad username/password/role
	// combination. The client sees one message for all three cases.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotLoggedIn is returned by Require for an unauthenticated connection.
	ErrNotLoggedIn = errors.New("not logged in")
)

// Manager maps connection ids to authenticated sessions.
type Manager struct {
	store store.Store

	mu       sync.Mutex
	sessions map[uint64]*model.Session
}

// NewManager creates an empty session table over the given store.
func NewManager(st store.Store) *Manager {
	return &Manager{
		store:    st,
		sessions: make(map[uint64]*model.Session),
	}
}

// Register delegates account creation to the store.
func (m *Manager) Register(ctx context.Context, username, password string, role model.Role) error {
	return m.store.RegisterUser(ctx, username, password, role)
}

// Login validates credentials and binds the connection. A second login on
// the same connection replaces its previous binding; other connections of
// the same user are untouched.
func (m *Manager) Login(ctx context.Context, connID uint64, username, password string, role model.Role) (*model.Session, error) {
	ok, err := m.store.ValidateLogin(ctx, username, password, role)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	sess := &model.Session{ConnID: connID, Username: username, Role: role}
	m.mu.Lock()
	m.sessions[connID] = sess
	m.mu.Unlock()

	slog.Info("user logged in", "username", username, "role", role, "conn_id", connID)
	return sess, nil
}

// Logout removes the connection's binding. Returns the removed session, or
// nil when the connection was not logged in. Called explicitly on the logout
// action and implicitly at connection teardown.
func (m *Manager) Logout(connID uint64) *model.Session {
	m.mu.Lock()
	sess := m.sessions[connID]
	delete(m.sessions, connID)
	m.mu.Unlock()

	if sess != nil {
		slog.Info("user logged out", "username", sess.Username, "role", sess.Role, "conn_id", connID)
	}
	return sess
}

// Session returns the binding for a connection, if any.
func (m *Manager) Session(connID uint64) (*model.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[connID]
	return sess, ok
}

// Require returns the session for connID or ErrNotLoggedIn.
func (m *Manager) Require(connID uint64) (*model.Session, error) {
	sess, ok := m.Session(connID)
	if !ok {
		return nil, ErrNotLoggedIn
	}
	return sess, nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
