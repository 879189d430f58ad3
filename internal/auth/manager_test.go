package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/playhub/internal/model"
	"github.com/udisondev/playhub/internal/store/jsonstore"
)

func newManagerT(t *testing.T) *Manager {
	t.Helper()
	st, err := jsonstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewManager(st)
}

func TestLoginBindsConnection(t *testing.T) {
	m := newManagerT(t)
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "alice", "pw", model.RoleDeveloper))

	sess, err := m.Login(ctx, 1, "alice", "pw", model.RoleDeveloper)
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.Username)
	assert.Equal(t, model.RoleDeveloper, sess.Role)

	got, err := m.Require(1)
	require.NoError(t, err)
	assert.Equal(t, sess, got)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	m := newManagerT(t)
	ctx := context.Background()
	require.NoError(t, m.Register(ctx, "alice", "pw", model.RoleDeveloper))

	_, err := m.Login(ctx, 1, "alice", "wrong", model.RoleDeveloper)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = m.Login(ctx, 1, "alice", "pw", model.RolePlayer)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = m.Require(1)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestRelogingReplacesBinding(t *testing.T) {
	m := newManagerT(t)
	ctx := context.Background()
	require.NoError(t, m.Register(ctx, "alice", "pw", model.RolePlayer))
	require.NoError(t, m.Register(ctx, "bob", "pw", model.RolePlayer))

	_, err := m.Login(ctx, 1, "alice", "pw", model.RolePlayer)
	require.NoError(t, err)
	_, err = m.Login(ctx, 1, "bob", "pw", model.RolePlayer)
	require.NoError(t, err)

	sess, err := m.Require(1)
	require.NoError(t, err)
	assert.Equal(t, "bob", sess.Username)
	assert.Equal(t, 1, m.Count())
}

func TestSameUserOnTwoConnections(t *testing.T) {
	m := newManagerT(t)
	ctx := context.Background()
	require.NoError(t, m.Register(ctx, "alice", "pw", model.RolePlayer))

	_, err := m.Login(ctx, 1, "alice", "pw", model.RolePlayer)
	require.NoError(t, err)
	_, err = m.Login(ctx, 2, "alice", "pw", model.RolePlayer)
	require.NoError(t, err)

	// No single-session invariant: both connections stay bound.
	_, err = m.Require(1)
	assert.NoError(t, err)
	_, err = m.Require(2)
	assert.NoError(t, err)
	assert.Equal(t, 2, m.Count())
}

func TestLogout(t *testing.T) {
	m := newManagerT(t)
	ctx := context.Background()
	require.NoError(t, m.Register(ctx, "alice", "pw", model.RolePlayer))

	_, err := m.Login(ctx, 1, "alice", "pw", model.RolePlayer)
	require.NoError(t, err)

	removed := m.Logout(1)
	require.NotNil(t, removed)
	assert.Equal(t, "alice", removed.Username)

	assert.Nil(t, m.Logout(1), "second logout is a no-op")
	_, err = m.Require(1)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}
