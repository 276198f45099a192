package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roadrunner-plugins/mcp-bridge/internal/registry"
)

func TestNewRejectsRemoteWithoutToken(t *testing.T) {
	t.Parallel()
	reg := registry.New(zap.NewNop())

	_, err := New("remote", reg, "")
	assert.Error(t, err)
}

func TestNewAcceptsRemoteWithToken(t *testing.T) {
	t.Parallel()
	reg := registry.New(zap.NewNop())

	s, err := New("remote", reg, "secret")
	require.NoError(t, err)
	assert.Equal(t, "remote", s.Name())
	assert.True(t, s.AllowMultipleConnections())
}

func TestNewDefaultsToLocal(t *testing.T) {
	t.Parallel()
	reg := registry.New(zap.NewNop())

	s, err := New("", reg, "")
	require.NoError(t, err)
	assert.Equal(t, "local", s.Name())
	assert.False(t, s.AllowMultipleConnections())
}

func TestNewRejectsUnknownMode(t *testing.T) {
	t.Parallel()
	reg := registry.New(zap.NewNop())

	_, err := New("bogus", reg, "")
	assert.Error(t, err)
}

func TestLocalAdmitEvictsOthers(t *testing.T) {
	t.Parallel()
	reg := registry.New(zap.NewNop())
	s, err := New("local", reg, "")
	require.NoError(t, err)

	var evicted []string
	s.Admit(registry.McpServerHub, "c1", "", func(id string) { evicted = append(evicted, id) })
	s.Admit(registry.McpServerHub, "c2", "", func(id string) { evicted = append(evicted, id) })

	assert.Equal(t, []string{"c1"}, evicted)
	assert.Equal(t, 1, reg.Count(registry.McpServerHub))
}

func TestLocalShouldNotifySessionBroadcasts(t *testing.T) {
	t.Parallel()
	reg := registry.New(zap.NewNop())
	s, err := New("local", reg, "")
	require.NoError(t, err)

	assert.True(t, s.ShouldNotifySession(registry.McpServerHub, "any-source", "any-session-token"))
}

func TestRemoteAdmitAllowsMultiple(t *testing.T) {
	t.Parallel()
	reg := registry.New(zap.NewNop())
	s, err := New("remote", reg, "shared")
	require.NoError(t, err)

	s.Admit(registry.McpServerHub, "c1", "tok-a", nil)
	s.Admit(registry.McpServerHub, "c2", "tok-b", nil)

	assert.Equal(t, 2, reg.Count(registry.McpServerHub))
}

func TestRemoteResolveConnectionIDPrefersTokenMatch(t *testing.T) {
	t.Parallel()
	reg := registry.New(zap.NewNop())
	s, err := New("remote", reg, "shared")
	require.NoError(t, err)

	s.Admit(registry.McpServerHub, "c1", "tok-a", nil)
	s.Admit(registry.McpServerHub, "c2", "tok-b", nil)

	id, ok := s.ResolveConnectionID(registry.McpServerHub, "tok-b", 0)
	require.True(t, ok)
	assert.Equal(t, "c2", id)
}

func TestRemoteShouldNotifySessionScopesByToken(t *testing.T) {
	t.Parallel()
	reg := registry.New(zap.NewNop())
	s, err := New("remote", reg, "shared")
	require.NoError(t, err)

	s.Admit(registry.McpServerHub, "c1", "tok-a", nil)

	assert.True(t, s.ShouldNotifySession(registry.McpServerHub, "c1", "tok-a"))
	assert.False(t, s.ShouldNotifySession(registry.McpServerHub, "c1", "tok-b"))
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	reg := registry.New(zap.NewNop())
	s, err := New("remote", reg, "shared")
	require.NoError(t, err)

	assert.True(t, s.Authenticate("secret", "secret"))
	assert.False(t, s.Authenticate("secret", "wrong"))
	assert.True(t, s.Authenticate("", "anything"), "no configured token means pass-through auth")
}
