package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/finview/internal/logging"
	"github.com/fyrsmithlabs/finview/internal/projectsvc"
)

type fakeValidator struct {
	user projectsvc.User
	err  error
}

func (f fakeValidator) Validate(context.Context) (projectsvc.User, error) { return f.user, f.err }

func TestGate_StartsResolving(t *testing.T) {
	g := NewGate(fakeValidator{}, nil, nil)
	assert.True(t, g.IsResolving())
	assert.False(t, g.IsAuthenticated())
	assert.ErrorIs(t, Check(g), ErrResolving)
}

func TestGate_ResolveSuccess(t *testing.T) {
	nav := &RecordingNavigator{}
	g := NewGate(fakeValidator{user: projectsvc.User{ID: "1", Email: "a@b.c"}}, nav, nil)

	require.NoError(t, g.Resolve(context.Background()))
	assert.False(t, g.IsResolving())
	assert.True(t, g.IsAuthenticated())
	u, ok := g.User()
	assert.True(t, ok)
	assert.Equal(t, "a@b.c", u.Email)
	assert.NoError(t, Check(g))
	assert.Empty(t, nav.Routes())
}

func TestGate_ResolveUnauthorizedRedirects(t *testing.T) {
	nav := &RecordingNavigator{}
	g := NewGate(fakeValidator{err: &projectsvc.Error{Kind: projectsvc.KindAuth, Status: 401}}, nav, nil)

	err := g.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.False(t, g.IsAuthenticated())
	assert.Equal(t, []string{LoginRoute}, nav.Routes())
	assert.ErrorIs(t, Check(g), ErrUnauthenticated)
}

func TestGate_ResolveNetworkFailureDoesNotRedirect(t *testing.T) {
	nav := &RecordingNavigator{}
	g := NewGate(fakeValidator{err: errors.New("connection refused")}, nav, nil)

	err := g.Resolve(context.Background())
	assert.Error(t, err)
	assert.False(t, g.IsResolving())
	assert.False(t, g.IsAuthenticated())
	assert.Empty(t, nav.Routes())
}

func TestGate_ExpireRedirectsAndNotifies(t *testing.T) {
	nav := &RecordingNavigator{}
	log := logging.NewTestLogger()
	g := NewGate(fakeValidator{}, nav, log.Logger)
	require.NoError(t, g.Resolve(context.Background()))

	ch := g.Subscribe()
	defer g.Unsubscribe(ch)

	g.Expire()
	assert.False(t, g.IsAuthenticated())
	assert.Equal(t, []string{LoginRoute}, nav.Routes())
	select {
	case <-ch:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no state change ping")
	}
	log.AssertLogged(t, zapcore.InfoLevel, "session expired")
}

func TestGate_ExpireFromClientHook(t *testing.T) {
	nav := &RecordingNavigator{}
	g := NewGate(fakeValidator{}, nav, nil)
	require.NoError(t, g.Resolve(context.Background()))

	var hook func() = g.Expire
	go hook()

	assert.Eventually(t, func() bool { return !g.IsAuthenticated() }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return len(nav.Routes()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestGate_RedirectsOncePerSession(t *testing.T) {
	nav := &RecordingNavigator{}
	g := NewGate(fakeValidator{}, nav, nil)
	require.NoError(t, g.Resolve(context.Background()))

	g.Expire()
	g.Expire()
	assert.Equal(t, []string{LoginRoute}, nav.Routes())

	t.Run("a new resolution rearms the redirect", func(t *testing.T) {
		require.NoError(t, g.Resolve(context.Background()))
		g.Expire()
		assert.Equal(t, []string{LoginRoute, LoginRoute}, nav.Routes())
	})
}

func TestGate_ResolveUnauthorizedWithHookRedirectsOnce(t *testing.T) {
	nav := &RecordingNavigator{}
	var g *Gate
	v := validatorFunc(func(context.Context) (projectsvc.User, error) {
		g.Expire()
		return projectsvc.User{}, &projectsvc.Error{Kind: projectsvc.KindAuth, Status: 401}
	})
	g = NewGate(v, nav, nil)

	assert.ErrorIs(t, g.Resolve(context.Background()), ErrUnauthenticated)
	assert.Equal(t, []string{LoginRoute}, nav.Routes())
}

type validatorFunc func(context.Context) (projectsvc.User, error)

func (f validatorFunc) Validate(ctx context.Context) (projectsvc.User, error) { return f(ctx) }

func TestNavigatorFunc(t *testing.T) {
	var got string
	NavigatorFunc(func(r string) { got = r }).GoTo("/x")
	assert.Equal(t, "/x", got)
}

func TestCheck_NilState(t *testing.T) {
	assert.NoError(t, Check(nil))
}
