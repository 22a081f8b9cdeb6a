// Package session tracks whether the user holds a valid session and sends
// them to the login route when it is lost.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/finview/internal/logging"
	"github.com/fyrsmithlabs/finview/internal/projectsvc"
)

// LoginRoute is where an expired session is sent.
const LoginRoute = "/login"

var (
	// ErrResolving is returned by Check while the session is being validated.
	ErrResolving = errors.New("session is still resolving")
	// ErrUnauthenticated is returned by Check when there is no valid session.
	ErrUnauthenticated = errors.New("not authenticated")
)

// Navigator performs redirects. Front ends decide what a route means.
type Navigator interface {
	GoTo(route string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(route string)

// GoTo calls f(route).
func (f NavigatorFunc) GoTo(route string) { f(route) }

// Validator checks the current session with the service.
type Validator interface {
	Validate(ctx context.Context) (projectsvc.User, error)
}

// State is the read side of the gate that views consult before fetching.
type State interface {
	IsAuthenticated() bool
	IsResolving() bool
}

// Check reports why a view may not fetch yet, or nil when it may.
func Check(s State) error {
	switch {
	case s == nil:
		return nil
	case s.IsResolving():
		return ErrResolving
	case !s.IsAuthenticated():
		return ErrUnauthenticated
	default:
		return nil
	}
}

// Gate is the session gate. It starts resolving and settles on Resolve.
type Gate struct {
	validator Validator
	nav       Navigator
	logger    *logging.Logger

	mu            sync.RWMutex
	resolving     bool
	authenticated bool
	redirected    bool
	user          projectsvc.User
	listeners     map[chan struct{}]struct{}
}

// NewGate creates a Gate in the resolving state.
func NewGate(v Validator, nav Navigator, logger *logging.Logger) *Gate {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Gate{
		validator: v,
		nav:       nav,
		logger:    logger.Named("session"),
		resolving: true,
		listeners: make(map[chan struct{}]struct{}),
	}
}

// IsAuthenticated reports whether the last resolution found a valid session
// and no 401 has been seen since.
func (g *Gate) IsAuthenticated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.authenticated
}

// IsResolving reports whether the session is still being validated.
func (g *Gate) IsResolving() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.resolving
}

// User returns the signed-in user, if any.
func (g *Gate) User() (projectsvc.User, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.user, g.authenticated
}

// Resolve validates the session. Only an auth failure redirects; other
// failures leave the gate unauthenticated and are returned.
func (g *Gate) Resolve(ctx context.Context) error {
	g.mu.Lock()
	g.resolving = true
	g.redirected = false
	g.mu.Unlock()

	user, err := g.validator.Validate(ctx)

	g.mu.Lock()
	g.resolving = false
	g.authenticated = err == nil
	g.user = user
	g.mu.Unlock()
	g.broadcast()

	if err != nil {
		if errors.Is(err, projectsvc.ErrAuth) {
			g.logger.Info(ctx, "session invalid, redirecting", zap.String("route", LoginRoute))
			g.redirectOnce()
			return ErrUnauthenticated
		}
		g.logger.Warn(ctx, "session validation failed", zap.Error(err))
		return err
	}
	g.logger.Debug(ctx, "session resolved", zap.String("user", user.Email))
	return nil
}

// Expire drops the session and redirects to the login route. It is wired as
// the Project Service unauthorized hook, so it may run on any goroutine.
// Only the first call after a Resolve redirects.
func (g *Gate) Expire() {
	g.mu.Lock()
	was := g.authenticated
	g.authenticated = false
	g.resolving = false
	g.user = projectsvc.User{}
	g.mu.Unlock()

	if was {
		g.logger.Info(context.Background(), "session expired", zap.String("route", LoginRoute))
	}
	g.broadcast()
	g.redirectOnce()
}

func (g *Gate) redirectOnce() {
	g.mu.Lock()
	done := g.redirected
	g.redirected = true
	g.mu.Unlock()
	if !done {
		g.goTo(LoginRoute)
	}
}

func (g *Gate) goTo(route string) {
	if g.nav != nil {
		g.nav.GoTo(route)
	}
}

// Subscribe returns a channel pinged on every state change.
func (g *Gate) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	g.mu.Lock()
	g.listeners[ch] = struct{}{}
	g.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (g *Gate) Unsubscribe(sub <-chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for ch := range g.listeners {
		if ch == sub {
			delete(g.listeners, ch)
			close(ch)
			return
		}
	}
}

func (g *Gate) broadcast() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for ch := range g.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// RecordingNavigator remembers every route it was sent to.
type RecordingNavigator struct {
	mu     sync.Mutex
	routes []string
}

// GoTo records route.
func (n *RecordingNavigator) GoTo(route string) {
	n.mu.Lock()
	n.routes = append(n.routes, route)
	n.mu.Unlock()
}

// Routes returns the recorded routes in order.
func (n *RecordingNavigator) Routes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.routes...)
}
