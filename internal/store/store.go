// Package store holds the client's copy of the project list.
//
// The list changes in two ways only: Refresh replaces it with a fresh fetch,
// and RemoveLocal drops one entry after the server confirmed a delete.
package store

import (
	"context"
	"errors"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/finview/internal/logging"
	"github.com/fyrsmithlabs/finview/internal/notify"
	"github.com/fyrsmithlabs/finview/internal/projectsvc"
	"github.com/fyrsmithlabs/finview/internal/session"
)

// RefreshFailedMessage is shown when the list could not be fetched.
const RefreshFailedMessage = "Could not load your projects. Please try again."

// Lister fetches the full project list.
type Lister interface {
	ListProjects(ctx context.Context) ([]projectsvc.Project, error)
}

// Store is the Project Store.
type Store struct {
	lister Lister
	bus    notify.Publisher
	gate   session.State
	logger *logging.Logger

	mu        sync.RWMutex
	projects  []projectsvc.Project
	loaded    bool
	listeners map[chan struct{}]struct{}

	// refreshMu serialises fetches so an older response never overwrites a newer one.
	refreshMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithGate makes Refresh wait for a resolved, authenticated session.
func WithGate(g session.State) Option {
	return func(s *Store) { s.gate = g }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l.Named("store")
		}
	}
}

// New creates an empty Store.
func New(lister Lister, bus notify.Publisher, opts ...Option) *Store {
	s := &Store{
		lister:    lister,
		bus:       bus,
		logger:    logging.NewNop(),
		listeners: make(map[chan struct{}]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh fetches the list and replaces local state. On failure the previous
// list is kept and an error notification is published, except for auth
// failures which belong to the session gate.
func (s *Store) Refresh(ctx context.Context) error {
	if err := session.Check(s.gate); err != nil {
		return err
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	projects, err := s.lister.ListProjects(ctx)
	if err != nil {
		if !errors.Is(err, projectsvc.ErrAuth) {
			s.logger.Warn(ctx, "project list refresh failed, keeping previous list", zap.Error(err))
			notify.Error(s.bus, RefreshFailedMessage)
		}
		return err
	}

	s.mu.Lock()
	s.projects = slices.Clone(projects)
	s.loaded = true
	s.mu.Unlock()
	s.logger.Debug(ctx, "project list refreshed", zap.Int("count", len(projects)))
	s.broadcast()
	return nil
}

// RemoveLocal drops the entry with id. It reports whether one was removed.
func (s *Store) RemoveLocal(id projectsvc.ID) bool {
	s.mu.Lock()
	i := slices.IndexFunc(s.projects, func(p projectsvc.Project) bool { return p.ID == id })
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.projects = slices.Delete(s.projects, i, i+1)
	s.mu.Unlock()
	s.broadcast()
	return true
}

// Projects returns a copy of the list in server order.
func (s *Store) Projects() []projectsvc.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.projects)
}

// Loaded reports whether any Refresh has succeeded.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Get looks a project up by id.
func (s *Store) Get(id projectsvc.ID) (projectsvc.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.projects {
		if p.ID == id {
			return p, true
		}
	}
	return projectsvc.Project{}, false
}

// Current is the dashboard's default project: the last one listed.
func (s *Store) Current() (projectsvc.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.projects) == 0 {
		return projectsvc.Project{}, false
	}
	return s.projects[len(s.projects)-1], true
}

// Subscribe returns a channel pinged whenever the list changes.
// The caller must call Unsubscribe when done.
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.listeners[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (s *Store) Unsubscribe(sub <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.listeners {
		if ch == sub {
			delete(s.listeners, ch)
			close(ch)
			return
		}
	}
}

func (s *Store) broadcast() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.listeners {
		select {
		case ch <- struct{}{}:
		default:
			// Listener already has a pending ping.
		}
	}
}
