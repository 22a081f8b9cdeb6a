// Package deletion implements confirm-then-destroy for projects. One Flow is
// shared by the whole client so at most one confirmation is open at a time.
package deletion

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/finview/internal/logging"
	"github.com/fyrsmithlabs/finview/internal/notify"
	"github.com/fyrsmithlabs/finview/internal/projectsvc"
)

// Messages published by the flow.
const (
	MsgDeleted = "Project deleted successfully!"
	MsgFailed  = "Could not delete the project. Try again."
)

// ErrConfirmationOpen is returned when another deletion awaits confirmation.
var ErrConfirmationOpen = errors.New("a delete confirmation is already open")

// Service deletes projects.
type Service interface {
	Delete(ctx context.Context, id projectsvc.ID) error
}

// Remover drops a project from the local list.
type Remover interface {
	RemoveLocal(id projectsvc.ID) bool
}

// State is a snapshot of the confirmation.
type State struct {
	Target      *projectsvc.Project
	ConfirmOpen bool
	Deleting    bool
}

// Flow drives the delete confirmation.
type Flow struct {
	svc    Service
	store  Remover
	bus    notify.Publisher
	logger *logging.Logger

	mu    sync.Mutex
	state State
	epoch uint64
}

// New creates a Flow with no open confirmation.
func New(svc Service, store Remover, bus notify.Publisher, logger *logging.Logger) *Flow {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Flow{svc: svc, store: store, bus: bus, logger: logger.Named("deletion")}
}

// State returns the current snapshot. Target is a copy.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.state
	if st.Target != nil {
		p := *st.Target
		st.Target = &p
	}
	return st
}

// RequestDelete opens the confirmation for p. No request is made.
func (f *Flow) RequestDelete(p projectsvc.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.ConfirmOpen {
		return ErrConfirmationOpen
	}
	f.epoch++
	f.state = State{Target: &p, ConfirmOpen: true}
	return nil
}

// CancelDelete closes the confirmation. A delete already sent is not recalled,
// but its outcome no longer changes this flow.
func (f *Flow) CancelDelete() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.epoch++
	f.state = State{}
}

// ConfirmDelete sends the delete for the target. On success the project is
// removed locally, the confirmation closes and a success notification is
// published. On failure the confirmation stays open with the same target.
func (f *Flow) ConfirmDelete(ctx context.Context) projectsvc.Result[projectsvc.ID] {
	f.mu.Lock()
	if !f.state.ConfirmOpen || f.state.Target == nil || f.state.Deleting {
		f.mu.Unlock()
		return projectsvc.Ignored[projectsvc.ID]()
	}
	f.state.Deleting = true
	id, epoch := f.state.Target.ID, f.epoch
	f.mu.Unlock()

	ctx = logging.WithProjectID(ctx, id.String())
	f.logger.Debug(ctx, "deleting project")
	err := f.svc.Delete(ctx, id)

	f.mu.Lock()
	live := f.epoch == epoch
	switch {
	case !live:
	case err == nil, errors.Is(err, projectsvc.ErrAuth):
		f.epoch++
		f.state = State{}
	default:
		f.state.Deleting = false
	}
	f.mu.Unlock()

	if err != nil {
		if errors.Is(err, projectsvc.ErrAuth) {
			return projectsvc.Fail[projectsvc.ID](projectsvc.KindAuth, "")
		}
		f.logger.Warn(ctx, "project delete failed", zap.Error(err))
		if live {
			notify.Error(f.bus, projectsvc.UserMessage(err, MsgFailed))
		}
		return projectsvc.FailFrom[projectsvc.ID](err, MsgFailed)
	}

	// The server destroyed the project; the local list follows even if the
	// confirmation was cancelled meanwhile.
	f.store.RemoveLocal(id)
	f.logger.Info(ctx, "project deleted")
	if !live {
		return projectsvc.Ignored[projectsvc.ID]()
	}
	notify.Success(f.bus, MsgDeleted)
	return projectsvc.Ok(id)
}
