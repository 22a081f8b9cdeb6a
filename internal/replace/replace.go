// Package replace implements the file-replace modal: send a newer spreadsheet
// for an existing project, keeping its mapping.
package replace

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/finview/internal/logging"
	"github.com/fyrsmithlabs/finview/internal/notify"
	"github.com/fyrsmithlabs/finview/internal/projectsvc"
)

// Messages shown by the modal.
const (
	MsgFileRequired = "Please select a file."
	MsgFailed       = "Could not update the file. Check that it is a valid spreadsheet."
	MsgReplaced     = "File updated successfully!"
)

// Service is the part of the Project Service this flow calls.
type Service interface {
	ReplaceFile(ctx context.Context, id projectsvc.ID, file projectsvc.File) error
}

// Refresher reloads the project list.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// State is a snapshot of the modal.
type State struct {
	Open      bool
	ProjectID projectsvc.ID
	File      projectsvc.File
	Loading   bool
	Err       string
}

// Flow drives the replace modal.
type Flow struct {
	svc    Service
	store  Refresher
	bus    notify.Publisher
	logger *logging.Logger

	mu    sync.Mutex
	state State
	epoch uint64
}

// New creates a closed modal.
func New(svc Service, store Refresher, bus notify.Publisher, logger *logging.Logger) *Flow {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Flow{svc: svc, store: store, bus: bus, logger: logger.Named("replace")}
}

// State returns the current snapshot.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Open shows the modal for project id.
func (f *Flow) Open(id projectsvc.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.epoch++
	f.state = State{Open: true, ProjectID: id}
}

// Close hides the modal and forgets the file and error. A response still in
// flight is discarded.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.epoch++
	f.state = State{}
}

// SelectFile sets the file. Unsupported extensions are rejected inline.
func (f *Flow) SelectFile(file projectsvc.File) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.state.Open || f.state.Loading {
		return
	}
	f.state.File, f.state.Err = file, ""
	if file != nil {
		if err := projectsvc.CheckExtension(file.Name(), projectsvc.ReplaceExtensions); err != nil {
			f.state.File, f.state.Err = nil, err.Error()
		}
	}
}

// ClearFile removes the selected file.
func (f *Flow) ClearFile() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.state.Open || f.state.Loading {
		return
	}
	f.state.File, f.state.Err = nil, ""
}

// SubmitReplace sends file for project id. On success the store is refreshed,
// a success notification published and the modal closed. On failure the modal
// stays open with an inline error and the store is not touched. A success
// that lands after Close still refreshes the store but notifies nobody.
func (f *Flow) SubmitReplace(ctx context.Context, id projectsvc.ID, file projectsvc.File) projectsvc.Result[projectsvc.ID] {
	f.mu.Lock()
	if !f.state.Open || f.state.Loading {
		f.mu.Unlock()
		return projectsvc.Ignored[projectsvc.ID]()
	}
	if id != "" {
		f.state.ProjectID = id
	}
	f.state.File, f.state.Err = file, ""
	if file == nil {
		f.state.Err = MsgFileRequired
		f.mu.Unlock()
		return projectsvc.Fail[projectsvc.ID](projectsvc.KindValidation, MsgFileRequired)
	}
	if err := projectsvc.CheckExtension(file.Name(), projectsvc.ReplaceExtensions); err != nil {
		f.state.File, f.state.Err = nil, err.Error()
		f.mu.Unlock()
		return projectsvc.Fail[projectsvc.ID](projectsvc.KindValidation, err.Error())
	}
	f.state.Loading = true
	target, epoch := f.state.ProjectID, f.epoch
	f.mu.Unlock()

	ctx = logging.WithProjectID(ctx, target.String())
	f.logger.Debug(ctx, "replacing project file", zap.String("file", file.Name()))
	err := f.svc.ReplaceFile(ctx, target, file)

	f.mu.Lock()
	if f.epoch != epoch {
		f.mu.Unlock()
		f.logger.Debug(ctx, "replace finished after modal closed", zap.Bool("ok", err == nil))
		if err == nil && f.store != nil {
			// The file changed on the server even though nobody is watching.
			_ = f.store.Refresh(ctx)
		}
		return projectsvc.Ignored[projectsvc.ID]()
	}
	if err != nil {
		if errors.Is(err, projectsvc.ErrAuth) {
			f.epoch++
			f.state = State{}
			f.mu.Unlock()
			return projectsvc.Fail[projectsvc.ID](projectsvc.KindAuth, "")
		}
		msg := projectsvc.UserMessage(err, MsgFailed)
		f.state.Loading, f.state.Err = false, msg
		f.mu.Unlock()
		f.logger.Warn(ctx, "project file replace failed", zap.Error(err))
		return projectsvc.FailFrom[projectsvc.ID](err, MsgFailed)
	}
	f.epoch++
	f.state = State{}
	f.mu.Unlock()

	f.logger.Info(ctx, "project file replaced")
	if f.store != nil {
		_ = f.store.Refresh(ctx)
	}
	notify.Success(f.bus, MsgReplaced)
	return projectsvc.Ok(target)
}
