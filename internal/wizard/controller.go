package wizard

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/finview/internal/logging"
	"github.com/fyrsmithlabs/finview/internal/notify"
	"github.com/fyrsmithlabs/finview/internal/projectsvc"
)

// Service is the part of the Project Service the wizard calls.
type Service interface {
	Upload(ctx context.Context, name string, file projectsvc.File) (projectsvc.Project, error)
	UpdateSettings(ctx context.Context, id projectsvc.ID, s projectsvc.Settings) error
}

// Refresher reloads the project list.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Controller drives one wizard. It is safe for concurrent use; requests run
// without holding the lock so Close can interrupt a pending step.
type Controller struct {
	svc    Service
	store  Refresher
	bus    notify.Publisher
	logger *logging.Logger

	mu      sync.Mutex
	state   State
	session uint64
}

// NewController creates a closed wizard.
func NewController(svc Service, store Refresher, bus notify.Publisher, logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Controller{
		svc:    svc,
		store:  store,
		bus:    bus,
		logger: logger.Named("wizard"),
		state:  Idle{},
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open starts a new session. An open wizard is left as is.
func (c *Controller) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.state.(Idle); !ok {
		return
	}
	c.session++
	c.state, _ = Transition(c.state, Opened{Session: c.session})
}

// Close cancels the wizard from any step. Responses still in flight are
// discarded when they arrive.
func (c *Controller) Close() {
	c.mu.Lock()
	prev := c.state
	c.state, _ = Transition(c.state, Closed{})
	c.mu.Unlock()

	if st, ok := prev.(ConfiguringMapping); ok {
		c.logger.Warn(logging.WithProjectID(context.Background(), st.ProjectID.String()),
			"wizard closed before mapping, project left unconfigured",
			zap.String("project_name", st.ProjectName))
	}
}

// EditName sets the project name.
func (c *Controller) EditName(name string) { c.apply(NameEdited{Name: name}) }

// SelectFile sets the file. Unsupported extensions are rejected inline.
func (c *Controller) SelectFile(f projectsvc.File) { c.apply(FileSelected{File: f}) }

// ClearFile removes the selected file.
func (c *Controller) ClearFile() { c.apply(FileCleared{}) }

// EditMapping replaces the mapping draft.
func (c *Controller) EditMapping(d MappingDraft) { c.apply(MappingEdited{Draft: d}) }

func (c *Controller) apply(e Event) Effect {
	c.mu.Lock()
	defer c.mu.Unlock()
	var eff Effect
	c.state, eff = Transition(c.state, e)
	return eff
}

// SubmitUpload fills step one with name and file and sends it. On success it
// returns the new project id and the wizard moves to the mapping step.
func (c *Controller) SubmitUpload(ctx context.Context, name string, file projectsvc.File) projectsvc.Result[projectsvc.ID] {
	c.mu.Lock()
	st, ok := c.state.(CollectingFile)
	if !ok || st.Loading {
		c.mu.Unlock()
		return projectsvc.Ignored[projectsvc.ID]()
	}
	c.state, _ = Transition(c.state, NameEdited{Name: name})
	c.state, _ = Transition(c.state, FileSelected{File: file})
	var eff Effect
	c.state, eff = Transition(c.state, UploadSubmitted{})
	after := c.state
	c.mu.Unlock()

	start, ok := eff.(StartUpload)
	if !ok {
		if cf, isCF := after.(CollectingFile); isCF && cf.Err != "" {
			return projectsvc.Fail[projectsvc.ID](projectsvc.KindValidation, cf.Err)
		}
		return projectsvc.Ignored[projectsvc.ID]()
	}

	c.logger.Debug(ctx, "uploading project", zap.String("file", start.File.Name()))
	project, err := c.svc.Upload(ctx, start.Name, start.File)
	if err != nil {
		return c.uploadFailed(ctx, start.Session, err)
	}

	c.mu.Lock()
	var next State
	next, _ = Transition(c.state, UploadSucceeded{Session: start.Session, ID: project.ID})
	applied := isConfiguring(next, start.Session)
	c.state = next
	c.mu.Unlock()

	pctx := logging.WithProjectID(ctx, project.ID.String())
	if !applied {
		c.logger.Warn(pctx, "upload finished after wizard closed, project left unconfigured",
			zap.String("project_name", start.Name))
		return projectsvc.Ignored[projectsvc.ID]()
	}
	c.logger.Info(pctx, "project uploaded, awaiting mapping")
	return projectsvc.Ok(project.ID)
}

func (c *Controller) uploadFailed(ctx context.Context, session uint64, err error) projectsvc.Result[projectsvc.ID] {
	if errors.Is(err, projectsvc.ErrAuth) {
		c.resetOnAuth(session)
		return projectsvc.Fail[projectsvc.ID](projectsvc.KindAuth, "")
	}
	msg := projectsvc.UserMessage(err, MsgUploadFailed)
	c.mu.Lock()
	before := c.state
	c.state, _ = Transition(c.state, UploadFailed{Session: session, Message: msg})
	live := sameSession(before, session)
	c.mu.Unlock()
	if !live {
		return projectsvc.Ignored[projectsvc.ID]()
	}
	c.logger.Warn(ctx, "project upload failed", zap.Error(err))
	return projectsvc.FailFrom[projectsvc.ID](err, MsgUploadFailed)
}

// SubmitMapping sends step two for the project id retained from the upload.
// On success the wizard closes, the store is refreshed and one success
// notification is published. When the wizard was closed meanwhile only the
// store refresh happens.
func (c *Controller) SubmitMapping(ctx context.Context, draft MappingDraft) projectsvc.Result[projectsvc.ID] {
	c.mu.Lock()
	st, ok := c.state.(ConfiguringMapping)
	if !ok || st.Loading {
		c.mu.Unlock()
		return projectsvc.Ignored[projectsvc.ID]()
	}
	c.state, _ = Transition(c.state, MappingEdited{Draft: draft})
	var eff Effect
	c.state, eff = Transition(c.state, MappingSubmitted{})
	after := c.state
	c.mu.Unlock()

	start, ok := eff.(StartMapping)
	if !ok {
		if cm, isCM := after.(ConfiguringMapping); isCM && cm.Err != "" {
			return projectsvc.Fail[projectsvc.ID](projectsvc.KindValidation, cm.Err)
		}
		return projectsvc.Ignored[projectsvc.ID]()
	}

	pctx := logging.WithProjectID(ctx, start.ProjectID.String())
	c.logger.Debug(pctx, "saving project mapping",
		zap.String("sheet", start.Settings.Sheet), zap.String("column", start.Settings.Column))
	err := c.svc.UpdateSettings(ctx, start.ProjectID, start.Settings)
	if err != nil {
		if errors.Is(err, projectsvc.ErrAuth) {
			c.resetOnAuth(start.Session)
			return projectsvc.Fail[projectsvc.ID](projectsvc.KindAuth, "")
		}
		msg := projectsvc.UserMessage(err, MsgMappingFailed)
		c.mu.Lock()
		before := c.state
		c.state, _ = Transition(c.state, MappingFailed{Session: start.Session, Message: msg})
		live := sameSession(before, start.Session)
		c.mu.Unlock()
		if !live {
			return projectsvc.Ignored[projectsvc.ID]()
		}
		c.logger.Warn(pctx, "project mapping failed", zap.Error(err))
		return projectsvc.FailFrom[projectsvc.ID](err, MsgMappingFailed)
	}

	c.mu.Lock()
	var done Effect
	c.state, done = Transition(c.state, MappingSucceeded{Session: start.Session})
	c.mu.Unlock()
	if _, ok := done.(Completed); !ok {
		c.logger.Debug(pctx, "mapping saved after wizard closed")
		if c.store != nil {
			_ = c.store.Refresh(ctx)
		}
		return projectsvc.Ignored[projectsvc.ID]()
	}

	c.logger.Info(pctx, "project configured")
	if c.store != nil {
		// Refresh reports its own failures.
		_ = c.store.Refresh(ctx)
	}
	notify.Success(c.bus, MsgCreated)
	return projectsvc.Ok(start.ProjectID)
}

// resetOnAuth closes the wizard when the session ended under it. The gate
// has already redirected.
func (c *Controller) resetOnAuth(session uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sameSession(c.state, session) {
		c.state = Idle{}
	}
}

func sameSession(s State, session uint64) bool {
	switch st := s.(type) {
	case CollectingFile:
		return st.Session == session
	case ConfiguringMapping:
		return st.Session == session
	}
	return false
}

func isConfiguring(s State, session uint64) bool {
	st, ok := s.(ConfiguringMapping)
	return ok && st.Session == session
}
