// Package wizard implements the two-step project creation flow: upload a
// spreadsheet, then map its columns.
//
// States and events are closed sets. Transition is pure; Controller owns the
// current state, issues the requests Transition asks for and feeds their
// outcomes back as events.
package wizard

import (
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/finview/internal/projectsvc"
)

// Defaults for a fresh mapping form.
const (
	DefaultSheet    = "Planilha1"
	DefaultStartRow = "2"
)

// Messages shown in the form.
const (
	MsgNameAndFileRequired = "Enter a project name and choose a file."
	MsgUploadFailed        = "Could not upload the file. Check your connection and try again."
	MsgSheetRequired       = "Enter the sheet name."
	MsgColumnRequired      = "Enter the value column."
	MsgStartRowInvalid     = "The start row must be a whole number greater than zero."
	MsgMappingFailed       = "Could not save the configuration. Try again."
	MsgCreated             = "Project created successfully!"
)

// State is one of Idle, CollectingFile or ConfiguringMapping.
type State interface {
	isState()
}

// Idle is the closed wizard.
type Idle struct{}

// CollectingFile is step one: name and file.
type CollectingFile struct {
	Session uint64
	Name    string
	File    projectsvc.File
	Loading bool
	Err     string
}

// ConfiguringMapping is step two. ProjectID is set by the upload and never
// changes for the rest of the session.
type ConfiguringMapping struct {
	Session     uint64
	ProjectName string
	ProjectID   projectsvc.ID
	Draft       MappingDraft
	Loading     bool
	Err         string
}

func (Idle) isState()               {}
func (CollectingFile) isState()     {}
func (ConfiguringMapping) isState() {}

// MappingDraft is the mapping form as typed. StartRow stays a string until
// submit so bad input can be reported instead of coerced.
type MappingDraft struct {
	Sheet      string
	Column     string
	DateColumn string
	StartRow   string
}

// DefaultDraft returns the form's initial values.
func DefaultDraft() MappingDraft {
	return MappingDraft{Sheet: DefaultSheet, StartRow: DefaultStartRow}
}

// Settings validates the draft and converts it to wire settings.
func (d MappingDraft) Settings() (projectsvc.Settings, error) {
	const op = "mapping"
	sheet := strings.TrimSpace(d.Sheet)
	column := strings.TrimSpace(d.Column)
	if sheet == "" {
		return projectsvc.Settings{}, projectsvc.NewValidationError(op, MsgSheetRequired)
	}
	if column == "" {
		return projectsvc.Settings{}, projectsvc.NewValidationError(op, MsgColumnRequired)
	}
	line, err := strconv.Atoi(strings.TrimSpace(d.StartRow))
	if err != nil || line < 1 {
		return projectsvc.Settings{}, projectsvc.NewValidationError(op, MsgStartRowInvalid)
	}
	return projectsvc.Settings{
		Sheet:      sheet,
		Column:     column,
		DateColumn: strings.TrimSpace(d.DateColumn),
		Line:       line,
	}, nil
}

// Event is an input to Transition.
type Event interface {
	isEvent()
}

type (
	// Opened starts a new session with a fresh liveness token.
	Opened struct{ Session uint64 }
	// NameEdited replaces the project name.
	NameEdited struct{ Name string }
	// FileSelected replaces the chosen file.
	FileSelected struct{ File projectsvc.File }
	// FileCleared removes the chosen file.
	FileCleared struct{}
	// UploadSubmitted asks to send step one.
	UploadSubmitted struct{}
	// UploadSucceeded is the upload response.
	UploadSucceeded struct {
		Session uint64
		ID      projectsvc.ID
	}
	// UploadFailed is a failed upload.
	UploadFailed struct {
		Session uint64
		Message string
	}
	// MappingEdited replaces the mapping draft.
	MappingEdited struct{ Draft MappingDraft }
	// MappingSubmitted asks to send step two.
	MappingSubmitted struct{}
	// MappingSucceeded is the settings response.
	MappingSucceeded struct{ Session uint64 }
	// MappingFailed is a failed settings call.
	MappingFailed struct {
		Session uint64
		Message string
	}
	// Closed cancels the wizard from any step.
	Closed struct{}
)

func (Opened) isEvent()           {}
func (NameEdited) isEvent()       {}
func (FileSelected) isEvent()     {}
func (FileCleared) isEvent()      {}
func (UploadSubmitted) isEvent()  {}
func (UploadSucceeded) isEvent()  {}
func (UploadFailed) isEvent()     {}
func (MappingEdited) isEvent()    {}
func (MappingSubmitted) isEvent() {}
func (MappingSucceeded) isEvent() {}
func (MappingFailed) isEvent()    {}
func (Closed) isEvent()           {}

// Effect is work Transition asks the controller to perform.
type Effect interface {
	isEffect()
}

type (
	// StartUpload sends step one.
	StartUpload struct {
		Session uint64
		Name    string
		File    projectsvc.File
	}
	// StartMapping sends step two for the retained project id.
	StartMapping struct {
		Session   uint64
		ProjectID projectsvc.ID
		Settings  projectsvc.Settings
	}
	// Completed means the project is configured: refresh and notify.
	Completed struct{ ProjectID projectsvc.ID }
)

func (StartUpload) isEffect()  {}
func (StartMapping) isEffect() {}
func (Completed) isEffect()    {}

// Transition computes the next state for e. It never performs I/O. Events
// that do not apply to the current state, and completions whose session does
// not match, leave the state unchanged and return no effect.
func Transition(s State, e Event) (State, Effect) {
	if _, ok := e.(Closed); ok {
		return Idle{}, nil
	}
	switch st := s.(type) {
	case Idle:
		if o, ok := e.(Opened); ok {
			return CollectingFile{Session: o.Session}, nil
		}
		return st, nil
	case CollectingFile:
		return collectingFile(st, e)
	case ConfiguringMapping:
		return configuringMapping(st, e)
	}
	return s, nil
}

func collectingFile(st CollectingFile, e Event) (State, Effect) {
	switch ev := e.(type) {
	case NameEdited:
		if st.Loading {
			return st, nil
		}
		st.Name, st.Err = ev.Name, ""
		return st, nil
	case FileSelected:
		if st.Loading {
			return st, nil
		}
		st.File, st.Err = ev.File, ""
		if ev.File != nil {
			if err := projectsvc.CheckExtension(ev.File.Name(), projectsvc.CreateExtensions); err != nil {
				st.File, st.Err = nil, err.Error()
			}
		}
		return st, nil
	case FileCleared:
		if st.Loading {
			return st, nil
		}
		st.File, st.Err = nil, ""
		return st, nil
	case UploadSubmitted:
		if st.Loading {
			return st, nil
		}
		if strings.TrimSpace(st.Name) == "" || st.File == nil {
			st.Err = MsgNameAndFileRequired
			return st, nil
		}
		st.Loading, st.Err = true, ""
		return st, StartUpload{Session: st.Session, Name: strings.TrimSpace(st.Name), File: st.File}
	case UploadSucceeded:
		if ev.Session != st.Session || !st.Loading {
			return st, nil
		}
		return ConfiguringMapping{
			Session:     st.Session,
			ProjectName: strings.TrimSpace(st.Name),
			ProjectID:   ev.ID,
			Draft:       DefaultDraft(),
		}, nil
	case UploadFailed:
		if ev.Session != st.Session || !st.Loading {
			return st, nil
		}
		st.Loading, st.Err = false, ev.Message
		return st, nil
	}
	return st, nil
}

func configuringMapping(st ConfiguringMapping, e Event) (State, Effect) {
	switch ev := e.(type) {
	case MappingEdited:
		if st.Loading {
			return st, nil
		}
		st.Draft, st.Err = ev.Draft, ""
		return st, nil
	case MappingSubmitted:
		if st.Loading {
			return st, nil
		}
		settings, err := st.Draft.Settings()
		if err != nil {
			st.Err = projectsvc.UserMessage(err, MsgMappingFailed)
			return st, nil
		}
		st.Loading, st.Err = true, ""
		return st, StartMapping{Session: st.Session, ProjectID: st.ProjectID, Settings: settings}
	case MappingSucceeded:
		if ev.Session != st.Session || !st.Loading {
			return st, nil
		}
		return Idle{}, Completed{ProjectID: st.ProjectID}
	case MappingFailed:
		if ev.Session != st.Session || !st.Loading {
			return st, nil
		}
		st.Loading, st.Err = false, ev.Message
		return st, nil
	}
	return st, nil
}
