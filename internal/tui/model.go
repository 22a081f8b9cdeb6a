// Package tui is the interactive terminal front end: the project list, the
// creation wizard, the replace and delete modals and the analysis view.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fyrsmithlabs/finview/internal/deletion"
	"github.com/fyrsmithlabs/finview/internal/notify"
	"github.com/fyrsmithlabs/finview/internal/projectsvc"
	"github.com/fyrsmithlabs/finview/internal/replace"
	"github.com/fyrsmithlabs/finview/internal/session"
	"github.com/fyrsmithlabs/finview/internal/store"
	"github.com/fyrsmithlabs/finview/internal/wizard"
)

const (
	toastTTL     = 4 * time.Second
	maxToasts    = 3
	inputWidth   = 40
	analysisKind = projectsvc.FullAnalysis

	msgAnalysisFailed = "Could not load the analysis."
)

// Analyzer fetches a project's analysis.
type Analyzer interface {
	Analysis(ctx context.Context, id projectsvc.ID, kind string) (projectsvc.Analysis, error)
}

// Gate is the session gate as the TUI uses it.
type Gate interface {
	session.State
	Resolve(ctx context.Context) error
}

// Deps are the collaborators the TUI drives.
type Deps struct {
	ServerURL string
	Gate      Gate
	Store     *store.Store
	Wizard    *wizard.Controller
	Replace   *replace.Flow
	Deletion  *deletion.Flow
	Analyzer  Analyzer
	Bus       *notify.Bus
	Navigator *Navigator
}

type mode int

const (
	modeList mode = iota
	modeWizard
	modeReplace
	modeDelete
	modeAnalysis
	modeSignedOut
)

// Navigator turns route changes into TUI messages.
type Navigator struct {
	routes chan string
}

// NewNavigator creates a Navigator.
func NewNavigator() *Navigator {
	return &Navigator{routes: make(chan string, 4)}
}

// GoTo queues route for the TUI. It never blocks.
func (n *Navigator) GoTo(route string) {
	select {
	case n.routes <- route:
	default:
	}
}

// Model is the bubbletea model.
type Model struct {
	deps Deps
	ctx  context.Context

	mode     mode
	cursor   int
	quitting bool
	loading  bool
	listed   bool
	err      error

	// Wizard inputs: name, file on step one; sheet, column, date column and
	// start row on step two.
	fileInputs    []textinput.Model
	mappingInputs []textinput.Model
	replaceInput  textinput.Model
	focus         int

	analysisFor projectsvc.Project
	analysis    *projectsvc.Analysis
	analysisErr string

	toasts  []toast
	spinner spinner.Model
	notes   <-chan notify.Notification
}

type toast struct {
	notify.Notification
}

// NewModel creates the TUI model.
func NewModel(ctx context.Context, deps Deps) Model {
	if deps.Navigator == nil {
		deps.Navigator = NewNavigator()
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = sparklineStyle

	m := Model{
		deps:          deps,
		ctx:           ctx,
		fileInputs:    []textinput.Model{newInput("Project name"), newInput("Path to .xlsx, .xls or .csv")},
		mappingInputs: []textinput.Model{newInput("Sheet"), newInput("Value column"), newInput("Date column (optional)"), newInput("Start row")},
		replaceInput:  newInput("Path to .xlsx or .xls"),
		spinner:       sp,
	}
	if deps.Bus != nil {
		m.notes = deps.Bus.Subscribe()
	}
	return m
}

func newInput(placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Width = inputWidth
	ti.CharLimit = 256
	return ti
}

// Message types
type (
	sessionMsg      struct{ err error }
	refreshedMsg    struct{ err error }
	routeMsg        string
	notificationMsg notify.Notification
	toastExpiredMsg string
	uploadDoneMsg   projectsvc.Result[projectsvc.ID]
	mappingDoneMsg  projectsvc.Result[projectsvc.ID]
	replaceDoneMsg  projectsvc.Result[projectsvc.ID]
	deleteDoneMsg   projectsvc.Result[projectsvc.ID]
	analysisMsg     struct {
		id       projectsvc.ID
		analysis projectsvc.Analysis
		err      error
	}
)

// Init resolves the session and starts listening for notifications and
// redirects.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.resolveSession(), m.waitRoute(), m.spinner.Tick}
	if m.notes != nil {
		cmds = append(cmds, m.waitNotification())
	}
	return tea.Batch(cmds...)
}

func (m Model) resolveSession() tea.Cmd {
	return func() tea.Msg {
		return sessionMsg{err: m.deps.Gate.Resolve(m.ctx)}
	}
}

func (m Model) refresh() tea.Cmd {
	return func() tea.Msg {
		return refreshedMsg{err: m.deps.Store.Refresh(m.ctx)}
	}
}

func (m Model) waitRoute() tea.Cmd {
	ch := m.deps.Navigator.routes
	return func() tea.Msg {
		return routeMsg(<-ch)
	}
}

func (m Model) waitNotification() tea.Cmd {
	ch := m.notes
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return notificationMsg(n)
	}
}

func expireToast(id string) tea.Cmd {
	return tea.Tick(toastTTL, func(time.Time) tea.Msg { return toastExpiredMsg(id) })
}

func (m Model) fetchAnalysis(id projectsvc.ID) tea.Cmd {
	return func() tea.Msg {
		a, err := m.deps.Analyzer.Analysis(m.ctx, id, analysisKind)
		return analysisMsg{id: id, analysis: a, err: err}
	}
}

// selected returns the project under the cursor.
func (m Model) selected() (projectsvc.Project, bool) {
	projects := m.deps.Store.Projects()
	if len(projects) == 0 {
		return projectsvc.Project{}, false
	}
	i := m.cursor
	if i >= len(projects) {
		i = len(projects) - 1
	}
	return projects[i], true
}

func (m *Model) setFocus(inputs []textinput.Model, i int) tea.Cmd {
	if len(inputs) == 0 {
		return nil
	}
	m.focus = (i + len(inputs)) % len(inputs)
	for j := range inputs {
		inputs[j].Blur()
	}
	return inputs[m.focus].Focus()
}

func resetInputs(inputs []textinput.Model) {
	for i := range inputs {
		inputs[i].SetValue("")
		inputs[i].Blur()
	}
}
