package tui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fyrsmithlabs/finview/internal/deletion"
	"github.com/fyrsmithlabs/finview/internal/notify"
	"github.com/fyrsmithlabs/finview/internal/projectsvc"
	"github.com/fyrsmithlabs/finview/internal/session"
	"github.com/fyrsmithlabs/finview/internal/wizard"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case sessionMsg:
		m.loading = false
		if msg.err != nil {
			if signedOut(msg.err) {
				m.mode = modeSignedOut
				return m, nil
			}
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.loading = true
		return m, m.refresh()

	case refreshedMsg:
		m.loading = false
		if msg.err != nil {
			// The store keeps its list and reports the failure as a toast.
			if !m.deps.Store.Loaded() && !signedOut(msg.err) && !errors.Is(msg.err, session.ErrResolving) {
				m.err = msg.err
			}
			return m, nil
		}
		m.err = nil
		if current, ok := m.deps.Store.Current(); ok && !m.listed {
			m.cursor = m.indexOf(current.ID)
		}
		m.listed = m.deps.Store.Loaded()
		m.clampCursor()
		return m, nil

	case routeMsg:
		if string(msg) == session.LoginRoute {
			m.closeAll()
			m.mode = modeSignedOut
		}
		return m, m.waitRoute()

	case notificationMsg:
		t := toast{Notification: notify.Notification(msg)}
		m.toasts = append(m.toasts, t)
		if len(m.toasts) > maxToasts {
			m.toasts = m.toasts[len(m.toasts)-maxToasts:]
		}
		return m, tea.Batch(m.waitNotification(), expireToast(t.ID))

	case toastExpiredMsg:
		kept := make([]toast, 0, len(m.toasts))
		for _, t := range m.toasts {
			if t.ID != string(msg) {
				kept = append(kept, t)
			}
		}
		m.toasts = kept
		return m, nil

	case uploadDoneMsg:
		if m.mode != modeWizard {
			return m, nil
		}
		if _, idle := m.deps.Wizard.State().(wizard.Idle); idle {
			m.mode = modeList
			return m, nil
		}
		if projectsvc.Result[projectsvc.ID](msg).IsOk() {
			m.fillMapping(wizard.DefaultDraft())
			return m, m.setFocus(m.mappingInputs, 0)
		}
		return m, nil

	case mappingDoneMsg:
		if _, idle := m.deps.Wizard.State().(wizard.Idle); idle && m.mode == modeWizard {
			m.mode = modeList
		}
		if projectsvc.Result[projectsvc.ID](msg).IsOk() {
			m.cursor = len(m.deps.Store.Projects()) - 1
			m.clampCursor()
		}
		return m, nil

	case replaceDoneMsg:
		if !m.deps.Replace.State().Open && m.mode == modeReplace {
			m.mode = modeList
		}
		return m, nil

	case deleteDoneMsg:
		if !m.deps.Deletion.State().ConfirmOpen && m.mode == modeDelete {
			m.mode = modeList
		}
		m.clampCursor()
		return m, nil

	case analysisMsg:
		if m.mode != modeAnalysis || msg.id != m.analysisFor.ID {
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			m.analysisErr = msgAnalysisFailed
			var pe *projectsvc.Error
			if errors.As(msg.err, &pe) && pe.Message != "" {
				m.analysisErr = pe.Message
			}
			return m, nil
		}
		a := msg.analysis
		m.analysis = &a
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeWizard:
		return m.wizardKey(msg)
	case modeReplace:
		return m.replaceKey(msg)
	case modeDelete:
		return m.deleteKey(msg)
	case modeAnalysis:
		switch msg.String() {
		case "esc", "q":
			m.mode = modeList
			m.analysis, m.analysisErr = nil, ""
		case "r":
			m.analysis, m.analysisErr, m.loading = nil, "", true
			return m, m.fetchAnalysis(m.analysisFor.ID)
		}
		return m, nil
	case modeSignedOut:
		switch msg.String() {
		case "q":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.mode = modeList
			return m, m.resolveSession()
		}
		return m, nil
	}
	return m.listKey(msg)
}

func (m Model) listKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "j", "down":
		m.cursor++
		m.clampCursor()
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "r":
		if m.deps.Gate.IsResolving() {
			return m, nil
		}
		m.loading = true
		if !m.deps.Gate.IsAuthenticated() {
			return m, m.resolveSession()
		}
		return m, m.refresh()
	case "n":
		m.deps.Wizard.Open()
		resetInputs(m.fileInputs)
		resetInputs(m.mappingInputs)
		m.mode = modeWizard
		return m, m.setFocus(m.fileInputs, 0)
	case "u":
		p, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.deps.Replace.Open(p.ID)
		m.replaceInput.SetValue("")
		m.mode = modeReplace
		return m, m.replaceInput.Focus()
	case "d":
		p, ok := m.selected()
		if !ok {
			return m, nil
		}
		if err := m.deps.Deletion.RequestDelete(p); err != nil && !errors.Is(err, deletion.ErrConfirmationOpen) {
			return m, nil
		}
		m.mode = modeDelete
	case "enter", "a":
		p, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.mode = modeAnalysis
		m.analysisFor = p
		m.analysis, m.analysisErr, m.loading = nil, "", true
		return m, m.fetchAnalysis(p.ID)
	}
	return m, nil
}

func (m Model) wizardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	st := m.deps.Wizard.State()
	switch msg.String() {
	case "esc":
		m.deps.Wizard.Close()
		m.mode = modeList
		return m, nil
	case "tab", "shift+tab":
		step := 1
		if msg.String() == "shift+tab" {
			step = -1
		}
		if _, ok := st.(wizard.ConfiguringMapping); ok {
			return m, m.setFocus(m.mappingInputs, m.focus+step)
		}
		return m, m.setFocus(m.fileInputs, m.focus+step)
	case "ctrl+x":
		if _, ok := st.(wizard.CollectingFile); ok {
			m.fileInputs[1].SetValue("")
			m.deps.Wizard.ClearFile()
		}
		return m, nil
	case "enter":
		switch st := st.(type) {
		case wizard.CollectingFile:
			if st.Loading {
				return m, nil
			}
			return m, m.submitUpload()
		case wizard.ConfiguringMapping:
			if st.Loading {
				return m, nil
			}
			return m, m.submitMapping()
		}
		return m, nil
	}

	switch st.(type) {
	case wizard.CollectingFile:
		cmd := m.updateInput(m.fileInputs, msg)
		if m.focus == 0 {
			m.deps.Wizard.EditName(m.fileInputs[0].Value())
		}
		return m, cmd
	case wizard.ConfiguringMapping:
		cmd := m.updateInput(m.mappingInputs, msg)
		m.deps.Wizard.EditMapping(m.draft())
		return m, cmd
	}
	return m, nil
}

func (m Model) replaceKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.deps.Replace.Close()
		m.mode = modeList
		return m, nil
	case "ctrl+x":
		m.replaceInput.SetValue("")
		m.deps.Replace.ClearFile()
		return m, nil
	case "enter":
		st := m.deps.Replace.State()
		if st.Loading {
			return m, nil
		}
		return m, m.submitReplace(st.ProjectID)
	}
	var cmd tea.Cmd
	m.replaceInput, cmd = m.replaceInput.Update(msg)
	return m, cmd
}

func (m Model) deleteKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "enter":
		if m.deps.Deletion.State().Deleting {
			return m, nil
		}
		return m, m.confirmDelete()
	case "n", "esc":
		m.deps.Deletion.CancelDelete()
		m.mode = modeList
	}
	return m, nil
}

func (m *Model) updateInput(inputs []textinput.Model, msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	inputs[m.focus], cmd = inputs[m.focus].Update(msg)
	return cmd
}

func (m Model) submitUpload() tea.Cmd {
	name := m.fileInputs[0].Value()
	var file projectsvc.File
	if path := strings.TrimSpace(m.fileInputs[1].Value()); path != "" {
		file = projectsvc.LocalFile(path)
	}
	w, ctx := m.deps.Wizard, m.ctx
	return func() tea.Msg {
		return uploadDoneMsg(w.SubmitUpload(ctx, name, file))
	}
}

func (m Model) submitMapping() tea.Cmd {
	draft := m.draft()
	w, ctx := m.deps.Wizard, m.ctx
	return func() tea.Msg {
		return mappingDoneMsg(w.SubmitMapping(ctx, draft))
	}
}

func (m Model) submitReplace(id projectsvc.ID) tea.Cmd {
	var file projectsvc.File
	if path := strings.TrimSpace(m.replaceInput.Value()); path != "" {
		file = projectsvc.LocalFile(path)
	}
	f, ctx := m.deps.Replace, m.ctx
	return func() tea.Msg {
		return replaceDoneMsg(f.SubmitReplace(ctx, id, file))
	}
}

func (m Model) confirmDelete() tea.Cmd {
	f, ctx := m.deps.Deletion, m.ctx
	return func() tea.Msg {
		return deleteDoneMsg(f.ConfirmDelete(ctx))
	}
}

func (m Model) draft() wizard.MappingDraft {
	return wizard.MappingDraft{
		Sheet:      m.mappingInputs[0].Value(),
		Column:     m.mappingInputs[1].Value(),
		DateColumn: m.mappingInputs[2].Value(),
		StartRow:   m.mappingInputs[3].Value(),
	}
}

func (m *Model) fillMapping(d wizard.MappingDraft) {
	for i, v := range []string{d.Sheet, d.Column, d.DateColumn, d.StartRow} {
		m.mappingInputs[i].SetValue(v)
	}
}

// closeAll drops every open flow. Used when the session is lost.
func (m *Model) closeAll() {
	if _, ok := m.deps.Wizard.State().(wizard.Idle); !ok {
		m.deps.Wizard.Close()
	}
	m.deps.Replace.Close()
	m.deps.Deletion.CancelDelete()
	m.analysis, m.analysisErr, m.loading = nil, "", false
}

func signedOut(err error) bool {
	return errors.Is(err, session.ErrUnauthenticated) || errors.Is(err, projectsvc.ErrAuth)
}

func (m Model) indexOf(id projectsvc.ID) int {
	for i, p := range m.deps.Store.Projects() {
		if p.ID == id {
			return i
		}
	}
	return 0
}

func (m *Model) clampCursor() {
	n := len(m.deps.Store.Projects())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}
