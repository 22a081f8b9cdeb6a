package tui

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/finview/internal/notify"
	"github.com/fyrsmithlabs/finview/internal/projectsvc"
	"github.com/fyrsmithlabs/finview/internal/wizard"
)

const (
	sparklineWidth  = 40
	sparklineHeight = 4
	nameWidth       = 28
	fileWidth       = 24
)

// View renders the current screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var body string
	switch {
	case m.mode == modeSignedOut:
		body = m.renderSignedOut()
	case m.deps.Gate.IsResolving():
		body = m.spinner.View() + dimStyle.Render(" checking session...")
	case m.err != nil:
		body = m.renderError()
	case m.mode == modeAnalysis:
		body = m.renderAnalysis()
	default:
		body = m.renderList()
		switch m.mode {
		case modeWizard:
			body += "\n" + m.renderWizard()
		case modeReplace:
			body += "\n" + m.renderReplace()
		case modeDelete:
			body += "\n" + m.renderDelete()
		}
	}

	header := headerStyle.Render("finview")
	if m.deps.ServerURL != "" {
		header += " " + dimStyle.Render(m.deps.ServerURL)
	}
	return containerStyle.Render(header+"\n"+body+m.renderToasts()) + "\n"
}

func (m Model) renderSignedOut() string {
	var content string
	content += "\n"
	content += errorStyle.Render("Session expired or missing") + "\n"
	content += dimStyle.Render("Sign in through the web app and update session.cookie in your config.") + "\n"
	content += "\n"
	content += keyHelp("r", "retry", "q", "quit")
	return content
}

func (m Model) renderError() string {
	var content string
	content += "\n"
	content += errorStyle.Render("Cannot reach the project service") + "\n"
	content += dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n"
	content += "\n"
	content += keyHelp("r", "retry", "q", "quit")
	return content
}

func (m Model) renderList() string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Projects"))
	if m.loading && m.mode == modeList {
		b.WriteString(" " + m.spinner.View())
	}
	b.WriteString("\n")

	projects := m.deps.Store.Projects()
	if len(projects) == 0 {
		if m.deps.Store.Loaded() {
			b.WriteString(dimStyle.Render("No projects yet. Press n to create one.") + "\n")
		}
	}
	for i, p := range projects {
		line := fmt.Sprintf("%-*s %-*s %s",
			nameWidth, truncate(p.Name, nameWidth),
			fileWidth, truncate(p.OriginalFilename, fileWidth),
			FormatUpdated(p.UpdatedAt))
		if i == m.cursor {
			b.WriteString(selectedStyle.Render(line) + "\n")
			continue
		}
		b.WriteString(valueStyle.Render(line) + "\n")
	}
	b.WriteString(keyHelp("n", "new", "u", "replace file", "d", "delete", "enter", "analysis", "r", "refresh", "q", "quit"))
	return b.String()
}

func (m Model) renderWizard() string {
	var b strings.Builder
	switch st := m.deps.Wizard.State().(type) {
	case wizard.CollectingFile:
		b.WriteString(sectionStyle.Render("New project: name and file") + "\n")
		b.WriteString(renderInputs(m.fileInputs, []string{"Name", "File"}))
		if st.File != nil {
			b.WriteString(dimStyle.Render("Selected: "+st.File.Name()) + "\n")
		}
		b.WriteString(statusLine(st.Loading, st.Err, m.spinner.View(), "Uploading..."))
		b.WriteString(keyHelp("tab", "next field", "ctrl+x", "clear file", "enter", "upload", "esc", "close"))
	case wizard.ConfiguringMapping:
		b.WriteString(sectionStyle.Render("New project: column mapping for "+st.ProjectName) + "\n")
		b.WriteString(renderInputs(m.mappingInputs, []string{"Sheet", "Column", "Date column", "Start row"}))
		b.WriteString(statusLine(st.Loading, st.Err, m.spinner.View(), "Saving..."))
		b.WriteString(keyHelp("tab", "next field", "enter", "save", "esc", "close"))
	default:
		return ""
	}
	return modalStyle.Render(b.String())
}

func (m Model) renderReplace() string {
	st := m.deps.Replace.State()
	if !st.Open {
		return ""
	}
	var b strings.Builder
	title := "Replace file"
	if p, ok := m.deps.Store.Get(st.ProjectID); ok {
		title += ": " + p.Name
	}
	b.WriteString(sectionStyle.Render(title) + "\n")
	b.WriteString(renderInputs([]textinput.Model{m.replaceInput}, []string{"File"}))
	b.WriteString(statusLine(st.Loading, st.Err, m.spinner.View(), "Uploading..."))
	b.WriteString(keyHelp("ctrl+x", "clear file", "enter", "replace", "esc", "close"))
	return modalStyle.Render(b.String())
}

func (m Model) renderDelete() string {
	st := m.deps.Deletion.State()
	if !st.ConfirmOpen || st.Target == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(warningStyle.Render(fmt.Sprintf("Delete %q? This cannot be undone.", st.Target.Name)) + "\n")
	if st.Deleting {
		b.WriteString(m.spinner.View() + dimStyle.Render(" Deleting...") + "\n")
	}
	b.WriteString(keyHelp("y", "delete", "n", "cancel"))
	return modalStyle.Render(b.String())
}

func (m Model) renderAnalysis() string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Analysis: "+m.analysisFor.Name) + "\n")

	switch {
	case m.analysisErr != "":
		b.WriteString(errorStyle.Render(m.analysisErr) + "\n")
	case m.analysis == nil:
		b.WriteString(m.spinner.View() + dimStyle.Render(" loading...") + "\n")
	default:
		a := m.analysis
		h := a.Health
		b.WriteString(labelStyle.Render("Balance   ") + valueStyle.Render(FormatMoney(h.CurrentBalance)) + "  " + healthStyle(h.Status).Render(h.Status) + "\n")
		if h.Message != "" {
			b.WriteString(dimStyle.Render(h.Message) + "\n")
		}
		b.WriteString(labelStyle.Render("Burn rate ") + valueStyle.Render(FormatMoney(h.BurnRate)+"/mo") + "\n")
		b.WriteString(labelStyle.Render("Runway    ") + valueStyle.Render(FormatRunway(h.RunwayMonths)) + "\n")
		b.WriteString(labelStyle.Render("Inflow    ") + valueStyle.Render(FormatMoney(a.FlowSummary.TotalInflow)) + "\n")
		b.WriteString(labelStyle.Render("Outflow   ") + valueStyle.Render(FormatMoney(a.FlowSummary.TotalOutflow)) + "\n")
		b.WriteString(labelStyle.Render("Sum       ") + valueStyle.Render(FormatMoney(a.Sum)) +
			dimStyle.Render(fmt.Sprintf("  mean %s  sd %s  return %s",
				FormatMoney(a.Mean), FormatMoney(a.StdDev), FormatPercentage(a.TotalReturn))) + "\n")
		b.WriteString(sectionStyle.Render("Balance") + "\n")
		b.WriteString(createSparkline(seriesValues(a.BalanceSeries)) + "\n")
	}
	b.WriteString(keyHelp("r", "reload", "esc", "back"))
	return b.String()
}

func (m Model) renderToasts() string {
	if len(m.toasts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n")
	for _, t := range m.toasts {
		style := healthyStyle
		if t.Kind == notify.KindError {
			style = errorStyle
		}
		b.WriteString(style.Render(t.Message) + "\n")
	}
	return b.String()
}

func renderInputs(inputs []textinput.Model, labels []string) string {
	var b strings.Builder
	for i, in := range inputs {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-12s", labels[i])) + in.View() + "\n")
	}
	return b.String()
}

func statusLine(loading bool, errMsg, spin, busy string) string {
	switch {
	case loading:
		return spin + dimStyle.Render(" "+busy) + "\n"
	case errMsg != "":
		return errorStyle.Render(errMsg) + "\n"
	}
	return ""
}

func healthStyle(status string) lipgloss.Style {
	switch status {
	case "Critical":
		return errorStyle
	case "Warning":
		return warningStyle
	}
	return healthyStyle
}

// createSparkline creates a sparkline chart from a balance series
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()

	return sparklineStyle.Render(spark.View())
}

func seriesValues(points []projectsvc.SeriesPoint) []float64 {
	out := make([]float64, 0, len(points))
	for _, p := range points {
		out = append(out, p.Value)
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
