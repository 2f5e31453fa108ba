package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/aiwriter/aiwriter"
	"github.com/sokinpui/aiwriter/model"
)

// --- Styles ---
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")) // Mauve
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))            // Green
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))           // Orange
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))           // Red
	pathStyle    = lipgloss.NewStyle()
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// --- Messages ---
type summaryMsg struct {
	model.Summary
}

type stageMsg string

type errorMsg struct{ err error }

func (e errorMsg) Error() string { return e.err.Error() }

// Runner is the part of the app the TUI drives.
type Runner interface {
	Execute(ctx context.Context) (model.Summary, error)
	SetProgressCallback(cb aiwriter.ProgressUpdate)
}

// --- Model ---
type Model struct {
	app     Runner
	ctx     context.Context
	cancel  context.CancelFunc
	spinner spinner.Model
	state   state
	stage   string
	summary model.Summary
	err     error
}

type state int

const (
	stateProcessing state = iota
	stateSummary
	stateError
)

func New(ctx context.Context, app Runner) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	ctx, cancel := context.WithCancel(ctx)
	return Model{
		app:     app,
		ctx:     ctx,
		cancel:  cancel,
		spinner: s,
		state:   stateProcessing,
		stage:   "Starting",
	}
}

// SetProgram forwards pipeline stage changes to the running program.
func (m Model) SetProgram(p *tea.Program) {
	m.app.SetProgressCallback(func(stage string) {
		p.Send(stageMsg(stage))
	})
}

// Result returns the outcome once the program has exited.
func (m Model) Result() (model.Summary, error) {
	if m.state == stateProcessing {
		return model.Summary{}, context.Canceled
	}
	return m.summary, m.err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runApp)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		}

	case stageMsg:
		m.stage = string(msg)
		return m, nil

	case summaryMsg:
		m.state = stateSummary
		m.summary = msg.Summary
		m.cancel()
		return m, tea.Quit

	case errorMsg:
		m.state = stateError
		m.err = msg.err
		m.cancel()
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if m.state == stateProcessing {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	switch m.state {
	case stateProcessing:
		return fmt.Sprintf("%s %s...\n", m.spinner.View(), m.stage)
	case stateError:
		return errorStyle.Render("Error: "+m.err.Error()) + "\n"
	case stateSummary:
		return m.renderSummary()
	default:
		return ""
	}
}

func (m *Model) renderSummary() string {
	var b strings.Builder

	if m.summary.DecodeFailed {
		b.WriteString(errorStyle.Render("Failed to parse model output as JSON. Raw output:"))
		b.WriteString("\n")
		b.WriteString(m.summary.Raw)
		b.WriteString("\n")
		return b.String()
	}

	if m.summary.Message != "" {
		b.WriteString(headerStyle.Render(m.summary.Message))
		b.WriteString("\n\n")
	}

	hasContent := false
	if len(m.summary.Modified) > 0 {
		hasContent = true
		b.WriteString(successStyle.Render("Modified:"))
		b.WriteString("\n")
		for _, f := range m.summary.Modified {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}
	if len(m.summary.Created) > 0 {
		hasContent = true
		b.WriteString(successStyle.Render("Created:"))
		b.WriteString("\n")
		for _, f := range m.summary.Created {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}
	if len(m.summary.Rejected) > 0 {
		hasContent = true
		b.WriteString(warningStyle.Render("Rejected:"))
		b.WriteString("\n")
		for _, r := range m.summary.Rejected {
			b.WriteString(fmt.Sprintf("  %s %s\n", pathStyle.Render(r.Path), faintStyle.Render("("+r.Reason+")")))
		}
	}
	if m.summary.Malformed > 0 {
		hasContent = true
		b.WriteString(warningStyle.Render(fmt.Sprintf("Skipped %d malformed change entries.", m.summary.Malformed)))
		b.WriteString("\n")
	}

	if !hasContent && m.summary.Message == "" {
		b.WriteString(faintStyle.Render("Nothing to do."))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) runApp() tea.Msg {
	summary, err := m.app.Execute(m.ctx)
	if err != nil {
		return errorMsg{err}
	}
	return summaryMsg{Summary: summary}
}
