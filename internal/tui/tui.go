package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrAborted is returned when the user interrupts with ctrl+c.
var ErrAborted = errors.New("aborted by user")

// --- Styles ---
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")) // Mauve
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))            // Green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))           // Red
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	hunkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// Task is long-running work shown behind a spinner.
type Task func(ctx context.Context) (string, error)

// --- Messages ---
type resultMsg struct{ text string }

type errorMsg struct{ err error }

func (e errorMsg) Error() string { return e.err.Error() }

// --- Model ---
type taskModel struct {
	label   string
	spinner spinner.Model
	state   state
	run     tea.Cmd
	cancel  context.CancelFunc
	result  string
	err     error
}

type state int

const (
	stateProcessing state = iota
	stateDone
	stateError
	stateAborted
)

func newTaskModel(label string, run tea.Cmd, cancel context.CancelFunc) taskModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return taskModel{label: label, spinner: s, run: run, cancel: cancel}
}

func (m taskModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run)
}

func (m taskModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.state = stateAborted
			m.cancel()
			return m, tea.Quit
		}

	case resultMsg:
		m.state = stateDone
		m.result = msg.text
		return m, tea.Quit

	case errorMsg:
		m.state = stateError
		m.err = msg.err
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

func (m taskModel) View() string {
	switch m.state {
	case stateProcessing:
		return fmt.Sprintf("%s %s", m.spinner.View(), m.label)
	case stateError:
		return errorStyle.Render("Error: ", m.err.Error()) + "\n"
	case stateAborted:
		return faintStyle.Render("Cancelled.") + "\n"
	default:
		return ""
	}
}

// Run shows a spinner labelled label while task runs. ctrl+c cancels the
// task's context and returns ErrAborted.
func Run(ctx context.Context, label string, task Task, opts ...tea.ProgramOption) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	run := func() tea.Msg {
		text, err := task(ctx)
		if err != nil {
			return errorMsg{err}
		}
		return resultMsg{text}
	}

	final, err := tea.NewProgram(newTaskModel(label, run, cancel), opts...).Run()
	if err != nil {
		return "", err
	}
	m := final.(taskModel)
	switch m.state {
	case stateDone:
		return m.result, nil
	case stateError:
		return "", m.err
	default:
		return "", ErrAborted
	}
}
