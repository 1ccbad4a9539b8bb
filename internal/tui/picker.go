package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/code-llm/internal/parser"
	"github.com/sokinpui/code-llm/internal/patcher"
	"github.com/sokinpui/code-llm/internal/review"
)

const maxHunkHeight = 20

var (
	addStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	removeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))
)

type keyMap struct {
	Accept     key.Binding
	Reject     key.Binding
	Modify     key.Binding
	AcceptFile key.Binding
	RejectFile key.Binding
	Quit       key.Binding
	Submit     key.Binding
	Cancel     key.Binding
	Abort      key.Binding
}

var keys = keyMap{
	Accept:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "accept")),
	Reject:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "reject")),
	Modify:     key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "modify")),
	AcceptFile: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "accept file")),
	RejectFile: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "reject file")),
	Quit:       key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
	Submit:     key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "use these lines")),
	Cancel:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Abort:      key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "abort")),
}

// Picker is a review.DecisionSource that asks about each hunk in a small
// full-screen program.
type Picker struct {
	// Options are passed to every tea.Program the picker starts.
	Options []tea.ProgramOption
}

func NewPicker(opts ...tea.ProgramOption) *Picker {
	return &Picker{Options: opts}
}

func (p *Picker) Decide(ctx context.Context, prompt review.Prompt) (review.Decision, error) {
	opts := append([]tea.ProgramOption{tea.WithContext(ctx)}, p.Options...)
	final, err := tea.NewProgram(newPickerModel(prompt), opts...).Run()
	if err != nil {
		return review.Decision{}, err
	}
	m := final.(pickerModel)
	if !m.done {
		return review.Decision{}, ErrAborted
	}
	return m.decision, nil
}

type pickerModel struct {
	prompt   review.Prompt
	viewport viewport.Model
	editor   textarea.Model
	help     help.Model
	editing  bool
	done     bool
	decision review.Decision
}

func newPickerModel(p review.Prompt) pickerModel {
	body := renderHunk(p.Hunk)
	vp := viewport.New(80, min(strings.Count(body, "\n")+1, maxHunkHeight))
	vp.SetContent(body)

	var added []string
	for _, op := range p.Hunk.Ops {
		if op.Kind == parser.OpAdd {
			added = append(added, op.Text)
		}
	}
	ed := textarea.New()
	ed.ShowLineNumbers = false
	ed.SetWidth(80)
	ed.SetHeight(min(max(len(added), 3), maxHunkHeight))
	ed.SetValue(strings.Join(added, "\n"))

	return pickerModel{prompt: p, viewport: vp, editor: ed, help: help.New()}
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) finish(d review.Decision) (tea.Model, tea.Cmd) {
	m.decision = d
	m.done = true
	m.editing = false
	return m, tea.Quit
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.editor.SetWidth(msg.Width)
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Abort) {
			return m, tea.Quit
		}
		if m.editing {
			switch {
			case key.Matches(msg, keys.Submit):
				return m.finish(review.Modify(m.editor.Value()))
			case key.Matches(msg, keys.Cancel):
				m.editing = false
				m.editor.Blur()
				return m, nil
			}
			m.editor, cmd = m.editor.Update(msg)
			return m, cmd
		}
		switch {
		case key.Matches(msg, keys.Accept):
			return m.finish(review.Accept())
		case key.Matches(msg, keys.Reject):
			return m.finish(review.Reject())
		case key.Matches(msg, keys.AcceptFile):
			return m.finish(review.Decision{Action: review.ActionAcceptFile})
		case key.Matches(msg, keys.RejectFile):
			return m.finish(review.Decision{Action: review.ActionRejectFile})
		case key.Matches(msg, keys.Quit):
			return m.finish(review.Decision{Action: review.ActionQuit})
		case key.Matches(msg, keys.Modify):
			m.editing = true
			return m, m.editor.Focus()
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m pickerModel) View() string {
	p := m.prompt
	title := fmt.Sprintf("[%d/%d] %s  hunk %d/%d", p.FileIndex+1, p.FileCount, p.Path, p.HunkIndex+1, p.HunkCount)
	if p.Created {
		title += "  (new file)"
	}

	if m.done {
		return faintStyle.Render(fmt.Sprintf("%s: %s", title, m.decision.Action)) + "\n"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	if status := previewStatus(p.Preview); status != "" {
		b.WriteString(status)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if m.editing {
		b.WriteString("Replacement for the added lines:\n")
		b.WriteString(m.editor.View())
		b.WriteString("\n")
		b.WriteString(m.help.ShortHelpView([]key.Binding{keys.Submit, keys.Cancel, keys.Abort}))
	} else {
		b.WriteString(m.help.ShortHelpView([]key.Binding{
			keys.Accept, keys.Reject, keys.Modify, keys.AcceptFile, keys.RejectFile, keys.Quit,
		}))
	}
	return b.String()
}

func renderHunk(h parser.Hunk) string {
	lines := strings.Split(strings.TrimSuffix(parser.FormatHunk(h), "\n"), "\n")
	for i, l := range lines {
		switch {
		case strings.HasPrefix(l, "@@"):
			lines[i] = hunkStyle.Render(l)
		case strings.HasPrefix(l, "+"):
			lines[i] = addStyle.Render(l)
		case strings.HasPrefix(l, "-"):
			lines[i] = removeStyle.Render(l)
		}
	}
	return strings.Join(lines, "\n")
}

func previewStatus(o patcher.Outcome) string {
	switch o.Status {
	case patcher.StatusApplied:
		if o.Offset == 0 && !o.Fuzzy {
			return successStyle.Render("Applies cleanly.")
		}
		note := fmt.Sprintf("Applies at line %d (offset %+d)", o.Line, o.Offset)
		if o.Fuzzy {
			note += ", whitespace ignored"
		}
		return warningStyle.Render(note)
	case patcher.StatusRejected:
		return errorStyle.Render("Will not apply: " + o.Reason)
	default:
		msg := "Conflict"
		if o.Conflict != nil {
			msg += ": " + o.Conflict.Error()
		}
		return errorStyle.Render(msg)
	}
}
