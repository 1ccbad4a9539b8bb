package tui

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/code-llm/internal/parser"
	"github.com/sokinpui/code-llm/internal/patcher"
	"github.com/sokinpui/code-llm/internal/review"
)

func headless(input io.Reader) []tea.ProgramOption {
	return []tea.ProgramOption{
		tea.WithInput(input),
		tea.WithOutput(io.Discard),
		tea.WithoutSignals(),
	}
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func samplePrompt() review.Prompt {
	return review.Prompt{
		Path: "x.go", FileCount: 1, HunkCount: 1,
		Hunk: parser.Hunk{OldStart: 1, OldLines: 1, NewStart: 1, NewLines: 1, Ops: []parser.LineOp{
			{Kind: parser.OpRemove, Text: "old"},
			{Kind: parser.OpAdd, Text: "new"},
		}},
		Preview: patcher.Outcome{Status: patcher.StatusApplied, Line: 1},
	}
}

func TestRunReturnsTaskResult(t *testing.T) {
	text, err := Run(context.Background(), "Thinking...", func(context.Context) (string, error) {
		return "answer", nil
	}, headless(bytes.NewReader(nil))...)
	require.NoError(t, err)
	assert.Equal(t, "answer", text)

	boom := errors.New("backend down")
	_, err = Run(context.Background(), "Thinking...", func(context.Context) (string, error) {
		return "", boom
	}, headless(bytes.NewReader(nil))...)
	assert.ErrorIs(t, err, boom)
}

func TestTaskModelAbortCancels(t *testing.T) {
	cancelled := false
	m := newTaskModel("x", nil, func() { cancelled = true })

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, cancelled)
	assert.NotNil(t, cmd)
	assert.Equal(t, stateAborted, next.(taskModel).state)
}

func TestPickerKeys(t *testing.T) {
	tests := []struct {
		key  tea.KeyMsg
		want review.Decision
	}{
		{runes("y"), review.Accept()},
		{runes("n"), review.Reject()},
		{runes("a"), review.Decision{Action: review.ActionAcceptFile}},
		{runes("d"), review.Decision{Action: review.ActionRejectFile}},
		{runes("q"), review.Decision{Action: review.ActionQuit}},
	}
	for _, tt := range tests {
		t.Run(tt.key.String(), func(t *testing.T) {
			next, cmd := newPickerModel(samplePrompt()).Update(tt.key)
			m := next.(pickerModel)
			assert.True(t, m.done)
			assert.Equal(t, tt.want, m.decision)
			assert.NotNil(t, cmd)
		})
	}
}

func TestPickerModify(t *testing.T) {
	var m tea.Model = newPickerModel(samplePrompt())
	assert.Contains(t, m.View(), "x.go")

	m, _ = m.Update(runes("m"))
	require.True(t, m.(pickerModel).editing)
	assert.Contains(t, m.View(), "Replacement for the added lines")

	m, _ = m.Update(runes("er"))
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	pm := m.(pickerModel)
	assert.True(t, pm.done)
	assert.Equal(t, review.Modify("newer"), pm.decision)
}

func TestPickerEscapeLeavesEditor(t *testing.T) {
	var m tea.Model = newPickerModel(samplePrompt())
	m, _ = m.Update(runes("m"))
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.(pickerModel).editing)
	assert.False(t, m.(pickerModel).done)
}

func TestPickerDecide(t *testing.T) {
	p := NewPicker(headless(strings.NewReader("n"))...)
	d, err := p.Decide(context.Background(), samplePrompt())
	require.NoError(t, err)
	assert.Equal(t, review.Reject(), d)
}

func TestPreviewStatus(t *testing.T) {
	assert.Contains(t, previewStatus(patcher.Outcome{Status: patcher.StatusApplied, Line: 7, Offset: -2}), "offset -2")
	assert.Contains(t, previewStatus(patcher.Outcome{Status: patcher.StatusRejected, Reason: "hunk changes nothing"}), "hunk changes nothing")
	assert.Contains(t, previewStatus(patcher.Outcome{Status: patcher.StatusConflict}), "Conflict")
}
