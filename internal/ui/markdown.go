package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Markdown renders an answer for the terminal. Text is returned unchanged
// when the renderer fails.
func Markdown(text string, width int) string {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}
