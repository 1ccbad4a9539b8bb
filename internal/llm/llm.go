// Package llm defines the model backend the conversation loop talks to.
package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable is returned when the backend cannot be reached or answers
// with something other than a completion.
var ErrUnavailable = errors.New("model backend unavailable")

// Role marks who said a turn of the conversation.
type Role string

const (
	RoleUser      Role = "User"
	RoleAssistant Role = "Assistant"
)

// Turn is one entry of the conversation history.
type Turn struct {
	Role Role
	Text string
}

func (t Turn) String() string { return string(t.Role) + ": " + t.Text }

// Request is everything the backend needs for one completion.
type Request struct {
	Model  string
	System string
	// History holds the earlier turns, including the current user input.
	History []Turn
	// Context is the rendered project bundle.
	Context string
	Input   string
}

// Backend produces a single response text for a request. The text may or may
// not contain diff blocks.
type Backend interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req Request) (string, error)

func (f BackendFunc) Complete(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// BuildPrompt lays out the history, the project context and the request in
// the order the backend receives them.
func BuildPrompt(req Request) string {
	lines := make([]string, len(req.History))
	for i, t := range req.History {
		lines[i] = t.String()
	}

	var b strings.Builder
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\nContext of the current directory:\n")
	b.WriteString(req.Context)
	b.WriteString("\n\nUser request: ")
	b.WriteString(req.Input)
	return b.String()
}
