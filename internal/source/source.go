// Package source reads a model response that was produced elsewhere.
package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
)

// Provider reads from stdin when it is piped, and from the clipboard
// otherwise.
type Provider struct {
	Stdin io.Reader
	// Piped reports whether Stdin carries data. Nil checks os.Stdin.
	Piped func() bool
	// Clipboard reads the clipboard. Nil uses the system clipboard.
	Clipboard func() (string, error)
}

// New returns a Provider bound to the process's stdin and clipboard.
func New() *Provider {
	return &Provider{Stdin: os.Stdin}
}

// Origin names where Content will read from.
func (p *Provider) Origin() string {
	if p.piped() {
		return "stdin"
	}
	return "clipboard"
}

// Content returns the source text. Blank input yields "".
func (p *Provider) Content() (string, error) {
	var content string
	if p.piped() {
		data, err := io.ReadAll(p.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		content = string(data)
	} else {
		read := p.Clipboard
		if read == nil {
			read = clipboard.ReadAll
		}
		text, err := read()
		if err != nil {
			return "", fmt.Errorf("failed to read from clipboard: %w", err)
		}
		content = text
	}
	if strings.TrimSpace(content) == "" {
		return "", nil
	}
	return content, nil
}

func (p *Provider) piped() bool {
	if p.Piped != nil {
		return p.Piped()
	}
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice == 0
}
