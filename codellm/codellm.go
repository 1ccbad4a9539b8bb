// Package codellm applies the diffs of a model response from Go code,
// without prompting.
package codellm

import (
	"context"
	"fmt"
	"os"

	"github.com/sokinpui/code-llm/internal/app"
	"github.com/sokinpui/code-llm/internal/config"
	"github.com/sokinpui/code-llm/internal/model"
	"github.com/sokinpui/code-llm/internal/review"
)

// Config for using code-llm as a library.
type Config struct {
	// Root is the project directory. Empty means the working directory.
	Root string
	// NoArchive skips recording the session under .code-llm/sessions.
	NoArchive bool
}

func newApp(cfg Config) (*app.App, error) {
	root := cfg.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = wd
	}
	settings, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if cfg.NoArchive {
		settings.Review.Archive = false
	}
	a, err := app.New(app.Options{Root: root, Config: settings})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize code-llm: %w", err)
	}
	return a, nil
}

// Apply accepts every hunk of every diff in content and writes the results.
// It returns a summary of the operations in a map with the keys "Created",
// "Modified" and "Failed".
func Apply(content string, cfg Config) (map[string][]string, error) {
	a, err := newApp(cfg)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	res, err := a.ApplyText(context.Background(), content, review.AutoSource{Decision: review.Accept()})
	if err != nil {
		return nil, err
	}
	var summary model.Summary
	if res.Review != nil {
		summary = model.FromReview(res.Review)
	}

	return map[string][]string{
		"Created":  summary.Created,
		"Modified": summary.Modified,
		"Failed":   summary.Failed,
	}, nil
}

// Fix returns the diffs in content with their hunk headers corrected
// against the files on disk. Hunks that cannot be located are left out and
// reported in the error.
func Fix(content string, cfg Config) (string, error) {
	a, err := newApp(cfg)
	if err != nil {
		return "", err
	}
	defer a.Close()

	fixed, errs := a.Correct(content)
	if len(errs) > 0 {
		return fixed, fmt.Errorf("%d hunk(s) could not be located: %w", len(errs), errs[0])
	}
	return fixed, nil
}
