package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"github.com/sokinpui/code-llm/internal/bundle"
	"github.com/sokinpui/code-llm/internal/config"
	"github.com/sokinpui/code-llm/internal/fs"
	"github.com/sokinpui/code-llm/internal/llm"
	"github.com/sokinpui/code-llm/internal/parser"
	"github.com/sokinpui/code-llm/internal/patcher"
	"github.com/sokinpui/code-llm/internal/review"
	"github.com/sokinpui/code-llm/internal/state"
	"github.com/sokinpui/code-llm/internal/tui"
	"github.com/sokinpui/code-llm/internal/watch"
)

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error { return e.Err }

func recoverPanic(err *error) {
	if r := recover(); r != nil {
		*err = &DetailedError{
			Err:   fmt.Errorf("internal panic: %v", r),
			Stack: debug.Stack(),
		}
	}
}

// Options configures an App.
type Options struct {
	Root    string
	Config  *config.Config
	Backend llm.Backend
	// Decisions answers review prompts during a conversation turn.
	Decisions review.DecisionSource
	Logger    *zap.Logger
	// Wait runs the backend call. Nil calls it directly; the CLI puts a
	// spinner here.
	Wait func(ctx context.Context, task tui.Task) (string, error)
	// Watch refreshes the context when project files change between turns.
	Watch bool
}

// App orchestrates one conversation: context, model calls, diff review.
type App struct {
	opts     Options
	cfg      *config.Config
	logger   *zap.Logger
	builder  *bundle.Builder
	resolver *fs.PathResolver
	store    *state.Store
	history  []llm.Turn
	bundle   *bundle.Bundle
	watcher  *watch.Watcher
}

// TurnResult is what one request produced.
type TurnResult struct {
	Response string
	Diffs    []parser.ParsedDiff
	// Diagnostics holds diff fragments that were excluded.
	Diagnostics []error
	// Review is nil when the response held no diffs.
	Review *review.Result
}

// New creates a new App rooted at opts.Root.
func New(opts Options) (*App, error) {
	if opts.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		opts.Root = wd
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	resolver, err := fs.NewPathResolver(opts.Root)
	if err != nil {
		return nil, err
	}
	maxFile, maxContext, err := cfg.Limits()
	if err != nil {
		return nil, err
	}
	builder := bundle.NewBuilder(bundle.Options{
		MaxFileSize:    maxFile,
		MaxContextSize: maxContext,
		IgnoreFiles:    cfg.Context.IgnoreFiles,
		Patterns:       cfg.Context.IgnorePatterns,
		Logger:         logger.Named("bundle"),
	})

	a := &App{
		opts:     opts,
		cfg:      cfg,
		logger:   logger,
		builder:  builder,
		resolver: resolver,
		store:    state.NewStore(resolver.Root()),
	}
	return a, nil
}

// Root is the absolute project root.
func (a *App) Root() string { return a.resolver.Root() }

// Store is the session archive.
func (a *App) Store() *state.Store { return a.store }

// History returns the conversation so far.
func (a *App) History() []llm.Turn { return a.history }

// Bundle returns the current context, building it on first use.
func (a *App) Bundle() (*bundle.Bundle, error) {
	if a.bundle == nil {
		return a.BuildContext()
	}
	return a.bundle, nil
}

// BuildContext rescans the project.
func (a *App) BuildContext() (*bundle.Bundle, error) {
	b, err := a.builder.Build(a.Root())
	if err != nil {
		return nil, err
	}
	a.bundle = b
	if a.opts.Watch {
		a.rewatch(b)
	}
	return b, nil
}

func (a *App) rewatch(b *bundle.Bundle) {
	if a.watcher != nil {
		a.watcher.Stop()
		a.watcher = nil
	}
	w, err := watch.New(a.Root(), b.Dirs, a.logger.Named("watch"))
	if err != nil {
		a.logger.Warn("file watching disabled", zap.Error(err))
		return
	}
	w.Start(context.Background())
	a.watcher = w
}

// Changed returns files edited outside the tool since the last call. It is
// always empty when watching is off.
func (a *App) Changed() []string {
	if a.watcher == nil {
		return nil
	}
	return a.watcher.Changed()
}

// Close releases the file watcher.
func (a *App) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
		a.watcher = nil
	}
}

func (a *App) patchOptions() patcher.Options {
	window := a.cfg.Patch.SearchWindow
	if window == 0 {
		window = -1
	}
	return patcher.Options{Window: window, Strict: !a.cfg.Patch.IgnoreWhitespace}
}

// Turn asks the backend about input and reviews any diffs in the answer.
func (a *App) Turn(ctx context.Context, input string) (*TurnResult, error) {
	text, err := a.Ask(ctx, input)
	if err != nil {
		return nil, err
	}
	return a.Review(ctx, text)
}

// Ask sends input with the conversation and the current context to the
// backend and records both sides in the history.
func (a *App) Ask(ctx context.Context, input string) (text string, err error) {
	defer recoverPanic(&err)

	b, err := a.Bundle()
	if err != nil {
		return "", err
	}

	a.history = append(a.history, llm.Turn{Role: llm.RoleUser, Text: input})
	req := llm.Request{
		Model:   a.cfg.Model,
		System:  a.cfg.SystemPrompt(a.cfg.Model),
		History: append([]llm.Turn(nil), a.history...),
		Context: b.Render(),
		Input:   input,
	}
	call := func(ctx context.Context) (string, error) { return a.opts.Backend.Complete(ctx, req) }

	if a.opts.Wait != nil {
		text, err = a.opts.Wait(ctx, call)
	} else {
		text, err = call(ctx)
	}
	if err != nil {
		a.logger.Warn("model request failed", zap.Error(err))
		return "", fmt.Errorf("model request failed: %w", err)
	}
	a.history = append(a.history, llm.Turn{Role: llm.RoleAssistant, Text: text})
	return text, nil
}

// Review runs the diffs of an answer past the configured decision source.
// The context is rebuilt when files were written.
func (a *App) Review(ctx context.Context, text string) (res *TurnResult, err error) {
	defer recoverPanic(&err)

	res, err = a.review(ctx, text, a.opts.Decisions)
	if err != nil {
		return res, err
	}
	if res.Review != nil && len(res.Review.Written()) > 0 {
		if _, err := a.BuildContext(); err != nil {
			return res, fmt.Errorf("failed to refresh context: %w", err)
		}
	}
	return res, nil
}

// ApplyText reviews the diffs found in text with src. No backend is involved.
func (a *App) ApplyText(ctx context.Context, text string, src review.DecisionSource) (res *TurnResult, err error) {
	defer recoverPanic(&err)
	if _, err := a.Bundle(); err != nil {
		return nil, err
	}
	return a.review(ctx, text, src)
}

func (a *App) review(ctx context.Context, text string, src review.DecisionSource) (*TurnResult, error) {
	diffs, diags := parser.Extract(text)
	res := &TurnResult{Response: text, Diffs: diffs, Diagnostics: diags}
	for _, d := range diags {
		a.logger.Info("diff fragment excluded", zap.Error(d))
	}
	if len(diffs) == 0 {
		return res, nil
	}
	if src == nil {
		return res, errors.New("no decision source configured")
	}

	opts := review.Options{
		Root:   a.Root(),
		Patch:  a.patchOptions(),
		Logger: a.logger.Named("review"),
	}
	if a.bundle != nil {
		opts.KnownPaths = a.bundle.Paths()
	}
	if a.cfg.Review.Archive {
		opts.Store = a.store
	}
	session, err := review.NewSession(opts)
	if err != nil {
		return res, err
	}
	res.Review, err = session.Review(ctx, diffs, src)
	return res, err
}

// Correct re-anchors the diffs found in text against the files on disk and
// returns them with corrected hunk headers. Hunks that cannot be located are
// dropped and reported.
func (a *App) Correct(text string) (string, []error) {
	diffs, errs := parser.Extract(text)
	var b strings.Builder
	for _, d := range diffs {
		var original string
		if !d.IsNew() {
			abs, err := a.resolver.Resolve(d.TargetPath())
			if err != nil {
				errs = append(errs, err)
				continue
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", d.TargetPath(), err))
				continue
			}
			original = string(data)
		}
		fixed, ferrs := patcher.Correct(original, d, a.patchOptions())
		for _, e := range ferrs {
			errs = append(errs, fmt.Errorf("%s: %w", d.TargetPath(), e))
		}
		if len(fixed.Hunks) > 0 {
			b.WriteString(parser.Format(fixed))
		}
	}
	return b.String(), errs
}

// Undo reverts the session whose ID starts with id, or the latest session
// that wrote files when id is empty.
func (a *App) Undo(id string) (state.SessionRecord, state.RevertResult, error) {
	var (
		rec state.SessionRecord
		err error
	)
	if id == "" {
		rec, err = a.store.Latest()
	} else {
		rec, err = a.store.Load(id)
	}
	if err != nil {
		return rec, state.RevertResult{}, err
	}
	res, err := a.store.Revert(rec)
	if err != nil {
		return rec, res, err
	}
	a.logger.Info("session reverted", zap.String("id", rec.ID),
		zap.Int("restored", len(res.Restored)), zap.Int("removed", len(res.Removed)))
	if a.bundle != nil {
		_, err = a.BuildContext()
	}
	return rec, res, err
}
