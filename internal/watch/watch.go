// Package watch notices edits made to the project outside the tool, so the
// conversation can refresh its context before the next request.
package watch

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/sokinpui/code-llm/internal/ignore"
)

// Watcher records which files changed under a set of directories.
type Watcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	root    string
	changed map[string]struct{}
	logger  *zap.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// New watches dirs, given relative to root ("." is the root itself).
// Directories that cannot be watched are logged and skipped.
func New(root string, dirs []string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher: fw,
		root:    root,
		changed: make(map[string]struct{}),
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, d := range dirs {
		if err := fw.Add(filepath.Join(root, filepath.FromSlash(d))); err != nil {
			logger.Warn("cannot watch directory", zap.String("dir", d), zap.Error(err))
		}
	}
	return w, nil
}

// Start runs the event loop until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()
	go w.run(ctx)
}

// Stop ends the event loop and releases the watches.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("closing watcher", zap.Error(err))
	}
}

// Changed returns the paths changed since the last call, sorted, and
// forgets them.
func (w *Watcher) Changed() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.changed))
	for p := range w.changed {
		out = append(out, p)
	}
	clear(w.changed)
	sort.Strings(out)
	return out
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if rel == ignore.ToolDir || strings.HasPrefix(rel, ignore.ToolDir+"/") || strings.Contains(filepath.Base(rel), ".code-llm-tmp-") {
		return
	}
	w.logger.Debug("project changed", zap.String("path", rel), zap.String("op", event.Op.String()))
	w.mu.Lock()
	w.changed[rel] = struct{}{}
	w.mu.Unlock()
}
