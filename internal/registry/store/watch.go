package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	dErrors "attesto/pkg/domain-errors"
)

const (
	watchPollInterval = 250 * time.Millisecond
	defaultDebounce   = 300 * time.Millisecond
)

// Watcher re-applies the seed file whenever it changes, registering issuers
// added at runtime without a restart. Reload failures are logged and the
// previous registry state keeps serving; a broken edit never takes the
// service down.
type Watcher struct {
	path      string
	registrar Registrar
	logger    *slog.Logger
	debounce  time.Duration
}

type WatcherOption func(w *Watcher)

func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithDebounce overrides the quiet period after the last write before a
// reload runs. Tests shorten it.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher constructs a watcher for the seed file at path.
func NewWatcher(path string, registrar Registrar, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:      path,
		registrar: registrar,
		logger:    slog.Default(),
		debounce:  defaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks watching the seed file until ctx is cancelled.
//
// The watch is on the directory, not the file: editors and configmap mounts
// replace the file by rename, which silently drops a direct file watch.
// Events are debounced so a reload sees the fully written file.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "seed watcher init failed")
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "seed watcher add failed")
	}
	w.logger.InfoContext(ctx, "watching issuer seed file", "path", w.path)

	target := filepath.Base(w.path)
	var pending bool
	var lastEvent time.Time
	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = true
			lastEvent = time.Now()

		case <-ticker.C:
			if pending && time.Since(lastEvent) >= w.debounce {
				pending = false
				w.reload(ctx)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.ErrorContext(ctx, "seed watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	file, err := LoadSeed(w.path)
	if err != nil {
		w.logger.ErrorContext(ctx, "seed reload failed, keeping current registry", "error", err)
		return
	}
	added, err := file.Apply(ctx, w.registrar)
	if err != nil {
		w.logger.ErrorContext(ctx, "seed reload applied with errors", "added", added, "error", err)
		return
	}
	if added > 0 {
		w.logger.InfoContext(ctx, "seed reload registered new issuers", "added", added)
	}
}
