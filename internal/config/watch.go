package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultReloadDebounce = 250 * time.Millisecond

// Watcher reloads a config file when it changes on disk or when Reload is called.
// Invalid content is reported through onError and the caller keeps its previous config.
type Watcher struct {
	path     string
	logger   *slog.Logger
	onReload func(Loaded)
	onError  func(error)
	reload   chan struct{}
	debounce time.Duration
	notifier func() (*fsnotify.Watcher, error)
}

// NewWatcher constructs a watcher for path. Callbacks run on the Run goroutine.
func NewWatcher(path string, logger *slog.Logger, onReload func(Loaded), onError func(error)) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if onReload == nil {
		onReload = func(Loaded) {}
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &Watcher{
		path:     path,
		logger:   logger,
		onReload: onReload,
		onError:  onError,
		reload:   make(chan struct{}, 1),
		debounce: defaultReloadDebounce,
		notifier: fsnotify.NewWatcher,
	}
}

// Reload requests an immediate reload. Requests made while one is pending coalesce.
func (w *Watcher) Reload() {
	select {
	case w.reload <- struct{}{}:
	default:
	}
}

// Run watches the config directory until ctx is cancelled. When the directory
// cannot be watched, only explicit Reload requests are served.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if watcher := w.watch(); watcher != nil {
		defer watcher.Close()
		events, errs = watcher.Events, watcher.Errors
	}

	target := filepath.Clean(w.path)
	var chanReload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-w.reload:
			chanReload = nil
			w.load()

		case <-chanReload:
			chanReload = nil
			w.load()

		case event, ok := <-events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Editors write in bursts; reload once the burst settles.
			chanReload = time.After(w.debounce)

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "error", err.Error())
		}
	}
}

// watch subscribes to the config directory. It returns nil when file changes
// cannot be observed.
func (w *Watcher) watch() *fsnotify.Watcher {
	dir := filepath.Dir(w.path)
	watcher, err := w.notifier()
	if err != nil {
		w.logger.Warn("config watcher unavailable; reload on signal only", "dir", dir, "error", err.Error())
		return nil
	}
	if err := watcher.Add(dir); err != nil {
		w.logger.Warn("config directory not watched; reload on signal only", "dir", dir, "error", err.Error())
		_ = watcher.Close()
		return nil
	}
	return watcher
}

func (w *Watcher) load() {
	loaded, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload rejected; keeping previous config", "path", w.path, "error", err.Error())
		w.onError(err)
		return
	}
	for _, warning := range loaded.Warnings {
		w.logger.Warn("config warning", "path", loaded.Path, "warning", warning.String())
	}
	w.logger.Info("config reloaded", "path", loaded.Path, "exists", loaded.Exists)
	w.onReload(loaded)
}
