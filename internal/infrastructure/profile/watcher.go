package profile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 250 * time.Millisecond

// ReloadObserver is told about every reload attempt.
type ReloadObserver func(err error)

type WatcherOptions struct {
	Debounce time.Duration
	Logger   *slog.Logger
	OnReload ReloadObserver
}

// Watcher reloads the profile when the profile or résumé file changes.
// Directories are watched rather than files so editor rename-on-save is seen.
type Watcher struct {
	loader   *Loader
	provider *Provider
	debounce time.Duration
	logger   *slog.Logger
	onReload ReloadObserver

	mu      sync.Mutex
	running bool
	watcher *fsnotify.Watcher
	targets map[string]struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewWatcher(loader *Loader, provider *Provider, opts WatcherOptions) *Watcher {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	targets := map[string]struct{}{filepath.Clean(loader.Path()): {}}
	if resume := loader.ResumePath(); resume != "" {
		targets[filepath.Clean(resume)] = struct{}{}
	}
	return &Watcher{
		loader:   loader,
		provider: provider,
		debounce: debounce,
		logger:   logger,
		onReload: opts.OnReload,
		targets:  targets,
	}
}

// Start is non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create profile watcher: %w", err)
	}
	dirs := make(map[string]struct{})
	for target := range w.targets {
		dirs[filepath.Dir(target)] = struct{}{}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	w.watcher = fsw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true
	go w.run(ctx)
	return nil
}

// Stop waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	doneCh := w.doneCh
	fsw := w.watcher
	w.mu.Unlock()

	<-doneCh
	if err := fsw.Close(); err != nil {
		w.logger.Warn("profile_watcher_close_failed", "error", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

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
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("profile_watcher_error", "error", err)
		case <-timerC:
			timerC = nil
			w.reload(ctx)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	_, ok := w.targets[filepath.Clean(event.Name)]
	return ok
}

// reload keeps the previous profile when the new document is broken.
func (w *Watcher) reload(ctx context.Context) {
	profile, err := w.loader.Load(ctx)
	if w.onReload != nil {
		w.onReload(err)
	}
	if err != nil {
		w.logger.Error("profile_reload_failed", "path", w.loader.Path(), "error", err)
		return
	}
	w.provider.Set(profile)
	w.logger.Info("profile_reloaded", "path", w.loader.Path(), "name", profile.Name)
}
