package runner

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StartWatcher watches the runner template file for changes (dev mode).
// On change, the renderer reloads the template and onChange fires so the
// caller can log or broadcast. Events are debounced — editors tend to emit
// several writes per save.
func StartWatcher(ctx context.Context, r *Renderer, onChange func()) error {
	if r.srcPath == "" {
		return nil // embedded template, nothing to watch
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory, not the file: editors replace files on save,
	// which would drop a direct file watch.
	dir := filepath.Dir(r.srcPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go runWatcher(ctx, watcher, r, onChange)

	slog.Info("runner template watcher started", "path", r.srcPath)
	return nil
}

func runWatcher(ctx context.Context, watcher *fsnotify.Watcher, r *Renderer, onChange func()) {
	defer watcher.Close()

	target := filepath.Base(r.srcPath)

	var mu sync.Mutex
	var pending *time.Timer

	trigger := func() {
		mu.Lock()
		defer mu.Unlock()

		if pending != nil {
			pending.Stop()
		}
		pending = time.AfterFunc(200*time.Millisecond, func() {
			if err := r.Reload(); err != nil {
				slog.Warn("runner template reload", "err", err)
				return
			}
			slog.Debug("runner template reloaded")
			if onChange != nil {
				onChange()
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if pending != nil {
				pending.Stop()
			}
			mu.Unlock()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				trigger()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("runner template watcher error", "err", err)
		}
	}
}
