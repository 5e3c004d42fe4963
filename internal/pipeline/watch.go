package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces bursts of file events into one run.
const watchDebounce = 500 * time.Millisecond

// Watch runs the pipeline, then re-runs it whenever the raw events file
// changes. It blocks until the context is cancelled. Failed runs are
// logged and watching continues.
func (e *Engine) Watch(ctx context.Context, env string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the containing directory so the file can be replaced
	// atomically (write to temp, rename over).
	rawPath := filepath.Clean(e.cfg.RawPath)
	if err := watcher.Add(filepath.Dir(rawPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(rawPath), err)
	}

	e.logger.Info("watching for changes", "path", rawPath)

	if _, err := e.Run(ctx, env); err != nil {
		e.logger.Error("run failed", "error", err)
	}

	var debounce *time.Timer
	runs := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != rawPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			e.logger.Debug("change detected", "event", event.Op.String(), "path", event.Name)
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				select {
				case runs <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Error("watch error", "error", err)

		case <-runs:
			if _, err := e.Run(ctx, env); err != nil {
				e.logger.Error("run failed", "error", err)
			}
		}
	}
}
