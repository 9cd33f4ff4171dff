package scenario

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchSettle coalesces the burst of events editors emit for one save.
const watchSettle = 100 * time.Millisecond

// Watch runs the scenario at path once, then again after every change to the
// file, until ctx is done. Load and replay errors are handed to onRun rather
// than stopping the watch.
func Watch(ctx context.Context, path string, onRun func(*Trace, error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve scenario path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close() // nolint:errcheck // best-effort cleanup

	// Watch the directory: editors often replace the file instead of writing it.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	replay := func() {
		s, err := Load(abs)
		if err != nil {
			onRun(nil, err)
			return
		}
		onRun(Run(s))
	}
	replay()

	settle := time.NewTimer(watchSettle)
	settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			settle.Reset(watchSettle)
		case <-settle.C:
			replay()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			onRun(nil, fmt.Errorf("watch error: %w", err))
		}
	}
}
