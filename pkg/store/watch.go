package store

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle is how long a file must stay quiet before a change is reported.
const settle = 250 * time.Millisecond

// Watch reports changed files of the layout until ctx is done. Bursts of
// events on one file, such as a stage-and-rename install, are reported once.
func (l Layout) Watch(ctx context.Context, changed func(File)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(l.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", l.Dir, err)
	}

	files := make(map[string]File)
	for _, f := range l.Files() {
		files[f.Name] = f
	}
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			if _, known := files[name]; !known {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				pending[name] = time.Now()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", l.Dir, err)
		case now := <-ticker.C:
			for name, at := range pending {
				if now.Sub(at) >= settle {
					delete(pending, name)
					changed(files[name])
				}
			}
		}
	}
}
