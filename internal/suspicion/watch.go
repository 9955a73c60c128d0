package suspicion

import (
	"context"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchTables reloads the tables file on change and installs the result
// into engine. A file that fails to load is logged and the previous tables
// stay active. onReload, if set, sees the outcome of every reload. Runs
// until ctx is cancelled.
//
// The parent directory is watched rather than the file, so saves that
// rename a temp file over path and symlink swaps keep being seen.
func WatchTables(ctx context.Context, path string, engine *Engine, onReload func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target, _ := filepath.EvalSymlinks(path)
	log.Printf("rules: watching %s", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			current, _ := filepath.EvalSymlinks(path)
			written := filepath.Clean(ev.Name) == path && ev.Has(fsnotify.Write|fsnotify.Create)
			swapped := current != "" && current != target
			if !written && !swapped {
				continue
			}
			target = current

			t, err := LoadTables(path)
			if onReload != nil {
				onReload(err)
			}
			if err != nil {
				log.Printf("rules: reload failed, keeping previous tables: %v", err)
				continue
			}
			engine.SetTables(t)
			log.Printf("rules: reloaded %s", path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("rules: watcher error: %v", err)
		}
	}
}
