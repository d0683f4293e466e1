package knowledge

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

type FileOperation int

const (
	FileCreated FileOperation = iota + 1
	FileModified
	FileDeleted
)

type FileEvent struct {
	Path      string
	Operation FileOperation
}

// Watcher reports changes to knowledge files under a directory tree.
type Watcher struct {
	watcher *fsnotify.Watcher
}

func NewWatcher() (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{watcher: w}, nil
}

// Watch starts monitoring root and its subdirectories. The channel is closed
// when ctx is done or the watcher is stopped.
func (w *Watcher) Watch(ctx context.Context, root string) (<-chan FileEvent, error) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	events := make(chan FileEvent, 100)

	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) && isDir(event.Name) {
					if err := w.watcher.Add(event.Name); err != nil {
						slog.WarnContext(ctx, "failed to watch new directory", "path", event.Name, "error", err)
					}
					continue
				}
				if !IsSupported(event.Name) {
					continue
				}

				var op FileOperation
				switch {
				case event.Has(fsnotify.Create):
					op = FileCreated
				case event.Has(fsnotify.Write):
					op = FileModified
				case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
					op = FileDeleted
				default:
					continue
				}

				select {
				case events <- FileEvent{Path: event.Name, Operation: op}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "knowledge watcher error", "error", err)
			}
		}
	}()

	return events, nil
}

func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
