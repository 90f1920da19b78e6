package static

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/trezcool/studentnotes/core"
)

// DefaultDebounce groups the bursts of events editors emit for a single save.
const DefaultDebounce = 200 * time.Millisecond

var ignoredDirs = map[string]bool{".git": true, "node_modules": true, ".DS_Store": true}

// Watcher notifies a callback when files under a content root change.
type Watcher struct {
	root     string
	debounce time.Duration
	onChange func()
	logger   core.Logger

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// NewWatcher returns a Watcher on the root directory. onChange runs once per burst of events.
func NewWatcher(root string, debounce time.Duration, onChange func(), logger core.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{root: root, debounce: debounce, onChange: onChange, logger: logger}
}

// Start watches the root recursively until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating watcher")
	}
	if err := w.addRecursive(watcher, w.root); err != nil {
		_ = watcher.Close()
		return err
	}
	w.watcher = watcher

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()
	return nil
}

// Wait blocks until the watch loop returned.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

func (w *Watcher) addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return errors.Wrapf(err, "watching %s", root)
			}
			return nil // skip, keep walking
		}
		if !d.IsDir() {
			return nil
		}
		if ignoredDirs[d.Name()] && path != root {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return errors.Wrapf(err, "watching %s", path)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.watcher.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.ignored(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(w.watcher, event.Name)
				}
			}
			if !pending {
				pending = true
			} else if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			pending = false
			if w.logger != nil {
				w.logger.Debug(fmt.Sprintf("content changed under %s", w.root))
			}
			w.onChange()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Error("content watcher", errors.WithStack(err))
			}
		}
	}
}

func (w *Watcher) ignored(name string) bool {
	rel, err := filepath.Rel(w.root, name)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if ignoredDirs[part] || strings.HasPrefix(part, ".#") || strings.HasSuffix(part, "~") {
			return true
		}
	}
	return false
}
