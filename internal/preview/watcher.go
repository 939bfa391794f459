package preview

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// debouncer collects changed paths and flushes them once no change arrived
// for the debounce delay.
type debouncer struct {
	delay time.Duration
	flush func(paths []string)

	mu    sync.Mutex
	timer *time.Timer
	paths map[string]struct{}
}

func newDebouncer(delay time.Duration, flush func([]string)) *debouncer {
	return &debouncer{delay: delay, flush: flush, paths: make(map[string]struct{})}
}

func (d *debouncer) add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paths[path] = struct{}{}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *debouncer) fire() {
	d.mu.Lock()
	paths := make([]string, 0, len(d.paths))
	for p := range d.paths {
		paths = append(paths, p)
	}
	d.paths = make(map[string]struct{})
	d.timer = nil
	d.mu.Unlock()

	if len(paths) == 0 {
		return
	}
	sort.Strings(paths)
	d.flush(paths)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// watcher reports changes below the watched directories and to single files.
type watcher struct {
	fs     *fsnotify.Watcher
	root   string
	dirs   []string
	files  map[string]bool
	logger *slog.Logger
}

// newWatcher watches dirs recursively and files individually. Missing
// directories are skipped; files are watched through their parent directory
// so editors that replace them on save are noticed.
func newWatcher(root string, dirs, files []string, logger *slog.Logger) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	w := &watcher{fs: fw, root: root, files: make(map[string]bool), logger: logger}
	for _, dir := range dirs {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			w.dirs = append(w.dirs, filepath.Clean(dir))
			w.addDirsRecursive(dir)
		}
	}
	for _, f := range files {
		w.files[filepath.Clean(f)] = true
		if err := fw.Add(filepath.Dir(f)); err != nil {
			logger.Warn("watch add failed", logfields.Path(f), logfields.Error(err))
		}
	}
	return w, nil
}

func (w *watcher) Close() error { return w.fs.Close() }

// run forwards relevant events to onChange until ctx is done.
func (w *watcher) run(ctx context.Context, onChange func(path string)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(ev, onChange)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", logfields.Error(err))
		}
	}
}

func (w *watcher) handleEvent(ev fsnotify.Event, onChange func(string)) {
	if ev.Op == fsnotify.Chmod || !w.relevant(ev.Name) {
		return
	}
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			w.addDirsRecursive(ev.Name)
		}
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		rel = ev.Name
	}
	rel = filepath.ToSlash(rel)
	w.logger.Debug("File change detected", logfields.Path(rel), slog.String("op", ev.Op.String()))
	onChange(rel)
}

// relevant reports whether a change to p should trigger a rebuild: p is a
// watched file or lies below a watched directory and is not editor noise.
func (w *watcher) relevant(p string) bool {
	p = filepath.Clean(p)
	if w.files[p] {
		return true
	}
	if shouldIgnoreEvent(p) {
		return false
	}
	for _, dir := range w.dirs {
		if strings.HasPrefix(p, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *watcher) addDirsRecursive(root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if err := w.fs.Add(path); err != nil {
				w.logger.Warn("watch add failed", slog.String("dir", path), logfields.Error(err))
			}
		}
		return nil
	})
}

// shouldIgnoreEvent returns true for filesystem events that should not trigger rebuilds.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)

	// Ignore hidden files
	if strings.HasPrefix(base, ".") {
		return true
	}

	// Ignore editor temp/swap files
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasSuffix(base, ".tmp") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}

	return base == "Thumbs.db"
}
