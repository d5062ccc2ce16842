// Package watch is the filesystem watch collaborator. It watches every file
// the engine reads during a bundle and reports changes; the façade turns a
// change into an invalidation, so a burst of notifications costs a single
// rebundle on the next read.
package watch

import (
	"errors"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/bundle-hub/bundle-hub/internal/events"
)

// Target is the part of the engine the watcher needs.
type Target interface {
	On(name string, fn events.Listener) func()
	TrackWatch(file string, handle io.Closer)
	Untrack(file string)
}

// Options configures Arm.
type Options struct {
	// OnChange runs for every relevant notification on a watched file.
	OnChange func(file string)
	// OnSettle runs once Debounce has elapsed without further changes.
	// Nil disables eager rebundling.
	OnSettle func()
	Debounce time.Duration
	Logger   *logrus.Logger
}

// DefaultDebounce is used when Options.Debounce is zero and OnSettle is set.
const DefaultDebounce = 100 * time.Millisecond

// Watcher owns one fsnotify watcher shared by all per-file handles.
type Watcher struct {
	fsw    *fsnotify.Watcher
	target Target
	opts   Options
	logger *logrus.Logger
	off    func()

	mu     sync.Mutex
	files  map[string]struct{}
	timer  *time.Timer
	closed bool
	done   chan struct{}
}

// Arm subscribes to the target's file events and starts watching.
func Arm(target Target, opts Options) (*Watcher, error) {
	if target == nil {
		return nil, errors.New("watch target required")
	}
	if opts.OnChange == nil {
		return nil, errors.New("change callback required")
	}
	if opts.OnSettle != nil && opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:    fsw,
		target: target,
		opts:   opts,
		logger: logger,
		files:  make(map[string]struct{}),
		done:   make(chan struct{}),
	}
	w.off = target.On(events.File, func(ev events.Event) {
		if ev.File != "" {
			w.Add(ev.File)
		}
	})

	go w.run()
	return w, nil
}

// Add starts watching file and hands its handle to the target.
func (w *Watcher) Add(file string) {
	file = filepath.Clean(file)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if _, ok := w.files[file]; ok {
		w.mu.Unlock()
		return
	}
	if err := w.fsw.Add(file); err != nil {
		w.mu.Unlock()
		w.logger.WithError(err).WithField("file", file).Warn("watch_add_failed")
		return
	}
	w.files[file] = struct{}{}
	w.mu.Unlock()

	w.target.TrackWatch(file, &handle{w: w, file: file})
}

// Files lists the currently watched files.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for file := range w.files {
		out = append(out, file)
	}
	return out
}

// Close stops watching everything. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	files := make([]string, 0, len(w.files))
	for file := range w.files {
		files = append(files, file)
	}
	w.files = make(map[string]struct{})
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	w.off()
	for _, file := range files {
		w.target.Untrack(file)
	}
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) remove(file string) error {
	w.mu.Lock()
	if _, ok := w.files[file]; !ok {
		w.mu.Unlock()
		return nil
	}
	delete(w.files, file)
	closed := w.closed
	w.mu.Unlock()

	w.target.Untrack(file)
	if closed {
		return nil
	}
	if err := w.fsw.Remove(file); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
		return err
	}
	return nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("watch_error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	file := filepath.Clean(event.Name)

	w.mu.Lock()
	_, tracked := w.files[file]
	closed := w.closed
	w.mu.Unlock()
	if !tracked || closed {
		return
	}

	// Editors often replace files by rename; watch the new inode at the same path.
	if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
		_ = w.fsw.Add(file)
	}

	w.logger.WithFields(logrus.Fields{"action": "watch", "file": file, "op": event.Op.String()}).Debug("file changed")
	w.opts.OnChange(file)
	w.schedule()
}

func (w *Watcher) schedule() {
	if w.opts.OnSettle == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.Debounce, w.settle)
}

func (w *Watcher) settle() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	w.mu.Unlock()
	w.opts.OnSettle()
}

// handle is the per-file closeable the engine keeps in its watch table.
type handle struct {
	w    *Watcher
	file string
}

func (h *handle) Close() error {
	return h.w.remove(h.file)
}
