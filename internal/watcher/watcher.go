package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op is a file change.
type Op int

const (
	// OpCreate is a new file.
	OpCreate Op = iota
	// OpModify is new content in an existing file.
	OpModify
	// OpDelete is a removed or renamed-away file.
	OpDelete
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Event is one coalesced change to an absolute file path.
type Event struct {
	Path string
	Op   Op
}

// Options configures a Watcher.
type Options struct {
	// Debounce is how long a path must be quiet before its event is emitted.
	// Default: 500ms
	Debounce time.Duration

	// PollInterval is the scan period in polling mode. Default: 2s
	PollInterval time.Duration

	// ForcePolling skips fsnotify, for network mounts and container volumes.
	ForcePolling bool

	// Filter keeps files whose base name it accepts; nil keeps all.
	Filter func(name string) bool

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = 500 * time.Millisecond
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Watcher watches one folder tree. It is single-use.
type Watcher struct {
	opts      Options
	debouncer *Debouncer
	errors    chan error
	fs        *fsnotify.Watcher
	stopOnce  sync.Once
}

// New creates a Watcher, falling back to polling when fsnotify cannot start.
func New(opts Options) *Watcher {
	opts = opts.withDefaults()
	w := &Watcher{
		opts:      opts,
		debouncer: NewDebouncer(opts.Debounce),
		errors:    make(chan error, 10),
	}
	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			opts.Logger.Warn("fsnotify unavailable, polling instead", slog.String("error", err.Error()))
		} else {
			w.fs = fsw
		}
	}
	return w
}

// Polling reports whether the folder is scanned instead of notified.
func (w *Watcher) Polling() bool {
	return w.fs == nil
}

// Batches returns coalesced events. It is closed when Run returns.
func (w *Watcher) Batches() <-chan []Event {
	return w.debouncer.Output()
}

// Errors returns non-fatal watch errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Run watches dir until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	defer w.stop()

	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("cannot watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cannot watch %s: not a directory", dir)
	}

	if w.fs != nil {
		return w.runNotify(ctx, root)
	}
	return w.runPolling(ctx, root)
}

func (w *Watcher) stop() {
	w.stopOnce.Do(func() {
		if w.fs != nil {
			_ = w.fs.Close()
		}
		w.debouncer.Stop()
	})
}

func (w *Watcher) runNotify(ctx context.Context, root string) error {
	if err := w.addTree(root); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handleNotify(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// addTree watches dir and every non-hidden directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && hidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

func (w *Watcher) handleNotify(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !hidden(filepath.Base(ev.Name)) {
				if err := w.addTree(ev.Name); err != nil {
					w.emitError(err)
				}
				w.queueTree(ev.Name)
			}
			return
		}
	}

	var op Op
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return
	}
	w.queue(ev.Name, op)
}

// queueTree reports files already inside a directory that appeared after
// its parent was watched, such as one moved in whole.
func (w *Watcher) queueTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && hidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		w.queue(path, OpCreate)
		return nil
	})
}

func (w *Watcher) queue(path string, op Op) {
	name := filepath.Base(path)
	if hidden(name) || strings.HasSuffix(name, "~") {
		return
	}
	if w.opts.Filter != nil && !w.opts.Filter(name) {
		return
	}
	w.debouncer.Add(Event{Path: path, Op: op})
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		w.opts.Logger.Warn("watcher error dropped", slog.String("error", err.Error()))
	}
}

// hidden matches dotfiles and editor lock files.
func hidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$")
}
