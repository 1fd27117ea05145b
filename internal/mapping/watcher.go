package mapping

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces editor write bursts into one reload.
const debounceWindow = 250 * time.Millisecond

// Watcher keeps a mapping engine hot-reloaded from a config file.
// Readers get the current engine from Engine(); a bad config on disk
// keeps the previous engine active and surfaces the error through
// OnError.
type Watcher struct {
	path    string
	engine  atomic.Pointer[Engine]
	watcher *fsnotify.Watcher

	// OnReload and OnError are optional callbacks; both may be nil.
	OnReload func(*Engine)
	OnError  func(error)
}

// NewWatcher loads the config once and starts watching its directory.
// Watching the directory instead of the file survives the
// rename-and-replace dance editors and atomic writers do.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{path: path, watcher: fsw}
	w.engine.Store(engine)
	return w, nil
}

// Engine returns the current engine. Safe for concurrent use with
// reloads.
func (w *Watcher) Engine() *Engine {
	return w.engine.Load()
}

// Run processes file events until the context is canceled. Call it from
// its own goroutine.
func (w *Watcher) Run(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounceWindow)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.OnError != nil {
				w.OnError(err)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		if w.OnError != nil {
			w.OnError(err)
		}
		return
	}
	engine, err := NewEngine(cfg)
	if err != nil {
		if w.OnError != nil {
			w.OnError(err)
		}
		return
	}
	w.engine.Store(engine)
	if w.OnReload != nil {
		w.OnReload(engine)
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
