package plugin

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// watchDebounce coalesces bursts of filesystem events into a single
// reconcile. An unpack or rm -rf of a plugin directory produces many
// events in quick succession.
const watchDebounce = 250 * time.Millisecond

// ContextFunc builds a fresh Context for a reconcile pass, so
// lifecycle hooks triggered by external changes see current host
// state.
type ContextFunc func() *Context

// Watcher observes the plugins root and reconciles the manager when
// plugin directories appear, vanish, or get renamed.
type Watcher struct {
	manager *Manager
	log     logrus.FieldLogger
	ctxFn   ContextFunc

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher creates a watcher bound to the manager's plugins root.
// The root must exist before Start is called.
func NewWatcher(manager *Manager, ctxFn ContextFunc, log logrus.FieldLogger) *Watcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Watcher{
		manager: manager,
		log:     log,
		ctxFn:   ctxFn,
		done:    make(chan struct{}),
	}
}

// Start begins watching. It returns once the watch is established; the
// event loop runs in its own goroutine until Stop.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.manager.Root()); err != nil {
		fsw.Close()
		return err
	}
	w.fsw = fsw

	go w.loop()
	w.log.Debugf("watching plugins directory: %s", w.manager.Root())
	return nil
}

// Stop ends the watch and waits for the event loop to drain.
func (w *Watcher) Stop() {
	if w.fsw == nil {
		return
	}
	w.fsw.Close()
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(watchDebounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Errorf("plugin watcher error: %v", err)

		case <-fire:
			fire = nil
			w.reconcile()
		}
	}
}

func (w *Watcher) reconcile() {
	var ctx *Context
	if w.ctxFn != nil {
		ctx = w.ctxFn()
	}
	if err := w.manager.Reconcile(ctx); err != nil {
		w.log.Errorf("plugin reconcile failed: %v", err)
	}
}

// relevant filters for structural changes at the plugins root. Writes
// inside a plugin directory do not change the loaded set.
func relevant(ev fsnotify.Event) bool {
	return ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}
