// Package watcher turns raw fsnotify events for one file into a single
// coalesced "something changed" signal. It never interprets content — the
// caller re-reads disk and decides what happened. A polling fallback covers
// network volumes where fsnotify is known to miss events.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettleWindow coalesces bursts of kernel events (e.g. a write
// followed by a chmod) into one signal.
const DefaultSettleWindow = 20 * time.Millisecond

// DefaultPollInterval drives the fallback poll (PollUntil), covering
// filesystems where notify events are unreliable.
const DefaultPollInterval = 20 * time.Millisecond

// Watcher watches a single file (via its enclosing directory, since some
// editors replace files by rename) and emits a coalesced signal on Changed
// whenever the file is written, renamed, removed, or a sibling rename
// might have replaced it.
type Watcher struct {
	path    string
	dir     string
	changed chan struct{}

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc

	closeOnce sync.Once
	closed    chan struct{}
}

// New starts watching path's enclosing directory. The returned Watcher must
// be closed with Stop when the owning session closes.
func New(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:    path,
		dir:     dir,
		changed: make(chan struct{}, 1),
		fsw:     fsw,
		cancel:  cancel,
		closed:  make(chan struct{}),
	}
	go w.run(ctx)
	return w, nil
}

// Changed fires (a buffered, coalesced signal) whenever a watched event
// settles. Multiple kernel events collapse into a single send.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changed
}

func (w *Watcher) run(ctx context.Context) {
	var settleTimer *time.Timer
	var settleC <-chan time.Time

	notify := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(DefaultSettleWindow)
			settleC = settleTimer.C
			return
		}
		if !settleTimer.Stop() {
			select {
			case <-settleTimer.C:
			default:
			}
		}
		settleTimer.Reset(DefaultSettleWindow)
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) ||
				event.Has(fsnotify.Chmod) {
				notify()
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Watcher errors are non-fatal: the poll fallback still covers us.
		case <-settleC:
			settleTimer = nil
			settleC = nil
			select {
			case w.changed <- struct{}{}:
			default:
			}
		}
	}
}

// Stop cancels the watcher and releases its file descriptor. Idempotent:
// calling Stop twice never double-closes the underlying descriptor.
func (w *Watcher) Stop() {
	w.closeOnce.Do(func() {
		w.cancel()
		w.fsw.Close()
		close(w.closed)
	})
}

// PollUntil runs fn every DefaultPollInterval until stop is closed, to cover
// platforms/volumes where fsnotify misses events. Closing stop is the
// caller's responsibility, or this goroutine leaks; the daemon runs one per
// open session and closes stop when the session is removed.
func PollUntil(stop <-chan struct{}, fn func()) {
	ticker := time.NewTicker(DefaultPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			fn()
		}
	}
}
