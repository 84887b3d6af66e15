package session

import (
	"log/slog"
	"sync"
	"time"
)

// Default debounce/maxFlush knobs from spec §4.5.
const (
	DefaultDebounce = 50 * time.Millisecond
	DefaultMaxFlush = 250 * time.Millisecond
)

// AutosaveScheduler debounces flushes of a single session: every edit
// reschedules a flush `Debounce` out, but a flush is forced once the
// oldest unflushed edit is older than `MaxFlush`.
type AutosaveScheduler struct {
	session  *Session
	log      *slog.Logger
	debounce time.Duration
	maxFlush time.Duration

	mu        sync.Mutex
	timer     *time.Timer
	oldestEdit time.Time
	stopped   bool
}

// NewAutosaveScheduler creates a scheduler bound to sess. Zero durations
// fall back to the spec defaults.
func NewAutosaveScheduler(sess *Session, log *slog.Logger, debounce, maxFlush time.Duration) *AutosaveScheduler {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if maxFlush <= 0 {
		maxFlush = DefaultMaxFlush
	}
	if log == nil {
		log = slog.Default()
	}
	return &AutosaveScheduler{session: sess, log: log, debounce: debounce, maxFlush: maxFlush}
}

// NotifyEdit must be called after every UpdateBufferContent. It
// (re-)schedules a flush `debounce` from now, forcing the flush sooner if
// the oldest pending edit is already older than maxFlush.
func (a *AutosaveScheduler) NotifyEdit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}

	now := time.Now()
	if a.oldestEdit.IsZero() {
		a.oldestEdit = now
	}

	delay := a.debounce
	if age := now.Sub(a.oldestEdit); age+a.debounce > a.maxFlush {
		if remaining := a.maxFlush - age; remaining > 0 {
			delay = remaining
		} else {
			delay = 0
		}
	}

	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(delay, a.flush)
}

func (a *AutosaveScheduler) flush() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.oldestEdit = time.Time{}
	a.mu.Unlock()

	if _, err := a.session.Autosave("autosave"); err != nil {
		a.log.Warn("autosave flush failed", "error", err)
	}
}

// Flush forces an immediate, synchronous flush. Per spec §4.5, teardown
// events (window close, app hide/resign-active/terminate) must call this
// and wait for it to return before the process's exit path proceeds — an
// async flush fired from a teardown hook loses the race with process exit.
func (a *AutosaveScheduler) Flush(reason string) error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.oldestEdit = time.Time{}
	a.mu.Unlock()

	_, err := a.session.Autosave(reason)
	return err
}

// Stop cancels any pending timer. Call when the session closes.
func (a *AutosaveScheduler) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
