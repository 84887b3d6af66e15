// Package daemon implements the Daemon Service: the process-wide registry
// of live sessions, the reuse/recycle policy for their editor windows, the
// orphan sweeper, and the protocol-version handshake and shutdown
// sequence that every RPC handler ultimately calls into.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/ehrlich-b/edad/internal/config"
	"github.com/ehrlich-b/edad/internal/registry"
	"github.com/ehrlich-b/edad/internal/session"
	"github.com/ehrlich-b/edad/internal/snapshot"
	"github.com/ehrlich-b/edad/internal/watcher"
)

// Window is the core's view of a live editor window: opaque, owned by the
// GUI layer, which the core never constructs or renders.
type Window interface {
	// Alive reports whether the window is still open and usable.
	Alive() bool
	// Focus brings the window to the foreground (used on session reuse).
	Focus()
	// Close tears the window down.
	Close()
}

// WindowFactory constructs a Window for a freshly opened session, or
// reuses one from the recycle pool when recycled is non-nil.
type WindowFactory func(recycled Window) Window

type entry struct {
	session   *session.Session
	autosave  *session.AutosaveScheduler
	window    Window
	path      string
	stopWatch chan struct{}
}

// Service is the Daemon Service of spec §4.8.
type Service struct {
	cfg   config.Config
	log   *slog.Logger
	store *snapshot.Store
	reg   *registry.Registry

	newWindow WindowFactory

	mu          sync.Mutex
	sessions    map[string]*entry // sessionId -> entry
	pathIndex   map[string]string // normalized path -> sessionId
	recyclePool []Window

	sweepCancel context.CancelFunc
	onQuit      func()
}

// OnQuit registers a callback run shortly after app.quit's response has
// been sent, used by cmd/edad to unbind the socket and exit.
func (s *Service) OnQuit(fn func()) {
	s.onQuit = fn
}

// New creates a Service. newWindow must be supplied by the GUI layer; it
// is never invoked by anything outside session.open/recycle handling. reg
// may be nil, in which case the crash-forensic registry is simply not
// written to.
func New(cfg config.Config, store *snapshot.Store, newWindow WindowFactory, reg *registry.Registry, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg:       cfg,
		log:       log,
		store:     store,
		reg:       reg,
		newWindow: newWindow,
		sessions:  make(map[string]*entry),
		pathIndex: make(map[string]string),
	}
}

// Touch updates a session's last-active timestamp in the diagnostic
// registry. Best-effort: a failure here is logged and never surfaced to
// the caller.
func (s *Service) Touch(sessionID string) {
	if s.reg == nil {
		return
	}
	if err := s.reg.Touch(sessionID, time.Now()); err != nil {
		s.log.Warn("daemon: registry touch failed", "sessionId", sessionID, "error", err)
	}
}

// StartOrphanSweep launches the background sweeper described in spec
// §4.8: every cfg.OrphanSweepInterval, remove sessions whose window is
// closed and whose last touch exceeds cfg.OrphanIdleThreshold.
func (s *Service) StartOrphanSweep(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.sweepCancel = cancel
	interval := s.cfg.OrphanSweepInterval()
	if interval <= 0 {
		interval = 60 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepOrphans()
			}
		}
	}()
}

func (s *Service) sweepOrphans() {
	threshold := s.cfg.OrphanIdleThreshold()
	if threshold <= 0 {
		threshold = 5 * time.Minute
	}
	cutoff := time.Now().Add(-threshold)

	s.mu.Lock()
	var doomed []string
	for id, e := range s.sessions {
		if e.window != nil && e.window.Alive() {
			continue
		}
		if e.session.LastTouch().After(cutoff) {
			continue
		}
		doomed = append(doomed, id)
	}
	for _, id := range doomed {
		s.removeLocked(id)
	}
	s.mu.Unlock()

	for _, id := range doomed {
		s.log.Info("daemon: swept orphaned session", "sessionId", id)
	}
}

// removeLocked must be called with s.mu held.
func (s *Service) removeLocked(sessionID string) {
	e, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	if e.autosave != nil {
		e.autosave.Stop()
	}
	if e.stopWatch != nil {
		close(e.stopWatch)
	}
	delete(s.sessions, sessionID)
	if s.pathIndex[e.path] == sessionID {
		delete(s.pathIndex, e.path)
	}
	if e.window != nil {
		s.recyclePool = append(s.recyclePool, e.window)
	}
}

// Open implements session.open's reuse/recycle policy: if a live session
// exists for path and its window is alive, reuse it; otherwise open a new
// session, pulling a window from the recycle pool when one is available.
func (s *Service) Open(path string) (session.Info, error) {
	norm, err := normalizePath(path)
	if err != nil {
		return session.Info{}, fmt.Errorf("daemon: normalize path: %w", err)
	}

	s.mu.Lock()
	if sessionID, ok := s.pathIndex[norm]; ok {
		if e, ok := s.sessions[sessionID]; ok && e.window != nil && e.window.Alive() {
			e.window.Focus()
			s.mu.Unlock()
			return e.session.Info(), nil
		}
	}
	s.mu.Unlock()

	sess := session.New(s.store, s.log, s.cfg.HistoryRingMaxCount, s.cfg.HistoryRingMaxBytes, s.cfg.MaxReadBytes)
	info, err := sess.Open(norm)
	if err != nil {
		return session.Info{}, err
	}

	s.mu.Lock()
	var win Window
	if len(s.recyclePool) > 0 {
		win = s.recyclePool[len(s.recyclePool)-1]
		s.recyclePool = s.recyclePool[:len(s.recyclePool)-1]
	}
	if s.newWindow != nil {
		win = s.newWindow(win)
	}
	autosave := session.NewAutosaveScheduler(sess, s.log, s.cfg.AutosaveDebounce(), s.cfg.AutosaveMaxFlush())
	stopWatch := make(chan struct{})

	e := &entry{session: sess, autosave: autosave, window: win, path: norm, stopWatch: stopWatch}
	if old, ok := s.pathIndex[norm]; ok {
		s.removeLocked(old)
	}
	s.sessions[info.SessionID] = e
	s.pathIndex[norm] = info.SessionID
	s.mu.Unlock()

	go s.watchSession(sess, stopWatch)

	if s.reg != nil {
		if err := s.reg.RecordOpen(info.SessionID, norm, time.Now()); err != nil {
			s.log.Warn("daemon: registry record open failed", "sessionId", info.SessionID, "error", err)
		}
	}

	return info, nil
}

// watchSession reconciles sess against external disk changes for as long
// as it stays open: it reacts immediately to fsnotify's coalesced signal
// and, alongside that, runs watcher.PollUntil as a fallback poll for
// volumes where fsnotify is known to miss events. Stopped by closing stop,
// which removeLocked does when the session is removed.
func (s *Service) watchSession(sess *session.Session, stop chan struct{}) {
	pollStop := make(chan struct{})
	defer close(pollStop)
	go watcher.PollUntil(pollStop, func() {
		if _, err := sess.ApplyExternalDiskChange(); err != nil {
			s.log.Warn("daemon: poll fallback reconcile failed", "sessionId", sess.SessionID(), "error", err)
		}
	})

	changed := sess.WatcherChanged()
	if changed == nil {
		<-stop
		return
	}
	for {
		select {
		case <-stop:
			return
		case <-changed:
			if _, err := sess.ApplyExternalDiskChange(); err != nil {
				s.log.Warn("daemon: watcher reconcile failed", "sessionId", sess.SessionID(), "error", err)
			}
		}
	}
}

// Get returns the entry's session for sessionID, or false if unknown.
func (s *Service) Get(sessionID string) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Autosave returns the entry's scheduler for sessionID, or false if
// unknown.
func (s *Service) Autosave(sessionID string) (*session.AutosaveScheduler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return e.autosave, true
}

// Close marks sessionID closed and pools its window for recycling.
func (s *Service) Close(sessionID string) bool {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	if e.autosave != nil {
		_ = e.autosave.Flush("window_close")
		e.autosave.Stop()
	}
	e.session.MarkClosed()
	if e.window != nil {
		e.window.Close()
	}
	if s.reg != nil {
		if err := s.reg.RecordClose(sessionID, time.Now()); err != nil {
			s.log.Warn("daemon: registry record close failed", "sessionId", sessionID, "error", err)
		}
	}

	s.mu.Lock()
	s.removeLocked(sessionID)
	s.mu.Unlock()
	return true
}

// Shutdown implements app.quit's contract: flush every session
// synchronously, resume every waiter, then return. The caller is
// responsible for unbinding the socket and exiting after this returns.
func (s *Service) Shutdown() {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		if e.autosave != nil {
			if err := e.autosave.Flush("app_quit"); err != nil {
				s.log.Warn("daemon: shutdown flush failed", "sessionId", e.session.SessionID(), "error", err)
			}
		}
		e.session.MarkClosed()
		if s.reg != nil {
			if err := s.reg.RecordClose(e.session.SessionID(), time.Now()); err != nil {
				s.log.Warn("daemon: registry record close failed", "sessionId", e.session.SessionID(), "error", err)
			}
		}
	}

	if s.sweepCancel != nil {
		s.sweepCancel()
	}
}

func normalizePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}
