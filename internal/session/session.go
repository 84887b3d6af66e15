// Package session implements the actor-style per-file buffer that sits at
// the center of the daemon: it owns the in-memory content, the disk
// revision, the dirty flag, the in-memory snapshot ring, and the waiters
// that let RPC handlers long-poll for a close or a revision change.
//
// Every exported method on Session reads and writes its fields under a
// single mutex. Open, Autosave, ApplyExternalDiskChange and RestoreSnapshot
// do their disk work with that mutex released and take it again only to
// commit, so the pre-commit ordering (disk work before state mutation)
// holds, but these operations can interleave with other calls on the same
// session; Autosave leaves the buffer dirty when an edit lands during its
// write.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehrlich-b/edad/internal/fsio"
	"github.com/ehrlich-b/edad/internal/revision"
	"github.com/ehrlich-b/edad/internal/snapshot"
	"github.com/ehrlich-b/edad/internal/watcher"
)

// Banner messages set in Info.BannerMessage after an external change was
// applied over the buffer (or recoverable snapshots were found at open), and
// after a snapshot restore.
const (
	BannerExternalChange = "File changed externally. Newest version applied. You can restore your previous buffer."
	BannerRestored       = "Restored a previous version. Save to keep it."
)

// MaxReadBytes is the default read cap used when New is given a zero
// maxReadBytes.
const MaxReadBytes = 2 << 20 // 2 MiB

// Info is the externally visible snapshot of a Session's state, returned
// by every operation that changes it.
type Info struct {
	SessionID           string
	Path                string
	Content             string
	Revision            string
	IsDirty             bool
	ConflictSnapshotID  string
	BannerMessage       string
	Closed              bool
}

// CloseReason is returned to session.wait callers.
type CloseReason string

const (
	CloseReasonUserClosed CloseReason = "userClosed"
	CloseReasonTimeout    CloseReason = "timeout"
)

// Session is one (live editor window, file) pair. Exported methods take the
// session's mutex themselves; callers must not hold it.
type Session struct {
	mu sync.Mutex

	log *slog.Logger

	store   *snapshot.Store
	history *snapshot.History

	historyMaxCount int
	historyMaxBytes int64
	maxReadBytes    int64

	sessionID string
	path      string
	content   string

	diskRevision       string
	isDirty            bool
	conflictSnapshotID string
	bannerMessage      string
	closed             bool

	watcher *watcher.Watcher

	closeWaiters    []chan CloseReason
	revisionWaiters []*revisionWaiter

	lastTouch time.Time
}

type revisionWaiter struct {
	baseRevision string
	result       chan revisionResult
}

type revisionResult struct {
	content string
	rev     string
	changed bool
}

// New constructs a Session bound to store for snapshot persistence. It is
// not yet open: callers must call Open before using it. historyMaxCount and
// historyMaxBytes size the in-memory snapshot ring every subsequent Open
// resets to; zero values fall back to snapshot.DefaultHistoryMaxCount/Bytes.
// maxReadBytes caps how large a file Open/ApplyExternalDiskChange will read
// into memory; zero falls back to MaxReadBytes.
func New(store *snapshot.Store, log *slog.Logger, historyMaxCount int, historyMaxBytes int64, maxReadBytes int64) *Session {
	if log == nil {
		log = slog.Default()
	}
	if maxReadBytes <= 0 {
		maxReadBytes = MaxReadBytes
	}
	return &Session{
		store:           store,
		history:         snapshot.NewHistory(historyMaxCount, historyMaxBytes),
		historyMaxCount: historyMaxCount,
		historyMaxBytes: historyMaxBytes,
		maxReadBytes:    maxReadBytes,
		log:             log,
	}
}

// Open implements spec §4.4.1's open operation: read-then-snapshot before
// any field mutation, so a failure here never corrupts a live session.
func (s *Session) Open(path string) (Info, error) {
	if err := fsio.EnsureFile(path); err != nil {
		return Info{}, fmt.Errorf("session: ensure file: %w", err)
	}
	text, err := fsio.ReadText(path, s.maxReadBytes)
	if err != nil {
		return Info{}, fmt.Errorf("session: read file: %w", err)
	}

	records, err := s.store.Load(path)
	if err != nil {
		s.log.Warn("session open: snapshot load failed, continuing without history", "path", path, "error", err)
		records = nil
	}

	rev := revision.Of(text)
	openID, err := s.store.Append(path, snapshot.ReasonOpenBuffer, text)
	if err != nil {
		s.log.Warn("session open: snapshot append failed, continuing", "path", path, "error", err)
		openID = ""
	}

	w, err := watcher.New(path)
	if err != nil {
		return Info{}, fmt.Errorf("session: watcher setup: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// open is destructive to any prior waiters on this object: resolve them
	// before resetting state, per spec.
	s.resolveCloseWaitersLocked(CloseReasonUserClosed)
	s.resolveRevisionWaitersLocked(revisionResult{content: s.content, rev: s.diskRevision, changed: true})

	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.watcher = w

	s.sessionID = uuid.NewString()
	s.path = path
	s.content = text
	s.diskRevision = rev
	s.isDirty = false
	s.closed = false
	s.conflictSnapshotID = ""
	s.bannerMessage = ""
	s.history = snapshot.NewHistory(s.historyMaxCount, s.historyMaxBytes)
	if openID != "" {
		s.history.Push(snapshot.Record{ID: openID, CreatedAt: time.Now().UTC(), Reason: snapshot.ReasonOpenBuffer, Content: text, ContentHash: ""})
	}
	s.lastTouch = time.Now()

	for _, r := range records {
		if r.Content != text {
			s.conflictSnapshotID = r.ID
			s.bannerMessage = BannerExternalChange
			break
		}
	}

	return s.infoLocked(), nil
}

// UpdateBufferContent replaces content and marks the session dirty. It
// never touches disk.
func (s *Session) UpdateBufferContent(text string) Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = text
	s.isDirty = true
	s.touchLocked()
	return s.infoLocked()
}

// Autosave persists the current buffer if dirty. If the buffer is already
// clean it returns the current info unchanged; a nil, nil return means the
// session is closed and nothing was written.
func (s *Session) Autosave(reason string) (*Info, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil
	}
	if !s.isDirty {
		info := s.infoLocked()
		s.mu.Unlock()
		return &info, nil
	}
	content := s.content
	path := s.path
	s.mu.Unlock()

	if _, err := s.store.Append(path, reason, content); err != nil {
		s.log.Warn("autosave: snapshot append failed, continuing", "path", path, "error", err)
	}

	rev, err := fsio.WriteTextAtomically(content, path)
	if err != nil {
		return nil, fmt.Errorf("session: autosave write: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.diskRevision = rev
	if s.content == content {
		s.isDirty = false
		s.conflictSnapshotID = ""
		s.bannerMessage = ""
	}
	// else: UpdateBufferContent raced us while the write was in flight. The
	// write still landed `content` on disk, so diskRevision is accurate,
	// but the buffer now holds newer content than what got persisted.
	// isDirty stays true; the edit that raced us already scheduled its own
	// autosave, which will pick up the newer content on its next flush.
	s.touchLocked()
	s.resolveRevisionWaitersLocked(revisionResult{content: s.content, rev: rev, changed: true})
	info := s.infoLocked()
	return &info, nil
}

// ApplyExternalDiskChange re-reads the file and reconciles it with the
// in-memory buffer per spec §4.4.1.
func (s *Session) ApplyExternalDiskChange() (*Info, error) {
	s.mu.Lock()
	path := s.path
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, nil
	}

	diskText, err := fsio.ReadText(path, s.maxReadBytes)
	if err != nil {
		return nil, fmt.Errorf("session: external reload: %w", err)
	}
	diskRev := revision.Of(diskText)

	s.mu.Lock()
	defer s.mu.Unlock()

	if diskRev == s.diskRevision {
		return nil, nil
	}

	if s.isDirty {
		id, err := s.store.Append(path, snapshot.ReasonBeforeExternalApply, s.content)
		if err != nil {
			s.log.Warn("external change: snapshot append failed, continuing", "path", path, "error", err)
		} else {
			s.conflictSnapshotID = id
		}
		s.bannerMessage = BannerExternalChange
	}

	s.content = diskText
	s.diskRevision = diskRev
	s.isDirty = false
	s.touchLocked()
	s.resolveRevisionWaitersLocked(revisionResult{content: s.content, rev: diskRev, changed: true})

	info := s.infoLocked()
	return &info, nil
}

// RestoreSnapshot loads a previously captured snapshot back into the
// buffer. The next autosave persists it to disk.
func (s *Session) RestoreSnapshot(ctx context.Context, id string) (*Info, error) {
	s.mu.Lock()
	path := s.path
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, nil
	}

	rec, ok, err := s.store.Get(path, id)
	if err != nil {
		return nil, fmt.Errorf("session: load snapshot: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("session: snapshot %q not found", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = rec.Content
	s.isDirty = true
	s.conflictSnapshotID = ""
	s.bannerMessage = BannerRestored
	s.touchLocked()
	info := s.infoLocked()
	return &info, nil
}

// MarkClosed transitions the session to Closed and resolves every waiter.
func (s *Session) MarkClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.resolveCloseWaitersLocked(CloseReasonUserClosed)
	s.resolveRevisionWaitersLocked(revisionResult{})
}

// Info returns the current externally visible state.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

// Touch records the session as recently active, for orphan sweeping.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
}

// LastTouch reports the last time the session was touched by an RPC.
func (s *Session) LastTouch() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTouch
}

// Path returns the session's normalized file path.
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// SessionID returns the session's current opaque id.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// WatcherChanged exposes the underlying directory watcher's change channel so the
// daemon can pump ApplyExternalDiskChange on signal.
func (s *Session) WatcherChanged() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Changed()
}

func (s *Session) touchLocked() {
	s.lastTouch = time.Now()
}

func (s *Session) infoLocked() Info {
	return Info{
		SessionID:          s.sessionID,
		Path:               s.path,
		Content:            s.content,
		Revision:           s.diskRevision,
		IsDirty:            s.isDirty,
		ConflictSnapshotID: s.conflictSnapshotID,
		BannerMessage:      s.bannerMessage,
		Closed:             s.closed,
	}
}
