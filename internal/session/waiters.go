package session

import (
	"context"
	"time"
)

// WaitResult is returned by Wait.
type WaitResult struct {
	Reason CloseReason
}

// Wait suspends until the session closes or timeout elapses. It is the
// CLI's block-until-user-is-done primitive (session.wait on the wire).
func (s *Session) Wait(ctx context.Context, timeout time.Duration) WaitResult {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return WaitResult{Reason: CloseReasonUserClosed}
	}
	ch := make(chan CloseReason, 1)
	s.closeWaiters = append(s.closeWaiters, ch)
	s.mu.Unlock()

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case reason := <-ch:
		return WaitResult{Reason: reason}
	case <-timeoutC:
		s.removeCloseWaiter(ch)
		return WaitResult{Reason: CloseReasonTimeout}
	case <-ctx.Done():
		s.removeCloseWaiter(ch)
		return WaitResult{Reason: CloseReasonTimeout}
	}
}

// RevisionWaitResult is returned by WaitForRevision.
type RevisionWaitResult struct {
	Content string
	Revision string
	Changed bool
}

// WaitForRevision returns immediately if the current revision differs
// from baseRevision; otherwise it suspends until any change or timeout.
func (s *Session) WaitForRevision(ctx context.Context, baseRevision string, timeout time.Duration) RevisionWaitResult {
	s.mu.Lock()
	if s.diskRevision != baseRevision || s.closed {
		res := RevisionWaitResult{Content: s.content, Revision: s.diskRevision, Changed: s.diskRevision != baseRevision}
		s.mu.Unlock()
		return res
	}
	w := &revisionWaiter{baseRevision: baseRevision, result: make(chan revisionResult, 1)}
	s.revisionWaiters = append(s.revisionWaiters, w)
	s.mu.Unlock()

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case r := <-w.result:
		return RevisionWaitResult{Content: r.content, Revision: r.rev, Changed: r.changed}
	case <-timeoutC:
		s.removeRevisionWaiter(w)
		s.mu.Lock()
		cur := s.diskRevision
		content := s.content
		s.mu.Unlock()
		return RevisionWaitResult{Content: content, Revision: cur, Changed: false}
	case <-ctx.Done():
		s.removeRevisionWaiter(w)
		s.mu.Lock()
		cur := s.diskRevision
		content := s.content
		s.mu.Unlock()
		return RevisionWaitResult{Content: content, Revision: cur, Changed: false}
	}
}

func (s *Session) removeCloseWaiter(target chan CloseReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ch := range s.closeWaiters {
		if ch == target {
			s.closeWaiters = append(s.closeWaiters[:i], s.closeWaiters[i+1:]...)
			return
		}
	}
}

func (s *Session) removeRevisionWaiter(target *revisionWaiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.revisionWaiters {
		if w == target {
			s.revisionWaiters = append(s.revisionWaiters[:i], s.revisionWaiters[i+1:]...)
			return
		}
	}
}

// resolveCloseWaitersLocked must be called with s.mu held.
func (s *Session) resolveCloseWaitersLocked(reason CloseReason) {
	for _, ch := range s.closeWaiters {
		select {
		case ch <- reason:
		default:
		}
	}
	s.closeWaiters = nil
}

// resolveRevisionWaitersLocked must be called with s.mu held.
func (s *Session) resolveRevisionWaitersLocked(res revisionResult) {
	for _, w := range s.revisionWaiters {
		r := res
		r.changed = r.rev != w.baseRevision
		select {
		case w.result <- r:
		default:
		}
	}
	s.revisionWaiters = nil
}
