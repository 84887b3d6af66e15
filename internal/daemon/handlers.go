package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/ehrlich-b/edad/internal/fsio"
	"github.com/ehrlich-b/edad/internal/rpc"
)

// RegisterHandlers wires every method in spec §6.1's wire table onto
// dispatcher, dispatching into svc. Protocol-version enforcement is driven
// entirely by svc.cfg.ProtocolVersion/MinProtocolVersion: there is no
// separate hardcoded constant for handlers to drift out of sync with.
func RegisterHandlers(dispatcher *rpc.Dispatcher, svc *Service) {
	dispatcher.Register("hello", svc.handleHello)
	dispatcher.Register("session.open", svc.handleSessionOpen)
	dispatcher.Register("session.reload", svc.handleSessionReload)
	dispatcher.Register("session.save", svc.handleSessionSave)
	dispatcher.Register("session.waitForRevision", svc.handleWaitForRevision)
	dispatcher.Register("session.wait", svc.handleWait)
	dispatcher.Register("session.close", svc.handleSessionClose)
	dispatcher.Register("app.quit", svc.handleAppQuit)
}

type helloParams struct {
	Client          string `json:"client"`
	ClientVersion   string `json:"clientVersion,omitempty"`
	ProtocolVersion int    `json:"protocolVersion,omitempty"`
}

type helloResult struct {
	ProtocolVersion int          `json:"protocolVersion"`
	Capabilities    capabilities `json:"capabilities"`
	ServerPID       int          `json:"serverPid"`
}

type capabilities struct {
	SupportsWait       bool `json:"supportsWait"`
	SupportsAgentDraft bool `json:"supportsAgentDraft"`
	SupportsQuit       bool `json:"supportsQuit"`
}

func (s *Service) handleHello(ctx context.Context, raw json.RawMessage) (any, error) {
	var p helloParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, rpc.NewError(rpc.CodeInvalidParams, "invalid hello params", nil)
		}
	}
	return helloResult{
		ProtocolVersion: s.cfg.ProtocolVersion,
		Capabilities: capabilities{
			SupportsWait:       true,
			SupportsAgentDraft: false,
			SupportsQuit:       true,
		},
		ServerPID: os.Getpid(),
	}, nil
}

type sessionOpenParams struct {
	Path   string `json:"path" validate:"required"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
	Cwd    string `json:"cwd,omitempty"`
	// ProtocolVersion is a pointer so an explicit 0 (spec §8 Scenario E's
	// literal too-old trigger) is distinguishable from the field being
	// omitted entirely; omitempty only affects marshaling, not decode.
	ProtocolVersion *int `json:"protocolVersion,omitempty"`
}

type sessionOpenResult struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
	Content   string `json:"content"`
	Revision  string `json:"revision"`
	IsDirty   bool   `json:"isDirty"`
}

func (s *Service) handleSessionOpen(ctx context.Context, raw json.RawMessage) (any, error) {
	var p sessionOpenParams
	if verr := rpc.DecodeParams(raw, &p); verr != nil {
		return nil, verr
	}
	if p.ProtocolVersion != nil && *p.ProtocolVersion < s.cfg.MinProtocolVersion {
		return nil, rpc.NewError(rpc.CodeProtocolVersion, "client protocol version is too old", map[string]int{
			"minProtocolVersion":    s.cfg.MinProtocolVersion,
			"serverProtocolVersion": s.cfg.ProtocolVersion,
		})
	}

	info, err := s.Open(p.Path)
	if err != nil {
		return nil, translateSessionError(err)
	}
	return sessionOpenResult{
		SessionID: info.SessionID,
		Path:      info.Path,
		Content:   info.Content,
		Revision:  info.Revision,
		IsDirty:   info.IsDirty,
	}, nil
}

type sessionIDParams struct {
	SessionID string `json:"sessionId" validate:"required"`
}

type reloadResult struct {
	Content  string `json:"content"`
	Revision string `json:"revision"`
}

func (s *Service) handleSessionReload(ctx context.Context, raw json.RawMessage) (any, error) {
	var p sessionIDParams
	if verr := rpc.DecodeParams(raw, &p); verr != nil {
		return nil, verr
	}
	sess, ok := s.Get(p.SessionID)
	if !ok {
		return nil, unknownSessionError(p.SessionID)
	}
	sess.Touch()
	s.Touch(p.SessionID)

	info, err := sess.ApplyExternalDiskChange()
	if err != nil {
		return nil, translateSessionError(err)
	}
	if info == nil {
		cur := sess.Info()
		return reloadResult{Content: cur.Content, Revision: cur.Revision}, nil
	}
	return reloadResult{Content: info.Content, Revision: info.Revision}, nil
}

type sessionSaveParams struct {
	SessionID    string `json:"sessionId" validate:"required"`
	Content      string `json:"content"`
	BaseRevision string `json:"baseRevision,omitempty"`
	Force        bool   `json:"force,omitempty"`
}

type sessionSaveResult struct {
	OK       bool   `json:"ok"`
	Revision string `json:"revision"`
}

func (s *Service) handleSessionSave(ctx context.Context, raw json.RawMessage) (any, error) {
	var p sessionSaveParams
	if verr := rpc.DecodeParams(raw, &p); verr != nil {
		return nil, verr
	}
	sess, ok := s.Get(p.SessionID)
	if !ok {
		return nil, unknownSessionError(p.SessionID)
	}
	sess.Touch()
	s.Touch(p.SessionID)

	if p.BaseRevision != "" && !p.Force {
		cur := sess.Info()
		if cur.Revision != p.BaseRevision {
			return nil, rpc.NewError(rpc.CodeSaveConflict, "save would overwrite a newer revision", map[string]string{
				"currentRevision": cur.Revision,
			})
		}
	}

	sess.UpdateBufferContent(p.Content)
	if sched, ok := s.Autosave(p.SessionID); ok {
		sched.NotifyEdit()
	}

	info, err := sess.Autosave("save")
	if err != nil {
		return nil, translateSessionError(err)
	}
	if info == nil {
		cur := sess.Info()
		return sessionSaveResult{OK: true, Revision: cur.Revision}, nil
	}
	return sessionSaveResult{OK: true, Revision: info.Revision}, nil
}

type waitForRevisionParams struct {
	SessionID    string `json:"sessionId" validate:"required"`
	BaseRevision string `json:"baseRevision" validate:"required"`
	TimeoutMs    int    `json:"timeoutMs,omitempty"`
}

type waitForRevisionResult struct {
	Content  string `json:"content"`
	Revision string `json:"revision"`
	Changed  bool   `json:"changed"`
}

func (s *Service) handleWaitForRevision(ctx context.Context, raw json.RawMessage) (any, error) {
	var p waitForRevisionParams
	if verr := rpc.DecodeParams(raw, &p); verr != nil {
		return nil, verr
	}
	sess, ok := s.Get(p.SessionID)
	if !ok {
		return nil, unknownSessionError(p.SessionID)
	}
	sess.Touch()
	s.Touch(p.SessionID)

	res := sess.WaitForRevision(ctx, p.BaseRevision, time.Duration(p.TimeoutMs)*time.Millisecond)
	return waitForRevisionResult{Content: res.Content, Revision: res.Revision, Changed: res.Changed}, nil
}

type waitParams struct {
	SessionID string `json:"sessionId" validate:"required"`
	TimeoutMs int     `json:"timeoutMs,omitempty"`
}

type waitResult struct {
	Reason string `json:"reason"`
}

func (s *Service) handleWait(ctx context.Context, raw json.RawMessage) (any, error) {
	var p waitParams
	if verr := rpc.DecodeParams(raw, &p); verr != nil {
		return nil, verr
	}
	sess, ok := s.Get(p.SessionID)
	if !ok {
		return nil, unknownSessionError(p.SessionID)
	}

	res := sess.Wait(ctx, time.Duration(p.TimeoutMs)*time.Millisecond)
	return waitResult{Reason: string(res.Reason)}, nil
}

type closeResult struct {
	OK bool `json:"ok"`
}

func (s *Service) handleSessionClose(ctx context.Context, raw json.RawMessage) (any, error) {
	var p sessionIDParams
	if verr := rpc.DecodeParams(raw, &p); verr != nil {
		return nil, verr
	}
	ok := s.Close(p.SessionID)
	return closeResult{OK: ok}, nil
}

func (s *Service) handleAppQuit(ctx context.Context, raw json.RawMessage) (any, error) {
	s.Shutdown()
	go func() {
		time.Sleep(50 * time.Millisecond)
		if s.onQuit != nil {
			s.onQuit()
		}
	}()
	return closeResult{OK: true}, nil
}

func unknownSessionError(id string) *rpc.Error {
	return rpc.Errorf(rpc.CodeUnknownSession, "unknown sessionId: %s", id)
}

func translateSessionError(err error) *rpc.Error {
	if appErr, ok := err.(*rpc.Error); ok {
		return appErr
	}
	var tooLarge *fsio.FileTooLargeError
	if errors.As(err, &tooLarge) {
		return rpc.NewError(rpc.CodeFileTooLarge, err.Error(), map[string]int64{
			"size": tooLarge.Size, "maxSize": tooLarge.MaxSize,
		})
	}
	if errors.Is(err, fsio.ErrNotAFile) {
		return rpc.NewError(rpc.CodeNotAFile, err.Error(), nil)
	}
	return rpc.NewError(rpc.CodeIOError, err.Error(), nil)
}
