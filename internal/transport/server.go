package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/ehrlich-b/edad/internal/rpc"
	"github.com/ehrlich-b/edad/internal/telemetry"
)

// Server accepts connections on a pre-bound listener and runs a
// request-at-a-time dispatch loop on each. Per spec §4.6, concurrent
// requests on one connection are not required, but multiple connections
// run in parallel.
type Server struct {
	ln         net.Listener
	dispatcher *rpc.Dispatcher
	telem      *telemetry.Recorder
	log        *slog.Logger
	maxFrame   int
}

// NewServer wraps ln (from Listen) with dispatcher. telem may be nil, in
// which case per-RPC latency simply isn't recorded.
func NewServer(ln net.Listener, dispatcher *rpc.Dispatcher, telem *telemetry.Recorder, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{ln: ln, dispatcher: dispatcher, telem: telem, log: log, maxFrame: rpc.DefaultMaxFrameBytes}
}

// Serve accepts connections until the listener closes or ctx is done.
// Every connection is a same-UID peer; mismatches are rejected immediately.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			s.log.Warn("transport: accept error", "error", err)
			continue
		}

		if uc, ok := conn.(*net.UnixConn); ok {
			if err := VerifyPeer(uc); err != nil {
				s.log.Warn("transport: rejecting connection with unverified peer", "error", err)
				conn.Close()
				continue
			}
		}

		go s.handleConn(ctx, conn)
	}
}

// ServeStdio runs the same request-at-a-time dispatch loop as Serve, but
// over an already-trusted stream pair (a co-launched daemon's stdin and
// stdout under --stdio) instead of an accepted socket connection. There is
// no peer-credential check: the parent process that spawned the stream is
// implicitly trusted. It returns when reading a frame from r fails (EOF
// included); ctx is passed to each dispatched request but does not
// interrupt a blocked read.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	framer := rpc.NewFramer(r, w, s.maxFrame)
	s.dispatchLoop(ctx, framer)
	return nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	framer := rpc.NewFramer(conn, conn, s.maxFrame)
	s.dispatchLoop(ctx, framer)
}

func (s *Server) dispatchLoop(ctx context.Context, framer *rpc.Framer) {
	for {
		body, err := framer.ReadFrame()
		if err != nil {
			if err != io.EOF {
				s.log.Debug("transport: connection closed", "error", err)
			}
			return
		}

		var req rpc.Request
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(framer, nil, rpc.CodeInvalidRequest, "malformed JSON envelope")
			continue
		}

		start := time.Now()
		resp := s.dispatcher.Dispatch(ctx, req)
		if s.telem != nil {
			s.telem.Observe(req.Method, time.Since(start), resp.Error != nil)
		}
		if req.IsNotification() {
			continue
		}

		out, err := json.Marshal(resp)
		if err != nil {
			s.log.Error("transport: marshal response failed", "error", err)
			return
		}
		if err := framer.WriteFrame(out); err != nil {
			s.log.Debug("transport: write failed, dropping connection", "error", err)
			return
		}
	}
}

func (s *Server) writeError(framer *rpc.Framer, id json.RawMessage, code int, msg string) {
	resp := rpc.Response{JSONRPC: "2.0", ID: id, Error: rpc.NewError(code, msg, nil)}
	out, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_ = framer.WriteFrame(out)
}
