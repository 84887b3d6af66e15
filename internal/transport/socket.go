// Package transport binds, accepts on, and dials the daemon's Unix domain
// socket, enforcing same-UID peer authentication and stale-socket recovery
// at bind time.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning is returned by Listen when a live peer already answers
// on the socket path.
var ErrAlreadyRunning = errors.New("transport: a daemon is already listening on this socket")

// ErrPeerUIDMismatch is returned by VerifyPeer when the connecting
// process's UID does not match the server's own.
var ErrPeerUIDMismatch = errors.New("transport: peer UID mismatch")

// Listen implements spec §4.6's bind sequence: ensure the parent directory,
// detect and clear a stale socket file, bind, listen, then lock the node
// down to the owning user.
func Listen(socketPath string) (net.Listener, error) {
	dir := filepath.Dir(socketPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("transport: mkdir %s: %w", dir, err)
	}

	lock := flock.New(socketPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("transport: acquire bind lock: %w", err)
	}
	if !locked {
		return nil, ErrAlreadyRunning
	}

	if _, err := os.Stat(socketPath); err == nil {
		if probeAlive(socketPath) {
			lock.Unlock()
			return nil, ErrAlreadyRunning
		}
		if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
			lock.Unlock()
			return nil, fmt.Errorf("transport: remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("transport: listen: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		ln.Close()
		lock.Unlock()
		return nil, fmt.Errorf("transport: chmod socket: %w", err)
	}

	return &bindLockedListener{Listener: ln, lock: lock, path: socketPath}, nil
}

// probeAlive attempts a short-lived connect to decide whether an existing
// socket file has a live peer behind it.
func probeAlive(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, 200*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// bindLockedListener releases the bind lock and unlinks the socket node
// when the listener closes, so a clean shutdown never leaves a stale file.
type bindLockedListener struct {
	net.Listener
	lock *flock.Flock
	path string
}

func (b *bindLockedListener) Close() error {
	err := b.Listener.Close()
	os.Remove(b.path)
	b.lock.Unlock()
	os.Remove(b.path + ".lock")
	return err
}

// VerifyPeer checks that conn's connecting process shares the server's
// effective UID. A failed credential lookup is treated as a mismatch
// (fail-closed). The actual credential syscall is platform-specific (see
// peercred_linux.go / peercred_darwin.go / peercred_other.go).
func VerifyPeer(conn *net.UnixConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPeerUIDMismatch, err)
	}

	var uid uint32
	var credErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		uid, credErr = peerCredUID(int(fd))
	})
	if ctrlErr != nil {
		return fmt.Errorf("%w: %v", ErrPeerUIDMismatch, ctrlErr)
	}
	if credErr != nil {
		return fmt.Errorf("%w: %v", ErrPeerUIDMismatch, credErr)
	}

	if uid != uint32(os.Geteuid()) {
		return ErrPeerUIDMismatch
	}
	return nil
}

// Dial connects to an existing daemon socket. The attempt is bounded only
// by ctx's deadline or cancellation.
func Dial(ctx context.Context, socketPath string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}
	return conn, nil
}
