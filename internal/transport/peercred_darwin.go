//go:build darwin

package transport

import "golang.org/x/sys/unix"

// peerCredUID reads the connecting process's effective UID off fd via
// LOCAL_PEERCRED, the BSD/Darwin equivalent of Linux's SO_PEERCRED.
func peerCredUID(fd int) (uint32, error) {
	xucred, err := unix.GetsockoptXucred(fd, unix.SOL_LOCAL, unix.LOCAL_PEERCRED)
	if err != nil {
		return 0, err
	}
	return xucred.Uid, nil
}
