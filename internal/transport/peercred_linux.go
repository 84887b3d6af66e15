//go:build linux

package transport

import "golang.org/x/sys/unix"

// peerCredUID reads the connecting process's effective UID off fd via
// SO_PEERCRED, the Linux credential-passing mechanism.
func peerCredUID(fd int) (uint32, error) {
	cred, err := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return 0, err
	}
	return cred.Uid, nil
}
