//go:build !linux && !darwin

package transport

import "errors"

// peerCredUID has no implementation outside Linux/Darwin; VerifyPeer's
// fail-closed contract rejects the connection rather than skip the check.
func peerCredUID(fd int) (uint32, error) {
	return 0, errors.New("transport: peer credential lookup not supported on this platform")
}
