package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"
)

// logSalt and logInfo fix the HKDF parameters used to derive a snapshot
// log's on-disk filename from a canonical file path, the same
// ECDH-then-HKDF shape the daemon's predecessor used to derive transport
// keys: a stable salt plus a purpose string, so file moves never collide
// and the filename leaks nothing about the original path.
var logSalt = make([]byte, 32)

const logInfo = "edad-snapshot-log"

// LogFileName returns the deterministic basename (without extension) of the
// on-disk snapshot log for canonicalPath.
func LogFileName(canonicalPath string) string {
	kdf := hkdf.New(sha256.New, []byte(canonicalPath), logSalt, []byte(logInfo))
	out := make([]byte, 32)
	// hkdf.New never fails on Read for a valid hash constructor; the error
	// path only triggers if more entropy is requested than the hash mode
	// allows, which 32 bytes of SHA-256 output never does.
	if _, err := io.ReadFull(kdf, out); err != nil {
		panic("snapshot: hkdf expand: " + err.Error())
	}
	return hex.EncodeToString(out)
}
