// Package revision computes the content fingerprint used to identify buffer
// and file state throughout the daemon. A revision is never a version
// counter — it is a deterministic digest of content bytes, so two buffers
// with identical text always compare equal regardless of how they got there.
package revision

import (
	"crypto/sha256"
	"encoding/hex"
)

// Prefix is prepended to every revision string so the wire format is
// self-describing and future hash algorithms can be introduced without
// breaking clients that treat revisions as opaque tokens.
const Prefix = "sha256:"

// Of returns the revision of text: "sha256:" followed by the lowercase hex
// SHA-256 digest of its UTF-8 bytes.
func Of(text string) string {
	sum := sha256.Sum256([]byte(text))
	return Prefix + hex.EncodeToString(sum[:])
}

// Equal reports whether two revision strings identify the same content.
// Revisions are opaque tokens; this is just a readability helper over ==.
func Equal(a, b string) bool {
	return a == b
}
