package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// String is Sum for string content such as serialized page snapshots.
func String(s string) string {
	return Sum([]byte(s))
}

// ETag returns the digest in quoted entity-tag form.
func ETag(data []byte) string {
	return `"` + Sum(data) + `"`
}
