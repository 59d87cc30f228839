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

// PathID derives a stable document id from a watched-file path.
func PathID(path string) string {
	h := sha256.Sum256([]byte(path))
	return "fs_" + hex.EncodeToString(h[:8])
}
