// Package sha256 fingerprints lookup payloads for completion events.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements country.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data. An empty payload hashes to "".
func (h *Hasher) Hash(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
