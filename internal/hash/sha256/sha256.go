// Package sha256 derives archive keys from source URLs.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher turns a source URL into the fixed-length key of its raw archive object.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex SHA-256 of data. Equal URLs always map to
// the same archive key, so a rerun overwrites rather than accumulates.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
