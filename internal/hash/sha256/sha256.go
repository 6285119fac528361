// Package sha256 provides the SHA-256 digests behind job fingerprints.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements crawler.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	return h.Sum(string(data)), nil
}

// Sum returns the hex digest of the concatenated parts.
func (h *Hasher) Sum(parts ...string) string {
	d := sha256.New()
	for _, p := range parts {
		_, _ = d.Write([]byte(p))
	}
	return hex.EncodeToString(d.Sum(nil))
}
