package ids

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns a 16-char random hex identifier.
func New() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
