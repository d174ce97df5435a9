package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random 32-hex-char identifier, optionally prefixed
// ("wrk_", "seg_", "vot_", ...) so rows are recognizable in logs.
func NewID(prefix string) string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	id := hex.EncodeToString(b)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
