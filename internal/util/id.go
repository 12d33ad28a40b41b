package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns 128 random bits in hex, joined to prefix with "_" when a
// prefix is given. Used for request ids and bridge origins.
func NewID(prefix string) string {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		panic("util: crypto/rand unavailable: " + err.Error())
	}
	id := hex.EncodeToString(raw[:])
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
