package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random 128-bit identifier encoded as hex.
// Used for connection ids where a uuid would be overkill on the wire.
func NewID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
