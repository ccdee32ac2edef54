// Package util holds small helpers shared across packages.
package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey derives a stable cache key from parts. Parts are length-prefixed
// so that ("ab", "c") and ("a", "bc") hash differently.
func HashKey(parts ...string) string {
	hasher := sha256.New()
	var prefix [8]byte
	for _, p := range parts {
		n := uint64(len(p))
		for i := range prefix {
			prefix[i] = byte(n >> (8 * i))
		}
		hasher.Write(prefix[:])
		hasher.Write([]byte(p))
	}
	return hex.EncodeToString(hasher.Sum(nil))[:32]
}
