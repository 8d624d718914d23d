package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashString returns a hex sha256 digest, used for cache keys.
func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// HashKey joins parts with a separator before hashing so that
// ("ab","c") and ("a","bc") produce different keys.
func HashKey(parts ...string) string {
	return HashString(strings.Join(parts, "\x1f"))
}
