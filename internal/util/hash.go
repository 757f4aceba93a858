package util

import (
	"crypto/sha256"
	"encoding/hex"
)

func SHA256Hex(b []byte) string {
	x := sha256.Sum256(b)
	return hex.EncodeToString(x[:])
}

// Fingerprint returns a short stable digest of a secret, safe to use as a
// session-registry key component without retaining the secret itself.
func Fingerprint(secret string) string {
	return SHA256Hex([]byte(secret))[:16]
}
