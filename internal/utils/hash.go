package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

const fingerprintLen = 12

func HashString(s string) string {
	hasher := sha256.New()
	hasher.Write([]byte(s))
	return hex.EncodeToString(hasher.Sum(nil))
}

// Fingerprint returns a short, log-safe identifier for a secret. Empty input
// yields an empty fingerprint.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	return HashString(secret)[:fingerprintLen]
}
