package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Hex returns the hex-encoded SHA256 hash of the input string.
func SHA256Hex(input string) string {
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:])
}

// Prefix returns the first n characters of SHA256Hex(input). Short prefixes are
// enough to correlate log lines without writing the raw value.
func Prefix(input string, n int) string {
	full := SHA256Hex(input)
	if n > len(full) || n < 0 {
		return full
	}
	return full[:n]
}

// Redact returns a log-safe fingerprint of a secret, or "" when the secret is unset.
func Redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "sha256:" + Prefix(secret, 8)
}
