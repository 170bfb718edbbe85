package utils

import (
	"strings"

	"github.com/google/uuid"
)

// TruncateString truncates a string to at most max bytes, used for logging
// previews of request and response bodies.
func TruncateString(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

// GenerateRequestID returns a short unique identifier for correlating a
// relayed request across log lines and audit records.
func GenerateRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// MaskKey hides the middle of a credential so it can appear in logs.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "***" + key[len(key)-4:]
}
