package process

import (
	"strings"

	"github.com/google/uuid"
)

const (
	LongLivedPrefix  = "LongLivedProcess_"
	ShortLivedPrefix = "ShortLivedProcess_"

	// suffixLen is the number of random hex characters appended to the prefix.
	suffixLen = 4
)

// NewID returns a human-readable id whose prefix encodes the keep-alive class,
// followed by a short random suffix. Uniqueness is best effort.
func NewID(keepAlive bool) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLen]
	if keepAlive {
		return LongLivedPrefix + suffix
	}
	return ShortLivedPrefix + suffix
}

// Class returns the label used for a keep-alive flag in logs and metrics.
func Class(keepAlive bool) string {
	if keepAlive {
		return "long-lived"
	}
	return "short-lived"
}

// IsSafeID validates ids coming from untrusted input (URLs, CLI flags).
// Allowed characters: A-Z a-z 0-9 . _ - and no "..".
func IsSafeID(s string) bool {
	if s == "" || len(s) > 256 {
		return false
	}
	if strings.Contains(s, "..") {
		return false
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}
