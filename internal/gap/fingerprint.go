package gap

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the stable identifier that deduplicates a finding
// across analysis runs. It depends only on what the finding is about, never
// on scores or timestamps, so re-running analysis on an unchanged snapshot
// maps each finding to the same key.
func Fingerprint(category Category, frameworkRef, target string) string {
	h := sha256.Sum256([]byte(strings.Join([]string{
		string(category), frameworkRef, target,
	}, "|")))
	return hex.EncodeToString(h[:])
}
