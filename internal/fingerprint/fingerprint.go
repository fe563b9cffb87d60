// Package fingerprint derives the stable identity of a failure from raw log text.
//
// A signature is the first error-like line of the log (the exception) plus the first
// line at or after it carrying a line-number or call-frame marker (the failing line).
// The fingerprint is the SHA-256 of the language, exception and failing line after
// volatile tokens (paths, line numbers, timestamps, addresses, digit runs) are masked, so
// two runs of the same defect map to the same fingerprint.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/moolen/faultline/internal/models"
	"github.com/moolen/faultline/internal/signal"
)

// none fills missing signature parts in the hashed text.
const none = "none"

var (
	exceptionPattern   = regexp.MustCompile(`(?i)(exception|error|failed|failure|fatal)`)
	failingLinePattern = regexp.MustCompile(`(?i)(\bline \d+|\bline:\d+|\bat\s|\.[a-z0-9]+:\d+)`)
)

// Extract scans text for the exception and failing line and computes the fingerprint.
// Missing parts are returned empty; the fingerprint is still computed.
func Extract(text, language string) models.FailureSignature {
	lines := signal.SplitLines(text)

	var exception, failingLine string
	for i, line := range lines {
		if !exceptionPattern.MatchString(line) {
			continue
		}
		exception = strings.TrimSpace(line)
		for _, candidate := range lines[i:] {
			if failingLinePattern.MatchString(candidate) {
				failingLine = strings.TrimSpace(candidate)
				break
			}
		}
		break
	}

	return models.FailureSignature{
		Fingerprint: Compute(language, exception, failingLine),
		Exception:   exception,
		FailingLine: failingLine,
	}
}

// Compute hashes the normalized signature text. Empty parts are hashed as "none".
func Compute(language, exception, failingLine string) string {
	canonical := Normalize(ComposedText(language, exception, failingLine))
	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:])
}

// ComposedText is the un-normalized text that Compute hashes.
func ComposedText(language, exception, failingLine string) string {
	return fmt.Sprintf("language=%s\nexception=%s\nline=%s",
		orNone(language), orNone(exception), orNone(failingLine))
}

func orNone(s string) string {
	if s == "" || s == models.Unknown {
		return none
	}
	return s
}
