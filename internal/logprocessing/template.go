package logprocessing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// placeholders produced by Drain and MaskVariables.
var placeholders = []string{
	"<*>", "<UUID>", "<TIMESTAMP>", "<DURATION>", "<HEX>", "<PATH>", "<URL>", "<NUM>",
}

// GenerateTemplateID creates a stable SHA-256 hash for a template within a scope.
func GenerateTemplateID(scope, pattern string) string {
	canonical := fmt.Sprintf("%s|%s", scope, normalizeWildcards(pattern))
	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:])
}

// normalizeWildcards maps every placeholder to <VAR> so that a pattern learned before
// and after Drain generalized a token hashes the same.
func normalizeWildcards(pattern string) string {
	for _, p := range placeholders {
		pattern = strings.ReplaceAll(pattern, p, "<VAR>")
	}
	return pattern
}
