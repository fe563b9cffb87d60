package logprocessing

import (
	"regexp"
	"strings"
)

// Regex patterns compiled once at package initialization
var (
	ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

	uuidPattern      = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)
	timestampPattern = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?`)
	durationPattern  = regexp.MustCompile(`\b\d+(\.\d+)?(ns|us|µs|ms|s|m|h)\b`)
	hexPattern       = regexp.MustCompile(`\b0x[0-9a-fA-F]+\b`)
	longHexPattern   = regexp.MustCompile(`\b[0-9a-fA-F]{12,}\b`)
	filePathPattern  = regexp.MustCompile(`(/[a-zA-Z0-9_.@+-]+)+`)
	winPathPattern   = regexp.MustCompile(`[A-Za-z]:\\[a-zA-Z0-9_.\-\\]+`)
	urlPattern       = regexp.MustCompile(`\bhttps?://[a-zA-Z0-9.-]+[a-zA-Z0-9/._?=&%-]*`)
)

// preserveContexts are words after which a number is kept literally:
// "exit code 1" and "exit code 137" describe different failures.
var preserveContexts = []string{"exit", "code", "status", "signal", "returned"}

// MaskVariables replaces volatile values in a log line with placeholders.
// Specific patterns run before generic ones.
func MaskVariables(line string) string {
	line = urlPattern.ReplaceAllString(line, "<URL>")
	line = uuidPattern.ReplaceAllString(line, "<UUID>")
	line = timestampPattern.ReplaceAllString(line, "<TIMESTAMP>")
	line = hexPattern.ReplaceAllString(line, "<HEX>")
	line = longHexPattern.ReplaceAllString(line, "<HEX>")
	line = durationPattern.ReplaceAllString(line, "<DURATION>")
	line = winPathPattern.ReplaceAllString(line, "<PATH>")
	line = filePathPattern.ReplaceAllString(line, "<PATH>")
	return maskNumbersExceptExitCodes(line)
}

// StripANSI removes terminal color and cursor sequences.
func StripANSI(line string) string {
	return ansiPattern.ReplaceAllString(line, "")
}

// maskNumbersExceptExitCodes masks bare numbers unless one of the two preceding tokens
// names an exit code or status.
func maskNumbersExceptExitCodes(line string) string {
	tokens := strings.Fields(line)
	for i, token := range tokens {
		if !isNumber(token) {
			continue
		}
		preserve := false
		for j := max(0, i-2); j < i && !preserve; j++ {
			lower := strings.ToLower(tokens[j])
			for _, ctx := range preserveContexts {
				if strings.Contains(lower, ctx) {
					preserve = true
					break
				}
			}
		}
		if !preserve {
			tokens[i] = "<NUM>"
		}
	}
	return strings.Join(tokens, " ")
}

// isNumber checks if a string represents a non-negative integer
func isNumber(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
