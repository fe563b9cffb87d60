package fingerprint

import (
	"regexp"
	"strings"
)

// Masks are applied in order, on lower-cased input. Specific tokens go first so that the
// generic digit mask does not split them into several placeholders.
var masks = []struct {
	re          *regexp.Regexp
	placeholder string
}{
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}[t ]\d{2}:\d{2}:\d{2}(\.\d+)?(z|[+-]\d{2}:?\d{2})?`), "<ts>"},
	{regexp.MustCompile(`\b\d{2}:\d{2}:\d{2}(\.\d+)?\b`), "<ts>"},
	{regexp.MustCompile(`\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`), "<uuid>"},
	{regexp.MustCompile(`\b0x[0-9a-f]+\b`), "<hex>"},
	{regexp.MustCompile(`\b[0-9a-f]{12,}\b`), "<hex>"},
	{regexp.MustCompile(`[a-z]:\\[^\s"'():]+`), "<path>"},
	{regexp.MustCompile(`(?:\.{1,2}/|~/|/)(?:[\w.@+-]+/)*[\w.@+-]+|(?:[\w.@+-]+/)+[\w.@+-]+`), "<path>"},
	{regexp.MustCompile(`\bline \d+`), "line <n>"},
	{regexp.MustCompile(`:\d+`), ":<n>"},
	{regexp.MustCompile(`\d+`), "<n>"},
}

var whitespace = regexp.MustCompile(`\s+`)

// Normalize lower-cases s and replaces volatile tokens with fixed placeholders.
func Normalize(s string) string {
	s = strings.ToLower(s)
	for _, m := range masks {
		s = m.re.ReplaceAllString(s, m.placeholder)
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
