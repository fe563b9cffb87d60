package signal

import (
	"strings"
)

const (
	// ContextBefore is the number of lines kept above a matching line.
	ContextBefore = 5
	// ContextAfter is the number of lines kept below a matching line.
	ContextAfter = 20

	// BlockSeparator joins failure blocks in Extraction.Text.
	BlockSeparator = "\n\n---\n\n"
)

// Block is a window of log lines around one matching line.
type Block struct {
	// Rule is the label of the first failure rule that matched the line.
	Rule string `json:"rule"`
	// Line is the zero-based index of the matching line.
	Line  int    `json:"line"`
	Start int    `json:"start"`
	End   int    `json:"end"` // exclusive
	Text  string `json:"text"`
}

// Extraction is the result of scanning a log for failure blocks.
type Extraction struct {
	// Blocks are unique by text, in order of first appearance.
	Blocks []Block `json:"blocks,omitempty"`
	// Text is the joined block text, empty when nothing matched.
	Text string `json:"text,omitempty"`
}

// Found reports whether any failure block was extracted.
func (e Extraction) Found() bool {
	return len(e.Blocks) > 0
}

// ExtractFailureBlocks scans text line by line. For every line matching a failure rule
// it captures ContextBefore lines above and ContextAfter lines below, clamped to the text.
// Identical blocks are kept once.
func ExtractFailureBlocks(rs *RuleSet, text string) Extraction {
	lines := SplitLines(text)
	seen := make(map[string]struct{})
	var out Extraction

	for idx, line := range lines {
		rule := firstMatch(rs.Failure, line)
		if rule == nil {
			continue
		}

		start := max(0, idx-ContextBefore)
		end := min(len(lines), idx+ContextAfter+1)
		blockText := strings.Join(lines[start:end], "\n")
		if _, dup := seen[blockText]; dup {
			continue
		}
		seen[blockText] = struct{}{}

		out.Blocks = append(out.Blocks, Block{
			Rule:  rule.Label,
			Line:  idx,
			Start: start,
			End:   end,
			Text:  blockText,
		})
	}

	if len(out.Blocks) == 0 {
		return out
	}
	texts := make([]string, len(out.Blocks))
	for i, b := range out.Blocks {
		texts[i] = b.Text
	}
	out.Text = strings.Join(texts, BlockSeparator)
	return out
}

func firstMatch(rules []Rule, line string) *Rule {
	for i := range rules {
		if rules[i].Matches(line) {
			return &rules[i]
		}
	}
	return nil
}

// SplitLines splits on \n and drops a trailing \r from each line. A trailing newline
// does not produce an empty last line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
