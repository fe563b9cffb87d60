package logprocessing

import (
	"strings"
)

// DefaultExcerptMaxLines caps the reduced excerpt.
const DefaultExcerptMaxLines = 80

// separatorLine is the line between failure blocks.
const separatorLine = "---"

// excerptScope namespaces template ids produced by ReduceExcerpt.
const excerptScope = "excerpt"

// Excerpt is a failure block reduced to one line per log template.
type Excerpt struct {
	Text string `json:"text"`
	// Lines is the number of lines in Text.
	Lines int `json:"lines"`
	// InputLines is the number of non-blank input lines.
	InputLines int `json:"input_lines"`
	// Templates lists the masked template of every kept line.
	Templates []string `json:"templates,omitempty"`
	// TemplateIDs are the stable hashes of Templates, in the same order.
	TemplateIDs []string `json:"template_ids,omitempty"`
	// Truncated is set when MaxLines cut the excerpt.
	Truncated bool `json:"truncated,omitempty"`
}

// ExcerptConfig configures ReduceExcerpt.
type ExcerptConfig struct {
	MaxLines int
	Drain    DrainConfig
}

// DefaultExcerptConfig returns the default reducer configuration.
func DefaultExcerptConfig() ExcerptConfig {
	return ExcerptConfig{
		MaxLines: DefaultExcerptMaxLines,
		Drain:    DefaultDrainConfig(),
	}
}

// ReduceExcerpt keeps the first line of every Drain template in block, in input order,
// so repeated progress output, retries and near-identical stack frames collapse to one
// representative. Block separators are kept. The result holds at most MaxLines lines.
func ReduceExcerpt(block string, cfg ExcerptConfig) Excerpt {
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = DefaultExcerptMaxLines
	}
	dp := NewDrainProcessor(cfg.Drain)
	seen := make(map[int]struct{})
	seenTemplates := make(map[string]struct{})

	var out Excerpt
	var kept []string
	for _, raw := range strings.Split(block, "\n") {
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.TrimSpace(line) == separatorLine {
			if len(kept) > 0 && kept[len(kept)-1] != separatorLine {
				kept = append(kept, separatorLine)
			}
			continue
		}
		out.InputLines++

		msg := PreProcess(line)
		if msg == "" {
			continue
		}
		cluster := dp.Train(msg)
		if cluster == nil {
			kept = append(kept, line)
			continue
		}
		id := extractClusterID(cluster.String())
		if _, dup := seen[id]; dup && id >= 0 {
			continue
		}
		seen[id] = struct{}{}

		// Drain splits lines made mostly of variable tokens; their masked form still matches.
		template := MaskVariables(msg)
		templateID := GenerateTemplateID(excerptScope, template)
		if _, dup := seenTemplates[templateID]; dup {
			continue
		}
		seenTemplates[templateID] = struct{}{}

		if countContent(kept) >= cfg.MaxLines {
			out.Truncated = true
			continue
		}
		kept = append(kept, line)
		out.Templates = append(out.Templates, template)
		out.TemplateIDs = append(out.TemplateIDs, templateID)
	}

	if len(kept) > 0 && kept[len(kept)-1] == separatorLine {
		kept = kept[:len(kept)-1]
	}
	out.Text = strings.Join(kept, "\n")
	out.Lines = len(kept)
	return out
}

func countContent(lines []string) int {
	n := 0
	for _, l := range lines {
		if l != separatorLine {
			n++
		}
	}
	return n
}
