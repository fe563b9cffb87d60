package pipeline

import (
	"fmt"
	"strings"

	"github.com/moolen/faultline/internal/models"
	"github.com/moolen/faultline/internal/vectorindex"
)

// DefaultRetrievalQuery selects the chunks used as analysis context.
const DefaultRetrievalQuery = "Summarize the failure and suggest fixes"

// FormatContext renders retrieved chunks as numbered blocks. Without hits the excerpt is
// used as the single block.
func FormatContext(hits []vectorindex.Hit, excerpt string) string {
	if len(hits) == 0 {
		return fmt.Sprintf("[CHUNK 1]\n%s", excerpt)
	}
	blocks := make([]string, 0, len(hits))
	for i, h := range hits {
		blocks = append(blocks, fmt.Sprintf("[CHUNK %d]\n%s", i+1, h.Text))
	}
	return strings.Join(blocks, "\n\n")
}

// BuildPrompt asks for a root cause restricted to language that quotes the exception and
// failing line verbatim.
func BuildPrompt(language string, sig models.FailureSignature, context string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are analyzing a failed CI job. The log is from a %s project.\n", language)
	b.WriteString("Only reason about that language and its tooling. Do not guess about other stacks.\n\n")
	fmt.Fprintf(&b, "Exception: %s\n", sig.ExceptionOrUnknown())
	fmt.Fprintf(&b, "Failing line: %s\n\n", sig.FailingLineOrUnknown())
	b.WriteString("Rules:\n")
	b.WriteString("- Quote the exception line and the failing line exactly, in backticks.\n")
	b.WriteString("- Use only evidence from the log excerpt below.\n")
	fmt.Fprintf(&b, "- If the excerpt shows no explicit error, answer exactly %q.\n\n", "NO EXPLICIT ERROR FOUND")
	b.WriteString("Answer with: root cause, evidence, suggested fix.\n\n")
	b.WriteString("Log excerpt:\n")
	b.WriteString(context)
	b.WriteString("\n")
	return b.String()
}

// FormatNotification renders the markdown comment posted on a change request.
func FormatNotification(inc *models.Incident) string {
	var b strings.Builder
	b.WriteString("### CI failure analysis\n\n")
	fmt.Fprintf(&b, "**Root cause:** %s\n\n", inc.Summary)
	fmt.Fprintf(&b, "**Confidence:** %d/100 (%s)\n", inc.Confidence.Score, inc.Confidence.Level)
	for _, r := range inc.Confidence.Reasons {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	b.WriteString("\n")
	if inc.RegressionOf != nil {
		fmt.Fprintf(&b, "**Regression:** similar to incident `%s` (similarity %.2f)\n\n",
			inc.RegressionOf.MatchedIncident, inc.RegressionOf.Similarity)
	}
	fmt.Fprintf(&b, "<sub>incident `%s` · fingerprint `%s` · cluster `%s`</sub>\n",
		inc.ID, shortFingerprint(inc.Metadata.Fingerprint), inc.Metadata.ClusterID)
	return b.String()
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
