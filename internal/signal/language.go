package signal

// UnknownLanguage is returned when no language rule matches.
const UnknownLanguage = "unknown"

// LanguageScore is the detection score of one language.
type LanguageScore struct {
	Language string `json:"language"`
	Score    int    `json:"score"`
}

// DetectLanguage returns the language whose rules match text with the highest total
// weight. Ties go to the language listed first. Returns UnknownLanguage when every
// language scores zero.
func DetectLanguage(rs *RuleSet, text string) string {
	best, bestScore := UnknownLanguage, 0
	for _, s := range ScoreLanguages(rs, text) {
		if s.Score > bestScore {
			best, bestScore = s.Language, s.Score
		}
	}
	return best
}

// ScoreLanguages scores every language in table order.
func ScoreLanguages(rs *RuleSet, text string) []LanguageScore {
	scores := make([]LanguageScore, 0, len(rs.Languages))
	for i := range rs.Languages {
		lang := &rs.Languages[i]
		score := 0
		for j := range lang.Rules {
			if lang.Rules[j].Matches(text) {
				score += lang.Rules[j].weight()
			}
		}
		scores = append(scores, LanguageScore{Language: lang.Language, Score: score})
	}
	return scores
}
