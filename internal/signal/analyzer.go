package signal

import (
	"sync/atomic"

	"github.com/moolen/faultline/internal/logging"
)

// Analyzer applies the current rule set. The rule set can be swapped while analyses are
// running; each call sees either the old or the new set, never a mix.
type Analyzer struct {
	rules  atomic.Pointer[RuleSet]
	logger *logging.Logger
}

// NewAnalyzer returns an analyzer using rs, or the built-in rules when rs is nil.
func NewAnalyzer(rs *RuleSet) *Analyzer {
	a := &Analyzer{logger: logging.GetLogger("signal")}
	if rs == nil {
		rs = DefaultRuleSet()
	}
	a.rules.Store(rs)
	return a
}

// Rules returns the active rule set. Callers must not modify it.
func (a *Analyzer) Rules() *RuleSet {
	return a.rules.Load()
}

// Swap installs rs as the active rule set.
func (a *Analyzer) Swap(rs *RuleSet) {
	a.rules.Store(rs)
	a.logger.InfoWithFields("rule set replaced",
		logging.Field("failure_rules", len(rs.Failure)),
		logging.Field("languages", len(rs.Languages)),
	)
}

// ReloadFile loads path and swaps it in. On error the active rules are kept.
func (a *Analyzer) ReloadFile(path string) error {
	rs, err := LoadRuleFile(path)
	if err != nil {
		a.logger.WarnWithFields("keeping previous rules", logging.Field("path", path), logging.Field("error", err.Error()))
		return err
	}
	a.Swap(rs)
	return nil
}

// ExtractFailureBlocks runs the failure block extractor with the active rules.
func (a *Analyzer) ExtractFailureBlocks(text string) Extraction {
	return ExtractFailureBlocks(a.rules.Load(), text)
}

// DetectLanguage runs the language detector with the active rules.
func (a *Analyzer) DetectLanguage(text string) string {
	return DetectLanguage(a.rules.Load(), text)
}
