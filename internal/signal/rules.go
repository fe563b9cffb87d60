// Package signal finds failure evidence in raw CI logs.
//
// Detection is driven by rule tables: an ordered list of failure rules used to cut
// failure blocks out of a log, and an ordered list of per-language rule sets used to
// guess the language of the failing program. The built-in tables can be replaced from a
// YAML file at runtime; see LoadRuleFile and Analyzer.Swap.
package signal

import (
	"fmt"
	"regexp"
)

// Rule is one pattern in a rule table.
type Rule struct {
	// Label names the rule in logs and block metadata.
	Label string `yaml:"label"`

	// Pattern is an RE2 regular expression.
	Pattern string `yaml:"pattern"`

	// Weight is the score a match contributes. Zero means 1.
	Weight int `yaml:"weight,omitempty"`

	// IgnoreCase compiles the pattern case-insensitively.
	IgnoreCase bool `yaml:"ignore_case,omitempty"`

	re *regexp.Regexp
}

// LanguageRules is the rule set for one language.
type LanguageRules struct {
	Language string `yaml:"language"`
	Rules    []Rule `yaml:"rules"`
}

// RuleSet holds both rule tables. Table order is significant: failure rules are tried in
// order per line and language ties are broken by table position.
type RuleSet struct {
	Failure   []Rule          `yaml:"failure"`
	Languages []LanguageRules `yaml:"languages"`
}

// Compile compiles every pattern. Language rules are always case-insensitive.
func (rs *RuleSet) Compile() error {
	if len(rs.Failure) == 0 {
		return fmt.Errorf("rule set has no failure rules")
	}
	for i := range rs.Failure {
		if err := rs.Failure[i].compile(false); err != nil {
			return fmt.Errorf("failure rule %d: %w", i, err)
		}
	}

	seen := make(map[string]bool, len(rs.Languages))
	for i := range rs.Languages {
		lang := &rs.Languages[i]
		if lang.Language == "" {
			return fmt.Errorf("language rule set %d has no language name", i)
		}
		if seen[lang.Language] {
			return fmt.Errorf("language %q defined twice", lang.Language)
		}
		seen[lang.Language] = true
		for j := range lang.Rules {
			if err := lang.Rules[j].compile(true); err != nil {
				return fmt.Errorf("language %s rule %d: %w", lang.Language, j, err)
			}
		}
	}
	return nil
}

func (r *Rule) compile(forceIgnoreCase bool) error {
	if r.Pattern == "" {
		return fmt.Errorf("empty pattern")
	}
	expr := r.Pattern
	if r.IgnoreCase || forceIgnoreCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("compile %q: %w", r.Pattern, err)
	}
	r.re = re
	if r.Label == "" {
		r.Label = r.Pattern
	}
	return nil
}

// Matches reports whether the compiled rule matches s.
func (r *Rule) Matches(s string) bool {
	return r.re != nil && r.re.MatchString(s)
}

func (r *Rule) weight() int {
	if r.Weight <= 0 {
		return 1
	}
	return r.Weight
}

// DefaultRuleSet returns a compiled copy of the built-in tables.
func DefaultRuleSet() *RuleSet {
	rs := &RuleSet{
		Failure: []Rule{
			{Label: "python-traceback", Pattern: `Traceback \(most recent call last\)`},
			{Label: "typed-error", Pattern: `\b[A-Za-z]+Error:`},
			{Label: "exception", Pattern: `\bException\b`},
			{Label: "jvm-thread-exception", Pattern: `Exception in thread`},
			{Label: "caused-by", Pattern: `Caused by:`},
			{Label: "unhandled-rejection", Pattern: `UnhandledPromiseRejection`},
			{Label: "error-colon", Pattern: `Error:.*`},
			{Label: "segfault", Pattern: `Segmentation fault`},
			{Label: "core-dump", Pattern: `core dumped`},
			{Label: "go-panic", Pattern: `(?m)^panic: `},
			{Label: "exit-code", Pattern: `exit code \d+`},
			{Label: "non-zero-exit", Pattern: `returned non-zero`},
			{Label: "command-failed", Pattern: `command failed`},
			{Label: "failed-token", Pattern: `\bFAILED\b`},
			{Label: "error-token", Pattern: `\bERROR\b`},
		},
		Languages: []LanguageRules{
			{Language: "python", Rules: []Rule{
				{Pattern: `Traceback \(most recent call last\)`},
				{Pattern: `ZeroDivisionError`},
				{Pattern: `ModuleNotFoundError`},
				{Pattern: `ImportError`},
				{Pattern: `\.py"`},
			}},
			{Language: "nodejs", Rules: []Rule{
				{Pattern: `TypeError:`},
				{Pattern: `ReferenceError:`},
				{Pattern: `SyntaxError:`},
				{Pattern: `at .*\.js`},
				{Pattern: `node_modules`},
			}},
			{Language: "java", Rules: []Rule{
				{Pattern: `Exception in thread`},
				{Pattern: `java\.lang\.`},
				{Pattern: `\.java:\d+`},
				{Pattern: `Caused by:`},
			}},
			{Language: "dotnet", Rules: []Rule{
				{Pattern: `System\.`},
				{Pattern: `Unhandled Exception`},
				{Pattern: `\.cs:\d+`},
			}},
			{Language: "powershell", Rules: []Rule{
				{Pattern: `At line:\d+ char:\d+`},
				{Pattern: `CategoryInfo`},
				{Pattern: `FullyQualifiedErrorId`},
				{Pattern: `PS>`},
				{Pattern: `System\.Management\.Automation`},
			}},
			{Language: "go", Rules: []Rule{
				{Pattern: `(?m)^panic: `},
				{Pattern: `goroutine \d+ \[`},
				{Pattern: `\.go:\d+`},
			}},
		},
	}
	if err := rs.Compile(); err != nil {
		panic(fmt.Sprintf("built-in rule set does not compile: %v", err))
	}
	return rs
}
