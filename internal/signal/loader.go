package signal

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseRules decodes a YAML rule file. Sections missing from the file are taken from the
// built-in tables, so a file may override only the failure rules or only the languages.
func ParseRules(data []byte) (*RuleSet, error) {
	var file RuleSet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	defaults := DefaultRuleSet()
	rs := &RuleSet{Failure: file.Failure, Languages: file.Languages}
	if len(rs.Failure) == 0 {
		rs.Failure = defaults.Failure
	}
	if len(rs.Languages) == 0 {
		rs.Languages = defaults.Languages
	}
	if err := rs.Compile(); err != nil {
		return nil, err
	}
	return rs, nil
}

// LoadRuleFile reads and parses a YAML rule file.
func LoadRuleFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %q: %w", path, err)
	}
	rs, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("rules file %q: %w", path, err)
	}
	return rs, nil
}
