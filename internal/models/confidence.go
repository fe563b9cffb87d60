package models

import (
	"encoding/json"
	"fmt"
)

// ConfidenceLevel is the ordinal form of a confidence score.
type ConfidenceLevel int

const (
	ConfidenceNone ConfidenceLevel = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

var confidenceLevelNames = map[ConfidenceLevel]string{
	ConfidenceNone:   "NONE",
	ConfidenceLow:    "LOW",
	ConfidenceMedium: "MEDIUM",
	ConfidenceHigh:   "HIGH",
}

func (l ConfidenceLevel) String() string {
	if name, ok := confidenceLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("ConfidenceLevel(%d)", int(l))
}

// ParseConfidenceLevel parses NONE, LOW, MEDIUM or HIGH.
func ParseConfidenceLevel(s string) (ConfidenceLevel, error) {
	for level, name := range confidenceLevelNames {
		if name == s {
			return level, nil
		}
	}
	return ConfidenceNone, fmt.Errorf("unknown confidence level %q", s)
}

// MarshalJSON encodes the level by name.
func (l ConfidenceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a level name.
func (l *ConfidenceLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseConfidenceLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ConfidenceResult is a 0-100 score with its level and the reasons that produced it.
type ConfidenceResult struct {
	Score   int             `json:"score"`
	Level   ConfidenceLevel `json:"level"`
	Reasons []string        `json:"reasons"`
}

// Clone returns a copy with its own reasons slice.
func (c ConfidenceResult) Clone() ConfidenceResult {
	out := c
	out.Reasons = append([]string(nil), c.Reasons...)
	return out
}
