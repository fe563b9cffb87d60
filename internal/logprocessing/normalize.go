package logprocessing

import (
	"encoding/json"
	"strings"
)

// messageFields are tried in order when a line is a JSON object.
var messageFields = []string{
	"message",
	"msg",
	"log",
	"text",
	"error",
	"err",
}

// ExtractMessage returns the message field of a JSON log line, or the line unchanged.
// Structured loggers in test output (zap, logrus, bunyan) wrap the interesting text in
// one of a few well-known fields.
func ExtractMessage(line string) string {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return line
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return line
	}
	for _, field := range messageFields {
		if msg, ok := parsed[field].(string); ok && msg != "" {
			return msg
		}
	}
	return line
}

// PreProcess prepares a line for Drain: ANSI sequences are removed, JSON messages are
// unwrapped and whitespace is trimmed. Variable masking happens after clustering.
func PreProcess(line string) string {
	return strings.TrimSpace(ExtractMessage(StripANSI(line)))
}
