package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	outMu   sync.Mutex
	stdoutW io.Writer = os.Stdout
	stderrW io.Writer = os.Stderr
)

// SetOutput redirects log output. ERROR and FATAL lines go to errOut, the rest to out.
// It returns a function restoring the previous writers.
func SetOutput(out, errOut io.Writer) func() {
	outMu.Lock()
	prevOut, prevErr := stdoutW, stderrW
	stdoutW, stderrW = out, errOut
	outMu.Unlock()

	return func() {
		outMu.Lock()
		stdoutW, stderrW = prevOut, prevErr
		outMu.Unlock()
	}
}

// writeLog renders one line: "[ts] [LEVEL] name: msg | k=v ...". Fields are sorted.
func (l *Logger) writeLog(level LogLevel, msg string, fields map[string]interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s: %s", GetTimestamp(), level, l.name, msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	b.WriteByte('\n')

	outMu.Lock()
	defer outMu.Unlock()
	if level >= ERROR {
		_, _ = io.WriteString(stderrW, b.String())
		return
	}
	_, _ = io.WriteString(stdoutW, b.String())
}

func (l *Logger) logf(level LogLevel, msg string, args ...interface{}) {
	formatted := msg
	if len(args) > 0 {
		formatted = fmt.Sprintf(msg, args...)
	}
	l.logWithFields(level, formatted)
}

// GetTimestamp returns an RFC3339 timestamp, or LOG_TIMESTAMP when set.
func GetTimestamp() string {
	if override := os.Getenv("LOG_TIMESTAMP"); override != "" {
		return override
	}
	return time.Now().Format(time.RFC3339)
}
