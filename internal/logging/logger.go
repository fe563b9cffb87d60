// Package logging provides the leveled, structured logger used across faultline.
//
// Loggers are named after the component that owns them so that log levels can be
// tuned per component:
//
//	logging.Initialize("info", map[string]string{"pipeline": "debug", "llm.*": "warn"})
//	logger := logging.GetLogger("pipeline")
//	logger.Info("analyzing incident %s", id)
//
// Structured fields are attached either per call or persistently:
//
//	logger.WithField("incident_id", id).WarnWithFields("llm call failed",
//	    logging.Field("attempt", 2),
//	    logging.Field("error", err.Error()),
//	)
//
// WithContext attaches a context.Context; the OpenTelemetry trace and span ids of the
// active span (or explicit ids stored under TraceIDKey/SpanIDKey) are emitted with
// every line.
//
// Logger values are immutable. With* methods return new loggers, so a logger can be
// shared between goroutines freely. LOG_TIMESTAMP overrides the timestamp for tests.
package logging

import (
	"context"
	"os"
	"strings"
	"sync"
)

var (
	globalLevel = INFO
	globalMu    sync.RWMutex

	// exitFunc terminates the process on Fatal. Tests replace it.
	exitFunc = os.Exit
)

// Initialize sets the default level and optional per-package overrides.
// Unknown default levels fall back to INFO.
func Initialize(levelStr string, packageLevels ...map[string]string) error {
	level, err := parseLevel(levelStr)
	if err != nil {
		level = INFO
	}

	globalMu.Lock()
	globalLevel = level
	globalMu.Unlock()

	if len(packageLevels) > 0 && packageLevels[0] != nil {
		return SetPackageLogLevels(packageLevels[0])
	}
	return nil
}

// GetLogger returns a logger with the given component name.
func GetLogger(name string) *Logger {
	return &Logger{
		name:   name,
		fields: make(map[string]interface{}),
	}
}

func currentLevel() LogLevel {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLevel
}

func (l *Logger) shouldLog(level LogLevel) bool {
	if pkgLevel := GetPackageLogLevel(l.name); pkgLevel >= 0 {
		return level >= pkgLevel
	}
	return level >= currentLevel()
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.shouldLog(DEBUG) {
		l.logf(DEBUG, msg, args...)
	}
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	if l.shouldLog(INFO) {
		l.logf(INFO, msg, args...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.shouldLog(WARN) {
		l.logf(WARN, msg, args...)
	}
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	if l.shouldLog(ERROR) {
		l.logf(ERROR, msg, args...)
	}
}

// ErrorWithErr logs msg followed by err.
func (l *Logger) ErrorWithErr(msg string, err error) {
	if l.shouldLog(ERROR) {
		l.logWithFields(ERROR, msg, Field("error", errString(err)))
	}
}

// Fatal logs a fatal message and exits the program with code 1
func (l *Logger) Fatal(msg string, args ...interface{}) {
	if l.shouldLog(FATAL) {
		l.logf(FATAL, msg, args...)
		exitFunc(1)
	}
}

// DebugWithFields logs a debug message with structured fields
func (l *Logger) DebugWithFields(msg string, fields ...LogField) {
	if l.shouldLog(DEBUG) {
		l.logWithFields(DEBUG, msg, fields...)
	}
}

// InfoWithFields logs an info message with structured fields
func (l *Logger) InfoWithFields(msg string, fields ...LogField) {
	if l.shouldLog(INFO) {
		l.logWithFields(INFO, msg, fields...)
	}
}

// WarnWithFields logs a warning message with structured fields
func (l *Logger) WarnWithFields(msg string, fields ...LogField) {
	if l.shouldLog(WARN) {
		l.logWithFields(WARN, msg, fields...)
	}
}

// ErrorWithFields logs an error message with structured fields
func (l *Logger) ErrorWithFields(msg string, fields ...LogField) {
	if l.shouldLog(ERROR) {
		l.logWithFields(ERROR, msg, fields...)
	}
}

// WithName returns a logger with a different component name and no fields.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{
		name:   name,
		fields: make(map[string]interface{}),
		ctx:    l.ctx,
	}
}

// WithField returns a child logger carrying key=value on every line.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	child := l.clone()
	child.fields[key] = value
	return child
}

// WithFields returns a child logger carrying all given fields.
func (l *Logger) WithFields(fields ...LogField) *Logger {
	child := l.clone()
	for _, f := range fields {
		child.fields[f.Key] = f.Value
	}
	return child
}

// WithContext returns a child logger that extracts trace and span ids from ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	child := l.clone()
	child.ctx = ctx
	return child
}

func (l *Logger) clone() *Logger {
	fields := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	return &Logger{name: l.name, fields: fields, ctx: l.ctx}
}

// logWithFields merges context, persistent and call fields (later wins).
func (l *Logger) logWithFields(level LogLevel, msg string, fields ...LogField) {
	merged := make(map[string]interface{}, len(l.fields)+len(fields)+2)
	for k, v := range extractContextFields(l.ctx) {
		merged[k] = v
	}
	for k, v := range l.fields {
		merged[k] = v
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}
	l.writeLog(level, msg, merged)
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return strings.TrimSpace(err.Error())
}
