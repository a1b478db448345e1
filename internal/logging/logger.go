package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const redacted = "[REDACTED]"

// Logger writes human-oriented status lines to stderr. Key material must only
// be passed to it wrapped in Secret.
type Logger struct {
	mu      sync.Mutex
	out     io.Writer
	debug   bool
	noColor bool
}

// New creates a logger writing to stderr.
func New(debug, noColor bool) *Logger {
	return NewWriter(os.Stderr, debug, noColor)
}

// NewWriter creates a logger writing to w.
func NewWriter(w io.Writer, debug, noColor bool) *Logger {
	return &Logger{
		out:     w,
		debug:   debug,
		noColor: noColor,
	}
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.write("\033[32m✓\033[0m", "✓", format, args)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write("\033[33m⚠\033[0m", "⚠", format, args)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.write("\033[31m✗\033[0m", "✗", format, args)
}

// Debug logs a message only when debug output is enabled.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.DebugEnabled() {
		return
	}
	l.write("\033[36m[DEBUG]\033[0m", "[DEBUG]", format, args)
}

// DebugEnabled reports whether Debug messages are written.
func (l *Logger) DebugEnabled() bool {
	return l != nil && l.debug
}

func (l *Logger) write(colored, plain, format string, args []interface{}) {
	if l == nil {
		return
	}
	prefix := colored
	if l.noColor {
		prefix = plain
	}
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s %s\n", prefix, msg)
}

// Secret is a value that must never appear in log output.
type Secret string

func (s Secret) String() string {
	return redacted
}

// GoString covers %#v.
func (s Secret) GoString() string {
	return redacted
}

// Redact replaces every occurrence of the given secrets in s. Values of three
// bytes or fewer are left alone; they would mangle unrelated text.
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if len(secret) > 3 {
			result = strings.ReplaceAll(result, secret, redacted)
		}
	}
	return result
}

// MaskValue hides most of value for display, keeping a few characters so a
// human can tell two values apart.
func MaskValue(value string) string {
	switch {
	case len(value) == 0:
		return "(empty)"
	case len(value) <= 3:
		return strings.Repeat("*", len(value))
	case len(value) <= 8:
		return value[:1] + strings.Repeat("*", len(value)-2) + value[len(value)-1:]
	default:
		return value[:3] + strings.Repeat("*", 8) + value[len(value)-2:]
	}
}
