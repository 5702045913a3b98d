package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
)

type contextKey string

const contextKeyRequestID contextKey = "request_id"

var (
	debugEnabled atomic.Bool
	output       io.Writer = color.Output
)

func init() {
	if v, err := strconv.ParseBool(os.Getenv("LOG_DEBUG")); err == nil {
		debugEnabled.Store(v)
	}
}

// SetDebug toggles debug output.
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether debug output is on
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// SetOutput redirects all log lines, mostly useful in tests.
func SetOutput(w io.Writer) {
	output = w
}

// WithRequestID adds request ID to context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

func getRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// formatLog formats log message with optional request ID
func formatLog(requestID string, format string, a ...interface{}) string {
	msg := fmt.Sprintf(format, a...)
	if requestID != "" {
		return fmt.Sprintf("[req_id=%s] %s", requestID, msg)
	}
	return msg
}

func write(tag func(a ...interface{}) string, label string, msg string) {
	fmt.Fprintf(output, "%s %s\n", tag(label), msg)
}

// Debug logs only when debug output is enabled
func Debug(format string, a ...interface{}) {
	if !debugEnabled.Load() {
		return
	}
	write(color.New(color.FgCyan).SprintFunc(), "[DEBUG]", fmt.Sprintf(format, a...))
}

// DebugWithContext logs debug output with the request ID from ctx
func DebugWithContext(ctx context.Context, format string, a ...interface{}) {
	if !debugEnabled.Load() {
		return
	}
	write(color.New(color.FgCyan).SprintFunc(), "[DEBUG]", formatLog(getRequestID(ctx), format, a...))
}

// Info log information
func Info(format string, a ...interface{}) {
	write(color.New(color.FgWhite, color.BgGreen).SprintFunc(), "[INFO] ", fmt.Sprintf(format, a...))
}

// InfoWithContext logs information with context (includes request ID if available)
func InfoWithContext(ctx context.Context, format string, a ...interface{}) {
	write(color.New(color.FgWhite, color.BgGreen).SprintFunc(), "[INFO] ", formatLog(getRequestID(ctx), format, a...))
}

// Warn log warning
func Warn(format string, a ...interface{}) {
	write(color.New(color.FgWhite, color.BgYellow).SprintFunc(), "[WARN] ", fmt.Sprintf(format, a...))
}

// WarnWithContext logs warning with context (includes request ID if available)
func WarnWithContext(ctx context.Context, format string, a ...interface{}) {
	write(color.New(color.FgWhite, color.BgYellow).SprintFunc(), "[WARN] ", formatLog(getRequestID(ctx), format, a...))
}

// Error log error
func Error(format string, a ...interface{}) {
	write(color.New(color.FgRed).SprintFunc(), "[Error]", fmt.Sprintf(format, a...))
}

// ErrorWithContext logs error with context (includes request ID if available)
func ErrorWithContext(ctx context.Context, format string, a ...interface{}) {
	write(color.New(color.FgRed).SprintFunc(), "[Error]", formatLog(getRequestID(ctx), format, a...))
}

// Dump writes a structural dump of a at debug level
func Dump(label string, a ...interface{}) {
	if !debugEnabled.Load() {
		return
	}
	Debug("%s\n%s", label, spew.Sdump(a...))
}
