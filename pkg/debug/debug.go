// Package debug provides category-based debug logging for plauder.
//
// Two orthogonal controls:
//   - Categories (WHAT to debug): PLAUDER_DEBUG env or observability.debug in config
//   - Levels (HOW MUCH detail): PLAUDER_LOG_LEVEL env or observability.log_level in config
//
// Usage:
//
//	debug.Log("providers", "request", "url", url, "messages", len(msgs))
//	if debug.Enabled("streaming") { /* expensive formatting */ }
//
// Categories: providers, streaming, session, storage, config, all.
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
//
// All log output goes to stderr. Stdout is reserved for the conversation.
package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// LevelTrace is below slog.LevelDebug for maximum verbosity.
// At TRACE, full request bodies and raw stream lines are logged.
const LevelTrace = slog.LevelDebug - 4

// Known categories.
const (
	CategoryProviders = "providers"
	CategoryStreaming = "streaming"
	CategorySession   = "session"
	CategoryStorage   = "storage"
	CategoryConfig    = "config"
)

// categories holds the enabled category set. It is replaced wholesale by
// Init, so readers never observe a partially built map.
var categories atomic.Pointer[map[string]bool]

// rawOut receives Raw output.
var rawOut io.Writer = os.Stderr

func init() {
	setCategories(os.Getenv("PLAUDER_DEBUG"))
}

// Init configures categories and the default slog logger. Environment
// values override the ones passed in from config. Log records are written
// to w, or stderr when w is nil.
func Init(configCategories, configLevel string, w io.Writer) {
	cats := os.Getenv("PLAUDER_DEBUG")
	if cats == "" {
		cats = configCategories
	}
	setCategories(cats)

	level := os.Getenv("PLAUDER_LOG_LEVEL")
	if level == "" {
		level = configLevel
	}

	if w == nil {
		w = os.Stderr
	}
	rawOut = w
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})))
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	m := *categories.Load()
	return m["all"] || m[category]
}

// Log emits a debug message for the given category.
// If the category is not enabled, this is a no-op.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the given category.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether TRACE level is active for the given category.
func TraceIsEnabled(category string) bool {
	if !Enabled(category) {
		return false
	}
	return slog.Default().Enabled(context.Background(), LevelTrace)
}

// Raw writes plain text to the log writer without slog formatting.
// Only emitted when category is enabled AND level is TRACE.
func Raw(category string, text string) {
	if !TraceIsEnabled(category) {
		return
	}
	fmt.Fprintln(rawOut, text)
}

// ParseLevel converts a level string to a slog.Level. Unknown values map
// to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the enabled categories.
func Categories() []string {
	var result []string
	for k := range *categories.Load() {
		result = append(result, k)
	}
	return result
}

// Truncate returns s truncated to maxLen bytes, with "..." appended if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func setCategories(s string) {
	m := parseCategories(s)
	categories.Store(&m)
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
