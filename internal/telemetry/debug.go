// Package telemetry provides the pipeline's ambient logging and internal
// health metrics. Logging is a thin env-gated helper, not a structured
// logging framework: nothing in this pipeline needs more than a
// printf-shaped trace of batch sizes, retries, and scale events.
package telemetry

import (
	"fmt"
	"os"
	"sync"
)

var (
	debugEnabled = os.Getenv("LANGSMITH_DEBUG") != ""
	mu           sync.Mutex
	seen         = map[string]bool{}
)

// Enabled reports whether verbose wire-level tracing is on.
func Enabled() bool {
	return debugEnabled
}

// SetDebug overrides the env-derived default, mainly for tests.
func SetDebug(on bool) {
	debugEnabled = on
}

// Debugf prints a verbose trace line to stderr when LANGSMITH_DEBUG is set.
func Debugf(format string, args ...any) {
	if debugEnabled {
		fmt.Fprintf(os.Stderr, "[langsmith] "+format+"\n", args...)
	}
}

// WarnOnce logs a background failure at most once per distinct key (the
// caller-chosen key, not the formatted message), per spec.md §7's
// log-deduplication requirement (avoid flooding stderr when an upload
// keeps failing the same way).
func WarnOnce(key string, format string, args ...any) {
	mu.Lock()
	already := seen[key]
	if !already {
		seen[key] = true
	}
	mu.Unlock()
	if !already {
		fmt.Fprintf(os.Stderr, "[langsmith] warning: "+format+"\n", args...)
	}
}

// ResetWarnings clears the log-dedup cache. Test-only.
func ResetWarnings() {
	mu.Lock()
	seen = map[string]bool{}
	mu.Unlock()
}
