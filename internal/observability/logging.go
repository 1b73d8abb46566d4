package observability

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

var debugEnabled atomic.Bool

// ValidLogLevel reports whether level is one SetLogLevel accepts.
func ValidLogLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "debug", "info", "warn", "error":
		return true
	}
	return false
}

// SetLogLevel applies [logging].level. Only "debug" turns on Debugf output;
// the other levels leave the standard log lines as they are.
func SetLogLevel(level string) error {
	if !ValidLogLevel(level) {
		return fmt.Errorf("unknown log level %q", level)
	}
	debugEnabled.Store(strings.EqualFold(strings.TrimSpace(level), "debug"))
	return nil
}

// DebugEnabled reports whether Debugf writes anything.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// Debugf logs through the standard logger when the level is debug.
func Debugf(format string, args ...any) {
	if debugEnabled.Load() {
		log.Printf(format, args...)
	}
}
