package resource

import (
	"strconv"
	"strings"
	"time"
)

// parseHIDIdle extracts HIDIdleTime (nanoseconds) from ioreg output.
func parseHIDIdle(out string) (time.Duration, bool) {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "HIDIdleTime") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		ns, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err == nil {
			return time.Duration(ns), true
		}
	}
	return 0, false
}

// parsePmset reads `pmset -g batt` output:
//
//	Now drawing from 'Battery Power'
//	 -InternalBattery-0 (id=1234)	82%; discharging; 5:10 remaining present: true
func parsePmset(out string) Battery {
	var b Battery
	b.OnAC = strings.Contains(out, "'AC Power'")

	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "InternalBattery") {
			continue
		}
		b.Present = true
		idx := strings.Index(line, "%")
		if idx <= 0 {
			continue
		}
		start := idx
		for start > 0 && line[start-1] >= '0' && line[start-1] <= '9' {
			start--
		}
		if pct, err := strconv.Atoi(line[start:idx]); err == nil {
			b.Percent = pct
		}
	}
	return b
}
