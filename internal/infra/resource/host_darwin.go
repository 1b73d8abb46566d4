//go:build darwin

package resource

import (
	"context"
	"os/exec"
	"time"
)

// osUserIdle asks IOHIDSystem how long since the last keyboard or mouse event.
func osUserIdle(ctx context.Context) time.Duration {
	out, err := exec.CommandContext(ctx, "ioreg", "-c", "IOHIDSystem", "-d", "4").Output()
	if err != nil {
		return -1
	}
	d, ok := parseHIDIdle(string(out))
	if !ok {
		return -1
	}
	return d
}

func osBattery(ctx context.Context) Battery {
	out, err := exec.CommandContext(ctx, "pmset", "-g", "batt").Output()
	if err != nil {
		return Battery{}
	}
	return parsePmset(string(out))
}
