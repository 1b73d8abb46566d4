//go:build !darwin

package resource

import (
	"context"
	"time"
)

// Idle and battery state are only read on macOS.
func osUserIdle(context.Context) time.Duration { return -1 }

func osBattery(context.Context) Battery { return Battery{} }
