// Package resource reports how quiet the host is, so idle baselines are not
// taken while the machine is busy or running on battery.
package resource

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
)

// Conditions describe the host while a baseline is being considered.
type Conditions struct {
	CPUPercent float64       `json:"cpu_percent"`
	UserIdle   time.Duration `json:"user_idle"` // negative when unknown
	Battery    Battery       `json:"battery"`
}

// Battery is the power source state. Present is false on desktops.
type Battery struct {
	Present bool `json:"present"`
	Percent int  `json:"percent"`
	OnAC    bool `json:"on_ac"`
}

// Limits bound what counts as a quiet machine.
type Limits struct {
	MaxCPUPercent float64
	MinUserIdle   time.Duration
}

// DefaultLimits returns conservative limits for idle baselines.
func DefaultLimits() Limits {
	return Limits{
		MaxCPUPercent: 15,
		MinUserIdle:   30 * time.Second,
	}
}

// Warnings lists the reasons c makes a poor baseline. Empty means quiet.
func (c Conditions) Warnings(l Limits) []string {
	var out []string
	if l.MaxCPUPercent > 0 && c.CPUPercent > l.MaxCPUPercent {
		out = append(out, fmt.Sprintf("CPU is %.0f%% busy (limit %.0f%%)", c.CPUPercent, l.MaxCPUPercent))
	}
	if c.UserIdle >= 0 && c.UserIdle < l.MinUserIdle {
		out = append(out, fmt.Sprintf("user input %s ago (want %s of quiet)",
			c.UserIdle.Round(time.Second), l.MinUserIdle))
	}
	if c.Battery.Present && !c.Battery.OnAC {
		// Battery and AC draw differ; baselines should match the measured runs.
		out = append(out, fmt.Sprintf("running on battery (%d%%)", c.Battery.Percent))
	}
	return out
}

// Probe reads host conditions. The function fields are swapped in tests.
type Probe struct {
	cpuPercent func(ctx context.Context, window time.Duration) (float64, error)
	userIdle   func(ctx context.Context) time.Duration
	battery    func(ctx context.Context) Battery
}

// NewProbe creates a probe for the current platform.
func NewProbe() *Probe {
	return &Probe{
		cpuPercent: cpuBusy,
		userIdle:   osUserIdle,
		battery:    osBattery,
	}
}

// Read measures CPU utilization over window and samples idle and battery
// state. Only the CPU measurement can fail.
func (p *Probe) Read(ctx context.Context, window time.Duration) (Conditions, error) {
	busy, err := p.cpuPercent(ctx, window)
	if err != nil {
		return Conditions{}, fmt.Errorf("cpu utilization: %w", err)
	}
	return Conditions{
		CPUPercent: busy,
		UserIdle:   p.userIdle(ctx),
		Battery:    p.battery(ctx),
	}, nil
}

func cpuBusy(ctx context.Context, window time.Duration) (float64, error) {
	pct, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return 0, err
	}
	if len(pct) == 0 {
		return 0, fmt.Errorf("no cpu statistics")
	}
	return pct[0], nil
}
