// Package powermetrics runs macOS powermetrics and folds its text output
// into domain.Sample records.
//
// powermetrics prints one block per interval, opened by a
// "*** Sampled system activity ..." banner. The parser accumulates lines
// into a pending sample and emits it when the next banner (or EOF) arrives.
package powermetrics

import (
	"fmt"
	"strings"
	"time"
)

const defaultPath = "/usr/bin/powermetrics"

var defaultSamplers = []string{"cpu_power", "gpu_power", "ane_power", "tasks"}

// Config controls how powermetrics is invoked.
type Config struct {
	Path              string        `toml:"path"`
	Samplers          []string      `toml:"samplers"`
	Interval          time.Duration `toml:"-"`
	ShowProcessEnergy bool          `toml:"show_process_energy"`
	ExtraArgs         []string      `toml:"extra_args"`
}

// DefaultConfig returns the sampler defaults: 1s interval over the CPU, GPU,
// ANE power samplers and the running-task table.
func DefaultConfig() Config {
	return normalizeConfig(Config{})
}

func normalizeConfig(cfg Config) Config {
	normalized := cfg

	if normalized.Path == "" {
		normalized.Path = defaultPath
	}
	if len(normalized.Samplers) == 0 {
		normalized.Samplers = append([]string{}, defaultSamplers...)
	}
	if normalized.Interval <= 0 {
		normalized.Interval = time.Second
	}
	normalized.ExtraArgs = append([]string{}, cfg.ExtraArgs...)

	return normalized
}

// Args builds the powermetrics argument list. Any -i in ExtraArgs is
// rewritten so the reported interval always matches Interval.
func (c Config) Args() []string {
	cfg := normalizeConfig(c)

	args := []string{"--samplers", strings.Join(cfg.Samplers, ",")}
	if cfg.ShowProcessEnergy {
		args = append(args, "--show-process-energy")
	}
	args = append(args, cfg.ExtraArgs...)
	return ensureIntervalArgument(args, cfg.Interval)
}

func ensureIntervalArgument(args []string, interval time.Duration) []string {
	ms := fmt.Sprintf("%d", interval.Milliseconds())
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-i" || args[i] == "--sample-rate" {
			args[i+1] = ms
			return args
		}
	}
	return append(args, "-i", ms)
}
