//go:build linux

package affinity

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
)

// newPlatformFixer pins to EfficiencyCPUs and restores the full logical CPU
// list on revert. Linux has no E/P core distinction to detect, so the list
// comes from config.
func newPlatformFixer(opts Options, run runFunc) Fixer {
	eff := opts.EfficiencyCPUs
	if eff == "" {
		eff = "0"
	}

	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	all := cpuRange(n)

	return &commandFixer{
		tool:   "taskset",
		apply:  func(pid int) []string { return tasksetArgs(pid, eff) },
		revert: func(pid int) []string { return tasksetArgs(pid, all) },
		run:    run,
	}
}
