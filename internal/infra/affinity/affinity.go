// Package affinity moves processes between CPU core classes.
//
// On Apple Silicon a process is demoted to the efficiency cluster with
// taskpolicy's background clamp; on Linux the equivalent is pinning it to a
// configured CPU list with taskset. Platform selection happens in the
// build-tagged files; the command plumbing here is shared and testable on any
// OS.
package affinity

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"

	"github.com/powerlens/powerlens/internal/domain"
)

// Fixer applies and reverts the efficiency-core fix for one process.
type Fixer interface {
	Apply(ctx context.Context, pid int) error
	Revert(ctx context.Context, pid int) error
	Name() string
}

// Options tunes the platform fixer.
type Options struct {
	// EfficiencyCPUs is the taskset CPU list used on Linux (e.g. "0-3").
	// Empty means CPU 0 only.
	EfficiencyCPUs string `toml:"efficiency_cpus"`
	// DryRun logs the command instead of running it.
	DryRun bool `toml:"dry_run"`
}

// runFunc executes a command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func dryRun(_ context.Context, name string, args ...string) ([]byte, error) {
	log.Printf("[affinity] dry-run: %s %s", name, strings.Join(args, " "))
	return nil, nil
}

// New returns the fixer for this platform.
func New(opts Options) Fixer {
	run := runFunc(execRun)
	if opts.DryRun {
		run = dryRun
	}
	return newPlatformFixer(opts, run)
}

// commandFixer shells out to a scheduling tool.
type commandFixer struct {
	tool   string
	apply  func(pid int) []string
	revert func(pid int) []string
	run    runFunc
}

func (f *commandFixer) Name() string { return f.tool }

func (f *commandFixer) Apply(ctx context.Context, pid int) error {
	return f.exec(ctx, "apply", pid, f.apply(pid))
}

func (f *commandFixer) Revert(ctx context.Context, pid int) error {
	return f.exec(ctx, "revert", pid, f.revert(pid))
}

func (f *commandFixer) exec(ctx context.Context, op string, pid int, args []string) error {
	if pid <= 0 {
		return fmt.Errorf("%w: pid %d", domain.ErrProcessNotFound, pid)
	}
	out, err := f.run(ctx, f.tool, args...)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s %s pid %d: %w: %s", f.tool, op, pid, err, msg)
		}
		return fmt.Errorf("%s %s pid %d: %w", f.tool, op, pid, err)
	}
	log.Printf("[affinity] %s pid %d via %s", op, pid, f.tool)
	return nil
}

// unsupportedFixer is used where no scheduling tool is known.
type unsupportedFixer struct{}

func (unsupportedFixer) Name() string { return "unsupported" }

func (unsupportedFixer) Apply(context.Context, int) error { return domain.ErrAffinityUnsupported }

func (unsupportedFixer) Revert(context.Context, int) error { return domain.ErrAffinityUnsupported }

// ─── Argument builders ──────────────────────────────────────────────────────

// taskpolicy -b clamps the process to background QoS, which the scheduler
// places on efficiency cores; -B removes the clamp.
func taskpolicyArgs(pid int, demote bool) []string {
	flag := "-B"
	if demote {
		flag = "-b"
	}
	return []string{flag, "-p", strconv.Itoa(pid)}
}

// taskset -a applies the list to every thread of the process.
func tasksetArgs(pid int, cpus string) []string {
	return []string{"-a", "-p", "-c", cpus, strconv.Itoa(pid)}
}

// cpuRange formats the full CPU list for n logical CPUs.
func cpuRange(n int) string {
	if n <= 1 {
		return "0"
	}
	return fmt.Sprintf("0-%d", n-1)
}
