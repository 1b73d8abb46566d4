package affinity

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/powerlens/powerlens/internal/domain"
)

type recorded struct {
	name string
	args []string
}

func recorder(calls *[]recorded, out string, err error) runFunc {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, recorded{name, args})
		return []byte(out), err
	}
}

func TestArgBuilders(t *testing.T) {
	tests := []struct {
		name string
		got  []string
		want []string
	}{
		{"taskpolicy demote", taskpolicyArgs(412, true), []string{"-b", "-p", "412"}},
		{"taskpolicy restore", taskpolicyArgs(412, false), []string{"-B", "-p", "412"}},
		{"taskset", tasksetArgs(99, "0-3"), []string{"-a", "-p", "-c", "0-3", "99"}},
	}
	for _, tt := range tests {
		if !reflect.DeepEqual(tt.got, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestCPURange(t *testing.T) {
	for n, want := range map[int]string{0: "0", 1: "0", 8: "0-7"} {
		if got := cpuRange(n); got != want {
			t.Errorf("cpuRange(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestCommandFixer_ApplyRevert(t *testing.T) {
	var calls []recorded
	f := &commandFixer{
		tool:   "taskpolicy",
		apply:  func(pid int) []string { return taskpolicyArgs(pid, true) },
		revert: func(pid int) []string { return taskpolicyArgs(pid, false) },
		run:    recorder(&calls, "", nil),
	}

	if err := f.Apply(context.Background(), 300); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if err := f.Revert(context.Background(), 300); err != nil {
		t.Fatalf("Revert() error: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
	if calls[0].name != "taskpolicy" || calls[0].args[0] != "-b" {
		t.Errorf("apply call = %+v", calls[0])
	}
	if calls[1].args[0] != "-B" {
		t.Errorf("revert call = %+v", calls[1])
	}
}

func TestCommandFixer_RejectsBadPID(t *testing.T) {
	var calls []recorded
	f := &commandFixer{tool: "taskset", apply: func(int) []string { return nil }, run: recorder(&calls, "", nil)}

	if err := f.Apply(context.Background(), 0); !errors.Is(err, domain.ErrProcessNotFound) {
		t.Errorf("err = %v, want ErrProcessNotFound", err)
	}
	if len(calls) != 0 {
		t.Error("tool should not run for an invalid pid")
	}
}

func TestCommandFixer_ReportsToolOutput(t *testing.T) {
	var calls []recorded
	boom := errors.New("exit status 1")
	f := &commandFixer{
		tool:  "taskset",
		apply: func(pid int) []string { return tasksetArgs(pid, "0") },
		run:   recorder(&calls, "taskset: failed to set pid 5's affinity\n", boom),
	}

	err := f.Apply(context.Background(), 5)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if !strings.Contains(err.Error(), "failed to set pid") {
		t.Errorf("error should carry tool output: %v", err)
	}
}

func TestUnsupportedFixer(t *testing.T) {
	var f Fixer = unsupportedFixer{}
	if err := f.Apply(context.Background(), 1); !errors.Is(err, domain.ErrAffinityUnsupported) {
		t.Errorf("Apply() = %v", err)
	}
	if err := f.Revert(context.Background(), 1); !errors.Is(err, domain.ErrAffinityUnsupported) {
		t.Errorf("Revert() = %v", err)
	}
}

func TestNew_DryRun(t *testing.T) {
	f := New(Options{DryRun: true})
	err := f.Apply(context.Background(), os.Getpid())
	if err != nil && !errors.Is(err, domain.ErrAffinityUnsupported) {
		t.Errorf("dry-run Apply() error: %v", err)
	}
}

func TestFindPIDs_NotFound(t *testing.T) {
	_, err := FindPIDs(context.Background(), "powerlens-no-such-process-4f1c")
	if !errors.Is(err, domain.ErrProcessNotFound) {
		t.Errorf("err = %v, want ErrProcessNotFound", err)
	}
	if _, err := FindPIDs(context.Background(), "  "); !errors.Is(err, domain.ErrProcessNotFound) {
		t.Errorf("empty name: err = %v, want ErrProcessNotFound", err)
	}
}

func TestProcessName_Self(t *testing.T) {
	name, err := ProcessName(context.Background(), os.Getpid())
	if err != nil {
		t.Skipf("process table unavailable: %v", err)
	}
	if name == "" {
		t.Error("ProcessName(self) returned empty name")
	}
}
