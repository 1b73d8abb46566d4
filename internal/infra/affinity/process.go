package affinity

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/powerlens/powerlens/internal/domain"
)

// FindPIDs returns the PIDs of every process whose name matches name
// (case-insensitive). The caller's own process is never returned.
func FindPIDs(ctx context.Context, name string) ([]int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty process name", domain.ErrProcessNotFound)
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	self := os.Getpid()
	var pids []int
	for _, p := range procs {
		if int(p.Pid) == self {
			continue
		}
		// Processes can exit mid-scan.
		pname, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.EqualFold(pname, name) {
			pids = append(pids, int(p.Pid))
		}
	}

	if len(pids) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrProcessNotFound, name)
	}
	sort.Ints(pids)
	return pids, nil
}

// ProcessName returns the name of a running process.
func ProcessName(ctx context.Context, pid int) (string, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return "", fmt.Errorf("%w: pid %d", domain.ErrProcessNotFound, pid)
	}
	return p.NameWithContext(ctx)
}
