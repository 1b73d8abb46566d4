// Package domain holds the pure types shared by every powerlens layer.
// Power values are milliwatts throughout, matching powermetrics output.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProcessUsage is one row of the powermetrics "Running tasks" table.
type ProcessUsage struct {
	PID          int     `json:"pid"`
	Name         string  `json:"name"`
	CPUMsPerSec  float64 `json:"cpu_ms_per_s"`
	UserPercent  float64 `json:"user_percent"`
	WakeupsIntr  float64 `json:"wakeups_intr"`
	WakeupsIdle  float64 `json:"wakeups_pkg_idle"`
	GPUMsPerSec  float64 `json:"gpu_ms_per_s"`
	EnergyImpact float64 `json:"energy_impact"`
}

// Sample is a single powermetrics interval folded into one record.
type Sample struct {
	Time       time.Time `json:"time"`
	IntervalMs float64   `json:"interval_ms"`

	CPUmW      float64 `json:"cpu_mw"`
	GPUmW      float64 `json:"gpu_mw"`
	ANEmW      float64 `json:"ane_mw"`
	DRAMmW     float64 `json:"dram_mw"`
	CombinedmW float64 `json:"combined_mw"`

	// Cluster HW active residency, percent. P clusters are summed.
	EClusterActive float64 `json:"e_cluster_active"`
	PClusterActive float64 `json:"p_cluster_active"`
	GPUActive      float64 `json:"gpu_active"`

	Processes []ProcessUsage `json:"processes,omitempty"`
}

// Total returns whole-package power. powermetrics reports a combined figure on
// recent macOS; older releases only report the per-domain lines.
func (s Sample) Total() float64 {
	if s.CombinedmW > 0 {
		return s.CombinedmW
	}
	return s.CPUmW + s.GPUmW + s.ANEmW
}

// TotalCPUMs sums CPU ms/s over every process row in the sample.
func (s Sample) TotalCPUMs() float64 {
	var total float64
	for _, p := range s.Processes {
		total += p.CPUMsPerSec
	}
	return total
}

// ─── Components ─────────────────────────────────────────────────────────────

// ComponentKind names a power domain or a process.
type ComponentKind string

const (
	ComponentCPU     ComponentKind = "cpu"
	ComponentGPU     ComponentKind = "gpu"
	ComponentANE     ComponentKind = "ane"
	ComponentDRAM    ComponentKind = "dram"
	ComponentTotal   ComponentKind = "total"
	ComponentProcess ComponentKind = "process"
)

// Component selects the series attribution is computed for.
type Component struct {
	Kind    ComponentKind `json:"kind"`
	Process string        `json:"process,omitempty"`
}

// String renders the component the way ParseComponent accepts it.
func (c Component) String() string {
	if c.Kind == ComponentProcess {
		return "process:" + c.Process
	}
	return string(c.Kind)
}

// ParseComponent accepts cpu, gpu, ane, dram, total (alias package) and
// process:<name>.
func ParseComponent(s string) (Component, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if name, ok := strings.CutPrefix(s, "process:"); ok {
		if name == "" {
			return Component{}, fmt.Errorf("%w: empty process name", ErrInvalidComponent)
		}
		return Component{Kind: ComponentProcess, Process: name}, nil
	}
	switch ComponentKind(s) {
	case ComponentCPU, ComponentGPU, ComponentANE, ComponentDRAM, ComponentTotal:
		return Component{Kind: ComponentKind(s)}, nil
	case "package", "combined":
		return Component{Kind: ComponentTotal}, nil
	}
	return Component{}, fmt.Errorf("%w: %q", ErrInvalidComponent, s)
}

// PowerOf returns the component's power in one sample. Process power is the
// process's share of CPU time applied to CPU power.
func (c Component) PowerOf(s Sample) float64 {
	switch c.Kind {
	case ComponentCPU:
		return s.CPUmW
	case ComponentGPU:
		return s.GPUmW
	case ComponentANE:
		return s.ANEmW
	case ComponentDRAM:
		return s.DRAMmW
	case ComponentTotal:
		return s.Total()
	case ComponentProcess:
		total := s.TotalCPUMs()
		if total <= 0 {
			return 0
		}
		var own float64
		for _, p := range s.Processes {
			if strings.EqualFold(p.Name, c.Process) {
				own += p.CPUMsPerSec
			}
		}
		return s.CPUmW * own / total
	}
	return 0
}

// Series extracts the component's power across samples.
func (c Component) Series(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = c.PowerOf(s)
	}
	return out
}

// SeenIn reports whether samples carry any data for c. Power domains are
// always present; a process must appear in at least one task table.
func (c Component) SeenIn(samples []Sample) bool {
	if c.Kind != ComponentProcess {
		return true
	}
	for _, s := range samples {
		for _, p := range s.Processes {
			if strings.EqualFold(p.Name, c.Process) {
				return true
			}
		}
	}
	return false
}

// TotalSeries extracts whole-package power across samples.
func TotalSeries(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Total()
	}
	return out
}

// ─── Runs ───────────────────────────────────────────────────────────────────

// RunKind distinguishes recorded sampling sessions.
type RunKind string

const (
	RunSample   RunKind = "sample"
	RunBaseline RunKind = "baseline"
	RunFeedback RunKind = "feedback"
)

// Run is a persisted sampling session.
type Run struct {
	ID          string    `json:"id"`
	Kind        RunKind   `json:"kind"`
	Label       string    `json:"label"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at,omitempty"`
	SampleCount int       `json:"sample_count"`
}

// Baseline is the idle reference that deltas are measured against.
type Baseline struct {
	RunID     string    `json:"run_id"`
	Label     string    `json:"label"`
	CPUmW     float64   `json:"cpu_mw"`
	GPUmW     float64   `json:"gpu_mw"`
	ANEmW     float64   `json:"ane_mw"`
	DRAMmW    float64   `json:"dram_mw"`
	TotalmW   float64   `json:"total_mw"`
	CreatedAt time.Time `json:"created_at"`
}

// For returns the baseline power for a component. Processes have no idle
// floor of their own, so their baseline is zero.
func (b Baseline) For(c Component) float64 {
	switch c.Kind {
	case ComponentCPU:
		return b.CPUmW
	case ComponentGPU:
		return b.GPUmW
	case ComponentANE:
		return b.ANEmW
	case ComponentDRAM:
		return b.DRAMmW
	case ComponentTotal:
		return b.TotalmW
	}
	return 0
}
