package powermetrics

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/powerlens/powerlens/internal/domain"
)

var (
	sampleBannerRegex  = regexp.MustCompile(`^\*\*\* Sampled system activity \((.+?)\)(?: \(([\d.]+)ms elapsed\))?`)
	domainPowerRegex   = regexp.MustCompile(`^(CPU|GPU|ANE|DRAM) Power:\s+([\d.]+)\s*(mW|W)\b`)
	combinedRegex      = regexp.MustCompile(`^(?:Combined Power \(CPU \+ GPU \+ ANE\)|Package Power):\s+([\d.]+)\s*(mW|W)\b`)
	clusterActiveRegex = regexp.MustCompile(`^([EP])\d*-Cluster HW active residency:\s+([\d.]+)%`)
	gpuActiveRegex     = regexp.MustCompile(`^GPU (?:HW )?active residency:\s+([\d.]+)%`)

	// Name, ID, CPU ms/s, User%, Deadlines(<2ms, 2-5ms), Wakeups(Intr, Pkg idle),
	// then optional GPU ms/s and Energy Impact columns.
	taskRowRegex = regexp.MustCompile(`^(.+?)\s+(-?\d+)\s+([\d.]+)\s+([\d.]+)\s+([\d.]+)\s+([\d.]+)\s+([\d.]+)\s+([\d.]+)(?:\s+([\d.]+))?(?:\s+([\d.]+))?$`)
)

const bannerTimeLayout = "Mon Jan _2 15:04:05 2006 -0700"

// allTasksID is the synthetic aggregate row powermetrics appends to the task
// table.
const allTasksID = -2

// Parser folds powermetrics lines into samples. Not safe for concurrent use.
type Parser struct {
	interval time.Duration
	now      func() time.Time

	pending *domain.Sample
	touched bool
	inTasks bool
}

// NewParser creates a parser. interval is used as the sample interval when the
// banner carries no elapsed time.
func NewParser(interval time.Duration) *Parser {
	return &Parser{
		interval: interval,
		now:      time.Now,
	}
}

// ParseLine consumes one line. It returns the completed previous sample when
// the line opens a new interval, and nil otherwise.
func (p *Parser) ParseLine(line string) *domain.Sample {
	trimmed := strings.TrimSpace(line)

	if m := sampleBannerRegex.FindStringSubmatch(trimmed); m != nil {
		done := p.Flush()
		p.start(m[1], m[2])
		return done
	}

	if trimmed == "" {
		return nil
	}

	if strings.HasPrefix(trimmed, "***") {
		p.inTasks = strings.Contains(trimmed, "Running tasks")
		return nil
	}

	if p.pending == nil {
		// Lines before the first banner (machine model, OS version) carry no data.
		return nil
	}

	if p.inTasks {
		p.parseTaskRow(trimmed)
		return nil
	}

	p.parseMetricLine(trimmed)
	return nil
}

// Flush returns the pending sample if it has any data, and resets the parser.
func (p *Parser) Flush() *domain.Sample {
	s := p.pending
	touched := p.touched
	p.pending = nil
	p.touched = false
	p.inTasks = false
	if s == nil || !touched {
		return nil
	}
	return s
}

func (p *Parser) start(stamp, elapsed string) {
	s := &domain.Sample{
		Time:       p.now(),
		IntervalMs: float64(p.interval.Milliseconds()),
	}
	if t, err := time.Parse(bannerTimeLayout, stamp); err == nil {
		s.Time = t
	}
	if ms, err := strconv.ParseFloat(elapsed, 64); err == nil && ms > 0 {
		s.IntervalMs = ms
	}
	p.pending = s
}

func (p *Parser) parseMetricLine(line string) {
	s := p.pending

	if m := domainPowerRegex.FindStringSubmatch(line); m != nil {
		mw, ok := milliwatts(m[2], m[3])
		if !ok {
			return
		}
		switch m[1] {
		case "CPU":
			s.CPUmW = mw
		case "GPU":
			s.GPUmW = mw
		case "ANE":
			s.ANEmW = mw
		case "DRAM":
			s.DRAMmW = mw
		}
		p.touched = true
		return
	}

	if m := combinedRegex.FindStringSubmatch(line); m != nil {
		if mw, ok := milliwatts(m[1], m[2]); ok {
			s.CombinedmW = mw
			p.touched = true
		}
		return
	}

	if m := clusterActiveRegex.FindStringSubmatch(line); m != nil {
		pct, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return
		}
		if m[1] == "P" {
			s.PClusterActive += pct
		} else {
			s.EClusterActive += pct
		}
		p.touched = true
		return
	}

	if m := gpuActiveRegex.FindStringSubmatch(line); m != nil {
		if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
			s.GPUActive = pct
			p.touched = true
		}
	}
}

func (p *Parser) parseTaskRow(line string) {
	m := taskRowRegex.FindStringSubmatch(line)
	if m == nil {
		return
	}
	pid, err := strconv.Atoi(m[2])
	if err != nil || pid == allTasksID {
		return
	}

	usage := domain.ProcessUsage{
		PID:         pid,
		Name:        strings.TrimSpace(m[1]),
		CPUMsPerSec: parseFloat(m[3]),
		UserPercent: parseFloat(m[4]),
		WakeupsIntr: parseFloat(m[7]),
		WakeupsIdle: parseFloat(m[8]),
	}
	if m[9] != "" {
		usage.GPUMsPerSec = parseFloat(m[9])
	}
	if m[10] != "" {
		usage.EnergyImpact = parseFloat(m[10])
	}

	p.pending.Processes = append(p.pending.Processes, usage)
	p.touched = true
}

func milliwatts(value, unit string) (float64, bool) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	if unit == "W" {
		v *= 1000
	}
	return v, true
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
