// Package health runs periodic checks on the database, data directory and
// sampler prerequisites.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/powerlens/powerlens/internal/infra/sqlite"
)

// MinFreeBytes is the free space below which the data directory is unhealthy.
const MinFreeBytes = 100 * 1024 * 1024

// Check defines a single health check. Optional checks only degrade.
type Check struct {
	Name     string
	Optional bool
	CheckFn  func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Optional  bool      `json:"optional,omitempty"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs health checks on an interval.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	now      func() time.Time
}

// SamplerCheck reports whether powermetrics can run.
type SamplerCheck interface {
	Check() error
}

// NewChecker creates a checker for the database, the data directory and,
// when sampler is non-nil, the powermetrics prerequisites.
func NewChecker(db *sqlite.DB, dataDir string, sampler SamplerCheck) *Checker {
	c := &Checker{
		interval: 60 * time.Second,
		now:      time.Now,
		checks: []Check{
			{Name: "sqlite", CheckFn: func(ctx context.Context) error { return db.Ping() }},
			{Name: "data_dir", CheckFn: func(ctx context.Context) error { return checkDataDir(dataDir) }},
			{Name: "disk_space", CheckFn: func(ctx context.Context) error {
				return checkDiskSpace(ctx, dataDir, MinFreeBytes)
			}},
		},
	}
	if sampler != nil {
		// Serving stored data works without powermetrics.
		c.checks = append(c.checks, Check{
			Name:     "powermetrics",
			Optional: true,
			CheckFn:  func(ctx context.Context) error { return sampler.Check() },
		})
	}
	return c
}

// Run checks immediately and then every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs every check and returns the results.
func (c *Checker) RunOnce(ctx context.Context) []Status {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{Name: check.Name, Optional: check.Optional, CheckedAt: c.now()}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
		} else {
			s.Healthy = true
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
	return c.Statuses()
}

// Statuses returns the latest results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if every required check passed.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy && !s.Optional {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkDataDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	f, err := os.CreateTemp(dir, ".healthcheck-*")
	if err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(filepath.Clean(name))
}

func checkDiskSpace(ctx context.Context, dir string, minFree uint64) error {
	usage, err := disk.UsageWithContext(ctx, dir)
	if err != nil {
		return fmt.Errorf("disk usage: %w", err)
	}
	if usage.Free < minFree {
		return fmt.Errorf("only %d MB free on %s", usage.Free/(1024*1024), usage.Path)
	}
	return nil
}
