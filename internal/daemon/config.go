// Package daemon manages powerlens configuration and wires the long-running
// services behind `powerlens serve`.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/powerlens/powerlens/internal/analysis"
	"github.com/powerlens/powerlens/internal/app/crm"
	"github.com/powerlens/powerlens/internal/app/feedback"
	"github.com/powerlens/powerlens/internal/infra/affinity"
	"github.com/powerlens/powerlens/internal/infra/powermetrics"
	"github.com/powerlens/powerlens/internal/observability"
)

// Config holds all powerlens configuration.
type Config struct {
	Sampler   SamplerConfig   `toml:"sampler"`
	Analysis  AnalysisConfig  `toml:"analysis"`
	Feedback  FeedbackConfig  `toml:"feedback"`
	API       APIConfig       `toml:"api"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
	CRM       CRMConfig       `toml:"crm"`
}

// SamplerConfig controls how powermetrics is invoked.
type SamplerConfig struct {
	Path              string   `toml:"path"`
	Samplers          []string `toml:"samplers"`
	Interval          string   `toml:"interval"`
	ShowProcessEnergy bool     `toml:"show_process_energy"`
	ExtraArgs         []string `toml:"extra_args"`
}

// AnalysisConfig controls divergence classes and the live window.
type AnalysisConfig struct {
	Thresholds      analysis.Thresholds `toml:"thresholds"`
	EfficiencyRatio float64             `toml:"efficiency_ratio"`
	Window          int                 `toml:"window"`
}

// FeedbackConfig controls the detect → fix → verify loop.
type FeedbackConfig struct {
	WindowSamples     int     `toml:"window_samples"`
	Settle            string  `toml:"settle"`
	BurstThreshold    float64 `toml:"burst_threshold"`
	TaxThresholdMW    float64 `toml:"tax_threshold_mw"`
	ToleranceMW       float64 `toml:"tolerance_mw"`
	RevertIneffective bool    `toml:"revert_ineffective"`
	EfficiencyCPUs    string  `toml:"efficiency_cpus"`
	DryRun            bool    `toml:"dry_run"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// TelemetryConfig controls metrics and error reporting.
type TelemetryConfig struct {
	Prometheus  bool   `toml:"prometheus"`
	SentryDSN   string `toml:"sentry_dsn"`
	Environment string `toml:"environment"`
}

// LoggingConfig controls logging behavior. Level "debug" adds per-sample
// and per-step detail to the log.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// CRMConfig holds invoice defaults.
type CRMConfig struct {
	Currency string `toml:"currency"`
	DueDays  int    `toml:"due_days"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	pm := powermetrics.DefaultConfig()
	fb := feedback.DefaultConfig()
	return Config{
		Sampler: SamplerConfig{
			Path:     pm.Path,
			Samplers: pm.Samplers,
			Interval: pm.Interval.String(),
		},
		Analysis: AnalysisConfig{
			Thresholds:      analysis.DefaultThresholds(),
			EfficiencyRatio: analysis.DefaultEfficiencyRatio,
			Window:          analysis.DefaultWindow,
		},
		Feedback: FeedbackConfig{
			WindowSamples:     fb.WindowSamples,
			Settle:            fb.Settle.String(),
			BurstThreshold:    fb.BurstThreshold,
			TaxThresholdMW:    fb.TaxThresholdMW,
			ToleranceMW:       fb.ToleranceMW,
			RevertIneffective: fb.RevertIneffective,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 9464,
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		CRM: CRMConfig{
			Currency: crm.DefaultCurrency,
			DueDays:  int(crm.DefaultDueIn / (24 * time.Hour)),
		},
	}
}

// LoadConfig reads config from $POWERLENS_HOME/config.toml, falling back to
// defaults for anything the file leaves out.
func LoadConfig() (Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile reads config from path.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet: use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes the config to $POWERLENS_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// Validate checks the fields that are strings in the file but typed in use.
func (c Config) Validate() error {
	if _, err := parseDuration(c.Sampler.Interval); err != nil {
		return fmt.Errorf("sampler.interval: %w", err)
	}
	if _, err := parseDuration(c.Feedback.Settle); err != nil {
		return fmt.Errorf("feedback.settle: %w", err)
	}
	th := c.Analysis.Thresholds
	if th.Slight < 0 || th.Slight > th.Moderate || th.Moderate > th.Significant {
		return fmt.Errorf("analysis.thresholds must satisfy 0 ≤ slight ≤ moderate ≤ significant")
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if !observability.ValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
	return nil
}

// ─── Typed views ────────────────────────────────────────────────────────────

// Powermetrics returns the sampler configuration.
func (c Config) Powermetrics() powermetrics.Config {
	interval, _ := parseDuration(c.Sampler.Interval)
	return powermetrics.Config{
		Path:              c.Sampler.Path,
		Samplers:          c.Sampler.Samplers,
		Interval:          interval,
		ShowProcessEnergy: c.Sampler.ShowProcessEnergy,
		ExtraArgs:         c.Sampler.ExtraArgs,
	}
}

// FeedbackLoop returns the feedback loop configuration.
func (c Config) FeedbackLoop() feedback.Config {
	cfg := feedback.DefaultConfig()
	cfg.WindowSamples = c.Feedback.WindowSamples
	if settle, err := parseDuration(c.Feedback.Settle); err == nil && c.Feedback.Settle != "" {
		cfg.Settle = settle
	}
	cfg.BurstThreshold = c.Feedback.BurstThreshold
	cfg.TaxThresholdMW = c.Feedback.TaxThresholdMW
	cfg.ToleranceMW = c.Feedback.ToleranceMW
	cfg.RevertIneffective = c.Feedback.RevertIneffective
	cfg.Thresholds = c.Analysis.Thresholds
	if c.Analysis.EfficiencyRatio > 0 {
		cfg.EfficiencyRatio = c.Analysis.EfficiencyRatio
	}
	return cfg
}

// Affinity returns the fixer options.
func (c Config) Affinity() affinity.Options {
	return affinity.Options{
		EfficiencyCPUs: c.Feedback.EfficiencyCPUs,
		DryRun:         c.Feedback.DryRun,
	}
}

// CRMOptions returns the invoice defaults.
func (c Config) CRMOptions() crm.Options {
	return crm.Options{
		Currency: c.CRM.Currency,
		DueIn:    time.Duration(c.CRM.DueDays) * 24 * time.Hour,
	}
}

// Sentry returns the error-reporting options.
func (c Config) Sentry(release string) observability.Options {
	return observability.Options{
		DSN:         c.Telemetry.SentryDSN,
		Environment: c.Telemetry.Environment,
		Release:     release,
	}
}

// Addr is the API listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// ─── Paths ──────────────────────────────────────────────────────────────────

// powerlensHome returns the powerlens data directory.
func powerlensHome() string {
	if env := os.Getenv("POWERLENS_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".powerlens")
}

// Home is exported for use by other packages.
func Home() string {
	return powerlensHome()
}

// ConfigPath is the config file location.
func ConfigPath() string {
	return filepath.Join(powerlensHome(), "config.toml")
}

// parseDuration accepts Go durations and bare integers as milliseconds,
// matching powermetrics' -i flag. Empty means zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	var ms int64
	if _, err := fmt.Sscanf(s, "%d", &ms); err == nil && fmt.Sprint(ms) == s {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}
