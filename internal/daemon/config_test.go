package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 9464 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 9464)
	}
	if cfg.Sampler.Interval != "1s" {
		t.Errorf("Sampler.Interval = %q, want 1s", cfg.Sampler.Interval)
	}
	if cfg.Feedback.WindowSamples != 10 {
		t.Errorf("Feedback.WindowSamples = %d, want 10", cfg.Feedback.WindowSamples)
	}
	if cfg.CRM.DueDays != 30 {
		t.Errorf("CRM.DueDays = %d, want 30", cfg.CRM.DueDays)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	t.Setenv("POWERLENS_HOME", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != DefaultConfig().API.Port {
		t.Error("missing file should yield defaults")
	}
}

func TestSaveLoadConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("POWERLENS_HOME", home)

	cfg := DefaultConfig()
	cfg.API.Port = 8080
	cfg.Feedback.Settle = "2s"
	cfg.Feedback.EfficiencyCPUs = "0-3"
	cfg.Analysis.Thresholds.Significant = 0.2
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "config.toml")); err != nil {
		t.Fatalf("config.toml missing: %v", err)
	}

	got, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if got.API.Port != 8080 {
		t.Errorf("API.Port = %d, want 8080", got.API.Port)
	}
	if got.FeedbackLoop().Settle != 2*time.Second {
		t.Errorf("Settle = %v, want 2s", got.FeedbackLoop().Settle)
	}
	if got.Affinity().EfficiencyCPUs != "0-3" {
		t.Errorf("EfficiencyCPUs = %q", got.Affinity().EfficiencyCPUs)
	}
	if got.FeedbackLoop().Thresholds.Significant != 0.2 {
		t.Errorf("Significant = %v, want 0.2", got.FeedbackLoop().Thresholds.Significant)
	}
}

func TestLoadConfigFile_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "[sampler]\ninterval = \"500\"\n\n[crm]\ncurrency = \"eur\"\n"
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if got := cfg.Powermetrics().Interval; got != 500*time.Millisecond {
		t.Errorf("Interval = %v, want 500ms", got)
	}
	if cfg.API.Port != 9464 {
		t.Errorf("untouched section lost its default: port %d", cfg.API.Port)
	}
	if got := cfg.CRMOptions(); got.Currency != "eur" || got.DueIn != 30*24*time.Hour {
		t.Errorf("CRMOptions() = %+v", got)
	}
}

func TestLoadConfigFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", "[api\nport = 1"},
		{"interval", "[sampler]\ninterval = \"soon\""},
		{"thresholds", "[analysis.thresholds]\nslight = 0.5\nmoderate = 0.1\nsignificant = 0.2"},
		{"port", "[api]\nport = 70000"},
		{"log level", "[logging]\nlevel = \"verbose\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.body), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfigFile(path); err == nil {
				t.Error("LoadConfigFile() should fail")
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"1s", time.Second, false},
		{"250", 250 * time.Millisecond, false},
		{"1m30s", 90 * time.Second, false},
		{"fast", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDuration(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewAt(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.File = filepath.Join(t.TempDir(), "logs", "powerlens.log")

	d, err := NewAt(t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("NewAt() error: %v", err)
	}
	defer d.Close()

	if d.DB == nil || d.Sampler == nil || d.Feedback == nil || d.CRM == nil || d.Server == nil || d.Health == nil {
		t.Fatal("daemon should wire every service")
	}
	if d.Fixer.Name() == "" {
		t.Error("fixer should be named")
	}
	if _, err := os.Stat(cfg.Logging.File); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}
