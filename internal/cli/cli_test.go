package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/powerlens/powerlens/internal/analysis"
	"github.com/powerlens/powerlens/internal/daemon"
	"github.com/powerlens/powerlens/internal/domain"
	"github.com/powerlens/powerlens/internal/infra/export"
	"github.com/powerlens/powerlens/internal/infra/powermetrics"
	"github.com/powerlens/powerlens/internal/infra/sqlite"
	"github.com/powerlens/powerlens/internal/observability"
)

func cpuSamples(cpu ...float64) []domain.Sample {
	start := time.Unix(1_700_000_000, 0).UTC()
	out := make([]domain.Sample, len(cpu))
	for i, v := range cpu {
		out[i] = domain.Sample{
			Time:       start.Add(time.Duration(i) * time.Second),
			IntervalMs: 1000,
			CPUmW:      v,
		}
	}
	return out
}

func fakeStream(samples []domain.Sample, err error) *powermetrics.Stream {
	sc := make(chan domain.Sample, len(samples))
	ec := make(chan error, 1)
	for _, s := range samples {
		sc <- s
	}
	close(sc)
	if err != nil {
		ec <- err
	}
	close(ec)
	return &powermetrics.Stream{Samples: sc, Errors: ec}
}

// runCLI executes the root command with args and returns combined output.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	_, err := rootCmd.ExecuteC()
	return out.String(), err
}

// ─── Pipeline ───────────────────────────────────────────────────────────────

func TestPipe_ForwardsAll(t *testing.T) {
	var seen []float64
	n, err := pipe(context.Background(), fakeStream(cpuSamples(1, 2, 3, 4), nil), 0, func(s domain.Sample) {
		seen = append(seen, s.CPUmW)
	})
	if err != nil {
		t.Fatalf("pipe() error: %v", err)
	}
	if n != 4 || len(seen) != 4 {
		t.Errorf("n = %d, seen = %v, want 4", n, seen)
	}
}

func TestPipe_Limit(t *testing.T) {
	n, err := pipe(context.Background(), fakeStream(cpuSamples(1, 2, 3, 4, 5), nil), 3, nil)
	if err != nil {
		t.Fatalf("pipe() error: %v", err)
	}
	if n != 3 {
		t.Errorf("n = %d, want 3", n)
	}
}

func TestPipe_StreamError(t *testing.T) {
	boom := errors.New("powermetrics exited")
	_, err := pipe(context.Background(), fakeStream(nil, boom), 0, nil)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestPipe_CanceledIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// An open stream that never produces: only cancellation ends the run.
	stream := &powermetrics.Stream{Samples: make(chan domain.Sample), Errors: make(chan error)}
	if _, err := pipe(ctx, stream, 0, nil); err != nil {
		t.Errorf("pipe() after cancel = %v, want nil", err)
	}
}

type failingSink struct{ closed bool }

func (f *failingSink) Write(domain.Sample) error { return errors.New("disk full") }
func (f *failingSink) Close() error              { f.closed = true; return nil }

func TestPipe_SinkErrorStops(t *testing.T) {
	fs := &failingSink{}
	_, err := pipe(context.Background(), fakeStream(cpuSamples(1, 2, 3), nil), 0, nil, fs)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("err = %v, want disk full", err)
	}
	if !fs.closed {
		t.Error("sinks must be closed after a failure")
	}
}

func TestFileSink(t *testing.T) {
	for _, name := range []string{"out.csv", "out.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			fs, err := newFileSink(path)
			if err != nil {
				t.Fatalf("newFileSink() error: %v", err)
			}
			if _, err := pipe(context.Background(), fakeStream(cpuSamples(100, 200, 300), nil), 0, nil, fs); err != nil {
				t.Fatalf("pipe() error: %v", err)
			}

			got, err := export.Load(context.Background(), path)
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if len(got) != 3 || got[2].CPUmW != 300 {
				t.Errorf("loaded %+v", got)
			}
		})
	}
}

func TestRunRecorder(t *testing.T) {
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	rec, err := newRunRecorder(db, domain.RunSample, "build")
	if err != nil {
		t.Fatalf("newRunRecorder() error: %v", err)
	}
	rec.keep = true

	values := make([]float64, recordBatch+5)
	for i := range values {
		values[i] = float64(i)
	}
	if _, err := pipe(context.Background(), fakeStream(cpuSamples(values...), nil), 0, nil, rec); err != nil {
		t.Fatalf("pipe() error: %v", err)
	}

	if rec.run.SampleCount != len(values) {
		t.Errorf("SampleCount = %d, want %d", rec.run.SampleCount, len(values))
	}
	if len(rec.samples) != len(values) {
		t.Errorf("kept %d samples, want %d", len(rec.samples), len(values))
	}
	stored, err := db.RunSamples(rec.run.ID)
	if err != nil {
		t.Fatalf("RunSamples() error: %v", err)
	}
	if len(stored) != len(values) {
		t.Errorf("stored %d samples, want %d", len(stored), len(values))
	}
}

// ─── Analysis helpers ───────────────────────────────────────────────────────

func TestCompareWindows(t *testing.T) {
	cpu := domain.Component{Kind: domain.ComponentCPU}
	before := cpuSamples(100, 500)

	t.Run("eliminated", func(t *testing.T) {
		cmp, err := compareWindows(before, cpuSamples(100, 100), cpu, nil, 25)
		if err != nil {
			t.Fatalf("compareWindows() error: %v", err)
		}
		if cmp.Verdict != analysis.VerdictEliminated {
			t.Errorf("verdict = %s, want eliminated", cmp.Verdict)
		}
	})

	t.Run("relocated", func(t *testing.T) {
		after := cpuSamples(100, 100)
		for i := range after {
			after[i].GPUmW = 200
		}
		cmp, err := compareWindows(before, after, cpu, nil, 25)
		if err != nil {
			t.Fatalf("compareWindows() error: %v", err)
		}
		if cmp.Verdict != analysis.VerdictRelocated {
			t.Errorf("verdict = %s, want relocated", cmp.Verdict)
		}
	})

	t.Run("flat before", func(t *testing.T) {
		_, err := compareWindows(cpuSamples(100, 100), cpuSamples(100), cpu, nil, 25)
		if !errors.Is(err, domain.ErrNoSystemDelta) {
			t.Errorf("err = %v, want ErrNoSystemDelta", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := compareWindows(nil, before, cpu, nil, 25); !errors.Is(err, domain.ErrNoSamples) {
			t.Errorf("err = %v, want ErrNoSamples", err)
		}
	})

	t.Run("unknown process", func(t *testing.T) {
		proc := domain.Component{Kind: domain.ComponentProcess, Process: "node"}
		_, err := compareWindows(before, cpuSamples(100, 100), proc, nil, 25)
		if !errors.Is(err, domain.ErrProcessNotFound) {
			t.Errorf("err = %v, want ErrProcessNotFound", err)
		}
	})
}

func TestBaselineOf(t *testing.T) {
	samples := cpuSamples(100, 300)
	samples[0].GPUmW, samples[1].GPUmW = 10, 30

	now := time.Unix(1_700_000_000, 0)
	b := baselineOf(samples, "idle", "run-1", now)
	if b.CPUmW != 200 || b.GPUmW != 20 || b.TotalmW != 220 {
		t.Errorf("baseline = %+v", b)
	}
	if b.Label != "idle" || b.RunID != "run-1" || !b.CreatedAt.Equal(now) {
		t.Errorf("baseline metadata = %+v", b)
	}
}

// ─── Parsing & formatting ───────────────────────────────────────────────────

func TestParseLineItem(t *testing.T) {
	tests := []struct {
		input   string
		want    domain.LineItem
		wantErr bool
	}{
		{"Consulting:3:150.00", domain.LineItem{Description: "Consulting", Quantity: 3, UnitCents: 15000}, false},
		{"Audit: phase 1:1:19.99", domain.LineItem{Description: "Audit: phase 1", Quantity: 1, UnitCents: 1999}, false},
		{"Setup:1:0.1", domain.LineItem{Description: "Setup", Quantity: 1, UnitCents: 10}, false},
		{"no price", domain.LineItem{}, true},
		{"x:two:1", domain.LineItem{}, true},
		{"x:2:abc", domain.LineItem{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseLineItem(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLineItem(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseLineItem(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestReadValues(t *testing.T) {
	got, err := readValues(strings.NewReader("1.5 2\n3,4\n\n5"))
	if err != nil {
		t.Fatalf("readValues() error: %v", err)
	}
	want := []float64{1.5, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("readValues() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d = %v, want %v", i, got[i], want[i])
		}
	}

	if _, err := readValues(strings.NewReader("1 two")); err == nil {
		t.Error("readValues() should reject non-numbers")
	}
}

func TestFormatMW(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0 mW"},
		{999.4, "999 mW"},
		{1000, "1.00 W"},
		{2345, "2.35 W"},
		{-1500, "-1.50 W"},
	}
	for _, tt := range tests {
		if got := formatMW(tt.in); got != tt.want {
			t.Errorf("formatMW(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProgressBar_Render(t *testing.T) {
	p := newProgressBar(io.Discard, "idle", 10)
	p.now = func() time.Time { return p.started.Add(4 * time.Second) }

	got := p.render(4)
	for _, want := range []string{"idle [", "===========>", " 40%", "4/10 samples", "ETA 6s"} {
		if !strings.Contains(got, want) {
			t.Errorf("render(4) = %q, missing %q", got, want)
		}
	}
	if got := p.render(10); !strings.Contains(got, strings.Repeat("=", barWidth)) || !strings.Contains(got, "ETA --") {
		t.Errorf("render(10) = %q", got)
	}
}

func TestStatusLabel(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = time.Now })

	inv := domain.Invoice{Status: domain.InvoiceSent, DueAt: now.Add(-time.Hour)}
	if got := statusLabel(inv); !strings.Contains(got, "overdue") {
		t.Errorf("statusLabel() = %q, want overdue", got)
	}
	inv.Status = domain.InvoicePaid
	if got := statusLabel(inv); !strings.Contains(got, "paid") {
		t.Errorf("statusLabel() = %q, want paid", got)
	}
}

// ─── Commands ───────────────────────────────────────────────────────────────

func TestCommand_AnalyzeValues(t *testing.T) {
	t.Setenv("POWERLENS_HOME", t.TempDir())
	t.Cleanup(func() { analyzeValues, analyzeJSON, analyzeWatts = false, false, false })

	out, err := runCLI(t, "100 100 100 400", "analyze", "--values", "--json", "-")
	if err != nil {
		t.Fatalf("analyze error: %v\n%s", err, out)
	}
	var sum struct {
		Count  int     `json:"count"`
		Mean   float64 `json:"mean_mw"`
		Median float64 `json:"median_mw"`
		Class  string  `json:"class"`
	}
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("output is not a summary: %v\n%s", err, out)
	}
	if sum.Count != 4 || sum.Mean != 175 || sum.Median != 100 || sum.Class != "significant" {
		t.Errorf("summary = %+v", sum)
	}
}

func TestCommand_AnalyzeFile(t *testing.T) {
	t.Setenv("POWERLENS_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "cpu.csv")
	if err := export.Save(path, cpuSamples(100, 100, 100, 400)); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "", "analyze", "-c", "cpu", path)
	if err != nil {
		t.Fatalf("analyze error: %v\n%s", err, out)
	}
	for _, want := range []string{"cpu (4 samples)", "significant", "attribution"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCommand_ClientAndExport(t *testing.T) {
	home := t.TempDir()
	t.Setenv("POWERLENS_HOME", home)

	out, err := runCLI(t, "", "client", "add", "Acme", "--email", "ap@acme.test")
	if err != nil || !strings.Contains(out, "Added client Acme") {
		t.Fatalf("client add: %v\n%s", err, out)
	}
	out, err = runCLI(t, "", "client", "list")
	if err != nil || !strings.Contains(out, "ap@acme.test") {
		t.Fatalf("client list: %v\n%s", err, out)
	}

	bundle := filepath.Join(t.TempDir(), "crm.json")
	if out, err := runCLI(t, "", "crm", "export", bundle); err != nil {
		t.Fatalf("crm export: %v\n%s", err, out)
	}

	t.Setenv("POWERLENS_HOME", t.TempDir())
	out, err = runCLI(t, "", "crm", "import", bundle)
	if err != nil || !strings.Contains(out, "Imported 1 clients") {
		t.Fatalf("crm import: %v\n%s", err, out)
	}
}

func TestCommand_LeadFlow(t *testing.T) {
	t.Setenv("POWERLENS_HOME", t.TempDir())

	out, err := runCLI(t, "", "lead", "add", "Jo", "--email", "jo@example.test", "--source", "meetup")
	if err != nil {
		t.Fatalf("lead add: %v\n%s", err, out)
	}
	id := strings.TrimSuffix(out[strings.LastIndex(out, "(")+1:], ")\n")

	if out, err := runCLI(t, "", "lead", "advance", id, "won"); err == nil {
		t.Errorf("new → won should be rejected:\n%s", out)
	}
	out, err = runCLI(t, "", "lead", "advance", id, "contacted")
	if err != nil || !strings.Contains(out, "now contacted") {
		t.Fatalf("lead advance: %v\n%s", err, out)
	}
}

func TestCommand_ConfigPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("POWERLENS_HOME", home)

	out, err := runCLI(t, "", "config", "path")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if strings.TrimSpace(out) != filepath.Join(home, "config.toml") {
		t.Errorf("config path = %q", out)
	}

	if out, err := runCLI(t, "", "config", "init"); err != nil {
		t.Fatalf("config init: %v\n%s", err, out)
	}
	if _, err := runCLI(t, "", "config", "init"); err == nil {
		t.Error("second init without --force should fail")
	}
}

func TestCommand_HomeFlagConfiguresLogging(t *testing.T) {
	t.Setenv("POWERLENS_HOME", t.TempDir())
	home := t.TempDir()
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte("[logging]\nlevel = \"debug\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		homeDir = ""
		observability.SetLogLevel("info")
	})

	out, err := runCLI(t, "", "--home", home, "config", "path")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if strings.TrimSpace(out) != filepath.Join(home, "config.toml") {
		t.Errorf("config path = %q", out)
	}
	if !observability.DebugEnabled() {
		t.Error("[logging].level from the --home config was not applied")
	}
}

func TestInitTelemetry_BrokenConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("POWERLENS_HOME", home)
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte("[api\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := initTelemetry("test")
	if cfg.API.Port != daemon.DefaultConfig().API.Port {
		t.Errorf("broken config should fall back to defaults, got port %d", cfg.API.Port)
	}
	if observability.DebugEnabled() {
		t.Error("defaults should not enable debug logging")
	}
}

func TestCommand_RunsExport(t *testing.T) {
	home := t.TempDir()
	t.Setenv("POWERLENS_HOME", home)

	db, err := sqlite.Open(home)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := newRunRecorder(db, domain.RunSample, "replay")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pipe(context.Background(), fakeStream(cpuSamples(1, 2, 3), nil), 0, nil, rec); err != nil {
		t.Fatal(err)
	}
	db.Close()

	out, err := runCLI(t, "", "runs")
	if err != nil || !strings.Contains(out, "replay") {
		t.Fatalf("runs: %v\n%s", err, out)
	}

	path := filepath.Join(t.TempDir(), "run.json")
	out, err = runCLI(t, "", "runs", "export", rec.run.ID, path)
	if err != nil || !strings.Contains(out, "Wrote 3 samples") {
		t.Fatalf("runs export: %v\n%s", err, out)
	}
}

func TestCommand_Doctor(t *testing.T) {
	t.Setenv("POWERLENS_HOME", t.TempDir())

	out, err := runCLI(t, "", "doctor")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	for _, want := range []string{"sqlite", "data_dir", "disk_space", "powermetrics"} {
		if !strings.Contains(out, want) {
			t.Errorf("doctor output missing %q:\n%s", want, out)
		}
	}
}
