package export

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/powerlens/powerlens/internal/domain"
)

func testSamples() []domain.Sample {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []domain.Sample{
		{Time: base, IntervalMs: 1000, CPUmW: 250, GPUmW: 20, ANEmW: 0, CombinedmW: 270, EClusterActive: 30, PClusterActive: 20},
		{Time: base.Add(time.Second), IntervalMs: 1000, CPUmW: 1500.5, GPUmW: 30, ANEmW: 5, GPUActive: 4.2,
			Processes: []domain.ProcessUsage{{PID: 42, Name: "mds_stores", CPUMsPerSec: 75}}},
	}
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"run.csv", FormatCSV},
		{"RUN.CSV", FormatCSV},
		{"run.json", FormatJSON},
		{"powermetrics.log", FormatRaw},
		{"noext", FormatRaw},
	}
	for _, tt := range tests {
		if got := FormatOf(tt.path); got != tt.want {
			t.Errorf("FormatOf(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestCSV_RoundTripsPowerColumns(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, testSamples()); err != nil {
		t.Fatalf("WriteCSV() error: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "time,interval_ms,cpu_mw") {
		t.Errorf("unexpected header: %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}

	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d samples, want 2", len(got))
	}
	if got[1].CPUmW != 1500.5 || got[1].GPUActive != 4.2 {
		t.Errorf("second row = %+v", got[1])
	}
	if !got[0].Time.Equal(testSamples()[0].Time) {
		t.Errorf("Time = %v, want %v", got[0].Time, testSamples()[0].Time)
	}
	if len(got[0].Processes) != 0 {
		t.Errorf("first row processes = %+v, want none", got[0].Processes)
	}
	if len(got[1].Processes) != 1 {
		t.Fatalf("second row processes = %+v, want 1", got[1].Processes)
	}
	if p := got[1].Processes[0]; p.PID != 42 || p.Name != "mds_stores" || p.CPUMsPerSec != 75 {
		t.Errorf("process = %+v", p)
	}
}

// nodeBursts idles node at 100 ms/s and spikes it to 800 ms/s every fifth sample.
func nodeBursts(n int) []domain.Sample {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]domain.Sample, n)
	for i := range out {
		ms := 100.0
		if i%5 == 4 {
			ms = 800
		}
		out[i] = domain.Sample{
			Time:       base.Add(time.Duration(i) * time.Second),
			IntervalMs: 1000,
			CPUmW:      2000,
			Processes: []domain.ProcessUsage{
				{PID: 7, Name: "node", CPUMsPerSec: ms},
				{PID: 1, Name: "WindowServer", CPUMsPerSec: 200},
			},
		}
	}
	return out
}

func TestCSV_ProcessPowerSurvivesRoundTrip(t *testing.T) {
	samples := nodeBursts(10)
	node := domain.Component{Kind: domain.ComponentProcess, Process: "node"}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, samples); err != nil {
		t.Fatalf("WriteCSV() error: %v", err)
	}
	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV() error: %v", err)
	}
	if !node.SeenIn(got) {
		t.Fatal("node missing from task tables after CSV round trip")
	}

	want, have := node.Series(samples), node.Series(got)
	for i := range want {
		if want[i] != have[i] {
			t.Errorf("sample %d: node power = %v, want %v", i, have[i], want[i])
		}
	}
}

func TestReadCSV_BadProcessesCell(t *testing.T) {
	in := "cpu_mw,processes\n100,\"[{\"\"name\"\"\"\n"
	if _, err := ReadCSV(strings.NewReader(in)); err == nil || !strings.Contains(err.Error(), "processes") {
		t.Errorf("err = %v, want a processes decode error", err)
	}
}

func TestReadCSV_ReorderedColumns(t *testing.T) {
	in := "cpu_mw,gpu_mw,extra\n100,5,x\n200,6,y\n"
	got, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV() error: %v", err)
	}
	if got[1].CPUmW != 200 || got[1].GPUmW != 6 {
		t.Errorf("row = %+v", got[1])
	}
}

func TestReadCSV_Empty(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("")); !errors.Is(err, domain.ErrNoSamples) {
		t.Errorf("empty input: err = %v, want ErrNoSamples", err)
	}
	if _, err := ReadCSV(strings.NewReader("cpu_mw\n")); !errors.Is(err, domain.ErrNoSamples) {
		t.Errorf("header only: err = %v, want ErrNoSamples", err)
	}
}

func TestJSON_KeepsProcesses(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, testSamples()); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}
	got, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	if len(got[1].Processes) != 1 || got[1].Processes[0].Name != "mds_stores" {
		t.Errorf("processes = %+v", got[1].Processes)
	}
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"run.csv", "run.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := Save(path, testSamples()); err != nil {
				t.Fatalf("Save() error: %v", err)
			}
			got, err := Load(context.Background(), path)
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if len(got) != 2 || got[0].CPUmW != 250 {
				t.Errorf("Load() = %+v", got)
			}
		})
	}
}

func TestLoad_RawPowermetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.txt")
	raw := "*** Sampled system activity (Wed Oct 18 10:00:00 2023 -0700) (1000.00ms elapsed) ***\n" +
		"CPU Power: 300 mW\nGPU Power: 10 mW\n"
	if err := os.WriteFile(path, []byte(raw), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(got) != 1 || got[0].CPUmW != 300 {
		t.Errorf("Load() = %+v", got)
	}
}
