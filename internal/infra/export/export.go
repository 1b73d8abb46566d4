// Package export reads and writes sample files.
//
// Three formats are understood:
//   - .csv: one row per sample, per-domain power and cluster residency,
//     with the running-task table as a JSON column
//   - .json: an array of samples, including the running-task table
//   - anything else: raw powermetrics text output
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/powerlens/powerlens/internal/domain"
	"github.com/powerlens/powerlens/internal/infra/powermetrics"
)

// Format names a sample file encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatRaw  Format = "raw"
)

// FormatOf infers the format from a file extension.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".json":
		return FormatJSON
	default:
		return FormatRaw
	}
}

var csvHeader = []string{
	"time", "interval_ms",
	"cpu_mw", "gpu_mw", "ane_mw", "dram_mw", "combined_mw",
	"e_cluster_active", "p_cluster_active", "gpu_active",
	"processes",
}

// ─── CSV ────────────────────────────────────────────────────────────────────

// CSVWriter streams samples as CSV rows. The header is written on creation.
type CSVWriter struct {
	w *csv.Writer
}

// NewCSVWriter writes the header and returns a streaming writer.
func NewCSVWriter(w io.Writer) (*CSVWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return nil, err
	}
	return &CSVWriter{w: cw}, nil
}

// Write appends one sample row. An empty task table leaves the processes
// cell blank.
func (c *CSVWriter) Write(s domain.Sample) error {
	var procs string
	if len(s.Processes) > 0 {
		b, err := json.Marshal(s.Processes)
		if err != nil {
			return fmt.Errorf("encode processes: %w", err)
		}
		procs = string(b)
	}
	return c.w.Write([]string{
		s.Time.UTC().Format(time.RFC3339Nano),
		formatFloat(s.IntervalMs),
		formatFloat(s.CPUmW),
		formatFloat(s.GPUmW),
		formatFloat(s.ANEmW),
		formatFloat(s.DRAMmW),
		formatFloat(s.CombinedmW),
		formatFloat(s.EClusterActive),
		formatFloat(s.PClusterActive),
		formatFloat(s.GPUActive),
		procs,
	})
}

// Flush writes buffered rows and reports any write error.
func (c *CSVWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

// WriteCSV writes all samples with a header.
func WriteCSV(w io.Writer, samples []domain.Sample) error {
	cw, err := NewCSVWriter(w)
	if err != nil {
		return err
	}
	for _, s := range samples {
		if err := cw.Write(s); err != nil {
			return err
		}
	}
	return cw.Flush()
}

// ReadCSV parses rows written by WriteCSV. Columns are matched by header
// name, so extra or reordered columns are tolerated.
func ReadCSV(r io.Reader) ([]domain.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, domain.ErrNoSamples
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.ToLower(h))] = i
	}

	get := func(rec []string, name string) float64 {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return 0
		}
		v, _ := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		return v
	}

	var samples []domain.Sample
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		s := domain.Sample{
			IntervalMs:     get(rec, "interval_ms"),
			CPUmW:          get(rec, "cpu_mw"),
			GPUmW:          get(rec, "gpu_mw"),
			ANEmW:          get(rec, "ane_mw"),
			DRAMmW:         get(rec, "dram_mw"),
			CombinedmW:     get(rec, "combined_mw"),
			EClusterActive: get(rec, "e_cluster_active"),
			PClusterActive: get(rec, "p_cluster_active"),
			GPUActive:      get(rec, "gpu_active"),
		}
		if i, ok := col["time"]; ok && i < len(rec) {
			if t, err := time.Parse(time.RFC3339Nano, rec[i]); err == nil {
				s.Time = t
			}
		}
		if i, ok := col["processes"]; ok && i < len(rec) && strings.TrimSpace(rec[i]) != "" {
			if err := json.Unmarshal([]byte(rec[i]), &s.Processes); err != nil {
				return nil, fmt.Errorf("read csv line %d: processes: %w", line, err)
			}
		}
		samples = append(samples, s)
	}

	if len(samples) == 0 {
		return nil, domain.ErrNoSamples
	}
	return samples, nil
}

// ─── JSON ───────────────────────────────────────────────────────────────────

// WriteJSON writes samples as an indented JSON array.
func WriteJSON(w io.Writer, samples []domain.Sample) error {
	if samples == nil {
		samples = []domain.Sample{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(samples)
}

// ReadJSON parses a JSON array of samples.
func ReadJSON(r io.Reader) ([]domain.Sample, error) {
	var samples []domain.Sample
	if err := json.NewDecoder(r).Decode(&samples); err != nil {
		return nil, fmt.Errorf("decode json samples: %w", err)
	}
	if len(samples) == 0 {
		return nil, domain.ErrNoSamples
	}
	return samples, nil
}

// ─── Files ──────────────────────────────────────────────────────────────────

// Load reads every sample from a file, picking the decoder by extension.
func Load(ctx context.Context, path string) ([]domain.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch FormatOf(path) {
	case FormatCSV:
		return ReadCSV(f)
	case FormatJSON:
		return ReadJSON(f)
	}

	sampler := powermetrics.NewSampler(powermetrics.Config{})
	return powermetrics.Collect(ctx, sampler.StreamReader(ctx, f), 0)
}

// Save writes samples to path in the format its extension implies.
// Raw powermetrics text cannot be re-synthesized, so .csv is used instead.
func Save(path string, samples []domain.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if FormatOf(path) == FormatJSON {
		err = WriteJSON(f, samples)
	} else {
		err = WriteCSV(f, samples)
	}
	if err != nil {
		return err
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
