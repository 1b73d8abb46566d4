package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/powerlens/powerlens/internal/daemon"
	"github.com/powerlens/powerlens/internal/domain"
	"github.com/powerlens/powerlens/internal/infra/powermetrics"
)

func init() {
	f := sampleCmd.Flags()
	f.StringVarP(&sampleComponent, "component", "c", "cpu", "Component to track: cpu, gpu, ane, dram, total, process:<name>")
	f.DurationVarP(&sampleInterval, "interval", "i", 0, "Sampling interval (overrides config)")
	f.DurationVarP(&sampleDuration, "duration", "d", 0, "Stop after this long")
	f.IntVarP(&sampleCount, "count", "n", 0, "Stop after this many samples")
	f.StringVarP(&sampleOutput, "output", "o", "", "Write samples to a .csv or .json file")
	f.BoolVar(&sampleRecord, "record", false, "Record the run in the local database")
	f.StringVar(&sampleLabel, "label", "", "Label for the recorded run")
	f.StringVar(&sampleInput, "input", "", "Replay captured powermetrics output instead of sampling")
	f.DurationVar(&sampleRefresh, "refresh", 500*time.Millisecond, "Minimum time between display redraws")
	rootCmd.AddCommand(sampleCmd)
}

var (
	sampleComponent string
	sampleInterval  time.Duration
	sampleDuration  time.Duration
	sampleCount     int
	sampleOutput    string
	sampleRecord    bool
	sampleLabel     string
	sampleInput     string
	sampleRefresh   time.Duration
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Sample power live and classify its distribution",
	Long: `Run powermetrics (requires sudo) and show a live summary of one component:
current draw, running mean and median, divergence class and burst fraction.

Samples can be written to a file and recorded as a run for later analysis.`,
	Example: `  sudo powerlens sample -c gpu -n 60 -o gpu.csv
  sudo powerlens sample -c process:node --record --label build
  powerlens sample --input capture.txt`,
	RunE: runSample,
}

func runSample(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	comp, err := domain.ParseComponent(sampleComponent)
	if err != nil {
		return err
	}

	pmCfg := cfg.Powermetrics()
	if sampleInterval > 0 {
		pmCfg.Interval = sampleInterval
	}
	sampler := powermetrics.NewSampler(pmCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if sampleDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sampleDuration)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stream *powermetrics.Stream
	if sampleInput != "" {
		f, err := os.Open(sampleInput)
		if err != nil {
			return err
		}
		defer f.Close()
		stream = sampler.StreamReader(ctx, f)
	} else {
		if stream, err = sampler.Stream(ctx); err != nil {
			return err
		}
	}

	var sinks []sink
	if sampleOutput != "" {
		fs, err := newFileSink(sampleOutput)
		if err != nil {
			return err
		}
		sinks = append(sinks, fs)
	}
	var rec *runRecorder
	if sampleRecord {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		label := sampleLabel
		if label == "" {
			label = comp.String()
		}
		if rec, err = newRunRecorder(db, domain.RunSample, label); err != nil {
			return err
		}
		sinks = append(sinks, rec)
	}

	out := cmd.OutOrStdout()
	display := newLiveDisplay(out, comp, cfg.Analysis.Window, cfg.Analysis.Thresholds, sampleRefresh)
	n, err := pipe(ctx, stream, sampleCount, display.Observe, sinks...)
	cancel()
	sum := display.Finish()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNoSamples
	}

	fmt.Fprintln(out)
	printSummary(out, comp.String(), sum)
	if sampleOutput != "" {
		fmt.Fprintf(out, "\nWrote %d samples to %s\n", n, sampleOutput)
	}
	if rec != nil {
		fmt.Fprintf(out, "Recorded run %s (%d samples)\n", rec.run.ID, rec.run.SampleCount)
	}
	return nil
}
