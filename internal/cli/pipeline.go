package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/powerlens/powerlens/internal/domain"
	"github.com/powerlens/powerlens/internal/infra/export"
	"github.com/powerlens/powerlens/internal/infra/metrics"
	"github.com/powerlens/powerlens/internal/infra/powermetrics"
	"github.com/powerlens/powerlens/internal/infra/sqlite"
	"github.com/powerlens/powerlens/internal/observability"
)

// sink consumes samples after the display. Close is called once, after the
// last Write, with the pipeline's outcome already decided.
type sink interface {
	Write(s domain.Sample) error
	Close() error
}

// pipe runs the sampler → consumer pipeline. The producer forwards at most
// limit samples (all when limit <= 0) from the stream; the consumer feeds
// each one to observe and then to every sink. Context cancellation ends the
// run cleanly.
func pipe(ctx context.Context, stream *powermetrics.Stream, limit int, observe func(domain.Sample), sinks ...sink) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	ch := make(chan domain.Sample, 16)

	g.Go(func() error {
		defer close(ch)
		n := 0
		samplesCh, errCh := stream.Samples, stream.Errors
		for samplesCh != nil || errCh != nil {
			select {
			case <-gctx.Done():
				return nil
			case s, ok := <-samplesCh:
				if !ok {
					samplesCh = nil
					continue
				}
				select {
				case ch <- s:
				case <-gctx.Done():
					return nil
				}
				n++
				if limit > 0 && n >= limit {
					return nil
				}
			case err, ok := <-errCh:
				if !ok {
					errCh = nil
					continue
				}
				if errors.Is(err, context.Canceled) {
					continue
				}
				metrics.SamplerErrors.WithLabelValues("stream").Inc()
				return err
			}
		}
		return nil
	})

	count := 0
	g.Go(func() error {
		for s := range ch {
			count++
			metrics.ObserveSample(s)
			observability.Debugf("[record] sample %d: cpu %.0f mW, gpu %.0f mW, total %.0f mW, %d tasks",
				count, s.CPUmW, s.GPUmW, s.Total(), len(s.Processes))
			if observe != nil {
				observe(s)
			}
			for _, sk := range sinks {
				if err := sk.Write(s); err != nil {
					return err
				}
			}
		}
		return nil
	})

	err := g.Wait()
	for _, sk := range sinks {
		if cerr := sk.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return count, err
}

// ─── File sink ──────────────────────────────────────────────────────────────

// fileSink streams CSV rows, or buffers samples for a single JSON document.
type fileSink struct {
	path    string
	f       *os.File
	csv     *export.CSVWriter
	samples []domain.Sample
}

func newFileSink(path string) (*fileSink, error) {
	fs := &fileSink{path: path}
	if export.FormatOf(path) == export.FormatJSON {
		return fs, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := export.NewCSVWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	fs.f, fs.csv = f, w
	return fs, nil
}

func (fs *fileSink) Write(s domain.Sample) error {
	if fs.csv == nil {
		fs.samples = append(fs.samples, s)
		return nil
	}
	if err := fs.csv.Write(s); err != nil {
		return err
	}
	// Flush per row so an interrupted run leaves a usable file.
	return fs.csv.Flush()
}

func (fs *fileSink) Close() error {
	if fs.csv == nil {
		if len(fs.samples) == 0 {
			return nil
		}
		return export.Save(fs.path, fs.samples)
	}
	if err := fs.csv.Flush(); err != nil {
		fs.f.Close()
		return err
	}
	return fs.f.Close()
}

// ─── Run recorder ───────────────────────────────────────────────────────────

const recordBatch = 20

// runRecorder persists samples into a run in batches.
type runRecorder struct {
	db      *sqlite.DB
	run     domain.Run
	pending []domain.Sample
	samples []domain.Sample
	keep    bool
	now     func() time.Time
}

func newRunRecorder(db *sqlite.DB, kind domain.RunKind, label string) (*runRecorder, error) {
	r := &runRecorder{db: db, now: time.Now}
	r.run = domain.Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		Label:     label,
		StartedAt: r.now(),
	}
	if err := db.CreateRun(r.run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	log.Printf("[record] run %s started (%s)", shortID(r.run.ID), kind)
	return r, nil
}

func (r *runRecorder) Write(s domain.Sample) error {
	r.pending = append(r.pending, s)
	if r.keep {
		r.samples = append(r.samples, s)
	}
	if len(r.pending) >= recordBatch {
		return r.flush()
	}
	return nil
}

func (r *runRecorder) flush() error {
	if len(r.pending) == 0 {
		return nil
	}
	if err := r.db.AppendSamples(r.run.ID, r.pending); err != nil {
		return fmt.Errorf("record samples: %w", err)
	}
	r.pending = r.pending[:0]
	return nil
}

func (r *runRecorder) Close() error {
	if err := r.flush(); err != nil {
		return err
	}
	if err := r.db.FinishRun(r.run.ID, r.now()); err != nil {
		return err
	}
	run, err := r.db.GetRun(r.run.ID)
	if err == nil {
		r.run = *run
	}
	log.Printf("[record] run %s finished: %d samples", shortID(r.run.ID), r.run.SampleCount)
	return nil
}
