package powermetrics

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/powerlens/powerlens/internal/domain"
	"github.com/powerlens/powerlens/internal/observability"
)

// Stream pairs a sample channel with its error channel. Both close when the
// source is exhausted or the context is cancelled.
type Stream struct {
	Samples <-chan domain.Sample
	Errors  <-chan error
}

// Sampler invokes powermetrics as a subprocess.
type Sampler struct {
	config Config

	// Injectable for tests.
	geteuid  func() int
	lookPath func(string) (string, error)
}

// NewSampler creates a sampler, filling in config defaults.
func NewSampler(cfg Config) *Sampler {
	return &Sampler{
		config:   normalizeConfig(cfg),
		geteuid:  os.Geteuid,
		lookPath: exec.LookPath,
	}
}

// Config returns the normalized configuration.
func (s *Sampler) Config() Config {
	return s.config
}

// Check verifies powermetrics can run here: macOS, binary present, root.
func (s *Sampler) Check() error {
	if runtime.GOOS != "darwin" {
		return fmt.Errorf("%w: powermetrics is macOS-only (running on %s)", domain.ErrPowermetricsMissing, runtime.GOOS)
	}
	if _, err := s.lookPath(s.config.Path); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrPowermetricsMissing, s.config.Path)
	}
	if s.geteuid() != 0 {
		return domain.ErrNotRoot
	}
	return nil
}

// Stream starts powermetrics and streams parsed samples until ctx is done.
func (s *Sampler) Stream(ctx context.Context) (*Stream, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}

	args := s.config.Args()
	observability.Debugf("[sampler] exec %s %s", s.config.Path, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, s.config.Path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start powermetrics: %w", err)
	}
	log.Printf("[sampler] started %s (pid %d, interval %s)", s.config.Path, cmd.Process.Pid, s.config.Interval)

	return streamFromReader(ctx, stdout, cmd.Wait, s.config), nil
}

// StreamReader parses captured powermetrics output, e.g. a log written with
// `powermetrics -o file`. The caller owns the reader.
func (s *Sampler) StreamReader(ctx context.Context, r io.Reader) *Stream {
	return streamFromReader(ctx, r, nil, s.config)
}

// Measure collects n samples from a fresh powermetrics process.
// It satisfies the feedback loop's Measurer.
func (s *Sampler) Measure(ctx context.Context, n int) ([]domain.Sample, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := s.Stream(ctx)
	if err != nil {
		return nil, err
	}
	return Collect(ctx, stream, n)
}

// Collect drains up to n samples from a stream (all of them if n <= 0).
// A cancelled context after at least one sample is not an error.
func Collect(ctx context.Context, stream *Stream, n int) ([]domain.Sample, error) {
	var samples []domain.Sample
	samplesCh, errCh := stream.Samples, stream.Errors

	for samplesCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			if len(samples) > 0 {
				return samples, nil
			}
			return nil, ctx.Err()
		case smp, ok := <-samplesCh:
			if !ok {
				samplesCh = nil
				continue
			}
			samples = append(samples, smp)
			if n > 0 && len(samples) >= n {
				return samples, nil
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if errors.Is(err, context.Canceled) {
				continue
			}
			return samples, err
		}
	}

	if len(samples) == 0 {
		return nil, domain.ErrNoSamples
	}
	return samples, nil
}

func streamFromReader(ctx context.Context, reader io.Reader, wait func() error, cfg Config) *Stream {
	samplesCh := make(chan domain.Sample, 64)
	errCh := make(chan error, 4)

	go func() {
		defer close(samplesCh)
		defer close(errCh)

		parser := NewParser(cfg.Interval)
		emit := func(smp *domain.Sample) bool {
			if smp == nil {
				return true
			}
			select {
			case samplesCh <- *smp:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if ctx.Err() != nil {
				break
			}
			if !emit(parser.ParseLine(scanner.Text())) {
				break
			}
		}

		if ctx.Err() == nil {
			emit(parser.Flush())
			if err := scanner.Err(); err != nil {
				errCh <- fmt.Errorf("read powermetrics output: %w", err)
			}
		}

		if wait != nil {
			if err := wait(); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("powermetrics exited: %w", err)
			}
		}
	}()

	return &Stream{
		Samples: samplesCh,
		Errors:  errCh,
	}
}
