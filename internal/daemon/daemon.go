package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/powerlens/powerlens/internal/api"
	"github.com/powerlens/powerlens/internal/app/crm"
	"github.com/powerlens/powerlens/internal/app/feedback"
	"github.com/powerlens/powerlens/internal/health"
	"github.com/powerlens/powerlens/internal/infra/affinity"
	_ "github.com/powerlens/powerlens/internal/infra/metrics" // Register Prometheus metrics
	"github.com/powerlens/powerlens/internal/infra/powermetrics"
	"github.com/powerlens/powerlens/internal/infra/sqlite"
	"github.com/powerlens/powerlens/internal/observability"
)

// Daemon wires storage, sampling, the feedback loop and the API.
type Daemon struct {
	Config   Config
	DB       *sqlite.DB
	Sampler  *powermetrics.Sampler
	Fixer    affinity.Fixer
	Feedback *feedback.Loop
	CRM      *crm.Service
	Server   *api.Server
	Health   *health.Checker

	logFile *os.File
	cancel  context.CancelFunc
}

// New creates a Daemon from the on-disk configuration.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	return NewAt(powerlensHome(), cfg)
}

// NewAt creates a Daemon whose database lives in dir.
func NewAt(dir string, cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Daemon{Config: cfg}
	if err := d.setupLogging(); err != nil {
		return nil, err
	}

	db, err := sqlite.Open(dir)
	if err != nil {
		d.closeLog()
		return nil, fmt.Errorf("open database: %w", err)
	}
	d.DB = db

	d.Sampler = powermetrics.NewSampler(cfg.Powermetrics())
	d.Fixer = affinity.New(cfg.Affinity())
	// Both windows of every loop are kept as runs for later analysis.
	d.Feedback = feedback.New(cfg.FeedbackLoop(), &recordingMeasurer{m: d.Sampler, db: db}, d.Fixer, db)
	d.CRM = crm.NewService(db, cfg.CRMOptions())

	d.Health = health.NewChecker(db, dir, d.Sampler)

	srv := api.NewServer(db, Version)
	srv.SetHealth(d.Health)
	srv.SetAnalysis(cfg.Analysis.Thresholds, cfg.Analysis.EfficiencyRatio)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv

	return d, nil
}

// Version is stamped by the CLI at startup.
var Version = "dev"

// setupLogging applies [logging].level and tees the standard logger into
// [logging].file when set.
func (d *Daemon) setupLogging() error {
	if err := observability.SetLogLevel(d.Config.Logging.Level); err != nil {
		return err
	}
	path := d.Config.Logging.File
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	d.logFile = f
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

func (d *Daemon) closeLog() {
	if d.logFile != nil {
		log.SetOutput(os.Stderr)
		_ = d.logFile.Close()
		d.logFile = nil
	}
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	addr := d.Config.Addr()

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	go d.Health.Run(ctx)

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		log.Printf("[daemon] shutting down")
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Printf("powerlens serving on http://%s\n", addr)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}
	if observability.Enabled() {
		fmt.Printf("  Errors:  reported to Sentry\n")
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	d.closeLog()
}
