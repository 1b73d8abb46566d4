// Package observability reports command and handler failures to Sentry and
// gates debug logging. Reporting is off unless a DSN is configured or
// SENTRY_DSN is set.
package observability

import (
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
)

var sentryEnabled atomic.Bool

// Options configures the Sentry client. Empty fields fall back to the
// SENTRY_DSN, SENTRY_ENVIRONMENT and SENTRY_RELEASE environment variables.
type Options struct {
	DSN         string `toml:"sentry_dsn"`
	Environment string `toml:"environment"`
	Release     string `toml:"-"`
}

// InitSentry starts the client. The returned func flushes pending events and
// must be called before exit.
func InitSentry(opts Options) (func(), bool, error) {
	dsn := firstNonEmpty(opts.DSN, os.Getenv("SENTRY_DSN"))
	if dsn == "" {
		sentryEnabled.Store(false)
		return func() {}, false, nil
	}

	options := sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      firstNonEmpty(opts.Environment, os.Getenv("SENTRY_ENVIRONMENT")),
		Release:          firstNonEmpty(opts.Release, os.Getenv("SENTRY_RELEASE")),
		AttachStacktrace: true,
	}

	if err := sentry.Init(options); err != nil {
		sentryEnabled.Store(false)
		return func() {}, false, err
	}

	sentryEnabled.Store(true)
	return func() {
		sentry.Flush(2 * time.Second)
	}, true, nil
}

// CaptureError sends err with tags and extra context. No-op when disabled.
func CaptureError(err error, tags map[string]string, extra map[string]any) {
	if err == nil || !sentryEnabled.Load() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for key, value := range tags {
			scope.SetTag(key, value)
		}
		for key, value := range extra {
			scope.SetExtra(key, value)
		}
		sentry.CaptureException(err)
	})
}

// Enabled reports whether InitSentry configured a client.
func Enabled() bool {
	return sentryEnabled.Load()
}

// Middleware recovers handler panics and reports them when Sentry is on.
func Middleware(next http.Handler) http.Handler {
	if !sentryEnabled.Load() {
		return next
	}
	return sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle(next)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
