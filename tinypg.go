// Package tinypg manages the lifecycle of a locally built PostgreSQL server
// for ephemeral testing and development: initialize a fresh data directory,
// start the server, confirm it accepts connections, tear it down, and
// optionally delete the data directory afterwards.
package tinypg

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinypg/tinypg/internal/config"
	"github.com/tinypg/tinypg/internal/env"
	"github.com/tinypg/tinypg/internal/history"
	"github.com/tinypg/tinypg/internal/history/factory"
	"github.com/tinypg/tinypg/internal/lifecycle"
	"github.com/tinypg/tinypg/internal/metrics"
	"github.com/tinypg/tinypg/internal/pgctl"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type Status = pgctl.Status

type CtlError = pgctl.CtlError

type HistorySink = history.Sink

// Config construction helpers.

var (
	WithDataDir      = config.WithDataDir
	WithLogFile      = config.WithLogFile
	WithPort         = config.WithPort
	WithDeleteOnExit = config.WithDeleteOnExit
)

// NewConfig builds a Config, creating the data directory and log file.
func NewConfig(opts ...config.Option) (Config, error) { return config.New(opts...) }

// ServerOption customizes Open/With beyond the Config itself.
type ServerOption func(*serverOpts)

type serverOpts struct {
	installDir string
	logger     *slog.Logger
	sinks      []history.Sink
}

// WithInstallDir points at the postgres install tree (default: the
// TINYPG_INSTALL_DIR environment variable, then build/postgres/install).
func WithInstallDir(dir string) ServerOption {
	return func(o *serverOpts) { o.installDir = dir }
}

// WithLogger sets the logger used for lifecycle and pg_ctl logging.
func WithLogger(l *slog.Logger) ServerOption {
	return func(o *serverOpts) { o.logger = l }
}

// WithHistorySink adds a lifecycle-event sink.
func WithHistorySink(s HistorySink) ServerOption {
	return func(o *serverOpts) { o.sinks = append(o.sinks, s) }
}

// Server is one acquired instance. It is a thin facade over the internal
// lifecycle guard.
type Server struct {
	guard *lifecycle.Guard
}

// Open initializes, starts, and readiness-checks a server for cfg. The
// caller owns the result and must Close it.
func Open(ctx context.Context, cfg Config, opts ...ServerOption) (*Server, error) {
	g := buildGuard(cfg, opts...)
	if err := g.Acquire(ctx); err != nil {
		return nil, err
	}
	return &Server{guard: g}, nil
}

// Status returns a fresh snapshot of the server state.
func (s *Server) Status(ctx context.Context) (Status, error) {
	return s.guard.Status(ctx)
}

// Close stops (or kills) the server and removes the data directory when the
// config asked for it. Safe to call more than once.
func (s *Server) Close(ctx context.Context) error {
	return s.guard.Release(ctx)
}

// With runs fn against an acquired server and guarantees teardown on every
// exit path, including a panicking fn.
func With(ctx context.Context, cfg Config, fn func(*Server) error, opts ...ServerOption) error {
	g := buildGuard(cfg, opts...)
	return lifecycle.With(ctx, g, func(*lifecycle.Guard) error {
		return fn(&Server{guard: g})
	})
}

func buildGuard(cfg Config, opts ...ServerOption) *lifecycle.Guard {
	var o serverOpts
	for _, opt := range opts {
		opt(&o)
	}
	return lifecycle.NewGuard(cfg, env.NewResolver(o.installDir), o.logger, o.sinks)
}

// NewHistorySink builds a sink from a DSN (sqlite, postgres, clickhouse).
func NewHistorySink(dsn string) (HistorySink, error) {
	return factory.NewSinkFromDSN(dsn)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
