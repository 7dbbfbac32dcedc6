// Package lifecycle composes the controller and the readiness prober into a
// scoped acquire/release contract: initdb, start, confirm ready, and on the
// way out stop-or-kill plus optional removal of the data directory.
package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tinypg/tinypg/internal/config"
	"github.com/tinypg/tinypg/internal/env"
	"github.com/tinypg/tinypg/internal/history"
	"github.com/tinypg/tinypg/internal/metrics"
	"github.com/tinypg/tinypg/internal/pgctl"
	"github.com/tinypg/tinypg/internal/probe"
)

// State tracks where a guard is in its lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateDataInitialized
	StateRunning
	StateStopped
	StateKilled
	StateCleaned
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateDataInitialized:
		return "data_initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateKilled:
		return "killed"
	case StateCleaned:
		return "cleaned"
	default:
		return "unknown"
	}
}

// controlClient is the slice of pgctl.Controller the guard drives.
type controlClient interface {
	InitDB(ctx context.Context) (string, error)
	Start(ctx context.Context) (string, error)
	Stop(ctx context.Context) (string, error)
	Status(ctx context.Context) (pgctl.Status, error)
	Kill(ctx context.Context) (pgctl.Status, error)
}

// readinessChecker confirms the server accepts client connections.
type readinessChecker interface {
	Check(ctx context.Context) error
}

// Guard owns one server instance for the duration of its scope. Operations
// are synchronous on the caller's goroutine and are not serialized against
// each other; the one exception is Release, which is safe to call from
// several goroutines — the first caller performs the teardown, the rest
// no-op.
type Guard struct {
	cfg    config.Config
	ctl    controlClient
	prober readinessChecker
	sinks  []history.Sink
	logger *slog.Logger
	state  State

	releaseMu sync.Mutex
	released  bool
}

// NewGuard wires a guard from real collaborators.
func NewGuard(cfg config.Config, resolver env.Resolver, logger *slog.Logger, sinks []history.Sink) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		cfg:    cfg,
		ctl:    pgctl.New(cfg, resolver, logger),
		prober: probe.New(cfg.Port, logger),
		sinks:  sinks,
		logger: logger,
	}
}

// newGuard injects fake collaborators in tests.
func newGuard(cfg config.Config, ctl controlClient, prober readinessChecker, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{cfg: cfg, ctl: ctl, prober: prober, logger: logger}
}

// Config returns the guarded configuration.
func (g *Guard) Config() config.Config { return g.cfg }

// State returns the current lifecycle state.
func (g *Guard) State() State { return g.state }

// Status re-derives a fresh snapshot from the control utility.
func (g *Guard) Status(ctx context.Context) (pgctl.Status, error) {
	return g.ctl.Status(ctx)
}

// Acquire walks Uninitialized -> DataInitialized -> Running: initdb, start,
// then the readiness probe. Initialization is lazy; nothing touches the data
// directory before Acquire. Any failure propagates and terminates the
// attempt — in particular a probe exhaustion does not auto-kill the
// half-started server; that is left to Release or an outer retry.
func (g *Guard) Acquire(ctx context.Context) error {
	begin := time.Now()
	g.logger.Debug("acquiring server", "data_dir", g.cfg.DataDir, "port", g.cfg.Port)

	if _, err := g.ctl.InitDB(ctx); err != nil {
		g.record(ctx, history.EventInit, 0, err)
		return err
	}
	g.state = StateDataInitialized
	g.record(ctx, history.EventInit, 0, nil)

	if _, err := g.ctl.Start(ctx); err != nil {
		g.record(ctx, history.EventStart, 0, err)
		return err
	}
	if err := g.prober.Check(ctx); err != nil {
		g.record(ctx, history.EventStart, 0, err)
		return err
	}
	g.state = StateRunning

	st, err := g.ctl.Status(ctx)
	if err == nil {
		g.record(ctx, history.EventStart, st.PID, nil)
	}
	metrics.ObserveAcquire(time.Since(begin))
	g.logger.Info("server ready", "port", g.cfg.Port, "pid", st.PID, "data_dir", g.cfg.DataDir)
	return nil
}

// Release tears the instance down: graceful stop, kill fallback when stop
// exhausts its retries, then cleanup when DeleteOnExit is set. It runs its
// course on every path — a kill failure still reaches cleanup — and calls
// after the first are no-ops.
func (g *Guard) Release(ctx context.Context) error {
	g.releaseMu.Lock()
	defer g.releaseMu.Unlock()
	if g.released {
		return nil
	}
	g.released = true

	var firstErr error
	if _, err := g.ctl.Stop(ctx); err != nil {
		g.logger.Warn("graceful stop failed, killing", "data_dir", g.cfg.DataDir, "error", err)
		st, killErr := g.ctl.Kill(ctx)
		if killErr != nil {
			firstErr = killErr
			g.record(ctx, history.EventKill, 0, killErr)
		} else {
			g.state = StateKilled
			g.record(ctx, history.EventKill, st.PID, nil)
			if st.Running {
				g.logger.Error("server still running after kill", "pid", st.PID)
			}
		}
	} else {
		g.state = StateStopped
		g.record(ctx, history.EventStop, 0, nil)
	}

	if err := g.Cleanup(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Cleanup removes the data directory when DeleteOnExit is set. Best-effort
// and idempotent: an already-absent directory is not an error, and repeated
// calls are harmless.
func (g *Guard) Cleanup(ctx context.Context) error {
	if !g.cfg.DeleteOnExit {
		return nil
	}
	g.logger.Debug("cleaning up data directory", "data_dir", g.cfg.DataDir)
	if err := os.RemoveAll(g.cfg.DataDir); err != nil {
		g.logger.Warn("data directory cleanup failed", "data_dir", g.cfg.DataDir, "error", err)
		g.record(ctx, history.EventClean, 0, err)
		return nil // best-effort, never fatal
	}
	g.state = StateCleaned
	g.record(ctx, history.EventClean, 0, nil)
	return nil
}

// With runs fn against an acquired guard and guarantees Release on every
// exit path, including a panicking fn. The release error is reported only
// when fn itself succeeded.
func With(ctx context.Context, g *Guard, fn func(*Guard) error) (err error) {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		relErr := g.Release(ctx)
		if err == nil {
			err = relErr
		}
	}()
	return fn(g)
}

func (g *Guard) record(ctx context.Context, t history.EventType, pid int, opErr error) {
	if len(g.sinks) == 0 {
		return
	}
	e := history.Event{
		Type:    t,
		Port:    g.cfg.Port,
		DataDir: g.cfg.DataDir,
		PID:     pid,
	}
	if opErr != nil {
		e.Error = opErr.Error()
	}
	history.Record(ctx, g.sinks, e)
}
