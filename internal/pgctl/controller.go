// Package pgctl drives the external pg_ctl control utility against one data
// directory: initdb, start, stop, status, kill. The database engine itself
// is never touched directly; everything goes through pg_ctl plus an OS-level
// kill fallback for unresponsive servers.
package pgctl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tinypg/tinypg/internal/config"
	"github.com/tinypg/tinypg/internal/env"
	"github.com/tinypg/tinypg/internal/metrics"
	"github.com/tinypg/tinypg/internal/retry"
)

// runTimeout bounds a single control-utility invocation.
const runTimeout = 10 * time.Second

// stopPolicy absorbs transient stop failures: pg_ctl can report failure
// while shutdown is still in progress.
var stopPolicy = retry.Policy{MaxAttempts: 3, Delay: time.Second}

// Controller invokes pg_ctl subcommands for one Config. It holds no process
// handle; the pid is re-derived through Status on every use so it can never
// go stale. Not safe for concurrent use against the same data directory —
// callers serialize.
type Controller struct {
	cfg      config.Config
	resolver env.Resolver
	logger   *slog.Logger
}

// New builds a Controller for cfg using the given install-tree resolver.
func New(cfg config.Config, resolver env.Resolver, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{cfg: cfg, resolver: resolver, logger: logger}
}

// Config returns the configuration this controller operates on.
func (c *Controller) Config() config.Config { return c.cfg }

// Run executes one pg_ctl subcommand and returns its stdout. Stdout and
// stderr are captured separately; stderr is logged at error level and stdout
// at debug level regardless of outcome. Non-zero exit yields a *CtlError.
func (c *Controller) Run(ctx context.Context, verb string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	argv := append([]string{verb}, args...)
	// #nosec G204 -- argv is built from fixed verbs and our own config paths
	cmd := exec.CommandContext(ctx, c.resolver.PgCtl(), argv...)
	cmd.Env = c.resolver.Environ()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if s := stderr.String(); strings.TrimSpace(s) != "" {
		c.logger.Error("pg_ctl stderr", "verb", verb, "stderr", strings.TrimSpace(s))
	}
	if s := stdout.String(); strings.TrimSpace(s) != "" {
		c.logger.Debug("pg_ctl stdout", "verb", verb, "stdout", strings.TrimSpace(s))
	}
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return "", &CtlError{Verb: verb, ExitCode: code, Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
	}
	return stdout.String(), nil
}

// InitDB initializes a fresh data directory. Re-running against an already
// initialized directory fails the way initdb itself fails; no special case.
func (c *Controller) InitDB(ctx context.Context) (string, error) {
	c.logger.Debug("initializing database", "data_dir", c.cfg.DataDir)
	out, err := c.Run(ctx, "initdb", "-D", c.cfg.DataDir)
	if err == nil {
		metrics.IncInit()
	}
	return out, err
}

// Start launches the server bound to the configured port, logging to the
// configured log file. pg_ctl itself confirms startup before returning;
// readiness beyond that is the prober's job.
func (c *Controller) Start(ctx context.Context) (string, error) {
	c.logger.Debug("starting database", "data_dir", c.cfg.DataDir, "port", c.cfg.Port)
	out, err := c.Run(ctx, "start",
		"-D", c.cfg.DataDir,
		"-l", c.cfg.LogFile,
		"-o", fmt.Sprintf("-p %d", c.cfg.Port),
	)
	if err == nil {
		metrics.IncStart()
	}
	return out, err
}

// Stop requests graceful shutdown, retrying because the utility can
// transiently report failure while shutdown is still in progress.
func (c *Controller) Stop(ctx context.Context) (string, error) {
	c.logger.Debug("stopping database", "data_dir", c.cfg.DataDir)
	var out string
	err := stopPolicy.Do(ctx, func() error {
		var runErr error
		out, runErr = c.Run(ctx, "stop", "-D", c.cfg.DataDir)
		return runErr
	})
	if err == nil {
		metrics.IncStop()
	}
	return out, err
}

// Status asks pg_ctl for the server state and parses it into a snapshot.
// A non-zero exit with parseable output still yields a valid Status:
// pg_ctl exits 3 when no server is running.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	out, err := c.Run(ctx, "status", "-D", c.cfg.DataDir)
	if err != nil {
		var ctlErr *CtlError
		if errors.As(err, &ctlErr) && ctlErr.ExitCode > 0 {
			// pg_ctl exits 3 for "no server running"; that is a normal
			// answer, not a failure.
			if running, _ := parseStatus(ctlErr.Stdout + ctlErr.Stderr); !running {
				return c.snapshot(false, 0), nil
			}
		}
		return Status{}, err
	}
	running, pid := parseStatus(out)
	return c.snapshot(running, pid), nil
}

// Kill terminates the server unconditionally: pg_ctl kill KILL on the pid
// from a fresh status, then an OS-level SIGKILL on any pid still recorded in
// the pid file, then a final status read. Idempotent: with no live pid it
// returns the current status untouched.
func (c *Controller) Kill(ctx context.Context) (Status, error) {
	st, err := c.Status(ctx)
	if err != nil {
		return Status{}, err
	}
	if st.PID == 0 {
		return st, nil
	}
	c.logger.Info("killing database", "data_dir", c.cfg.DataDir, "pid", st.PID)
	if _, err := c.Run(ctx, "kill", "KILL", strconv.Itoa(st.PID)); err != nil {
		return Status{}, err
	}
	// The pid file can outlive a kill that raced with shutdown; a direct
	// signal to whatever pid it names is the fallback. Its own failure
	// (already-dead pid) is tolerated.
	if pid, ok := c.pidFilePID(); ok {
		_ = killPID(pid)
	}
	metrics.IncKill()
	return c.Status(ctx)
}

// pidFilePID reads the first line of the postmaster pid file.
func (c *Controller) pidFilePID() (int, bool) {
	b, err := os.ReadFile(c.cfg.PIDFile())
	if err != nil {
		return 0, false
	}
	first, _, _ := strings.Cut(string(b), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func (c *Controller) snapshot(running bool, pid int) Status {
	if !running {
		pid = 0
	}
	return Status{
		Running: running,
		PID:     pid,
		Port:    c.cfg.Port,
		DataDir: c.cfg.DataDir,
		LogFile: c.cfg.LogFile,
	}
}
