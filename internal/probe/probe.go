// Package probe confirms server readiness by opening a real client
// connection. pg_ctl reports "running" before the server accepts
// connections, so a status check alone cannot guarantee readiness.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tinypg/tinypg/internal/metrics"
	"github.com/tinypg/tinypg/internal/retry"
)

// adminDatabase always exists on a fresh cluster, which makes it the one
// safe target for a throwaway connection.
const adminDatabase = "postgres"

// connectPolicy covers the window between pg_ctl confirming the start and
// the server actually accepting connections.
var connectPolicy = retry.Policy{
	MaxAttempts: 10,
	Delay:       100 * time.Millisecond,
	Factor:      2,
	MaxDelay:    5 * time.Second,
}

// ConnectError reports a readiness probe that exhausted all attempts.
type ConnectError struct {
	Port int
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("probe: server on port %d never became ready: %v", e.Port, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Prober opens throwaway connections to localhost:<port> as the invoking OS
// user against the administrative database.
type Prober struct {
	port   int
	user   string
	policy retry.Policy
	logger *slog.Logger
}

// New builds a Prober for port. The connecting user defaults to the current
// OS user, matching initdb's default superuser.
func New(port int, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{port: port, user: currentUser(), policy: connectPolicy, logger: logger}
}

// Check dials until a connection succeeds or attempts run out, closing the
// connection immediately on success. Exhaustion yields a *ConnectError
// wrapping the last underlying failure.
func (p *Prober) Check(ctx context.Context) error {
	dsn := fmt.Sprintf("host=localhost port=%d user=%s dbname=%s sslmode=disable",
		p.port, p.user, adminDatabase)
	err := p.policy.Do(ctx, func() error {
		metrics.IncProbeAttempt()
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			p.logger.Debug("probe connection failed", "port", p.port, "error", err)
			return err
		}
		return conn.Close(ctx)
	})
	if err != nil {
		metrics.IncProbeFailure()
		p.logger.Error("readiness probe exhausted", "port", p.port, "error", err)
		return &ConnectError{Port: p.port, Err: err}
	}
	p.logger.Debug("server accepted connection", "port", p.port)
	return nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
