package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tinypg/tinypg/internal/config"
	"github.com/tinypg/tinypg/internal/pgctl"
)

type fakeCtl struct {
	initErr  error
	startErr error
	stopErr  error
	killErr  error

	initCalls   int
	startCalls  int
	stopCalls   int
	killCalls   int
	statusCalls int

	running bool
	pid     int
}

func (f *fakeCtl) InitDB(ctx context.Context) (string, error) {
	f.initCalls++
	return "", f.initErr
}

func (f *fakeCtl) Start(ctx context.Context) (string, error) {
	f.startCalls++
	if f.startErr != nil {
		return "", f.startErr
	}
	f.running = true
	f.pid = 4242
	return "server started", nil
}

func (f *fakeCtl) Stop(ctx context.Context) (string, error) {
	f.stopCalls++
	if f.stopErr != nil {
		return "", f.stopErr
	}
	f.running = false
	f.pid = 0
	return "server stopped", nil
}

func (f *fakeCtl) Status(ctx context.Context) (pgctl.Status, error) {
	f.statusCalls++
	return pgctl.Status{Running: f.running, PID: f.pid}, nil
}

func (f *fakeCtl) Kill(ctx context.Context) (pgctl.Status, error) {
	f.killCalls++
	if f.killErr != nil {
		return pgctl.Status{}, f.killErr
	}
	f.running = false
	f.pid = 0
	return pgctl.Status{Running: false}, nil
}

type fakeProber struct {
	err   error
	calls int
}

func (f *fakeProber) Check(ctx context.Context) error {
	f.calls++
	return f.err
}

func testGuard(t *testing.T, ctl *fakeCtl, prober *fakeProber, deleteOnExit bool) *Guard {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.New(
		config.WithDataDir(filepath.Join(dir, "data")),
		config.WithLogFile(filepath.Join(dir, "server.log")),
		config.WithPort(5555),
		config.WithDeleteOnExit(deleteOnExit),
	)
	if err != nil {
		t.Fatalf("config.New: %v", err)
	}
	return newGuard(cfg, ctl, prober, nil)
}

func TestAcquireHappyPath(t *testing.T) {
	ctl := &fakeCtl{}
	prober := &fakeProber{}
	g := testGuard(t, ctl, prober, false)

	if g.State() != StateUninitialized {
		t.Fatalf("initial state: %v", g.State())
	}
	if err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if g.State() != StateRunning {
		t.Fatalf("state after acquire: %v", g.State())
	}
	if ctl.initCalls != 1 || ctl.startCalls != 1 || prober.calls != 1 {
		t.Fatalf("call counts: init=%d start=%d probe=%d", ctl.initCalls, ctl.startCalls, prober.calls)
	}
	st, err := g.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Running || st.PID == 0 {
		t.Fatalf("status after acquire: %+v", st)
	}
}

func TestAcquireInitFailurePropagates(t *testing.T) {
	initErr := errors.New("initdb exploded")
	ctl := &fakeCtl{initErr: initErr}
	g := testGuard(t, ctl, &fakeProber{}, false)

	if err := g.Acquire(context.Background()); !errors.Is(err, initErr) {
		t.Fatalf("want init error, got %v", err)
	}
	if g.State() != StateUninitialized {
		t.Fatalf("state: %v", g.State())
	}
	if ctl.startCalls != 0 {
		t.Fatalf("start must not run after init failure")
	}
}

func TestAcquireProbeFailureDoesNotAutoKill(t *testing.T) {
	probeErr := errors.New("never became ready")
	ctl := &fakeCtl{}
	g := testGuard(t, ctl, &fakeProber{err: probeErr}, false)

	if err := g.Acquire(context.Background()); !errors.Is(err, probeErr) {
		t.Fatalf("want probe error, got %v", err)
	}
	if ctl.killCalls != 0 || ctl.stopCalls != 0 {
		t.Fatalf("half-started server must be left to the caller: stop=%d kill=%d", ctl.stopCalls, ctl.killCalls)
	}
}

func TestReleaseGraceful(t *testing.T) {
	ctl := &fakeCtl{}
	g := testGuard(t, ctl, &fakeProber{}, false)
	if err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := g.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if g.State() != StateStopped {
		t.Fatalf("state: %v", g.State())
	}
	if ctl.killCalls != 0 {
		t.Fatalf("kill must not run when stop succeeds")
	}
}

func TestReleaseFallsBackToKill(t *testing.T) {
	ctl := &fakeCtl{stopErr: errors.New("stop kept failing")}
	g := testGuard(t, ctl, &fakeProber{}, false)
	if err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := g.Release(context.Background()); err != nil {
		t.Fatalf("Release with kill fallback: %v", err)
	}
	if g.State() != StateKilled {
		t.Fatalf("state: %v", g.State())
	}
	if ctl.killCalls != 1 {
		t.Fatalf("kill calls: %d", ctl.killCalls)
	}
	st, _ := g.Status(context.Background())
	if st.Running {
		t.Fatalf("server still running after kill fallback")
	}
}

func TestReleaseOnlyOnce(t *testing.T) {
	ctl := &fakeCtl{}
	g := testGuard(t, ctl, &fakeProber{}, false)
	if err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := g.Release(context.Background()); err != nil {
			t.Fatalf("Release #%d: %v", i+1, err)
		}
	}
	if ctl.stopCalls != 1 {
		t.Fatalf("stop must run exactly once, ran %d times", ctl.stopCalls)
	}
}

func TestReleaseCleansUpWhenConfigured(t *testing.T) {
	ctl := &fakeCtl{}
	g := testGuard(t, ctl, &fakeProber{}, true)
	if err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := g.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(g.Config().DataDir); !os.IsNotExist(err) {
		t.Fatalf("data dir still present: %v", err)
	}
	if g.State() != StateCleaned {
		t.Fatalf("state: %v", g.State())
	}
}

func TestCleanupIdempotent(t *testing.T) {
	g := testGuard(t, &fakeCtl{}, &fakeProber{}, true)
	for i := 0; i < 2; i++ {
		if err := g.Cleanup(context.Background()); err != nil {
			t.Fatalf("Cleanup #%d: %v", i+1, err)
		}
	}
	// already-removed directory is fine too
	if err := g.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup on absent dir: %v", err)
	}
}

func TestCleanupSkippedWithoutDeleteOnExit(t *testing.T) {
	g := testGuard(t, &fakeCtl{}, &fakeProber{}, false)
	if err := g.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(g.Config().DataDir); err != nil {
		t.Fatalf("data dir must survive: %v", err)
	}
}

func TestWithReleasesOnCallerError(t *testing.T) {
	ctl := &fakeCtl{}
	g := testGuard(t, ctl, &fakeProber{}, false)
	callerErr := errors.New("caller work failed")
	err := With(context.Background(), g, func(*Guard) error { return callerErr })
	if !errors.Is(err, callerErr) {
		t.Fatalf("want caller error, got %v", err)
	}
	if ctl.stopCalls != 1 {
		t.Fatalf("teardown must still run exactly once, ran %d times", ctl.stopCalls)
	}
}

func TestWithReleasesOnPanic(t *testing.T) {
	ctl := &fakeCtl{}
	g := testGuard(t, ctl, &fakeProber{}, false)
	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("panic must propagate")
			}
		}()
		_ = With(context.Background(), g, func(*Guard) error { panic("boom") })
	}()
	if ctl.stopCalls != 1 {
		t.Fatalf("teardown must run on panic, ran %d times", ctl.stopCalls)
	}
}

func TestWithDeleteOnExitScenario(t *testing.T) {
	// port 5555, delete_on_exit true: enter, confirm running, exit, data
	// dir gone.
	ctl := &fakeCtl{}
	g := testGuard(t, ctl, &fakeProber{}, true)
	dataDir := g.Config().DataDir
	err := With(context.Background(), g, func(g *Guard) error {
		st, err := g.Status(context.Background())
		if err != nil {
			return err
		}
		if !st.Running {
			t.Fatalf("server not running inside the guarded scope")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("With: %v", err)
	}
	if _, err := os.Stat(dataDir); !os.IsNotExist(err) {
		t.Fatalf("data dir still present after exit: %v", err)
	}
}
