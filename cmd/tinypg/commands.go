package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinypg/tinypg/internal/config"
	"github.com/tinypg/tinypg/internal/env"
	"github.com/tinypg/tinypg/internal/history"
	"github.com/tinypg/tinypg/internal/history/factory"
	"github.com/tinypg/tinypg/internal/lifecycle"
	"github.com/tinypg/tinypg/internal/logger"
	"github.com/tinypg/tinypg/internal/metrics"
	"github.com/tinypg/tinypg/internal/pgctl"
	"github.com/tinypg/tinypg/internal/server"

	"github.com/prometheus/client_golang/prometheus"
)

func setupLogging(gf GlobalFlags) {
	slog.SetDefault(logger.New(logger.Config{Level: gf.LogLevel}))
}

// buildSettings merges the optional TOML config file with command flags;
// flags win where both are set.
func buildSettings(gf *GlobalFlags, inst InstanceFlags) (config.Config, env.Resolver, *config.FileConfig, error) {
	var fileCfg *config.FileConfig
	if gf.ConfigPath != "" {
		fc, err := config.Load(gf.ConfigPath)
		if err != nil {
			return config.Config{}, env.Resolver{}, nil, err
		}
		fileCfg = fc
		if fc.Log != nil {
			slog.SetDefault(logger.New(*fc.Log))
		}
	}

	var opts []config.Option
	if fileCfg != nil {
		if fileCfg.Server.DataDir != "" {
			opts = append(opts, config.WithDataDir(fileCfg.Server.DataDir))
		}
		if fileCfg.Server.LogFile != "" {
			opts = append(opts, config.WithLogFile(fileCfg.Server.LogFile))
		}
		opts = append(opts,
			config.WithPort(fileCfg.Server.Port),
			config.WithDeleteOnExit(fileCfg.Server.DeleteOnExit),
		)
	}
	if inst.DataDir != "" {
		opts = append(opts, config.WithDataDir(inst.DataDir))
	}
	if inst.LogFile != "" {
		opts = append(opts, config.WithLogFile(inst.LogFile))
	}
	if inst.Port != 0 {
		opts = append(opts, config.WithPort(inst.Port))
	}

	cfg, err := config.New(opts...)
	if err != nil {
		return config.Config{}, env.Resolver{}, nil, err
	}

	installDir := gf.InstallDir
	if installDir == "" && fileCfg != nil {
		installDir = fileCfg.Install.Dir
	}
	return cfg, env.NewResolver(installDir), fileCfg, nil
}

func newRunCmd(gf *GlobalFlags) *cobra.Command {
	var f RunFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a fresh server and keep it up until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			inst := InstanceFlags{Port: f.Port, DataDir: f.DataDir, LogFile: f.LogFile}
			cfg, resolver, fileCfg, err := buildSettings(gf, inst)
			if err != nil {
				return err
			}
			if f.Remove {
				cfg.DeleteOnExit = true
			}
			historyDSN := f.HistoryDSN
			httpListen, httpBase := f.HTTPListen, f.HTTPBase
			if fileCfg != nil {
				if historyDSN == "" {
					historyDSN = fileCfg.History.DSN
				}
				if httpListen == "" {
					httpListen = fileCfg.HTTP.Listen
				}
				if httpBase == "" {
					httpBase = fileCfg.HTTP.BasePath
				}
			}
			return runServer(cmd.Context(), cfg, resolver, historyDSN, httpListen, httpBase)
		},
	}
	fl := cmd.Flags()
	fl.IntVarP(&f.Port, "port", "p", 0, "TCP port the server listens on (default 5432)")
	fl.StringVar(&f.DataDir, "data-dir", "", "data directory (default: fresh temp dir)")
	fl.StringVar(&f.LogFile, "log-file", "", "server log file (default: temp file)")
	fl.BoolVar(&f.Remove, "rm", false, "delete the data directory on exit")
	fl.StringVar(&f.HistoryDSN, "history-dsn", "", "lifecycle history sink DSN (sqlite, postgres, clickhouse)")
	fl.StringVar(&f.HTTPListen, "http", "", "expose status/metrics HTTP endpoint on this address")
	fl.StringVar(&f.HTTPBase, "http-base", "", "base path for the HTTP endpoint")
	return cmd
}

func runServer(ctx context.Context, cfg config.Config, resolver env.Resolver, historyDSN, httpListen, httpBase string) error {
	var sinks []history.Sink
	if historyDSN != "" {
		sink, err := factory.NewSinkFromDSN(historyDSN)
		if err != nil {
			return fmt.Errorf("history sink: %w", err)
		}
		defer func() { _ = sink.Close() }()
		sinks = append(sinks, sink)
	}
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	guard := lifecycle.NewGuard(cfg, resolver, slog.Default(), sinks)
	if err := guard.Acquire(ctx); err != nil {
		return err
	}

	release := func() error {
		rctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		return guard.Release(rctx)
	}

	st, err := guard.Status(ctx)
	if err == nil {
		printJSON(st)
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stopCh)

	remoteStop := make(chan struct{}, 1)
	if httpListen != "" {
		srv := server.NewServer(httpListen, httpBase, guard, func() {
			select {
			case remoteStop <- struct{}{}:
			default:
			}
		})
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		slog.Info("http endpoint listening", "addr", httpListen)
	}

	select {
	case sig := <-stopCh:
		slog.Info("signal received, shutting down", "signal", sig.String())
		return release()
	case <-remoteStop:
		slog.Info("stopped via http endpoint")
		return release()
	case <-ctx.Done():
		return release()
	}
}

func newInitCmd(gf *GlobalFlags) *cobra.Command {
	var f InstanceFlags
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a data directory without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := buildController(gf, f)
			if err != nil {
				return err
			}
			_, err = ctl.InitDB(cmd.Context())
			return err
		},
	}
	addInstanceFlags(cmd, &f)
	return cmd
}

func newStatusCmd(gf *GlobalFlags) *cobra.Command {
	var f InstanceFlags
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether the server is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := buildController(gf, f)
			if err != nil {
				return err
			}
			st, err := ctl.Status(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(st)
			return nil
		},
	}
	addInstanceFlags(cmd, &f)
	return cmd
}

func newStopCmd(gf *GlobalFlags) *cobra.Command {
	var f InstanceFlags
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the server gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := buildController(gf, f)
			if err != nil {
				return err
			}
			if _, err := ctl.Stop(cmd.Context()); err != nil {
				return err
			}
			st, err := ctl.Status(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(st)
			return nil
		},
	}
	addInstanceFlags(cmd, &f)
	return cmd
}

func newKillCmd(gf *GlobalFlags) *cobra.Command {
	var f InstanceFlags
	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Terminate the server immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := buildController(gf, f)
			if err != nil {
				return err
			}
			st, err := ctl.Kill(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(st)
			return nil
		},
	}
	addInstanceFlags(cmd, &f)
	return cmd
}

func buildController(gf *GlobalFlags, f InstanceFlags) (*pgctl.Controller, error) {
	cfg, resolver, _, err := buildSettings(gf, f)
	if err != nil {
		return nil, err
	}
	return pgctl.New(cfg, resolver, slog.Default()), nil
}

func addInstanceFlags(cmd *cobra.Command, f *InstanceFlags) {
	fl := cmd.Flags()
	fl.IntVarP(&f.Port, "port", "p", 0, "TCP port the server listens on (default 5432)")
	fl.StringVar(&f.DataDir, "data-dir", "", "data directory")
	fl.StringVar(&f.LogFile, "log-file", "", "server log file")
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(b))
}
