package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	var gf GlobalFlags

	root := &cobra.Command{
		Use:           "tinypg",
		Short:         "Run a locally built postgres for ephemeral testing",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(gf)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&gf.ConfigPath, "config", "", "TOML config file")
	pf.StringVar(&gf.InstallDir, "install-dir", "", "postgres install tree (default $TINYPG_INSTALL_DIR, then build/postgres/install)")
	pf.StringVar(&gf.LogLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(
		newRunCmd(&gf),
		newInitCmd(&gf),
		newStatusCmd(&gf),
		newStopCmd(&gf),
		newKillCmd(&gf),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("tinypg " + version)
		},
	}
}
