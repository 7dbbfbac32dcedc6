// Package env resolves filesystem paths into the postgres install tree and
// derives the process environment needed to invoke pg_ctl against it.
// Everything here is pure path computation; a missing install tree only
// surfaces when the control utility is actually executed.
package env

import (
	"os"
	"path/filepath"
	"strings"
)

// InstallDirVar overrides the install root when set in the environment.
const InstallDirVar = "TINYPG_INSTALL_DIR"

// defaultInstallDir is where the out-of-band native build places the
// postgres install tree, relative to the working directory.
const defaultInstallDir = "build/postgres/install"

// Resolver computes paths under one postgres install root.
type Resolver struct {
	installDir string
}

// NewResolver picks the install root: explicit argument first, then the
// TINYPG_INSTALL_DIR environment variable, then the conventional build
// location.
func NewResolver(installDir string) Resolver {
	if installDir == "" {
		installDir = os.Getenv(InstallDirVar)
	}
	if installDir == "" {
		installDir = defaultInstallDir
	}
	abs, err := filepath.Abs(installDir)
	if err == nil {
		installDir = abs
	}
	return Resolver{installDir: installDir}
}

// InstallDir returns the resolved install root.
func (r Resolver) InstallDir() string { return r.installDir }

// BinDir returns the directory holding pg_ctl, initdb, postgres et al.
func (r Resolver) BinDir() string { return filepath.Join(r.installDir, "bin") }

// LibDir returns the shared-library directory of the install tree.
func (r Resolver) LibDir() string { return filepath.Join(r.installDir, "lib") }

// PgCtl returns the full path of the pg_ctl executable.
func (r Resolver) PgCtl() string { return filepath.Join(r.BinDir(), "pg_ctl") }

// Environ derives the environment for control-utility invocations: the
// inherited OS environment with the dynamic-library search path pointed at
// LibDir and PATH extended with BinDir. All other variables pass through
// unchanged; later entries win for duplicate keys, matching exec.Cmd.
func (r Resolver) Environ() []string {
	base := os.Environ()
	out := make([]string, 0, len(base)+3)
	path := os.Getenv("PATH")
	for _, kv := range base {
		k, _, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		switch k {
		case "LD_LIBRARY_PATH", "DYLD_LIBRARY_PATH", "PATH":
			continue // re-added below
		}
		out = append(out, kv)
	}
	out = append(out,
		"LD_LIBRARY_PATH="+r.LibDir(),
		"DYLD_LIBRARY_PATH="+r.LibDir(),
	)
	if path != "" {
		out = append(out, "PATH="+path+string(os.PathListSeparator)+r.BinDir())
	} else {
		out = append(out, "PATH="+r.BinDir())
	}
	return out
}
