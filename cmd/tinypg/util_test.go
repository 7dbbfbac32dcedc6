package main

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake pg_ctl scripts are unix only")
	}
}

// writeFakePgCtl installs a shell script as <install>/bin/pg_ctl and returns
// the install dir.
func writeFakePgCtl(t *testing.T, script string) string {
	t.Helper()
	install := t.TempDir()
	binDir := filepath.Join(install, "bin")
	if err := os.MkdirAll(binDir, 0o750); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	if err := os.WriteFile(filepath.Join(binDir, "pg_ctl"), []byte("#!/bin/sh\n"+script), 0o750); err != nil {
		t.Fatalf("write pg_ctl: %v", err)
	}
	return install
}
