//go:build !windows

package pgctl

import "syscall"

// killPID sends an unconditional SIGKILL directly to pid, bypassing pg_ctl.
func killPID(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}
