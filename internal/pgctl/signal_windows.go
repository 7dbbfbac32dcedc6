//go:build windows

package pgctl

import "os"

// killPID terminates pid directly, bypassing pg_ctl.
func killPID(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
