package pgctl

import (
	"fmt"
	"strings"
)

// CtlError reports a control-utility invocation that exited non-zero.
// ExitCode is -1 when the process never ran or was killed by the per-call
// timeout; Err carries the underlying exec error in that case.
type CtlError struct {
	Verb     string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *CtlError) Error() string {
	msg := fmt.Sprintf("pg_ctl %s failed with code %d", e.Verb, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	if e.Err != nil && strings.TrimSpace(e.Stderr) == "" {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CtlError) Unwrap() error { return e.Err }
