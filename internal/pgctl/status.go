package pgctl

import (
	"regexp"
	"strconv"
	"strings"
)

// Status is an immutable snapshot of one server instance. It is produced
// fresh on every status call and never cached; PID is meaningful only while
// Running is true.
type Status struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Port    int    `json:"port"`
	DataDir string `json:"data_dir"`
	LogFile string `json:"log_file"`
}

// pg_ctl status output is the only contract we have with the utility; both
// checks below are deliberately narrow so the fragile parsing stays in this
// file and nowhere else.
const runningPhrase = "server is running"

var pidPattern = regexp.MustCompile(`(?im)^pg_ctl: server is running \(PID: (\d+)\)`)

// parseStatus extracts the running flag and pid from raw `pg_ctl status`
// output. Running is a case-insensitive substring match; the pid comes from
// a line-anchored pattern. When the two disagree the pid is simply absent.
// Never fails.
func parseStatus(out string) (running bool, pid int) {
	running = strings.Contains(strings.ToLower(out), runningPhrase)
	if m := pidPattern.FindStringSubmatch(out); m != nil {
		pid, _ = strconv.Atoi(m[1]) // pattern guarantees digits
	}
	return running, pid
}
