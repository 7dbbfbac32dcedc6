package main

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	InstallDir string
	LogLevel   string
}

// RunFlags holds flags for the run command.
type RunFlags struct {
	Port       int
	DataDir    string
	LogFile    string
	Remove     bool
	HistoryDSN string
	HTTPListen string
	HTTPBase   string
}

// InstanceFlags holds flags for commands addressing an existing data
// directory (init, status, stop, kill).
type InstanceFlags struct {
	Port    int
	DataDir string
	LogFile string
}
