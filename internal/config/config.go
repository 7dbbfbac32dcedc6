package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultPort is the conventional postgres port used when none is given.
	DefaultPort = 5432

	// pidFileName is the fixed name postgres writes inside the data directory.
	pidFileName = "postmaster.pid"
)

// Config describes one server instance: where its data lives, where the
// server log goes, which TCP port it binds, and whether the data directory
// is removed on teardown. Values are fixed after New returns; callers that
// need a different configuration build a new one.
// Port uniqueness across instances is the caller's responsibility.
type Config struct {
	DataDir      string `json:"data_dir" mapstructure:"data_dir"`
	LogFile      string `json:"log_file" mapstructure:"log_file"`
	Port         int    `json:"port" mapstructure:"port"`
	DeleteOnExit bool   `json:"delete_on_exit" mapstructure:"delete_on_exit"`
}

// Option mutates a Config under construction.
type Option func(*Config)

func WithDataDir(dir string) Option    { return func(c *Config) { c.DataDir = dir } }
func WithLogFile(path string) Option   { return func(c *Config) { c.LogFile = path } }
func WithPort(port int) Option         { return func(c *Config) { c.Port = port } }
func WithDeleteOnExit(del bool) Option { return func(c *Config) { c.DeleteOnExit = del } }

// New builds a Config and materializes it on disk: the data directory is
// created (parents included) and the log file touched. Either failing fails
// construction; a Config that New returned is guaranteed writable.
// Defaults: fresh temp dir for DataDir, temp log file for LogFile, port 5432,
// DeleteOnExit false.
func New(opts ...Option) (Config, error) {
	c := Config{Port: DefaultPort}
	for _, o := range opts {
		o(&c)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return Config{}, fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.DataDir == "" {
		dir, err := os.MkdirTemp("", "tinypg-data-")
		if err != nil {
			return Config{}, fmt.Errorf("config: create temp data dir: %w", err)
		}
		c.DataDir = dir
	} else if err := os.MkdirAll(c.DataDir, 0o750); err != nil {
		return Config{}, fmt.Errorf("config: create data dir %s: %w", c.DataDir, err)
	}
	if c.LogFile == "" {
		f, err := os.CreateTemp("", "tinypg-*.log")
		if err != nil {
			return Config{}, fmt.Errorf("config: create temp log file: %w", err)
		}
		c.LogFile = f.Name()
		_ = f.Close()
	} else {
		if err := os.MkdirAll(filepath.Dir(c.LogFile), 0o750); err != nil {
			return Config{}, fmt.Errorf("config: create log dir for %s: %w", c.LogFile, err)
		}
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return Config{}, fmt.Errorf("config: touch log file %s: %w", c.LogFile, err)
		}
		_ = f.Close()
	}
	return c, nil
}

// PIDFile returns the path postgres writes its pid file to inside DataDir.
// Derived only; the file itself is owned by the server.
func (c Config) PIDFile() string {
	return filepath.Join(c.DataDir, pidFileName)
}
