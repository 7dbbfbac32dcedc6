package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/tinypg/tinypg/internal/logger"
)

// FileConfig represents the top-level TOML structure:
//
//	[server]
//	data_dir = "/var/lib/tinypg/data"
//	log_file = "/var/log/tinypg/server.log"
//	port = 5433
//	delete_on_exit = true
//
//	[install]
//	dir = "/opt/postgres/install"
//
//	[log]
//	level = "debug"
//	file = "/var/log/tinypg/tinypg.log"
//
//	[history]
//	dsn = "sqlite:///var/lib/tinypg/history.db"
//	[http]
//	listen = "127.0.0.1:8432"
type FileConfig struct {
	Server  Config         `toml:"server" mapstructure:"server"`
	Install InstallConfig  `toml:"install" mapstructure:"install"`
	Log     *logger.Config `toml:"log" mapstructure:"log"`
	History HistoryConfig  `toml:"history" mapstructure:"history"`
	HTTP    HTTPConfig     `toml:"http" mapstructure:"http"`
}

// InstallConfig points at the postgres install tree produced by the native
// build (out of band for this tool).
type InstallConfig struct {
	Dir string `toml:"dir" mapstructure:"dir"`
}

// HistoryConfig selects the lifecycle-event sink by DSN. Empty disables
// history recording.
type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// HTTPConfig configures the optional status/metrics endpoint of `tinypg run`.
type HTTPConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// Load reads a TOML config file. The [server] section is not materialized on
// disk here; callers pass the decoded values through New so the usual
// construction invariants apply.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if fc.Server.Port == 0 {
		fc.Server.Port = DefaultPort
	}
	return &fc, nil
}
