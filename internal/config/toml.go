// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Source SourceConfig `toml:"source"`
	Server ServerConfig `toml:"server"`
	Export ExportConfig `toml:"export"`
}

// SourceConfig maps the discharge data source.
type SourceConfig struct {
	Path  *string `toml:"path"`
	Table *string `toml:"table"`
	Demo  *bool   `toml:"demo"`
}

// ServerConfig maps HTTP server settings. Timeouts are Go durations.
type ServerConfig struct {
	Addr         *string `toml:"addr"`
	ReadTimeout  *string `toml:"read-timeout"`
	WriteTimeout *string `toml:"write-timeout"`
}

// ExportConfig maps the export command.
type ExportConfig struct {
	Dir     *string `toml:"dir"`
	Workers *int    `toml:"workers"`
	Pretty  *bool   `toml:"pretty"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
