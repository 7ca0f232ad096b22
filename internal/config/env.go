package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvConfig holds environment overrides. Unset variables stay nil.
type EnvConfig struct {
	ConfigPath   *string `env:"SPARCS_CONFIG"`
	Source       *string `env:"SPARCS_SOURCE"`
	Table        *string `env:"SPARCS_TABLE"`
	Demo         *bool   `env:"SPARCS_DEMO"`
	Addr         *string `env:"SPARCS_ADDR"`
	ExportDir    *string `env:"SPARCS_EXPORT_DIR"`
	OTelEndpoint string  `env:"SPARCS_OTEL_ENDPOINT"`
}

// ParseEnv parses environment variables into the provided struct.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Settings is the resolved configuration: defaults, then the file, then
// the environment. Command-line flags are applied on top by the caller.
type Settings struct {
	Source       string
	Table        string
	Demo         bool
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ExportDir    string
	Workers      int
	Pretty       bool
	OTelEndpoint string
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		Source:       DefaultSourcePath(),
		Table:        "discharges",
		Addr:         "127.0.0.1:8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		ExportDir:    "charts",
		Workers:      4,
		Pretty:       true,
	}
}

// Resolve layers file and environment values over the defaults.
func Resolve(file FileConfig, e EnvConfig) (Settings, error) {
	s := Defaults()
	set(&s.Source, file.Source.Path)
	set(&s.Table, file.Source.Table)
	set(&s.Demo, file.Source.Demo)
	set(&s.Addr, file.Server.Addr)
	set(&s.ExportDir, file.Export.Dir)
	set(&s.Workers, file.Export.Workers)
	set(&s.Pretty, file.Export.Pretty)
	if err := setDuration(&s.ReadTimeout, file.Server.ReadTimeout, "server.read-timeout"); err != nil {
		return Settings{}, err
	}
	if err := setDuration(&s.WriteTimeout, file.Server.WriteTimeout, "server.write-timeout"); err != nil {
		return Settings{}, err
	}

	set(&s.Source, e.Source)
	set(&s.Table, e.Table)
	set(&s.Demo, e.Demo)
	set(&s.Addr, e.Addr)
	set(&s.ExportDir, e.ExportDir)
	s.OTelEndpoint = e.OTelEndpoint

	if s.Workers < 1 {
		return Settings{}, fmt.Errorf("export.workers must be at least 1, got %d", s.Workers)
	}
	return s, nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, key string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive", key)
	}
	*dst = d
	return nil
}
