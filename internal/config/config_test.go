package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Source.Path != nil || cfg.Server.Addr != nil {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[server]\nport = 80\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestResolveLayersFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `[source]
path = "/data/sparcs.parquet"

[server]
addr = ":9000"
read-timeout = "5s"

[export]
workers = 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	file, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	t.Setenv("SPARCS_ADDR", ":9100")
	t.Setenv("SPARCS_DEMO", "true")
	t.Setenv("SPARCS_OTEL_ENDPOINT", "http://collector:4318")
	var e EnvConfig
	if err := ParseEnv(&e); err != nil {
		t.Fatalf("parse env: %v", err)
	}

	s, err := Resolve(file, e)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.Source != "/data/sparcs.parquet" {
		t.Fatalf("expected file source, got %q", s.Source)
	}
	if s.Addr != ":9100" {
		t.Fatalf("expected env to win over file, got %q", s.Addr)
	}
	if !s.Demo {
		t.Fatalf("expected demo from env")
	}
	if s.ReadTimeout != 5*time.Second || s.WriteTimeout != 30*time.Second {
		t.Fatalf("unexpected timeouts %v %v", s.ReadTimeout, s.WriteTimeout)
	}
	if s.Workers != 2 || s.Table != "discharges" {
		t.Fatalf("unexpected export/table settings %+v", s)
	}
	if s.OTelEndpoint != "http://collector:4318" {
		t.Fatalf("unexpected otel endpoint %q", s.OTelEndpoint)
	}
}

func TestResolveRejectsBadValues(t *testing.T) {
	bad := "soon"
	if _, err := Resolve(FileConfig{Server: ServerConfig{ReadTimeout: &bad}}, EnvConfig{}); err == nil {
		t.Fatalf("expected duration error")
	}
	zero := 0
	if _, err := Resolve(FileConfig{Export: ExportConfig{Workers: &zero}}, EnvConfig{}); err == nil {
		t.Fatalf("expected workers error")
	}
}

func TestParseEnvRejectsBadBool(t *testing.T) {
	t.Setenv("SPARCS_DEMO", "sometimes")
	var e EnvConfig
	if err := ParseEnv(&e); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDefaultPathsFollowXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", dir)
	if got := DefaultConfigPath(); got != filepath.Join(dir, "sparcs", "config.toml") {
		t.Fatalf("unexpected config path %q", got)
	}
	if got := DefaultSourcePath(); got != filepath.Join(dir, "sparcs", "sparcs_summary.parquet") {
		t.Fatalf("unexpected source path %q", got)
	}
}
