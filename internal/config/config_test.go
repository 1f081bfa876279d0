package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"WACONNECT_CONFIG", "WACONNECT_ADDR", "WACONNECT_ALLOWED_ORIGIN",
		"WACONNECT_ENGINE_LOG_LEVEL", "WACONNECT_DEVICE_NAME", "WACONNECT_SERVER",
		"WACONNECT_PING_SECONDS", "WACONNECT_HEADLESS", "WACONNECT_NO_SANDBOX",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("WACONNECT_DATA_DIR", t.TempDir())
	// Keep a stray .env in the package dir from leaking in.
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerAddr != ":3000" || cfg.AllowedOrigin != "http://localhost:5173" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.EngineLogLevel != "WARN" || cfg.PingInterval != 25*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if filepath.Base(cfg.DatabasePath) != "waconnect.db" || filepath.Base(cfg.DevicePath) != "device.db" {
		t.Fatalf("unexpected paths %q %q", cfg.DatabasePath, cfg.DevicePath)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("WACONNECT_ADDR", ":8080")
	t.Setenv("WACONNECT_ENGINE_LOG_LEVEL", "debug")
	t.Setenv("WACONNECT_HEADLESS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerAddr != ":8080" || cfg.EngineLogLevel != "DEBUG" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.EngineOptions["headless"] != "false" {
		t.Fatalf("passthrough option missing: %v", cfg.EngineOptions)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "waconnect.toml")
	content := `
addr = ":4000"
device_name = "desk"
ping_interval = "5s"

[engine]
no_sandbox = "true"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WACONNECT_CONFIG", path)
	t.Setenv("WACONNECT_DEVICE_NAME", "laptop")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerAddr != ":4000" || cfg.PingInterval != 5*time.Second {
		t.Fatalf("file not applied: %+v", cfg)
	}
	if cfg.DeviceName != "laptop" {
		t.Fatalf("env must win over file, got %q", cfg.DeviceName)
	}
	if cfg.EngineOptions["no_sandbox"] != "true" {
		t.Fatalf("engine table not applied: %v", cfg.EngineOptions)
	}
}

func TestLoadServerURL(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "waconnect.toml")
	if err := os.WriteFile(path, []byte(`server = "http://relay.lan:3000"`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WACONNECT_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != "http://relay.lan:3000" {
		t.Fatalf("server key not applied: %q", cfg.ServerURL)
	}

	t.Setenv("WACONNECT_SERVER", "http://127.0.0.1:4000")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != "http://127.0.0.1:4000" {
		t.Fatalf("env must win over file, got %q", cfg.ServerURL)
	}
}

func TestLoadFileBadDuration(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	os.WriteFile(path, []byte(`ping_interval = "soon"`), 0o644)
	t.Setenv("WACONNECT_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{ServerAddr: ":3000", EngineLogLevel: "WARN", PingInterval: time.Second}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	cfg.EngineLogLevel = "LOUD"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}
