// Package config provides configuration management for waconnect.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the waconnect server and views.
type Config struct {
	// ServerAddr is the address the HTTP server listens on (e.g., ":3000").
	ServerAddr string

	// AllowedOrigin is the browser origin allowed to call the API.
	AllowedOrigin string

	// DataDir is the directory for persistent data.
	DataDir string

	// DatabasePath is the lifecycle event log.
	DatabasePath string

	// DevicePath is the engine's credential store. Only the engine reads it.
	DevicePath string

	// EngineLogLevel is passed to the engine logger (DEBUG, INFO, WARN, ERROR).
	EngineLogLevel string

	// DeviceName is shown in the phone's linked devices list.
	DeviceName string

	// ServerURL is where views reach the server.
	ServerURL string

	// PingInterval is the keepalive interval for event channel connections.
	PingInterval time.Duration

	// EngineOptions are passed through to the engine without interpretation.
	EngineOptions map[string]string
}

// fileConfig is the optional TOML file named by WACONNECT_CONFIG.
type fileConfig struct {
	Addr           string            `toml:"addr"`
	AllowedOrigin  string            `toml:"allowed_origin"`
	DataDir        string            `toml:"data_dir"`
	EngineLogLevel string            `toml:"engine_log_level"`
	DeviceName     string            `toml:"device_name"`
	Server         string            `toml:"server"`
	PingInterval   string            `toml:"ping_interval"`
	Engine         map[string]string `toml:"engine"`
}

// passthrough lists env vars forwarded to the engine as opaque options.
var passthrough = map[string]string{
	"WACONNECT_HEADLESS":   "headless",
	"WACONNECT_NO_SANDBOX": "no_sandbox",
}

// Load creates a Config from the TOML file (if any), then environment
// variables, with sensible defaults. A .env file in the working directory
// is read first and never overrides variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerAddr:     ":3000",
		AllowedOrigin:  "http://localhost:5173",
		DataDir:        defaultDataDir(),
		EngineLogLevel: "WARN",
		DeviceName:     "waconnect",
		ServerURL:      "http://localhost:3000",
		PingInterval:   25 * time.Second,
		EngineOptions:  map[string]string{},
	}

	if path := os.Getenv("WACONNECT_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.ServerAddr = envOr("WACONNECT_ADDR", cfg.ServerAddr)
	cfg.AllowedOrigin = envOr("WACONNECT_ALLOWED_ORIGIN", cfg.AllowedOrigin)
	cfg.DataDir = envOr("WACONNECT_DATA_DIR", cfg.DataDir)
	cfg.EngineLogLevel = strings.ToUpper(envOr("WACONNECT_ENGINE_LOG_LEVEL", cfg.EngineLogLevel))
	cfg.DeviceName = envOr("WACONNECT_DEVICE_NAME", cfg.DeviceName)
	cfg.ServerURL = envOr("WACONNECT_SERVER", cfg.ServerURL)
	cfg.PingInterval = time.Duration(envOrInt("WACONNECT_PING_SECONDS", int(cfg.PingInterval/time.Second))) * time.Second
	for env, key := range passthrough {
		if v := os.Getenv(env); v != "" {
			cfg.EngineOptions[key] = v
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	cfg.DatabasePath = filepath.Join(cfg.DataDir, "waconnect.db")
	cfg.DevicePath = filepath.Join(cfg.DataDir, "device.db")

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	if meta.IsDefined("addr") {
		c.ServerAddr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("allowed_origin") {
		c.AllowedOrigin = strings.TrimSpace(raw.AllowedOrigin)
	}
	if meta.IsDefined("data_dir") {
		c.DataDir = strings.TrimSpace(raw.DataDir)
	}
	if meta.IsDefined("engine_log_level") {
		c.EngineLogLevel = strings.TrimSpace(raw.EngineLogLevel)
	}
	if meta.IsDefined("device_name") {
		c.DeviceName = strings.TrimSpace(raw.DeviceName)
	}
	if meta.IsDefined("server") {
		c.ServerURL = strings.TrimSpace(raw.Server)
	}
	if meta.IsDefined("ping_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PingInterval))
		if err != nil {
			return fmt.Errorf("parse ping_interval: %w", err)
		}
		c.PingInterval = d
	}
	for k, v := range raw.Engine {
		c.EngineOptions[k] = v
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("WACONNECT_ADDR must not be empty")
	}
	switch c.EngineLogLevel {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("WACONNECT_ENGINE_LOG_LEVEL must be one of DEBUG, INFO, WARN, ERROR (got %q)", c.EngineLogLevel)
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("ping interval must be positive")
	}
	return nil
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".waconnect"
	}
	return filepath.Join(home, ".waconnect")
}
