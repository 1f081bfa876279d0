package waconnect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jxucoder/waconnect/engine/whatsapp"
	"github.com/jxucoder/waconnect/eventbus"
	sqliteStore "github.com/jxucoder/waconnect/store/sqlite"
)

// applyDefaults fills in missing fields on the builder with sensible defaults.
func applyDefaults(ctx context.Context, b *Builder) error {
	// Config defaults.
	if b.config.ServerAddr == "" {
		b.config.ServerAddr = ":3000"
	}
	if b.config.AllowedOrigin == "" {
		b.config.AllowedOrigin = "http://localhost:5173"
	}
	if b.config.DataDir == "" {
		b.config.DataDir = defaultDataDir()
	}
	if b.config.DatabasePath == "" {
		b.config.DatabasePath = filepath.Join(b.config.DataDir, "waconnect.db")
	}
	if b.config.DevicePath == "" {
		b.config.DevicePath = filepath.Join(b.config.DataDir, "device.db")
	}
	if b.config.EngineLogLevel == "" {
		b.config.EngineLogLevel = "WARN"
	}
	if b.config.DeviceName == "" {
		b.config.DeviceName = "waconnect"
	}
	if b.config.PingInterval == 0 {
		b.config.PingInterval = 25 * time.Second
	}

	// Ensure data dir exists.
	if err := os.MkdirAll(b.config.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	// Event log.
	if b.store == nil {
		st, err := sqliteStore.New(b.config.DatabasePath)
		if err != nil {
			return fmt.Errorf("initializing store: %w", err)
		}
		b.store = st
	}

	// Event bus.
	if b.bus == nil {
		b.bus = eventbus.NewInMemoryBus()
	}

	// Engine.
	if b.engine == nil {
		eng, err := whatsapp.New(ctx, whatsapp.Config{
			DatabasePath: b.config.DevicePath,
			LogLevel:     b.config.EngineLogLevel,
			DeviceName:   b.config.DeviceName,
			Options:      b.config.EngineOptions,
		})
		if err != nil {
			return fmt.Errorf("initializing engine: %w", err)
		}
		b.engine = eng
	}

	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".waconnect"
	}
	return filepath.Join(home, ".waconnect")
}
