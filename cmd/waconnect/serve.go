package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jxucoder/waconnect"
	"github.com/jxucoder/waconnect/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the waconnect server",
	Long:  "Start the server that owns the WhatsApp session and relays it to views.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()

	app, err := waconnect.NewBuilder().
		WithConfig(waconnect.Config{
			ServerAddr:     cfg.ServerAddr,
			AllowedOrigin:  cfg.AllowedOrigin,
			DataDir:        cfg.DataDir,
			DatabasePath:   cfg.DatabasePath,
			DevicePath:     cfg.DevicePath,
			EngineLogLevel: cfg.EngineLogLevel,
			DeviceName:     cfg.DeviceName,
			EngineOptions:  cfg.EngineOptions,
			PingInterval:   cfg.PingInterval,
		}).
		Build(ctx)
	if err != nil {
		return fmt.Errorf("building app: %w", err)
	}

	return app.Start(ctx)
}
