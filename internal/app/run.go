package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
)

// Run is the chatd entrypoint. It wires config, logging, and the app, then
// blocks until SIGINT/SIGTERM or a fatal server error. It returns an error
// instead of calling os.Exit so defers stay effective.
func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	a, err := New(cfg, log)
	if err != nil {
		return fmt.Errorf("wire chat server: %w", err)
	}

	return a.Run(ctx)
}
