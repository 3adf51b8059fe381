package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"mercari/monitor/internal/config"
	"mercari/monitor/internal/container"

	log "github.com/sirupsen/logrus"
)

func main() {
	log.Info("Starting Mercari listing monitor...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Info("Configuration loaded successfully")

	app, err := container.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Monitor exited with error: %v", err)
	}

	log.Info("👋 Monitor stopped")
}
