package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/nbrew/pkg/config"
	"github.com/the-maldridge/nbrew/pkg/server"
)

func main() {
	level := os.Getenv("NBREW_LOG_LEVEL")
	if level == "" {
		level = "DEBUG"
	}
	appLogger := hclog.New(&hclog.LoggerOptions{
		Name:  "nbrew",
		Level: hclog.LevelFromString(level),
	})
	appLogger.Info("nbrew graph is initializing")

	cfg, err := config.Load(os.Getenv("NBREW_CONFIG"))
	if err != nil {
		appLogger.Error("Error loading config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, appLogger, cfg); err != nil {
		appLogger.Error("Server exited", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Goodbye!")
}
