package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ikonnect/agency-chat/internal/config"
	"github.com/ikonnect/agency-chat/internal/logging"
	"github.com/ikonnect/agency-chat/internal/server"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	app, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application",
			zap.Error(err),
			zap.String("store", cfg.Store),
			zap.String("dbPath", cfg.DBPath))
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.ListenAndServe(ctx); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
