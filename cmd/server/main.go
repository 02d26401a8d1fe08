package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"tabhost-server/internal/browser"
	"tabhost-server/internal/config"
	"tabhost-server/internal/driver"
	"tabhost-server/internal/httpapi"
	"tabhost-server/internal/recorder"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the tabhost config file")
	addr := flag.String("addr", "", "Optional listen address override (falls back to config)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		rec, err = recorder.New(cfg.Recorder.Dir)
		if err != nil {
			logger.Fatal("failed to initialize trace recorder", zap.Error(err))
		}
		if err := rec.Start(); err != nil {
			logger.Fatal("failed to start trace recorder", zap.Error(err))
		}
		defer rec.Close()
	}

	drv := driver.NewRod(cfg.Browser)
	if err := drv.Start(ctx); err != nil {
		logger.Fatal("failed to connect to browser engine", zap.Error(err))
	}

	registry := browser.NewSessionRegistry(drv, cfg.Limits, logger)
	registry.StartSweeper(ctx)

	server := httpapi.New(cfg, logger, registry, drv, rec)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("server exited with error", zap.Error(err))
	}

	logger.Info("shutting down")
	registry.Shutdown()
	if err := drv.Shutdown(context.Background()); err != nil {
		logger.Warn("engine shutdown failed", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Server.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
