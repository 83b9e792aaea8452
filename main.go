package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"tabularml/config"
	"tabularml/db"
	qhttp "tabularml/http"
	"tabularml/logging"
	"tabularml/monitoring"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	logger, restore, err := logging.Setup(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		zap.NewExample().Fatal("failed to set up logging", zap.Error(err))
	}
	defer restore()
	defer logger.Sync()

	// 2. Initialize database
	if err := db.InitDB(cfg.Database.Path); err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	// 3. Wire the model registry, event hub and metrics
	store, err := qhttp.NewModelStore(cfg.Models.CacheSize)
	if err != nil {
		logger.Fatal("failed to create model store", zap.Error(err))
	}
	hub := monitoring.NewHub()
	go hub.Run()
	defer hub.Stop()

	api := qhttp.NewAPI(store, hub, monitoring.NewMetricsCollector(), cfg.Training)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := os.Stat(*configPath); err == nil {
		go func() {
			err := config.Watch(ctx, *configPath, func(next *config.Config) {
				api.SetTrainingDefaults(next.Training)
				logger.Info("training defaults reloaded", zap.String("path", *configPath))
			})
			if err != nil {
				logger.Warn("config watcher stopped", zap.Error(err))
			}
		}()
	}

	// 4. Start HTTP server
	serverConfig := qhttp.DefaultServerConfig()
	serverConfig.Port = cfg.HTTP.Port
	serverConfig.Timeout = cfg.HTTP.Timeout
	serverConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	server := qhttp.NewServer(serverConfig, api)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 5. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
}
