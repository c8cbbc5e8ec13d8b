package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fusion/config"
	"github.com/Ramsey-B/fusion/pkg/startup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, sync, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.WithFields(map[string]any{
		"app":     cfg.AppName,
		"version": cfg.Version,
	}).Info("Starting fusion")

	app := newApp(cfg, logger)
	s := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	for _, dep := range app.dependencies() {
		s.AddDependency(dep)
	}

	if err := s.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		shutdown(s, cfg, logger)
		os.Exit(1)
	}
	app.health.SetReady(true)
	logger.Infof("Fusion is ready on port %d", cfg.Port)

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-app.serverErr:
		logger.WithError(err).Error("HTTP server failed")
	}

	app.health.SetReady(false)
	shutdown(s, cfg, logger)
}

func shutdown(s *startup.Startup, cfg *config.Config, logger ectologger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := s.Stop(ctx); err != nil {
		logger.WithError(err).Error("Shutdown did not complete cleanly")
		return
	}
	logger.Info("Fusion stopped")
}

func newLogger(cfg *config.Config) (ectologger.Logger, func(), error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = level

	zapLogger, err := zapConfig.Build(zap.Fields(zap.String("app", cfg.AppName)))
	if err != nil {
		return nil, nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), func() { _ = zapLogger.Sync() }, nil
}
