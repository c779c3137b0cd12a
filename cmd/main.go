package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"rentalpricing/config"
	"rentalpricing/dataset"
	rhttp "rentalpricing/http"
	"rentalpricing/logging"
	"rentalpricing/ml"
	"rentalpricing/pricing"
)

func main() {
	// Look for config in root even if run from cmd/
	configPath := "config.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = filepath.Join("..", "config.yaml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handlers, source, err := initializeServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize services", zap.Error(err))
	}
	defer dataset.CloseSource(source)

	server := rhttp.NewServer(rhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	}, handlers, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}

	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
}

func initializeServices(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*rhttp.Handlers, dataset.Source, error) {
	source, err := dataset.NewSource(ctx, cfg.Dataset)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("dataset source configured",
		zap.String("kind", cfg.Dataset.Kind),
		zap.String("source", source.Name()),
		zap.Duration("cache_ttl", cfg.Dataset.CacheTTL),
	)

	registry := ml.NewRegistry(ml.ArtifactPaths{
		PreprocessorPath: cfg.ML.PreprocessorPath,
		ModelType:        cfg.ML.ModelType,
		ModelPath:        cfg.ML.ModelPath,
	}, logger)
	// a missing artifact is retried on the first prediction
	if err := registry.Load(); err != nil {
		logger.Warn("pipeline not loaded at startup", zap.Error(err))
	}
	if cfg.ML.Watch {
		if err := registry.Watch(ctx); err != nil {
			logger.Warn("artifact watcher disabled", zap.Error(err))
		}
	}

	return rhttp.NewHandlers(
		dataset.NewSampler(source),
		pricing.NewService(registry),
		registry,
		cfg.Dataset.DefaultRows,
		logger,
	), source, nil
}
