package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"rentalpricing/config"
	"rentalpricing/dataset"
	"rentalpricing/logging"
	"rentalpricing/ml"
	"rentalpricing/pricing"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file")
	holdout := flag.Float64("holdout", 1, "trailing fraction of the dataset to score")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	metrics, err := evaluate(ctx, cfg, *holdout, logger)
	if err != nil {
		logger.Fatal("evaluation failed", zap.Error(err))
	}
	logger.Info("evaluation finished",
		zap.Int("rows", metrics.Rows),
		zap.Int("failed", metrics.Failed),
		zap.Float64("mae", metrics.MAE),
		zap.Float64("rmse", metrics.RMSE),
		zap.Float64("r2", metrics.R2),
	)
	fmt.Println(metrics)
}

func evaluate(ctx context.Context, cfg *config.Config, holdout float64, logger *zap.Logger) (pricing.Metrics, error) {
	source, err := dataset.NewSource(ctx, cfg.Dataset)
	if err != nil {
		return pricing.Metrics{}, err
	}
	defer dataset.CloseSource(source)
	frame, err := source.Load(ctx)
	if err != nil {
		return pricing.Metrics{}, fmt.Errorf("load %s: %w", source.Name(), err)
	}

	registry := ml.NewRegistry(ml.ArtifactPaths{
		PreprocessorPath: cfg.ML.PreprocessorPath,
		ModelType:        cfg.ML.ModelType,
		ModelPath:        cfg.ML.ModelPath,
	}, logger)
	if err := registry.Load(); err != nil {
		return pricing.Metrics{}, err
	}

	records := pricing.HoldoutSplit(frame.Rows, holdout)
	logger.Info("scoring dataset", zap.String("source", source.Name()), zap.Int("rows", len(records)))
	return pricing.Evaluate(ctx, pricing.NewService(registry), records)
}
