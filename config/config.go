// Package config loads service settings from config.yaml, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"rentalpricing/logging"
	"rentalpricing/ml"
)

// EnvPrefix is prepended to every environment override, e.g. RENTAL_HTTP_PORT.
const EnvPrefix = "RENTAL_"

// DefaultDatasetURL is the historical pricing CSV the preview endpoint samples from.
const DefaultDatasetURL = "https://full-stack-assets.s3.eu-west-3.amazonaws.com/Deployment/get_around_pricing_project.csv"

type Config struct {
	HTTP    HTTPConfig     `yaml:"http" envPrefix:"HTTP_"`
	Dataset DatasetConfig  `yaml:"dataset" envPrefix:"DATASET_"`
	ML      MLConfig       `yaml:"ml" envPrefix:"ML_"`
	Log     logging.Config `yaml:"log" envPrefix:"LOG_"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port" env:"PORT"`
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
}

// DatasetConfig selects where preview rows come from.
//
// Kind is one of "http" (URL), "file" (Path) or "sql" (Driver, DSN, Table).
type DatasetConfig struct {
	Kind         string        `yaml:"kind" env:"KIND"`
	URL          string        `yaml:"url" env:"URL"`
	Path         string        `yaml:"path" env:"PATH"`
	Driver       string        `yaml:"driver" env:"DRIVER"`
	DSN          string        `yaml:"dsn" env:"DSN"`
	Table        string        `yaml:"table" env:"TABLE"`
	Encoding     string        `yaml:"encoding" env:"ENCODING"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" env:"FETCH_TIMEOUT"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	DefaultRows  int           `yaml:"default_rows" env:"DEFAULT_ROWS"`
}

type MLConfig struct {
	PreprocessorPath string `yaml:"preprocessor_path" env:"PREPROCESSOR_PATH"`
	ModelType        string `yaml:"model_type" env:"MODEL_TYPE"`
	ModelPath        string `yaml:"model_path" env:"MODEL_PATH"`
	Watch            bool   `yaml:"watch" env:"WATCH"`
}

// Default mirrors the behaviour of the service without any configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:           4000,
			Timeout:        30 * time.Second,
			AllowedOrigins: []string{"*"},
			MaxBodyBytes:   1 << 20,
		},
		Dataset: DatasetConfig{
			Kind:         "http",
			URL:          DefaultDatasetURL,
			Table:        "rentals",
			FetchTimeout: 30 * time.Second,
			DefaultRows:  10,
		},
		ML: MLConfig{
			PreprocessorPath: "models/preprocessor.json",
			ModelType:        "xgboost",
			ModelPath:        "models/xgb_model.json",
		},
		Log: logging.DefaultConfig(),
	}
}

// envFile is read relative to the working directory.
var envFile = ".env"

// Load reads path on top of the defaults (a missing file is not an error),
// then applies .env and RENTAL_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	if err := env.Parse(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return yaml.NewDecoder(file).Decode(cfg)
}

// Validate reports the first setting that would keep the service from starting.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.Dataset.DefaultRows <= 0 {
		return fmt.Errorf("dataset.default_rows must be positive, got %d", c.Dataset.DefaultRows)
	}
	switch c.Dataset.Kind {
	case "http":
		if c.Dataset.URL == "" {
			return errors.New("dataset.url is required for kind http")
		}
	case "file":
		if c.Dataset.Path == "" {
			return errors.New("dataset.path is required for kind file")
		}
	case "sql":
		if c.Dataset.Driver == "" || c.Dataset.DSN == "" || c.Dataset.Table == "" {
			return errors.New("dataset.driver, dataset.dsn and dataset.table are required for kind sql")
		}
	default:
		return fmt.Errorf("unknown dataset.kind %q", c.Dataset.Kind)
	}
	if c.ML.PreprocessorPath == "" || c.ML.ModelPath == "" {
		return errors.New("ml.preprocessor_path and ml.model_path are required")
	}
	switch c.ML.ModelType {
	case ml.ModelXGBoost, ml.ModelLinear:
	default:
		return fmt.Errorf("unsupported ml.model_type %q", c.ML.ModelType)
	}
	return nil
}
