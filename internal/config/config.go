package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/couchcryptid/fire-threat-engine/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers       []string
	KafkaReadingsTopic string
	KafkaThreatsTopic  string
	KafkaGroupID       string
	HTTPAddr           string
	LogLevel           string
	LogFormat          string
	ShutdownTimeout    time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Node topology source.
	DatabaseURL             string
	TopologyRefreshInterval time.Duration
	ReadingRetention        time.Duration
	PruneInterval           time.Duration

	// Propagation prediction provider.
	PredictorURL          string
	PredictorTimeout      time.Duration // per attempt
	PredictorMaxAttempts  int
	PredictorBackoff      time.Duration
	PredictionCacheTTL    time.Duration
	PredictionCacheSize   int
	ThreatRefreshInterval time.Duration

	// Default operator view used by the periodic publisher.
	DefaultRange    time.Duration
	DefaultCategory string

	Thresholds domain.Thresholds
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file (ENV_FILE, default ".env") is read first when present.
func Load() (*Config, error) {
	envFile := sharedcfg.EnvOrDefault("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaReadingsTopic: sharedcfg.EnvOrDefault("KAFKA_READINGS_TOPIC", "sensor-readings"),
		KafkaThreatsTopic:  sharedcfg.EnvOrDefault("KAFKA_THREATS_TOPIC", "threat-assessments"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "fire-threat-engine"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		DatabaseURL:     sharedcfg.EnvOrDefault("DATABASE_URL", "postgres://localhost:5432/firewatch?sslmode=disable"),
		PredictorURL:    sharedcfg.EnvOrDefault("PREDICTOR_URL", "http://localhost:8090"),
		DefaultCategory: sharedcfg.EnvOrDefault("DEFAULT_CATEGORY", domain.CategoryAll),
	}
	if cfg.TopologyRefreshInterval, err = parseDuration("TOPOLOGY_REFRESH_INTERVAL", "30s"); err != nil {
		return nil, err
	}
	if cfg.ReadingRetention, err = parseDuration("READING_RETENTION", "336h"); err != nil {
		return nil, err
	}
	if cfg.PruneInterval, err = parseDuration("PRUNE_INTERVAL", "5m"); err != nil {
		return nil, err
	}
	if cfg.PredictorTimeout, err = parseDuration("PREDICTOR_TIMEOUT", "5s"); err != nil {
		return nil, err
	}
	if cfg.PredictorBackoff, err = parseDuration("PREDICTOR_BACKOFF", "200ms"); err != nil {
		return nil, err
	}
	if cfg.PredictionCacheTTL, err = parseDuration("PREDICTION_CACHE_TTL", "30s"); err != nil {
		return nil, err
	}
	if cfg.ThreatRefreshInterval, err = parseDuration("THREAT_REFRESH_INTERVAL", "1m"); err != nil {
		return nil, err
	}
	if cfg.DefaultRange, err = parseDuration("DEFAULT_RANGE", "24h"); err != nil {
		return nil, err
	}

	if cfg.PredictorMaxAttempts, err = parsePositiveInt("PREDICTOR_MAX_ATTEMPTS", 2); err != nil {
		return nil, err
	}
	if cfg.PredictionCacheSize, err = parsePositiveInt("PREDICTION_CACHE_SIZE", 256); err != nil {
		return nil, err
	}

	cfg.Thresholds = domain.DefaultThresholds()
	if path := os.Getenv("SEVERITY_CONFIG"); path != "" {
		if cfg.Thresholds, err = LoadThresholds(path); err != nil {
			return nil, err
		}
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaReadingsTopic == "" {
		return nil, errors.New("KAFKA_READINGS_TOPIC is required")
	}
	if cfg.KafkaThreatsTopic == "" {
		return nil, errors.New("KAFKA_THREATS_TOPIC is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.PredictorURL == "" {
		return nil, errors.New("PREDICTOR_URL is required")
	}
	// The provider call may be retried at most once.
	if cfg.PredictorMaxAttempts > 2 {
		return nil, errors.New("PREDICTOR_MAX_ATTEMPTS must be 1 or 2")
	}

	return cfg, nil
}

// parseDuration reads a duration variable, rejecting non-positive values.
func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

// LoadThresholds reads classifier thresholds from a YAML file. Keys missing
// from the file keep their default values.
func LoadThresholds(path string) (domain.Thresholds, error) {
	th := domain.DefaultThresholds()
	data, err := os.ReadFile(path)
	if err != nil {
		return th, fmt.Errorf("read SEVERITY_CONFIG: %w", err)
	}
	if err := yaml.Unmarshal(data, &th); err != nil {
		return th, fmt.Errorf("parse SEVERITY_CONFIG: %w", err)
	}
	return th, nil
}
