package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Logging selects the slog handler and level.
type Logging struct {
	Level  string
	Format string
}

// Engine holds the settings shared by the worker and the conversion CLI.
type Engine struct {
	Logging
	GDALBinDir  string
	PluginTable string
}

// Config holds all worker settings, populated from environment variables.
type Config struct {
	Engine

	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration
	Workers            int
	WorkDir            string

	// Catalog notification.
	CumulusAPIURL   string
	ApplicationKey  string
	CumulusAPIHTTP2 bool
	NotifyTimeout   time.Duration
	ProductsBaseKey string

	// Object storage.
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	// SNODAS products interpolated by the snodas-interpolate geoprocess.
	SnodasProducts []string
}

type ErrMissingRequiredEnvVar struct {
	Name string
}

func (e *ErrMissingRequiredEnvVar) Error() string {
	return fmt.Sprintf("required environment variable %q is not set", e.Name)
}

// LoadEngine reads the settings needed to run conversions locally.
func LoadEngine() Engine {
	return Engine{
		Logging: Logging{
			Level:  sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
			Format: sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		},
		GDALBinDir:  os.Getenv("GDAL_BIN_DIR"),
		PluginTable: os.Getenv("PLUGIN_TABLE"),
	}
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
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

	notifyTimeout, err := parseDuration("NOTIFY_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	workers, err := parseWorkers()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Engine: LoadEngine(),

		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "cumulus-geoprocess"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "cumulus-geoprocess-results"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "cumulus-geoproc"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		Workers:            workers,
		WorkDir:            sharedcfg.EnvOrDefault("WORK_DIR", os.TempDir()),

		CumulusAPIURL:   sharedcfg.EnvOrDefault("CUMULUS_API_URL", "http://cumulus-api:80"),
		ApplicationKey:  os.Getenv("APPLICATION_KEY"),
		CumulusAPIHTTP2: os.Getenv("CUMULUS_API_HTTP2") == "true",
		NotifyTimeout:   notifyTimeout,
		ProductsBaseKey: strings.Trim(sharedcfg.EnvOrDefault("CUMULUS_PRODUCTS_BASEKEY", "cumulus/products"), "/"),

		MinIOEndpoint:  sharedcfg.EnvOrDefault("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinIOBucket:    sharedcfg.EnvOrDefault("MINIO_BUCKET", "castle-data-develop"),
		MinIOUseSSL:    os.Getenv("MINIO_USE_SSL") == "true",

		SnodasProducts: splitList(os.Getenv("SNODAS_PRODUCTS")),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	for _, req := range []struct{ name, value string }{
		{"APPLICATION_KEY", cfg.ApplicationKey},
		{"MINIO_ACCESS_KEY", cfg.MinIOAccessKey},
		{"MINIO_SECRET_KEY", cfg.MinIOSecretKey},
	} {
		if req.value == "" {
			return nil, &ErrMissingRequiredEnvVar{Name: req.name}
		}
	}

	return cfg, nil
}

func parseDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}

func parseWorkers() (int, error) {
	s := os.Getenv("WORKERS")
	if s == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 64 {
		return 0, errors.New("invalid WORKERS: must be an integer from 1 to 64")
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
