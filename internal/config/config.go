package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/couchcryptid/hdb-property-etl/internal/domain"
)

// Credentials are the OneMap account details used to obtain a bearer token.
type Credentials struct {
	Email    string
	Password string
}

// Validate fails with a ConfigurationError naming the first missing value.
func (c Credentials) Validate() error {
	if c.Email == "" {
		return &domain.ConfigurationError{Key: "ONEMAP_EMAIL"}
	}
	if c.Password == "" {
		return &domain.ConfigurationError{Key: "ONEMAP_EMAIL_PASSWORD"}
	}
	return nil
}

// Config holds all service settings, populated from defaults, an optional
// config file and environment variables (highest precedence).
type Config struct {
	// data.gov.sg export and metadata APIs.
	DatasetID              string
	TownColumn             string
	DataGovBaseURL         string
	DataGovMetadataBaseURL string
	PollMaxAttempts        int
	PollInterval           time.Duration
	HTTPTimeout            time.Duration

	// OneMap geocoding.
	OneMapBaseURL        string
	OneMap               Credentials
	GeocodeRatePerMinute int
	GeocodeCacheSize     int

	OutputPath string

	HTTPAddr        string
	MetricsAddr     string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Optional Kafka fan-out; disabled when KafkaBrokers is empty.
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaBatchSize int
}

// KafkaEnabled reports whether enriched records are also published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

var defaults = map[string]any{
	"dataset_id":                "d_17f5382f26140b1fdae0ba2ef6239d2f",
	"town_column":               domain.ColumnTown,
	"datagov_base_url":          "https://api-open.data.gov.sg/v1/public/api",
	"datagov_metadata_base_url": "https://api-production.data.gov.sg/v2/public/api",
	"poll_max_attempts":         5,
	"poll_interval":             "3s",
	"http_timeout":              "30s",
	"onemap_base_url":           "https://www.onemap.gov.sg",
	"onemap_email":              "",
	"onemap_email_password":     "",
	"geocode_rate_per_minute":   250,
	"geocode_cache_size":        1000,
	"output_path":               "data/hdb-property-info.csv",
	"http_addr":                 ":8080",
	"metrics_addr":              "",
	"log_level":                 "info",
	"log_format":                "json",
	"shutdown_timeout":          "10s",
	"kafka_brokers":             "",
	"kafka_topic":               "hdb-property-info",
	"kafka_batch_size":          100,
}

// Load reads configuration, applying defaults where unset. path names an
// explicit config file (yaml, json, .env, ...); when empty, a file named
// "config" in the working directory is used if present.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if strings.HasSuffix(path, ".env") {
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	pollInterval, err := parsePositiveDuration(v, "poll_interval")
	if err != nil {
		return nil, err
	}
	httpTimeout, err := parsePositiveDuration(v, "http_timeout")
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parsePositiveDuration(v, "shutdown_timeout")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatasetID:              v.GetString("dataset_id"),
		TownColumn:             v.GetString("town_column"),
		DataGovBaseURL:         strings.TrimRight(v.GetString("datagov_base_url"), "/"),
		DataGovMetadataBaseURL: strings.TrimRight(v.GetString("datagov_metadata_base_url"), "/"),
		PollMaxAttempts:        v.GetInt("poll_max_attempts"),
		PollInterval:           pollInterval,
		HTTPTimeout:            httpTimeout,

		OneMapBaseURL: strings.TrimRight(v.GetString("onemap_base_url"), "/"),
		OneMap: Credentials{
			Email:    v.GetString("onemap_email"),
			Password: v.GetString("onemap_email_password"),
		},
		GeocodeRatePerMinute: v.GetInt("geocode_rate_per_minute"),
		GeocodeCacheSize:     v.GetInt("geocode_cache_size"),

		OutputPath: v.GetString("output_path"),

		HTTPAddr:        v.GetString("http_addr"),
		MetricsAddr:     v.GetString("metrics_addr"),
		LogLevel:        v.GetString("log_level"),
		LogFormat:       v.GetString("log_format"),
		ShutdownTimeout: shutdownTimeout,

		KafkaBrokers:   parseBrokers(v.GetString("kafka_brokers")),
		KafkaTopic:     v.GetString("kafka_topic"),
		KafkaBatchSize: v.GetInt("kafka_batch_size"),
	}

	if cfg.DatasetID == "" {
		return nil, errors.New("DATASET_ID is required")
	}
	if cfg.TownColumn == "" {
		return nil, errors.New("TOWN_COLUMN is required")
	}
	if cfg.PollMaxAttempts < 1 {
		return nil, errors.New("POLL_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.GeocodeRatePerMinute < 0 {
		return nil, errors.New("GEOCODE_RATE_PER_MINUTE must be non-negative")
	}
	if cfg.GeocodeCacheSize < 0 {
		return nil, errors.New("GEOCODE_CACHE_SIZE must be non-negative")
	}
	if cfg.OutputPath == "" {
		return nil, errors.New("OUTPUT_PATH is required")
	}
	if cfg.KafkaEnabled() && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_BROKERS is set but KAFKA_TOPIC is empty")
	}
	if cfg.KafkaBatchSize < 1 {
		return nil, errors.New("KAFKA_BATCH_SIZE must be at least 1")
	}

	return cfg, nil
}

func parsePositiveDuration(v *viper.Viper, key string) (time.Duration, error) {
	name := strings.ToUpper(key)
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return d, nil
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
