// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Data, Scoring, Validation, Query, Postgres, Kafka, Redis,
// Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/gpoulter/mscanner-sub000/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Data       DataConfig       `yaml:"data"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Validation ValidationConfig `yaml:"validation"`
	Query      QueryConfig      `yaml:"query"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// DataConfig holds paths of the persistent corpus artifacts.
type DataConfig struct {
	Dir         string `yaml:"dir"`
	CatalogFile string `yaml:"catalogFile"`
	StreamFile  string `yaml:"streamFile"`
}

// CatalogPath returns the absolute path of the feature catalog file.
func (d DataConfig) CatalogPath() string {
	return d.Dir + "/" + d.CatalogFile
}

// StreamPath returns the absolute path of the feature stream file.
func (d DataConfig) StreamPath() string {
	return d.Dir + "/" + d.StreamFile
}

// ScoringConfig selects the score calculation variant and its smoothing.
type ScoringConfig struct {
	// Variant is one of "bayesian", "withabsence", "mlefloor".
	Variant string `yaml:"variant"`
	// Pseudocount is a constant additive prior for every feature. When nil
	// the per-feature corpus background frequency is used instead.
	Pseudocount *float64 `yaml:"pseudocount"`
	// ExcludeTypes lists feature types whose scores are forced to zero.
	ExcludeTypes []string `yaml:"excludeTypes"`
	// PositivesOnly zeroes features absent from the positive corpus.
	PositivesOnly bool `yaml:"positivesOnly"`
	// MinCount zeroes features with fewer total occurrences.
	MinCount int `yaml:"minCount"`
}

// ValidationConfig controls cross-validation runs.
type ValidationConfig struct {
	// NFolds is the number of folds. Zero selects leave-one-out.
	NFolds int `yaml:"nfolds"`
	// Alpha weights precision against recall in the tuned F measure.
	Alpha float64 `yaml:"alpha"`
	// Seed fixes the corpus shuffle for reproducible runs.
	Seed int64 `yaml:"seed"`
	// Shuffle disables randomisation entirely when false (testing only).
	Shuffle bool `yaml:"shuffle"`
	// Negatives is the number of corpus documents sampled as the negative
	// class when no explicit negative set is given.
	Negatives int `yaml:"negatives"`
}

// QueryConfig controls corpus ranking queries.
type QueryConfig struct {
	Limit     int     `yaml:"limit"`
	Threshold float32 `yaml:"threshold"`
	// MinDate and MaxDate bound record dates as YYYYMMDD integers.
	// Zero MaxDate means unbounded.
	MinDate uint32 `yaml:"minDate"`
	MaxDate uint32 `yaml:"maxDate"`
}

// PostgresConfig holds PostgreSQL connection parameters for the run-history
// store.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings for document ingestion.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest string `yaml:"documentIngest"`
	CorpusUpdate   string `yaml:"corpusUpdate"`
}

// RedisConfig holds Redis connection and result-cache parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads the YAML file at path, applies environment overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects parameter combinations the engine would fail on later.
// All configuration errors are detected here, before any work begins.
func (c *Config) Validate() error {
	switch c.Scoring.Variant {
	case "bayesian", "withabsence", "mlefloor":
	default:
		return apperrors.Configf("unknown scoring variant %q", c.Scoring.Variant)
	}
	if c.Scoring.Pseudocount != nil && *c.Scoring.Pseudocount < 0 {
		return apperrors.Configf("pseudocount must be non-negative, got %g", *c.Scoring.Pseudocount)
	}
	if c.Validation.NFolds < 0 {
		return apperrors.Configf("nfolds must be >= 0, got %d", c.Validation.NFolds)
	}
	if c.Validation.Alpha <= 0 || c.Validation.Alpha >= 1 {
		return apperrors.Configf("alpha must be in (0,1), got %g", c.Validation.Alpha)
	}
	if c.Query.Limit <= 0 {
		return apperrors.Configf("query limit must be positive, got %d", c.Query.Limit)
	}
	if c.Query.MaxDate != 0 && c.Query.MinDate > c.Query.MaxDate {
		return apperrors.Configf("minDate %d exceeds maxDate %d", c.Query.MinDate, c.Query.MaxDate)
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local runs.
func defaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Dir:         "data",
			CatalogFile: "features.txt",
			StreamFile:  "features.stream",
		},
		Scoring: ScoringConfig{
			Variant: "bayesian",
		},
		Validation: ValidationConfig{
			NFolds:    10,
			Alpha:     0.5,
			Seed:      124,
			Shuffle:   true,
			Negatives: 50000,
		},
		Query: QueryConfig{
			Limit:     1000,
			Threshold: 0,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "medrank",
			User:            "medrank",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "medrank-group",
			Topics: KafkaTopics{
				DocumentIngest: "document-ingest",
				CorpusUpdate:   "corpus-update",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads MR_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MR_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("MR_SCORING_VARIANT"); v != "" {
		cfg.Scoring.Variant = v
	}
	if v := os.Getenv("MR_VALIDATION_NFOLDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Validation.NFolds = n
		}
	}
	if v := os.Getenv("MR_QUERY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Query.Limit = n
		}
	}
	if v := os.Getenv("MR_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("MR_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("MR_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("MR_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("MR_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("MR_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MR_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
