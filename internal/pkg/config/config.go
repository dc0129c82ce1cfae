package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Supported storage sink backends.
const (
	SinkPostgres = "postgres"
	SinkRedis    = "redis"
	SinkKafka    = "kafka"
	SinkSQLite   = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Listener
	ListenAddr    string        `env:"LISTEN_ADDR" envDefault:":5044"`
	HTTPAddr      string        `env:"HTTP_ADDR" envDefault:":8080"`
	AdminAddr     string        `env:"ADMIN_ADDR" envDefault:":9091"`
	MaxFrameSize  int64         `env:"MAX_FRAME_SIZE_BYTES" envDefault:"1048576"` // 1MB
	MaxWindowSize int           `env:"MAX_WINDOW_SIZE" envDefault:"4096"`
	MaxBatchBytes int64         `env:"MAX_BATCH_SIZE_BYTES" envDefault:"10485760"` // 10MB
	IdleTimeout   time.Duration `env:"CONN_IDLE_TIMEOUT" envDefault:"5m"`
	HTTPAPIKeys   []string      `env:"HTTP_API_KEYS" envSeparator:","`

	// Rules. Env values, when set, take precedence over the rules file.
	RulesFile          string            `env:"RULES_FILE"`
	SourceTimezone     string            `env:"SOURCE_TIMEZONE"`
	TimestampLayout    string            `env:"TIMESTAMP_LAYOUT"`
	TimestampField     string            `env:"TIMESTAMP_FIELD"`
	StaticFields       map[string]string `env:"STATIC_FIELDS" envKeyValSeparator:":"`
	PIIRedactionFields []string          `env:"PII_REDACTION_FIELDS" envSeparator:","`

	// Stages
	ParseWorkers     int           `env:"PARSE_WORKERS" envDefault:"4"`
	ParseQueueSize   int           `env:"PARSE_QUEUE_SIZE" envDefault:"1024"`
	EnrichWorkers    int           `env:"ENRICH_WORKERS" envDefault:"2"`
	EnrichQueueSize  int           `env:"ENRICH_QUEUE_SIZE" envDefault:"1024"`
	RouteWorkers     int           `env:"ROUTE_WORKERS" envDefault:"2"`
	RouteQueueSize   int           `env:"ROUTE_QUEUE_SIZE" envDefault:"1024"`
	DeliverWorkers   int           `env:"DELIVER_WORKERS" envDefault:"8"`
	DeliverQueueSize int           `env:"DELIVER_QUEUE_SIZE" envDefault:"2048"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Storage sink
	SinkBackend       string        `env:"SINK_BACKEND" envDefault:"postgres"`
	PostgresURL       string        `env:"POSTGRES_URL"`
	RedisAddr         string        `env:"REDIS_ADDR"`
	RedisStreamMaxLen int64         `env:"REDIS_STREAM_MAX_LEN" envDefault:"0"`
	KafkaBrokers      []string      `env:"KAFKA_BROKERS" envSeparator:","`
	SQLitePath        string        `env:"SQLITE_PATH" envDefault:"logflow.db"`
	SinkMaxAttempts   int           `env:"SINK_MAX_ATTEMPTS" envDefault:"3"`
	SinkRetryInitial  time.Duration `env:"SINK_RETRY_INITIAL" envDefault:"200ms"`
	SinkRetryMax      time.Duration `env:"SINK_RETRY_MAX" envDefault:"5s"`

	// Debug sink
	DebugConsole     bool   `env:"DEBUG_CONSOLE" envDefault:"true"`
	DebugBufferSize  int    `env:"DEBUG_SINK_BUFFER" envDefault:"4096"`
	DebugFileDir     string `env:"DEBUG_FILE_DIR"`
	DebugSegmentSize int64  `env:"DEBUG_SEGMENT_SIZE_BYTES" envDefault:"104857600"` // 100MB
	DebugMaxDiskSize int64  `env:"DEBUG_MAX_DISK_BYTES" envDefault:"1073741824"`    // 1GB
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports configuration that would leave the pipeline unable to run.
func (c *Config) Validate() error {
	var errs []error

	for name, v := range map[string]int{
		"PARSE_WORKERS":      c.ParseWorkers,
		"PARSE_QUEUE_SIZE":   c.ParseQueueSize,
		"ENRICH_WORKERS":     c.EnrichWorkers,
		"ENRICH_QUEUE_SIZE":  c.EnrichQueueSize,
		"ROUTE_WORKERS":      c.RouteWorkers,
		"ROUTE_QUEUE_SIZE":   c.RouteQueueSize,
		"DELIVER_WORKERS":    c.DeliverWorkers,
		"DELIVER_QUEUE_SIZE": c.DeliverQueueSize,
		"SINK_MAX_ATTEMPTS":  c.SinkMaxAttempts,
		"MAX_WINDOW_SIZE":    c.MaxWindowSize,
		"DEBUG_SINK_BUFFER":  c.DebugBufferSize,
	} {
		if v < 1 {
			errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", name, v))
		}
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be positive"))
	}
	if c.SinkRetryInitial <= 0 || c.SinkRetryMax < c.SinkRetryInitial {
		errs = append(errs, errors.New("SINK_RETRY_INITIAL must be positive and not exceed SINK_RETRY_MAX"))
	}
	if c.MaxFrameSize <= 0 {
		errs = append(errs, errors.New("MAX_FRAME_SIZE_BYTES must be positive"))
	}

	switch strings.ToLower(c.SinkBackend) {
	case SinkPostgres:
		if c.PostgresURL == "" {
			errs = append(errs, errors.New("POSTGRES_URL is required for the postgres sink"))
		}
	case SinkRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis sink"))
		}
	case SinkKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka sink"))
		}
	case SinkSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SINK_BACKEND %q", c.SinkBackend))
	}

	return errors.Join(errs...)
}
