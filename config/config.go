package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"fusion-api"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`
	ShutdownTimeoutSeconds        int      `env:"SHUTDOWN_TIMEOUT_SECONDS" env-default:"20"`

	// PostgreSQL
	DatabaseHost                string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                int           `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName            string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword            string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                string        `env:"DB_NAME" env-default:"fusion"`
	DatabaseSSLMode             string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns        int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns        int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	DatabaseMigrationFolderPath string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg/migrations"`
	DatabaseMigrationVersion    uint          `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce      int           `env:"DB_MIGRATION_FORCE" env-default:"0"`

	// Redis (pass locks and dead letters)
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" env-default:"0"`
	LockKeyPrefix string `env:"LOCK_KEY_PREFIX" env-default:"fusion:lock:"`
	DLQStreamName string `env:"DLQ_STREAM_NAME" env-default:"fusion:dlq"`

	// Graph projection (Neo4j / Memgraph)
	GraphEnabled    bool   `env:"GRAPH_ENABLED" env-default:"false"`
	GraphDBHost     string `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`
	GraphDBName     string `env:"GRAPH_DB_NAME" env-default:""`

	// Kafka consumers
	KafkaBrokers              []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaConsumerEnabled      bool     `env:"KAFKA_CONSUMER_ENABLED" env-default:"true"`
	KafkaReviewDecisionsTopic string   `env:"KAFKA_REVIEW_DECISIONS_TOPIC" env-default:"review-decisions"`
	KafkaSourceAccountsTopic  string   `env:"KAFKA_SOURCE_ACCOUNTS_TOPIC" env-default:"source-accounts"`
	KafkaConsumerGroup        string   `env:"KAFKA_CONSUMER_GROUP" env-default:"fusion-consumer"`

	// Kafka producer
	KafkaFusionAccountsTopic string `env:"KAFKA_FUSION_ACCOUNTS_TOPIC" env-default:"fusion-accounts"`
	KafkaReviewRequestsTopic string `env:"KAFKA_REVIEW_REQUESTS_TOPIC" env-default:"review-requests"`
	KafkaErrorsTopic         string `env:"KAFKA_ERRORS_TOPIC" env-default:"fusion-errors"`
	KafkaBatchSize           int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout        int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks        int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression         string `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Scheduling
	SchedulerEnabled    bool `env:"SCHEDULER_ENABLED" env-default:"true"`
	PollIntervalSeconds int  `env:"POLL_INTERVAL_SECONDS" env-default:"60"`
	LockTTLSeconds      int  `env:"LOCK_TTL_SECONDS" env-default:"60"`

	// Tracing
	TraceExporter    string  `env:"TRACE_EXPORTER" env-default:"none"`
	OTLPEndpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol     string  `env:"OTEL_EXPORTER_OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
	TraceSampleRatio float64 `env:"TRACE_SAMPLE_RATIO" env-default:"1"`
}

// Load reads an optional .env file into the process environment, then the environment into a Config
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.LockTTLSeconds < 3 {
		return fmt.Errorf("LOCK_TTL_SECONDS must be at least 3, got %d", c.LockTTLSeconds)
	}
	if c.PollIntervalSeconds < 1 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be positive, got %d", c.PollIntervalSeconds)
	}
	if len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	return nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}
