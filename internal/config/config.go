package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port           string `envconfig:"PORT" default:"8080"`
	Debug          bool   `envconfig:"DEBUG" default:"false"`
	MaxUploadBytes int64  `envconfig:"MAX_UPLOAD_BYTES" default:"26214400"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`

	// MigrationsDir holds the golang-migrate *.up.sql files.
	MigrationsDir string `envconfig:"MIGRATIONS_DIR" default:"migrations"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"coursetutor-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-ada-002"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	ChatModel           string `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`

	RedisURL  string        `envconfig:"REDIS_URL"`
	MemoryTTL time.Duration `envconfig:"MEMORY_TTL" default:"24h"`

	IngestWorkers     int           `envconfig:"INGEST_WORKERS" default:"4"`
	IngestQueueSize   int           `envconfig:"INGEST_QUEUE_SIZE" default:"64"`
	IngestStaleAfter  time.Duration `envconfig:"INGEST_STALE_AFTER" default:"30m"`
	IngestSweepPeriod time.Duration `envconfig:"INGEST_SWEEP_PERIOD" default:"1m"`

	StoreRegistrySize int     `envconfig:"STORE_REGISTRY_SIZE" default:"256"`
	GateThreshold     float64 `envconfig:"GATE_THRESHOLD" default:"0.2"`
	HomeworkThreshold float64 `envconfig:"HOMEWORK_THRESHOLD" default:"0.5"`
	MemoryWindow      int     `envconfig:"MEMORY_WINDOW" default:"5"`
	RetrievalK        int     `envconfig:"RETRIEVAL_K" default:"3"`

	SentryDSN         string `envconfig:"SENTRY_DSN"`
	SentryEnvironment string `envconfig:"SENTRY_ENVIRONMENT" default:"development"`

	// Bootstrap: create an initial instructor account on startup
	InitInstructor string `envconfig:"INIT_INSTRUCTOR"`
	InitPassword   string `envconfig:"INIT_PASSWORD"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("TUTOR", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.IngestWorkers < 1 {
		return fmt.Errorf("INGEST_WORKERS must be at least 1, got %d", c.IngestWorkers)
	}
	if c.IngestQueueSize < 1 {
		return fmt.Errorf("INGEST_QUEUE_SIZE must be at least 1, got %d", c.IngestQueueSize)
	}
	if c.GateThreshold < 0 || c.GateThreshold > 1 {
		return fmt.Errorf("GATE_THRESHOLD must be within [0,1], got %v", c.GateThreshold)
	}
	if c.HomeworkThreshold < 0 || c.HomeworkThreshold > 1 {
		return fmt.Errorf("HOMEWORK_THRESHOLD must be within [0,1], got %v", c.HomeworkThreshold)
	}
	if c.MemoryWindow < 1 {
		return fmt.Errorf("MEMORY_WINDOW must be at least 1, got %d", c.MemoryWindow)
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}
