// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	API      APIConfig
	Postgres PostgresConfig
	Queue    QueueConfig
	Catalog  CatalogConfig
	Results  ResultsConfig
	Broker   BrokerConfig
	Executor ExecutorConfig
	Logging  LoggingConfig
}

// APIConfig holds HTTP gateway configuration
type APIConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for probes)
	HealthPort string
}

// PostgresConfig holds the request-store connection settings. All five
// variables are mandatory; startup fails without them.
type PostgresConfig struct {
	Host     string
	Port     string
	DB       string
	User     string
	Password string
	MaxConns int
	MinConns int
	Timeout  time.Duration
}

// DSN renders the lib/pq connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		c.Host, c.Port, c.DB, c.User, c.Password)
}

// QueueConfig holds the worker-queue settings.
type QueueConfig struct {
	// Broker is the queue host, e.g. "localhost:6379".
	Broker string
	// Separator splits the fields of a queue message. Default "\".
	Separator string
	// MaxStreamLen caps the stream length; publishes trim approximately to
	// this many entries.
	MaxStreamLen int64
}

// CatalogConfig locates the catalog collaborator's data.
type CatalogConfig struct {
	CatalogPath string
	CachePath   string
}

// ResultsConfig controls where artifacts are written and how download URIs
// are produced.
type ResultsConfig struct {
	// StorePath is the output directory root; artifacts live under
	// StorePath/<request_id>/.
	StorePath string

	// Optional S3 upload of finished artifacts.
	S3Bucket   string
	S3Region   string
	S3Endpoint string
}

// BrokerConfig holds the admission-broker settings.
type BrokerConfig struct {
	// RunningRequestLimit caps each user's QUEUED+RUNNING requests.
	RunningRequestLimit int
	// CheckEvery is the tick period of the admission loop.
	CheckEvery time.Duration
}

// ExecutorConfig holds the worker-side settings.
type ExecutorConfig struct {
	SchedulerPort      int
	DashboardPort      int
	NWorkers           int
	ResultCheckRetries int
	SleepInterval      time.Duration
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string // debug|info|warn|error
	Format string // json|text
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		API: APIConfig{
			Host:            getEnv("API_HOST", "0.0.0.0"),
			Port:            getEnv("API_PORT", "8080"),
			ReadTimeout:     getEnvDuration("API_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("API_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvDuration("API_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("API_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("API_HEALTH_PORT", "9090"),
		},
		Postgres: PostgresConfig{
			Host:     os.Getenv("POSTGRES_HOST"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			DB:       os.Getenv("POSTGRES_DB"),
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			MaxConns: getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns: getEnvInt("POSTGRES_MIN_CONNS", 2),
			Timeout:  getEnvDuration("POSTGRES_TIMEOUT", 10*time.Second),
		},
		Queue: QueueConfig{
			Broker:       getEnv("BROKER", "localhost:6379"),
			Separator:    getEnv("MESSAGE_SEPARATOR", `\`),
			MaxStreamLen: int64(getEnvInt("QUEUE_MAX_STREAM_LEN", 8192)),
		},
		Catalog: CatalogConfig{
			CatalogPath: os.Getenv("CATALOG_PATH"),
			CachePath:   os.Getenv("CACHE_PATH"),
		},
		Results: ResultsConfig{
			StorePath:  getEnv("STORE_PATH", "/var/lib/geodds/results"),
			S3Bucket:   os.Getenv("RESULTS_S3_BUCKET"),
			S3Region:   os.Getenv("RESULTS_S3_REGION"),
			S3Endpoint: os.Getenv("RESULTS_S3_ENDPOINT"),
		},
		Broker: BrokerConfig{
			RunningRequestLimit: getEnvInt("RUNNING_REQUEST_LIMIT", 3),
			CheckEvery:          time.Duration(getEnvInt("REQUEST_STATUS_CHECK_EVERY", 10)) * time.Second,
		},
		Executor: ExecutorConfig{
			SchedulerPort:      getEnvInt("DASK_SCHEDULER_PORT", 8786),
			DashboardPort:      getEnvInt("DASK_DASHBOARD_PORT", 8787),
			NWorkers:           getEnvInt("DASK_N_WORKERS", 1),
			ResultCheckRetries: getEnvInt("RESULT_CHECK_RETRIES", 30),
			SleepInterval:      time.Duration(getEnvInt("SLEEP_SEC", 30)) * time.Second,
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOGGING_LEVEL", "info"),
			Format: getEnv("LOGGING_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that mandatory settings are present.
func (c *Config) Validate() error {
	required := map[string]string{
		"POSTGRES_HOST":     c.Postgres.Host,
		"POSTGRES_PORT":     c.Postgres.Port,
		"POSTGRES_DB":       c.Postgres.DB,
		"POSTGRES_USER":     c.Postgres.User,
		"POSTGRES_PASSWORD": c.Postgres.Password,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("missing required environment variable %s", name)
		}
	}
	if c.Broker.RunningRequestLimit < 1 {
		return fmt.Errorf("RUNNING_REQUEST_LIMIT must be at least 1")
	}
	if c.Executor.NWorkers < 1 {
		return fmt.Errorf("DASK_N_WORKERS must be at least 1")
	}
	if len(c.Queue.Separator) != 1 {
		return fmt.Errorf("MESSAGE_SEPARATOR must be a single character")
	}
	return nil
}

// Helper functions for environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
