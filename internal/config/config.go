// Package config centralizes environment-variable configuration loading
// for the Gap Intelligence API.
//
// The teacher's cmd/main.go reads os.Getenv directly with inline
// getEnv/getEnvInt helpers; this package keeps that same shape but
// collects every setting into one validated struct so main.go has a
// single Load() call and a single point of failure for missing
// required configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is every environment-derived setting the server needs to boot.
type Config struct {
	Port string `validate:"required"`

	DB         DBConfig
	Redis      RedisConfig
	Session    SessionConfig
	AI         AIConfig
	Email      EmailConfig
	Upload     UploadConfig
	Scheduler  SchedulerConfig
	NATS       NATSConfig
	LogLevel   string
	LogPretty  bool
}

// DBConfig is the Postgres connection, required in every environment.
type DBConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required"`
	User     string `validate:"required"`
	Password string `validate:"required"`
	DBName   string `validate:"required"`
	SSLMode  string `validate:"required"`
}

// RedisConfig configures the optional session/cache/rate-limit backend.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// SessionConfig configures signed session cookies.
type SessionConfig struct {
	Secret string `validate:"required,min=32"`
	TTL    time.Duration

	// IdleTimeout and MaxConcurrent bound the in-memory session
	// tracker: how long a session may sit idle before it is forced to
	// re-authenticate, and how many sessions a single user may hold
	// open at once.
	IdleTimeout   time.Duration
	MaxConcurrent int
}

// AIConfig configures the enrichment worker pool and its optional
// external provider. A missing ProviderAPIKey degrades scoring to the
// local heuristic comparator rather than failing startup.
type AIConfig struct {
	ProviderAPIKey     string
	ProviderModel      string
	Concurrency        int
	SimilarityThreshold int // 0-100, default 60
	TopKSops           int // default 5
}

// EmailConfig configures outbound notification email. A missing
// RelayAPIKey degrades the mailer to a no-op logger.
type EmailConfig struct {
	RelayAPIKey string
	SMTPHost    string
	SMTPPort    string
	FromAddress string
}

// UploadConfig bounds attachment storage and zip export (§6).
type UploadConfig struct {
	Dir             string
	MaxFileSizeMB   int64
	MaxFilesPerGap  int
	ZipMaxSizeMB    int64
	ZipMaxFileCount int
}

// SchedulerConfig configures the TAT deadline sweeper.
type SchedulerConfig struct {
	TickInterval time.Duration
	WarnWindow   time.Duration
}

// NATSConfig configures the optional durable event-bus mirror.
type NATSConfig struct {
	Enabled bool
	URL     string
}

// Load reads configuration from the environment, applying defaults for
// optional settings and failing fast on missing required ones.
func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnv("API_PORT", "8000"),
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   getEnv("DB_NAME", "gapintel"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("CACHE_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Session: SessionConfig{
			Secret:        os.Getenv("SESSION_SECRET"),
			TTL:           time.Duration(getEnvInt("SESSION_TTL_MINUTES", 480)) * time.Minute,
			IdleTimeout:   time.Duration(getEnvInt("SESSION_IDLE_TIMEOUT_MINUTES", 30)) * time.Minute,
			MaxConcurrent: getEnvInt("SESSION_MAX_CONCURRENT", 5),
		},
		AI: AIConfig{
			ProviderAPIKey:      os.Getenv("AI_PROVIDER_API_KEY"),
			ProviderModel:       getEnv("AI_PROVIDER_MODEL", "heuristic"),
			Concurrency:         getEnvInt("AI_ENRICHER_CONCURRENCY", 4),
			SimilarityThreshold: getEnvInt("AI_SIMILARITY_THRESHOLD", 60),
			TopKSops:            getEnvInt("AI_TOP_K_SOPS", 5),
		},
		Email: EmailConfig{
			RelayAPIKey: os.Getenv("EMAIL_RELAY_API_KEY"),
			SMTPHost:    getEnv("SMTP_HOST", "localhost"),
			SMTPPort:    getEnv("SMTP_PORT", "25"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "noreply@gapintel.local"),
		},
		Upload: UploadConfig{
			Dir:             getEnv("UPLOAD_DIR", "./uploads"),
			MaxFileSizeMB:   int64(getEnvInt("UPLOAD_MAX_FILE_SIZE_MB", 10)),
			MaxFilesPerGap:  getEnvInt("UPLOAD_MAX_FILES", 10),
			ZipMaxSizeMB:    int64(getEnvInt("ZIP_MAX_SIZE_MB", 200)),
			ZipMaxFileCount: getEnvInt("ZIP_MAX_FILE_COUNT", 100),
		},
		Scheduler: SchedulerConfig{
			TickInterval: time.Duration(getEnvInt("SCHEDULER_TICK_SECONDS", 60)) * time.Second,
			WarnWindow:   time.Duration(getEnvInt("TAT_WARN_WINDOW_HOURS", 24)) * time.Hour,
		},
		NATS: NATSConfig{
			Enabled: getEnvBool("NATS_ENABLED", false),
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
		},
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvBool("LOG_PRETTY", false),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	v := validator.New()
	if err := v.Struct(c.DB); err != nil {
		return fmt.Errorf("database configuration: %w", err)
	}
	if err := v.Struct(c.Session); err != nil {
		return fmt.Errorf("session configuration: %w", err)
	}
	if c.Port == "" {
		return fmt.Errorf("API_PORT must not be empty")
	}
	return nil
}

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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}
