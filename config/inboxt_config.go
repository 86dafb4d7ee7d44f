package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string
	AppURL      string

	// Storage
	DatabaseURL string
	DBMaxConns  int
	RedisURL    string
	MongoDBURL  string
	MongoDBName string

	// Neo4j
	Neo4jURL      string
	Neo4jUsername string
	Neo4jPassword string

	// Auth
	JWTSecret      string
	ServiceKey     string
	EncryptionKey  string
	AllowedOrigins []string

	// LLM gateway (OpenRouter compatible)
	LLMAPIKey      string
	LLMBaseURL     string
	LLMModel       string
	ChatModel      string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeoutSec  int

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string

	// Digest
	DigestConcurrency      int
	DigestScheduleInterval time.Duration
	DigestWindowMin        int
	RunReportRetentionDays int

	// Worker
	WorkerID         string
	WorkerMax        int
	WorkerJobTimeout time.Duration
	WorkerMaxRetries int

	// Consumer (Redis Stream)
	ConsumerBatchSize       int
	ConsumerBlockMS         int
	ConsumerPendingCheckSec int

	// Cache / rate limiting
	CacheTTLMin     int
	RateLimitPerMin int

	// Metrics
	MetricsEnabled bool
	MetricsAddr    string

	SchedulerEnabled bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		AppURL:      getEnv("APP_URL", "https://inboxt.app"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),
		RedisURL:    getEnv("REDIS_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "inboxt"),

		Neo4jURL:      getEnv("NEO4J_URL", ""),
		Neo4jUsername: getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", ""),

		JWTSecret:      getEnv("SUPABASE_JWT_SECRET", ""),
		ServiceKey:     getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		EncryptionKey:  getEnv("ENCRYPTION_KEY", getEnv("SUPABASE_JWT_SECRET", "")),
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),

		LLMAPIKey:      getEnv("OPENROUTER_API_KEY", ""),
		LLMBaseURL:     getEnv("LLM_BASE_URL", "https://openrouter.ai/api/v1"),
		LLMModel:       getEnv("LLM_MODEL", "openai/gpt-4o-mini"),
		ChatModel:      getEnv("CHAT_MODEL", getEnv("LLM_MODEL", "openai/gpt-4o-mini")),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2000),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.1),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", 60),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),

		DigestConcurrency:      getEnvInt("DIGEST_CONCURRENCY", 3),
		DigestScheduleInterval: getEnvDuration("DIGEST_SCHEDULE_INTERVAL", 5*time.Minute),
		DigestWindowMin:        getEnvInt("DIGEST_WINDOW_MIN", 5),
		RunReportRetentionDays: getEnvInt("RUN_REPORT_RETENTION_DAYS", 30),

		WorkerID:         getEnv("WORKER_ID", generateWorkerID()),
		WorkerMax:        getEnvInt("WORKER_MAX", 8),
		WorkerJobTimeout: time.Duration(getEnvInt("WORKER_JOB_TIMEOUT_SEC", 600)) * time.Second,
		WorkerMaxRetries: getEnvInt("WORKER_MAX_RETRIES", 2),

		ConsumerBatchSize:       getEnvInt("CONSUMER_BATCH_SIZE", 10),
		ConsumerBlockMS:         getEnvInt("CONSUMER_BLOCK_MS", 5000),
		ConsumerPendingCheckSec: getEnvInt("CONSUMER_PENDING_CHECK_SEC", 60),

		CacheTTLMin:     getEnvInt("CACHE_TTL_MIN", 10),
		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MIN", 20),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),

		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
	}
	return cfg, nil
}

// Validate checks the settings every mode depends on.
func (c *Config) Validate() error {
	var missing []string
	for key, val := range map[string]string{
		"DATABASE_URL":         c.DatabaseURL,
		"OPENROUTER_API_KEY":   c.LLMAPIKey,
		"GOOGLE_CLIENT_ID":     c.GoogleClientID,
		"GOOGLE_CLIENT_SECRET": c.GoogleClientSecret,
	} {
		if val == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required environment: %s", strings.Join(missing, ", "))
	}
	if c.DigestConcurrency < 1 {
		return errors.New("DIGEST_CONCURRENCY must be at least 1")
	}
	return nil
}

// ValidateAPI additionally requires the JWT secret used to verify callers.
func (c *Config) ValidateAPI() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.JWTSecret == "" {
		return errors.New("missing required environment: SUPABASE_JWT_SECRET")
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
