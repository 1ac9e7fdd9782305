package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Marcusng88/FraudGuard/shared/messaging"
	"github.com/Marcusng88/FraudGuard/shared/postgres"
	"github.com/Marcusng88/FraudGuard/shared/redis"
)

// Config is the full set of tunables for the fraudguard service,
// following the per-service Config shape used throughout the rest of
// the pack (wallet-service, catalog-service, ...) rather than the
// global GlobalConfig used by the gateway.
type Config struct {
	ServiceName string
	Environment string

	API      APIConfig
	Postgres postgres.PostgresConfig
	Redis    redis.RedisConfig
	RabbitMQ messaging.RabbitMQConfig

	Fraud      FraudConfig
	Providers  ProvidersConfig
	Sentry     SentryConfig
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host            string
	Port            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// FraudConfig holds the thresholds and limits named in spec §4.3/§4.5.
type FraudConfig struct {
	ConfidenceThreshold  float64
	SimilarityThreshold  float64
	DuplicateThreshold   float64
	EmbeddingDimension   int
	SimilarityQueryLimit int
	ProviderConcurrency  int
	RetryMaxAttempts     int
	RetryBaseDelay       time.Duration
	RetryBackoffFactor   float64
}

// ProvidersConfig holds credentials/endpoints for the vision, embedding
// and text evidence providers (spec §4.1/§4.2). Any of these may be
// blank, in which case the corresponding provider reports
// Available() == false and the analyzer falls back per spec §4.3.
type ProvidersConfig struct {
	VisionAPIKey    string
	VisionModel     string
	VisionBaseURL   string
	EmbeddingAPIKey string
	EmbeddingModel  string
	EmbeddingBaseURL string
	TextAPIKey      string
	TextModel       string
	TextBaseURL     string
	HTTPTimeout     time.Duration
}

// SentryConfig wires shared/monitoring's Sentry initializer.
type SentryConfig struct {
	DSN         string
	Environment string
}

// Load reads configuration from the environment (and an optional .env
// file, if present) the way the teacher's wallet-service does.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: getEnvString("SERVICE_NAME", "fraudguard-service"),
		Environment: getEnvString("ENVIRONMENT", "development"),

		API: APIConfig{
			Host:            getEnvString("API_HOST", "0.0.0.0"),
			Port:            getEnvString("API_PORT", "8090"),
			RequestTimeout:  getEnvDuration("API_REQUEST_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("API_SHUTDOWN_TIMEOUT", 15*time.Second),
		},

		Postgres: postgres.PostgresConfig{
			PostgresHost:     getEnvString("POSTGRES_HOST", "localhost"),
			PostgresPort:     getEnvInt("POSTGRES_PORT", 5432),
			PostgresUser:     getEnvString("POSTGRES_USER", "postgres"),
			PostgresPassword: getEnvString("POSTGRES_PASSWORD", "password"),
			PostgresDatabase: getEnvString("POSTGRES_DATABASE", "fraudguard"),
			PostgresSSLMode:  getEnvString("POSTGRES_SSL_MODE", "disable"),
		},

		Redis: redis.RedisConfig{
			RedisHost:     getEnvString("REDIS_HOST", "localhost"),
			RedisPort:     getEnvInt("REDIS_PORT", 6379),
			RedisPassword: getEnvString("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
		},

		RabbitMQ: messaging.RabbitMQConfig{
			RabbitMQHost:     getEnvString("RABBITMQ_HOST", "localhost"),
			RabbitMQPort:     getEnvInt("RABBITMQ_PORT", 5672),
			RabbitMQUser:     getEnvString("RABBITMQ_USER", "guest"),
			RabbitMQPassword: getEnvString("RABBITMQ_PASSWORD", "guest"),
		},

		Fraud: FraudConfig{
			ConfidenceThreshold:  getEnvFloat("FRAUD_CONFIDENCE_THRESHOLD", 0.7),
			SimilarityThreshold:  getEnvFloat("IMAGE_SIMILARITY_THRESHOLD", 0.85),
			DuplicateThreshold:   getEnvFloat("IMAGE_DUPLICATE_THRESHOLD", 0.95),
			EmbeddingDimension:   getEnvInt("EMBEDDING_DIMENSION", 768),
			SimilarityQueryLimit: getEnvInt("SIMILARITY_QUERY_LIMIT", 10),
			ProviderConcurrency:  getEnvInt("PROVIDER_CONCURRENCY", 16),
			RetryMaxAttempts:     getEnvInt("RETRY_MAX_ATTEMPTS", 5),
			RetryBaseDelay:       getEnvDuration("RETRY_BASE_DELAY", 1*time.Second),
			RetryBackoffFactor:   getEnvFloat("RETRY_BACKOFF_FACTOR", 2.0),
		},

		Providers: ProvidersConfig{
			VisionAPIKey:     getEnvString("VISION_API_KEY", ""),
			VisionModel:      getEnvString("VISION_MODEL", "gemini-1.5-flash"),
			VisionBaseURL:    getEnvString("VISION_BASE_URL", ""),
			EmbeddingAPIKey:  getEnvString("EMBEDDING_API_KEY", ""),
			EmbeddingModel:   getEnvString("EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingBaseURL: getEnvString("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
			TextAPIKey:       getEnvString("TEXT_API_KEY", ""),
			TextModel:        getEnvString("TEXT_MODEL", "gemini-1.5-flash"),
			TextBaseURL:      getEnvString("TEXT_BASE_URL", ""),
			HTTPTimeout:      getEnvDuration("PROVIDER_HTTP_TIMEOUT", 30*time.Second),
		},

		Sentry: SentryConfig{
			DSN:         getEnvString("SENTRY_DSN", ""),
			Environment: getEnvString("ENVIRONMENT", "development"),
		},
	}

	return cfg
}

func getEnvString(key, defaultValue string) string {
	if v := lookupEnv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := lookupEnv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := lookupEnv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := lookupEnv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func lookupEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
