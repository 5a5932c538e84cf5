package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Kafka    KafkaConfig
	Storage  StorageConfig
	Claims   ClaimPolicyConfig
	Tracing  TracingConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// CORSAllowedOrigins empty means any origin is reflected.
	CORSAllowedOrigins []string
	IdempotencyTTL     time.Duration
	// WebhookSecret, when set, must be echoed in X-Webhook-Secret by PG and carrier callbacks.
	WebhookSecret string
	// RateLimit is requests per RateWindow per actor on /api/v1. Zero disables the limiter.
	RateLimit  int
	RateWindow time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsPath  string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	// DedupTTL bounds how long processed webhook ids and idempotency keys are remembered.
	DedupTTL time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	ClientID     string
	PaymentTopic string
	ClaimTopic   string
}

// StorageConfig selects the persistence backend: "postgres" or the embedded "bolt" store.
type StorageConfig struct {
	Driver   string
	BoltPath string
}

type ClaimPolicyConfig struct {
	PartialRefundMaxRatio float64
	ActiveClaimScope      string
	ReturnWindowDays      int
	ReturnShippingCost    int64
}

type TracingConfig struct {
	ServiceName    string
	JaegerEndpoint string
	SampleRatio    float64
}

const (
	StorageDriverPostgres = "postgres"
	StorageDriverBolt     = "bolt"
)

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "0.0.0.0"),
			Port:               getEnv("SERVER_PORT", "8080"),
			ReadTimeout:        getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:       getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:        getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			CORSAllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", nil),
			IdempotencyTTL:     getDurationEnv("IDEMPOTENCY_TTL", 24*time.Hour),
			WebhookSecret:      getEnv("WEBHOOK_SECRET", ""),
			RateLimit:          getIntEnv("RATE_LIMIT_REQUESTS", 120),
			RateWindow:         getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsPath:  getEnv("MIGRATIONS_PATH", "file://migrations"),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			DedupTTL: getDurationEnv("REDIS_DEDUP_TTL", 72*time.Hour),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-this-secret"),
			Issuer: getEnv("JWT_ISSUER", "setof-commerce"),
		},
		Kafka: KafkaConfig{
			Enabled:      getBoolEnv("KAFKA_ENABLED", false),
			Brokers:      getListEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			ClientID:     getEnv("KAFKA_CLIENT_ID", "commerce"),
			PaymentTopic: getEnv("KAFKA_PAYMENT_TOPIC", "payment-events"),
			ClaimTopic:   getEnv("KAFKA_CLAIM_TOPIC", "claim-events"),
		},
		Storage: StorageConfig{
			Driver:   strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverPostgres)),
			BoltPath: getEnv("BOLT_PATH", "commerce.db"),
		},
		Claims: ClaimPolicyConfig{
			PartialRefundMaxRatio: getFloatEnv("CLAIM_PARTIAL_REFUND_MAX_RATIO", 1.0),
			ActiveClaimScope:      getEnv("CLAIM_ACTIVE_SCOPE", "order"),
			ReturnWindowDays:      getIntEnv("CLAIM_RETURN_WINDOW_DAYS", 7),
			ReturnShippingCost:    int64(getIntEnv("CLAIM_RETURN_SHIPPING_COST", 0)),
		},
		Tracing: TracingConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "commerce"),
			JaegerEndpoint: getEnv("OTEL_EXPORTER_JAEGER_ENDPOINT", ""),
			SampleRatio:    getFloatEnv("OTEL_TRACES_SAMPLER_RATIO", 1.0),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
