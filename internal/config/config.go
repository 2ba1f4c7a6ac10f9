package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string
	Telemetry    TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Auth         AuthConfig
	LemonSqueezy LemonSqueezyConfig
	Inference    InferenceConfig
	Storage      StorageConfig
	RateLimit    RateLimitConfig
	Scheduler    SchedulerConfig
}

// AuthConfig verifies bearer tokens issued by the external auth provider.
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// TelemetryConfig feeds logging, tracing and metric export.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

type LemonSqueezyConfig struct {
	WebhookSecret string
	APIKey        string
	APIURL        string
	StoreID       string
	RedirectURL   string
}

type InferenceConfig struct {
	ServerURL string
	APIKey    string
	Timeout   time.Duration
}

// StorageConfig points at an S3-compatible bucket (R2, MinIO, S3).
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

type RateLimitConfig struct {
	Enabled         bool
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	GenerationRate  float64
	GenerationBurst int
}

type SchedulerConfig struct {
	Enabled     bool
	RunInterval time.Duration
	LockTTL     time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "logoforge"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "logoforge.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtelProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		Auth: AuthConfig{
			JWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
			JWTIssuer: strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "")),
		},
		LemonSqueezy: LemonSqueezyConfig{
			WebhookSecret: strings.TrimSpace(getenv("LEMONSQUEEZY_WEBHOOK_SECRET", "")),
			APIKey:        strings.TrimSpace(getenv("LEMONSQUEEZY_API_KEY", "")),
			APIURL:        strings.TrimRight(getenv("LEMONSQUEEZY_API_URL", "https://api.lemonsqueezy.com"), "/"),
			StoreID:       strings.TrimSpace(getenv("LEMONSQUEEZY_STORE_ID", "")),
			RedirectURL:   strings.TrimSpace(getenv("LEMONSQUEEZY_REDIRECT_URL", "")),
		},
		Inference: InferenceConfig{
			ServerURL: strings.TrimSpace(getenv("AI_SERVER_URL", "")),
			APIKey:    strings.TrimSpace(getenv("AI_API_KEY", "")),
			Timeout:   time.Duration(getenvInt("AI_TIMEOUT_SECONDS", 120)) * time.Second,
		},
		Storage: StorageConfig{
			Endpoint:  strings.TrimSpace(getenv("S3_ENDPOINT", "")),
			AccessKey: strings.TrimSpace(getenv("S3_ACCESS_KEY", "")),
			SecretKey: strings.TrimSpace(getenv("S3_SECRET_KEY", "")),
			Bucket:    strings.TrimSpace(getenv("S3_BUCKET", "logoforge")),
			Region:    strings.TrimSpace(getenv("S3_REGION", "auto")),
			UseSSL:    getenvBool("S3_USE_SSL", true),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:       strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword:   getenv("REDIS_PASSWORD", ""),
			RedisDB:         getenvInt("REDIS_DB", 0),
			GenerationRate:  getenvFloat("RATE_LIMIT_GENERATION_RATE", 0.2),
			GenerationBurst: getenvInt("RATE_LIMIT_GENERATION_BURST", 3),
		},
		Scheduler: SchedulerConfig{
			Enabled:     getenvBool("SCHEDULER_ENABLED", true),
			RunInterval: time.Duration(getenvInt("SCHEDULER_RUN_INTERVAL_SECONDS", 300)) * time.Second,
			LockTTL:     time.Duration(getenvInt("SCHEDULER_LOCK_TTL_SECONDS", 120)) * time.Second,
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
