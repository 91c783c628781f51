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
	NodeID      int64
	// Role names the process kind: serve, worker, migrate or cli.
	Role        string

	OTLPEndpoint  string
	Observability ObservabilityConfig

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

	Lock      LockConfig
	RateLimit RateLimitConfig

	SettingsEncryptionSecret string
	WebhookSigningKey        string
	AdminAPIToken            string
	PublicBaseURL            string

	Email     EmailConfig
	Providers ProvidersConfig
}

// ObservabilityConfig tunes logging and OTLP export. An empty LogFormat
// resolves to json in production and console elsewhere.
type ObservabilityConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

type LockConfig struct {
	Backend       string
	Dir           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// RateLimitConfig bounds how fast one client may submit new orders.
type RateLimitConfig struct {
	Enabled bool
	Backend string
	Rate    float64
	Burst   int
}

type EmailConfig struct {
	Provider string
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type ProvidersConfig struct {
	TextBaseURL      string
	TextTimeout      time.Duration
	MusicBaseURL     string
	MusicTimeout     time.Duration
	YCloudBaseURL    string
	DeliveryTimeout  time.Duration
	DefaultTextModel string
}

const (
	LockBackendPostgres = "postgres"
	LockBackendRedis    = "redis"
	LockBackendFile     = "file"
	LockBackendMemory   = "memory"

	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "songgift"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		Observability: ObservabilityConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", ""))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtelProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 1),
		},
		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "songgift"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "songgift.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Lock: LockConfig{
			Backend:       strings.ToLower(getenv("LOCK_BACKEND", LockBackendPostgres)),
			Dir:           getenv("LOCK_DIR", os.TempDir()),
			RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled: getenvBool("RATE_LIMIT_ENABLED", true),
			Backend: strings.ToLower(getenv("RATE_LIMIT_BACKEND", RateLimitBackendMemory)),
			Rate:    getenvFloat("ORDER_INTAKE_RATE", 0.2),
			Burst:   getenvInt("ORDER_INTAKE_BURST", 5),
		},
		SettingsEncryptionSecret: strings.TrimSpace(getenv("SETTINGS_ENCRYPTION_SECRET", "")),
		WebhookSigningKey:        strings.TrimSpace(getenv("WEBHOOK_SIGNING_KEY", "")),
		AdminAPIToken:            strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),
		PublicBaseURL:            strings.TrimRight(strings.TrimSpace(getenv("PUBLIC_BASE_URL", "")), "/"),
		Email: EmailConfig{
			Provider: strings.ToLower(getenv("EMAIL_PROVIDER", "noop")),
			Host:     getenv("SMTP_HOST", ""),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "songs@songgift.local"),
		},
		Providers: ProvidersConfig{
			TextBaseURL:      getenv("TEXT_PROVIDER_BASE_URL", "https://api.openai.com/v1"),
			TextTimeout:      getenvDuration("TEXT_PROVIDER_TIMEOUT", 30*time.Second),
			MusicBaseURL:     getenv("MUSIC_PROVIDER_BASE_URL", "https://api.sunoapi.org"),
			MusicTimeout:     getenvDuration("MUSIC_PROVIDER_TIMEOUT", 30*time.Second),
			YCloudBaseURL:    getenv("YCLOUD_BASE_URL", "https://api.ycloud.com/v2"),
			DeliveryTimeout:  getenvDuration("DELIVERY_PROVIDER_TIMEOUT", 10*time.Second),
			DefaultTextModel: getenv("TEXT_PROVIDER_DEFAULT_MODEL", "gpt-4o-mini"),
		},
	}

	return cfg
}

// MusicCallbackURL is the public webhook address derived from PublicBaseURL.
func (c Config) MusicCallbackURL() string {
	if c.PublicBaseURL == "" {
		return ""
	}
	return c.PublicBaseURL + "/api/webhooks/music"
}

// IsProduction reports whether the process runs with production defaults.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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

func getenvBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return def
}
