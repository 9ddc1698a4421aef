package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewNotificationConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName          string
	AppVersion       string
	Environment      string
	HTTPPort         string
	FrontendURL      string
	AuthCookieSecure bool

	LogLevel  string
	LogFormat string
	Otel      OtelConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LoginRatePerSecond float64
	LoginRateBurst     int

	Processor ProcessorConfig
	Email     EmailConfig
	Scheduler SchedulerConfig
}

// ProcessorConfig carries credentials and network limits for the payment processor.
type ProcessorConfig struct {
	SecretKey         string
	WebhookSecret     string
	Timeout           time.Duration
	MaxNetworkRetries int64
	LockTTL           time.Duration
	LockWait          time.Duration
}

// OtelConfig follows the standard OTEL_* variables.
type OtelConfig struct {
	Enabled       bool
	Endpoint      string
	Protocol      string
	SamplingRatio float64
}

type EmailConfig struct {
	Provider             string
	From                 string
	SMTPHost             string
	SMTPPort             int
	SMTPUsername         string
	SMTPPassword         string
	PostmarkServerToken  string
	PostmarkAccountToken string
}

type SchedulerConfig struct {
	Enabled             bool
	SweepInterval       time.Duration
	SweepBatchSize      int
	CatalogSyncInterval time.Duration
	CatalogSyncOnStart  bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", getenv("DEPLOYMENT_ENV", "development"))
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	return Config{
		AppName:          getenv("APP_SERVICE", "subkit"),
		AppVersion:       getenv("APP_VERSION", getenv("SERVICE_VERSION", "0.1.0")),
		Environment:      environment,
		HTTPPort:         getenv("HTTP_PORT", "8080"),
		FrontendURL:      strings.TrimRight(getenv("FRONTEND_URL", "http://localhost:3000"), "/"),
		AuthCookieSecure: authCookieSecure,
		LogLevel:         strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:        strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		Otel: OtelConfig{
			Enabled:       getenvBool("OTEL_ENABLED", false),
			Endpoint:      strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			Protocol:      otlpProtocol(),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "subkit"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),

		LoginRatePerSecond: getenvFloat("LOGIN_RATE_PER_SECOND", 0.2),
		LoginRateBurst:     int(getenvInt64("LOGIN_RATE_BURST", 10)),

		Processor: ProcessorConfig{
			SecretKey:         strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:     strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			Timeout:           getenvDuration("PROCESSOR_TIMEOUT", 10*time.Second),
			MaxNetworkRetries: getenvInt64("PROCESSOR_MAX_NETWORK_RETRIES", 2),
			LockTTL:           getenvDuration("BILLING_LOCK_TTL", 30*time.Second),
			LockWait:          getenvDuration("BILLING_LOCK_WAIT", 10*time.Second),
		},
		Email: EmailConfig{
			Provider:             strings.ToLower(strings.TrimSpace(getenv("EMAIL_PROVIDER", "noop"))),
			From:                 getenv("DEFAULT_FROM_EMAIL", "noreply@subkit.local"),
			SMTPHost:             getenv("SMTP_HOST", "localhost"),
			SMTPPort:             int(getenvInt64("SMTP_PORT", 587)),
			SMTPUsername:         getenv("SMTP_USERNAME", ""),
			SMTPPassword:         getenv("SMTP_PASSWORD", ""),
			PostmarkServerToken:  strings.TrimSpace(getenv("POSTMARK_SERVER_TOKEN", "")),
			PostmarkAccountToken: strings.TrimSpace(getenv("POSTMARK_ACCOUNT_TOKEN", "")),
		},
		Scheduler: SchedulerConfig{
			Enabled:             getenvBool("SCHEDULER_ENABLED", true),
			SweepInterval:       getenvDuration("RECONCILE_SWEEP_INTERVAL", 15*time.Minute),
			SweepBatchSize:      int(getenvInt64("RECONCILE_SWEEP_BATCH_SIZE", 50)),
			CatalogSyncInterval: getenvDuration("CATALOG_SYNC_INTERVAL", time.Hour),
			CatalogSyncOnStart:  getenvBool("CATALOG_SYNC_ON_START", false),
		},
	}
}

// otlpProtocol prefers the trace-specific protocol variable.
func otlpProtocol() string {
	protocol := getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	return strings.ToLower(strings.TrimSpace(protocol))
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
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
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
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
