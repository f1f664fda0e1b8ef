package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string

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
	DBAutoMigrate     bool
	DBLogLevel        string
	DBSlowQuery       time.Duration

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Gateway   GatewayConfig
	Email     EmailConfig
	Reconcile ReconcileConfig
	Scheduler SchedulerConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis address was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type RateLimitConfig struct {
	Enabled      bool
	RetryRate    float64
	RetryBurst   int
	WebhookRate  float64
	WebhookBurst int
	RetryLockTTL time.Duration
}

type GatewayConfig struct {
	Provider        string
	BaseURL         string
	AccessToken     string
	WebhookSecret   string
	Timeout         time.Duration
	Currency        string
	NotificationURL string
	SuccessURL      string
	FailureURL      string
	PendingURL      string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type ReconcileConfig struct {
	// MaxTxAttempts bounds how often a conflicting transaction is retried.
	MaxTxAttempts      int
	CascadeAsync       bool
	CascadeTimeout     time.Duration
	CascadeConcurrency int
	// RetryOnTransient makes the webhook answer 503 when the gateway is unreachable.
	RetryOnTransient bool
}

type SchedulerConfig struct {
	Enabled       bool
	Interval      time.Duration
	BatchSize     int
	CascadeMinAge time.Duration
	JobTimeout    time.Duration
	LockTTL       time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_SERVICE", "marketpay"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "marketpay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		DBLogLevel:        strings.ToLower(getenv("DATABASE_LOG_LEVEL", "warn")),
		DBSlowQuery:       getenvDuration("DATABASE_SLOW_QUERY", 200*time.Millisecond),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:      getenvBool("RATE_LIMIT_ENABLED", true),
			RetryRate:    getenvFloat("RATE_LIMIT_RETRY_RATE", 0.2),
			RetryBurst:   getenvInt("RATE_LIMIT_RETRY_BURST", 3),
			WebhookRate:  getenvFloat("RATE_LIMIT_WEBHOOK_RATE", 50),
			WebhookBurst: getenvInt("RATE_LIMIT_WEBHOOK_BURST", 200),
			RetryLockTTL: getenvDuration("RETRY_LOCK_TTL", 15*time.Second),
		},
		Gateway: GatewayConfig{
			Provider:        strings.ToLower(getenv("GATEWAY_PROVIDER", "mercadopago")),
			BaseURL:         strings.TrimRight(getenv("GATEWAY_BASE_URL", "https://api.mercadopago.com"), "/"),
			AccessToken:     strings.TrimSpace(getenv("GATEWAY_ACCESS_TOKEN", "")),
			WebhookSecret:   strings.TrimSpace(getenv("GATEWAY_WEBHOOK_SECRET", "")),
			Timeout:         getenvDuration("GATEWAY_TIMEOUT", 5*time.Second),
			Currency:        strings.ToUpper(getenv("GATEWAY_CURRENCY", "BRL")),
			NotificationURL: strings.TrimSpace(getenv("GATEWAY_NOTIFICATION_URL", "")),
			SuccessURL:      strings.TrimSpace(getenv("GATEWAY_SUCCESS_URL", "")),
			FailureURL:      strings.TrimSpace(getenv("GATEWAY_FAILURE_URL", "")),
			PendingURL:      strings.TrimSpace(getenv("GATEWAY_PENDING_URL", "")),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "no-reply@marketpay.local"),
		},
		Reconcile: ReconcileConfig{
			MaxTxAttempts:      getenvInt("RECONCILE_MAX_TX_ATTEMPTS", 3),
			CascadeAsync:       getenvBool("CASCADE_ASYNC", true),
			CascadeTimeout:     getenvDuration("CASCADE_TIMEOUT", 30*time.Second),
			CascadeConcurrency: getenvInt("CASCADE_CONCURRENCY", 4),
			RetryOnTransient:   getenvBool("WEBHOOK_RETRY_ON_TRANSIENT", false),
		},
		Scheduler: SchedulerConfig{
			Enabled:       getenvBool("SCHEDULER_ENABLED", true),
			Interval:      getenvDuration("SCHEDULER_INTERVAL", time.Minute),
			BatchSize:     getenvInt("SCHEDULER_BATCH_SIZE", 100),
			CascadeMinAge: getenvDuration("SCHEDULER_CASCADE_MIN_AGE", 2*time.Minute),
			JobTimeout:    getenvDuration("SCHEDULER_JOB_TIMEOUT", 30*time.Second),
			LockTTL:       getenvDuration("SCHEDULER_LOCK_TTL", 55*time.Second),
		},
	}
}

// IsDevelopment reports whether the process runs outside production.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

var Module = fx.Module("config",
	fx.Provide(
		Load,
		NewPolicyHolder,
		func(h *PolicyHolder) PolicySource { return h },
	),
)

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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
