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

	AuthJWTSecret string
	AuthTokenTTL  time.Duration

	Telemetry TelemetryConfig

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

	Redis RedisConfig
	NATS  NATSConfig

	Tenancy TenancyConfig
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

type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// TelemetryConfig carries logging and OpenTelemetry exporter settings.
type TelemetryConfig struct {
	DeploymentEnv string
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtlpEndpoint  string
	OtlpProtocol  string
	SamplingRatio float64
}

type TenancyConfig struct {
	TrialDays           int
	ReferenceOffset     time.Duration
	FeatureCacheTTL     time.Duration
	PublicLookupRate    float64
	PublicLookupBurst   int
	DeviceLockTTL       time.Duration
	MaintenanceInterval time.Duration
	MaintenanceJobs     string
	AdminToken          string
	WebhookSecret       string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "warrantyhub"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthTokenTTL:  time.Duration(getenvInt64("AUTH_TOKEN_TTL_MINUTES", 480)) * time.Minute,
		Telemetry: TelemetryConfig{
			DeploymentEnv: strings.TrimSpace(os.Getenv("DEPLOYMENT_ENV")),
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtlpEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
			OtlpProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "warrantyhub"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		NATS: NATSConfig{
			URL:           strings.TrimSpace(getenv("NATS_URL", "")),
			SubjectPrefix: getenv("NATS_SUBJECT_PREFIX", "warrantyhub"),
		},
		Tenancy: TenancyConfig{
			TrialDays:           int(getenvInt64("TRIAL_DAYS", 14)),
			ReferenceOffset:     time.Duration(getenvInt64("REFERENCE_TZ_OFFSET_MINUTES", 330)) * time.Minute,
			FeatureCacheTTL:     time.Duration(getenvInt64("FEATURE_CACHE_TTL_SECONDS", 5)) * time.Second,
			PublicLookupRate:    getenvFloat("PUBLIC_LOOKUP_RATE", 2),
			PublicLookupBurst:   int(getenvInt64("PUBLIC_LOOKUP_BURST", 20)),
			DeviceLockTTL:       time.Duration(getenvInt64("DEVICE_LOCK_TTL_SECONDS", 10)) * time.Second,
			MaintenanceInterval: time.Duration(getenvInt64("MAINTENANCE_INTERVAL_SECONDS", 300)) * time.Second,
			MaintenanceJobs:     getenv("MAINTENANCE_JOBS", ""),
			AdminToken:          strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),
			WebhookSecret:       strings.TrimSpace(getenv("PAYMENT_WEBHOOK_SECRET", "")),
		},
	}

	// Production refuses to start without a secret; see token.NewIssuer.
	if cfg.AuthJWTSecret == "" && !cfg.IsProduction() {
		cfg.AuthJWTSecret = "warrantyhub-dev-secret"
	}
	return cfg
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
