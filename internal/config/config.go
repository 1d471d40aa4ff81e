package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr       string
	HealthAddr     string
	PostgresDSN    string
	MigrationsPath string
	LogLevel       string
	AppEnv         string

	AuthMode    string
	JWTSecret   string
	JWTIssuer   string
	AdminAPIKey string

	TrustedCertFingerprints string
	CertMinValidityDays     int
	CertExpiryNoticeDays    int
	VerifyConcurrency       int

	IdentityBaseURL  string
	NotifyBaseURL    string
	DirectoryToken   string
	PolicyBundlePath string

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TemporalAddress      string
	TemporalNamespace    string
	TemporalTaskQueue    string
	SweepIntervalMinutes int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:                addr,
		HealthAddr:              envDefault("HEALTH_ADDR", ":8081"),
		PostgresDSN:             os.Getenv("POSTGRES_DSN"),
		MigrationsPath:          os.Getenv("MIGRATIONS_PATH"),
		LogLevel:                envDefault("LOG_LEVEL", "info"),
		AppEnv:                  envDefault("APP_ENV", "development"),
		AuthMode:                os.Getenv("AUTH_MODE"),
		JWTSecret:               os.Getenv("JWT_SECRET"),
		JWTIssuer:               os.Getenv("JWT_ISSUER"),
		AdminAPIKey:             os.Getenv("ADMIN_API_KEY"),
		TrustedCertFingerprints: os.Getenv("TRUSTED_CERT_FINGERPRINTS"),
		CertMinValidityDays:     envIntDefault("CERT_MIN_VALIDITY_DAYS", 30),
		CertExpiryNoticeDays:    envIntDefault("CERT_EXPIRY_NOTICE_DAYS", 30),
		VerifyConcurrency:       envIntDefault("VERIFY_CONCURRENCY", 8),
		IdentityBaseURL:         os.Getenv("IDENTITY_BASE_URL"),
		NotifyBaseURL:           os.Getenv("NOTIFY_BASE_URL"),
		DirectoryToken:          os.Getenv("DIRECTORY_TOKEN"),
		PolicyBundlePath:        os.Getenv("POLICY_BUNDLE_PATH"),
		RateLimitRequests:       envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds:  envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:     envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:        envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 envIntDefault("REDIS_DB", 0),
		TemporalAddress:         envDefault("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalNamespace:       envDefault("TEMPORAL_NAMESPACE", "default"),
		TemporalTaskQueue:       envDefault("TEMPORAL_TASK_QUEUE", "docsign-sweeper"),
		SweepIntervalMinutes:    envIntDefault("SWEEP_INTERVAL_MINUTES", 15),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

// TrustedFingerprints splits the comma-separated trust list, dropping blanks.
// Entries are returned as configured; the verification service normalizes them.
func (c Config) TrustedFingerprints() []string {
	if strings.TrimSpace(c.TrustedCertFingerprints) == "" {
		return nil
	}
	parts := strings.Split(c.TrustedCertFingerprints, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) RateLimitWindow() time.Duration {
	if c.RateLimitWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func (c Config) SweepInterval() time.Duration {
	if c.SweepIntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}
