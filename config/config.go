package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	Port     string
	LogLevel string

	DBDriver string
	DBURL    string

	JWTSecret    string
	JWTExpiresIn time.Duration

	CORSOrigins []string
	FrontendURL string
	PublicURL   string
	AdminEmail  string

	GoogleClientID         string
	GoogleClientSecret     string
	GoogleRedirectURL      string
	GoogleFrontendRedirect string

	StripeSecretKey     string
	StripeWebhookSecret string

	MercadoPagoAccessToken string

	AsaasAPIKey       string
	AsaasEnvironment  string
	AsaasCustomerID   string
	AsaasWebhookToken string

	DefaultPaymentGateway string

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	UploadDir   string
	ResultsDir  string
	MaxFileSize int64

	RedisURL       string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads .env (when present) and the process environment.
// Every missing required variable is reported in the returned error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using system environment variables")
	}

	var missing []string
	var invalid []error

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DBDriver: getEnv("DB_DRIVER", "postgres"),
		DBURL:    mustEnv("DB_URL", &missing),

		JWTSecret: mustEnv("JWT_SECRET", &missing),

		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		AdminEmail:  strings.ToLower(strings.TrimSpace(getEnv("ADMIN_EMAIL", ""))),

		GoogleClientID:         getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:     getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:      getEnv("GOOGLE_REDIRECT_URL", ""),
		GoogleFrontendRedirect: getEnv("GOOGLE_FRONTEND_REDIRECT", ""),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		MercadoPagoAccessToken: getEnv("MERCADOPAGO_ACCESS_TOKEN", ""),

		AsaasAPIKey:       getEnv("ASAAS_API_KEY", ""),
		AsaasEnvironment:  getEnv("ASAAS_ENVIRONMENT", "sandbox"),
		AsaasCustomerID:   getEnv("ASAAS_CUSTOMER_ID", ""),
		AsaasWebhookToken: getEnv("ASAAS_WEBHOOK_TOKEN", ""),

		DefaultPaymentGateway: getEnv("DEFAULT_PAYMENT_GATEWAY", "asaas"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),

		UploadDir:  getEnv("UPLOAD_DIR", "uploads/documents"),
		ResultsDir: getEnv("RESULTS_DIR", "uploads/results"),

		RedisURL: getEnv("REDIS_URL", ""),
	}

	cfg.PublicURL = getEnv("PUBLIC_URL", "http://localhost:"+cfg.Port)
	cfg.CORSOrigins = splitList(getEnv("CORS_ORIGIN", "http://localhost:5173"))

	var err error
	if cfg.JWTExpiresIn, err = getEnvDuration("JWT_EXPIRES_IN", 7*24*time.Hour); err != nil {
		invalid = append(invalid, err)
	}
	if cfg.MaxFileSize, err = getEnvInt64("MAX_FILE_SIZE", 10*1024*1024); err != nil {
		invalid = append(invalid, err)
	}
	if cfg.RateLimitRPS, err = getEnvFloat("RATE_LIMIT_RPS", 5); err != nil {
		invalid = append(invalid, err)
	}
	burst, err := getEnvInt64("RATE_LIMIT_BURST", 10)
	if err != nil {
		invalid = append(invalid, err)
	}
	cfg.RateLimitBurst = int(burst)

	if len(missing) > 0 {
		invalid = append([]error{fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))}, invalid...)
	}
	if len(invalid) > 0 {
		return nil, errors.Join(invalid...)
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != ""
}

func mustEnv(key string, missing *[]string) string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		*missing = append(*missing, key)
		return ""
	}
	return v
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return fallback, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
