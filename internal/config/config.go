// Package config reads service configuration from the environment, with
// optional .env loading for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/CindyDuong5/pdf-polish/pkg/decisiontoken"
)

type Config struct {
	DatabaseURL string
	HTTPPort    string
	MetricsPort string

	S3Bucket  string
	AWSRegion string

	StylerBaseURL string

	DecisionTokenSecret string
	DecisionTokenTTL    time.Duration
	PublicBaseURL       string

	TaxRate decimal.Decimal

	RenderTimeout     time.Duration
	FinalizeTimeout   time.Duration
	StylingStaleAfter time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	EmailFrom    string
	EmailReplyTo string

	LogLevel  string
	LogPretty bool
}

// Load reads configuration once at startup. A .env file is honored when
// present but never required.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		HTTPPort:            getenv("SERVICE_PORT", "8080"),
		MetricsPort:         getenv("METRICS_PORT", "9100"),
		S3Bucket:            os.Getenv("S3_BUCKET"),
		AWSRegion:           getenv("AWS_REGION", "us-east-1"),
		StylerBaseURL:       getenv("STYLER_BASE_URL", "http://localhost:8090"),
		DecisionTokenSecret: os.Getenv("QUOTE_RESPONSE_TOKEN_SECRET"),
		PublicBaseURL:       getenv("PUBLIC_BASE_URL", "http://localhost:5173"),
		SMTPHost:            os.Getenv("SMTP_HOST"),
		SMTPUser:            os.Getenv("SMTP_USER"),
		SMTPPassword:        os.Getenv("SMTP_PASSWORD"),
		EmailFrom:           getenv("EMAIL_FROM", "Mainline Fire Protection <support@mainlinefire.com>"),
		EmailReplyTo:        os.Getenv("EMAIL_REPLY_TO"),
		LogLevel:            getenv("LOG_LEVEL", "info"),
		LogPretty:           os.Getenv("LOG_PRETTY") == "true",
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.DecisionTokenSecret == "" {
		return Config{}, fmt.Errorf("QUOTE_RESPONSE_TOKEN_SECRET is required")
	}

	var err error
	if cfg.SMTPPort, err = intEnv("SMTP_PORT", 587); err != nil {
		return Config{}, err
	}
	if cfg.DecisionTokenTTL, err = durationEnv("QUOTE_RESPONSE_TOKEN_TTL", decisiontoken.DefaultTTL); err != nil {
		return Config{}, err
	}
	if cfg.RenderTimeout, err = durationEnv("RENDER_TIMEOUT", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.FinalizeTimeout, err = durationEnv("FINALIZE_TIMEOUT", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.StylingStaleAfter, err = durationEnv("STYLING_STALE_AFTER", 10*time.Minute); err != nil {
		return Config{}, err
	}

	rate := getenv("TAX_RATE", "0.13")
	if cfg.TaxRate, err = decimal.NewFromString(rate); err != nil {
		return Config{}, fmt.Errorf("TAX_RATE %q: %w", rate, err)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", key, v, err)
	}
	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", key, v, err)
	}
	return d, nil
}
