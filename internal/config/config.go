// Package config loads the process configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the process needs to start.
type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	CacheEnabled bool

	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	StripeAPIKey        string
	StripeWebhookSecret string

	KafkaBrokers []string
	KafkaTopic   string

	LogLevel string
}

// Load reads the optional .env file and the environment. Missing optional
// values fall back to development defaults; Validate decides what is fatal.
func Load() (Config, error) {
	// .env is for local development only; absence is not an error.
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:            envOr("HTTP_ADDR", ":8080"),
		DBDriver:            envOr("DB_DRIVER", "sqlite3"),
		DBDSN:               envOr("DB_DSN", "file:pickup-market.db"),
		CacheEnabled:        envBool("CACHE_ENABLED", true),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		JWTIssuer:           envOr("JWT_ISSUER", "pickup-market"),
		JWTTTL:              envDuration("JWT_TTL", 24*time.Hour),
		StripeAPIKey:        os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		KafkaTopic:          envOr("KAFKA_TOPIC", "order-events"),
		LogLevel:            envOr("LOG_LEVEL", "info"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first fatal configuration problem.
func (c Config) Validate() error {
	if c.DBDriver != "sqlite3" && c.DBDriver != "postgres" {
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("config: DB_DSN is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("config: JWT_TTL must be positive")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
