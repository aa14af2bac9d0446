package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"medeasy/pos/domain"
)

// Config holds server configuration values.
type Config struct {
	Secret             string
	DatabaseDSN        string
	HTTPPort           string
	RedisURL           string
	LogFormat          string
	LogLevel           string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	IdempotencyTTL     time.Duration
	CORSAllowedOrigins []string
	SeedCatalog        string
	AdminUsername      string
	AdminPassword      string
	Pharmacy           domain.Pharmacy
}

// ClientConfig holds settings for the terminal till.
type ClientConfig struct {
	APIURL      string
	SessionFile string
	HTTPTimeout time.Duration
	ResetGrace  time.Duration
	MetricsAddr string
	LogFormat   string
	LogLevel    string
}

// Load reads server configuration from the environment and an optional .env
// file, with reasonable defaults for local development.
func Load() (Config, error) {
	k, err := loadEnv()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Secret:             valueOrDefault(k.String("SECRET"), "dev_secret"),
		DatabaseDSN:        valueOrDefault(k.String("DATABASE_DSN"), "medeasy.db"),
		HTTPPort:           valueOrDefault(k.String("HTTP_PORT"), "8000"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		LogFormat:          valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:           valueOrDefault(k.String("LOG_LEVEL"), "info"),
		AccessTokenTTL:     parseDuration(k.String("ACCESS_TOKEN_TTL"), "30m"),
		RefreshTokenTTL:    parseDuration(k.String("REFRESH_TOKEN_TTL"), "168h"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CORSAllowedOrigins: splitAndTrim(valueOrDefault(k.String("CORS_ALLOWED_ORIGINS"), "*")),
		SeedCatalog:        strings.TrimSpace(k.String("SEED_CATALOG")),
		AdminUsername:      valueOrDefault(k.String("ADMIN_USERNAME"), "admin"),
		AdminPassword:      k.String("ADMIN_PASSWORD"),
		Pharmacy: domain.Pharmacy{
			Name:    valueOrDefault(k.String("PHARMACY_NAME"), "OTC Store"),
			Address: k.String("PHARMACY_ADDRESS"),
			Phone:   k.String("PHARMACY_PHONE"),
		},
	}

	if _, err := strconv.Atoi(strings.TrimPrefix(cfg.HTTPPort, ":")); err != nil {
		return Config{}, fmt.Errorf("invalid HTTP_PORT %q", cfg.HTTPPort)
	}
	if cfg.Secret == "dev_secret" && strings.EqualFold(k.String("APP_ENV"), "production") {
		return Config{}, errors.New("SECRET is required in production")
	}
	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c Config) HTTPAddr() string {
	if strings.HasPrefix(c.HTTPPort, ":") {
		return c.HTTPPort
	}
	return ":" + c.HTTPPort
}

// LoadClient reads the terminal till configuration.
func LoadClient() (ClientConfig, error) {
	k, err := loadEnv()
	if err != nil {
		return ClientConfig{}, err
	}
	sessionFile := strings.TrimSpace(k.String("POS_SESSION_FILE"))
	if sessionFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ClientConfig{}, fmt.Errorf("resolve home dir: %w", err)
		}
		sessionFile = home + string(os.PathSeparator) + ".medeasy" + string(os.PathSeparator) + "session.json"
	}
	return ClientConfig{
		APIURL:      strings.TrimRight(valueOrDefault(k.String("POS_API_URL"), "http://127.0.0.1:8000"), "/"),
		SessionFile: sessionFile,
		HTTPTimeout: parseDuration(k.String("POS_HTTP_TIMEOUT"), "10s"),
		ResetGrace:  parseDuration(k.String("POS_RESET_GRACE"), "150ms"),
		MetricsAddr: strings.TrimSpace(k.String("POS_METRICS_ADDR")),
		LogFormat:   valueOrDefault(k.String("LOG_FORMAT"), "console"),
		LogLevel:    valueOrDefault(k.String("LOG_LEVEL"), "warn"),
	}, nil
}

func loadEnv() (*koanf.Koanf, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return k, nil
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}
