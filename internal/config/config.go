package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port     string
	LogLevel string
	AppEnv   string

	StoreDriver string
	DBConn      string

	JWTSecret         string
	AdminPasswordHash string
	AdminTokenTTL     time.Duration

	VisionURL    string
	VisionAPIKey string

	DirectoryFile     string
	LookupURL         string
	LookupCookiesFile string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string

	NATSURL           string
	NATSToken         string
	BoxSubject        string
	BoxReplaySchedule string

	StaleCardSchedule string
	StaleCardAge      time.Duration

	OCRTimeout    time.Duration
	LookupTimeout time.Duration
	NotifyTimeout time.Duration

	PickupRateLimit int
	CORSOrigins     []string
}

// NewConfig loads configuration from an optional .env file and environment variables
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Port:     getEnv("PORT", "4000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		AppEnv:   getEnv("APP_ENV", "development"),

		StoreDriver: getEnv("STORE_DRIVER", "memory"),
		DBConn:      getEnv("DB_CONN", "host=localhost port=5432 user=lostcard password=lostcard dbname=lostcard sslmode=disable"),

		JWTSecret:         getEnv("JWT_SECRET", ""),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		VisionURL:    getEnv("VISION_URL", "https://vision.googleapis.com/v1/images:annotate"),
		VisionAPIKey: getEnv("VISION_API_KEY", ""),

		DirectoryFile:     getEnv("DIRECTORY_FILE", ""),
		LookupURL:         getEnv("LOOKUP_URL", ""),
		LookupCookiesFile: getEnv("LOOKUP_COOKIES_FILE", "cookies.json"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SenderEmail:  getEnv("SENDER_EMAIL", "lost-and-found@example.edu"),

		NATSURL:           getEnv("NATS_URL", ""),
		NATSToken:         getEnv("NATS_TOKEN", ""),
		BoxSubject:        getEnv("BOX_SUBJECT", "boxes.codes"),
		BoxReplaySchedule: getEnv("BOX_REPLAY_SCHEDULE", "@every 30s"),

		StaleCardSchedule: getEnv("STALE_CARD_SCHEDULE", "@hourly"),

		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
	}

	var err error
	if cfg.AdminTokenTTL, err = getDuration("ADMIN_TOKEN_TTL", 12*time.Hour); err != nil {
		return nil, err
	}
	if cfg.StaleCardAge, err = getDuration("STALE_CARD_AGE", 48*time.Hour); err != nil {
		return nil, err
	}
	if cfg.OCRTimeout, err = getDuration("OCR_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.LookupTimeout, err = getDuration("LOOKUP_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.NotifyTimeout, err = getDuration("NOTIFY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.PickupRateLimit, err = getInt("RATE_LIMIT_PICKUP", 20); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	switch cfg.StoreDriver {
	case "memory":
	case "postgres":
		if cfg.DBConn == "" {
			return nil, fmt.Errorf("DB_CONN is required for the postgres store")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}

// IsProduction reports whether internal error details must be hidden
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, defaultVal int) (int, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
