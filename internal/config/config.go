package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the full configuration surface of the engine processes.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Log      LogConfig
	Notify   NotifyConfig
}

// DatabaseConfig holds the PostgreSQL connection string.
type DatabaseConfig struct {
	URL string
}

// ServerConfig holds HTTP server options.
type ServerConfig struct {
	Port           string
	AllowedOrigins string
	JWTSecret      string
}

// LogConfig selects the minimum zap level.
type LogConfig struct {
	Level string
}

// NotifyConfig configures the notification queue and its email sender.
// Resend is used only when ResendAPIKey is set.
type NotifyConfig struct {
	QueueSize     int
	EmailFrom     string
	EmailTo       []string
	ResendAPIKey  string
	ResendBaseURL string
}

// Load reads environment variables, optionally seeded from envFile, and
// materializes a Config. A missing env file is not an error. Load does not
// validate: callers decide which keys they need.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	queueSize, err := getenvInt("NOTIFY_QUEUE_SIZE", 256)
	if err != nil {
		return nil, err
	}

	return &Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Server: ServerConfig{
			Port:           getenvWithDefault("SERVER_PORT", "8080"),
			AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
			JWTSecret:      os.Getenv("JWT_SECRET"),
		},
		Log: LogConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
		},
		Notify: NotifyConfig{
			QueueSize:     queueSize,
			EmailFrom:     os.Getenv("EMAIL_FROM"),
			EmailTo:       splitList(os.Getenv("EMAIL_TO")),
			ResendAPIKey:  os.Getenv("RESEND_API_KEY"),
			ResendBaseURL: getenvWithDefault("RESEND_BASE_URL", "https://api.resend.com"),
		},
	}, nil
}

// Validate reports the first missing key required by the API server.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	switch {
	case c.Server.Port == "":
		return errors.New("SERVER_PORT must not be empty")
	case c.Server.JWTSecret == "":
		return errors.New("JWT_SECRET must be provided")
	case c.Notify.QueueSize <= 0:
		return errors.New("NOTIFY_QUEUE_SIZE must be greater than zero")
	}
	if c.Notify.ResendAPIKey != "" {
		if c.Notify.EmailFrom == "" {
			return errors.New("EMAIL_FROM must be provided when RESEND_API_KEY is set")
		}
		if len(c.Notify.EmailTo) == 0 {
			return errors.New("EMAIL_TO must be provided when RESEND_API_KEY is set")
		}
	}
	return nil
}

// ValidateDatabase is the subset of Validate needed by tools that only touch
// the database, such as the migrator.
func (c *Config) ValidateDatabase() error {
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL must be provided")
	}
	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
