package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the client, the CLI and the dev server.
type Config struct {
	APIURL      string        `validate:"required,url"`
	WSURL       string        `validate:"required,url"`
	Token       string        `validate:"-"`
	UserID      string        `validate:"-"`
	HTTPTimeout time.Duration `validate:"gt=0"`

	LogFormat string `validate:"oneof=text json"`
	LogLevel  string `validate:"oneof=debug info warn error"`

	ServerAddr string `validate:"required"`
	JWTSecret  string `validate:"required,min=8"`
	SeedFile   string

	TracingEnabled     bool
	TracingServiceName string
	TracingZipkinURL   string `validate:"omitempty,url"`
}

// Defaults used when an environment variable is unset.
const (
	DefaultAPIURL      = "http://localhost:8080"
	DefaultWSURL       = "ws://localhost:8080/ws"
	DefaultHTTPTimeout = 10 * time.Second
	DefaultServerAddr  = ":8080"
	DefaultJWTSecret   = "chatsync-dev-secret"
)

var validate = validator.New()

// New loads configuration from an optional .env file and the environment.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		APIURL:             getEnv("CHATSYNC_API_URL", DefaultAPIURL),
		WSURL:              getEnv("CHATSYNC_WS_URL", DefaultWSURL),
		Token:              os.Getenv("CHATSYNC_TOKEN"),
		UserID:             os.Getenv("CHATSYNC_USER_ID"),
		HTTPTimeout:        DefaultHTTPTimeout,
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		ServerAddr:         getEnv("CHATSYNC_ADDR", DefaultServerAddr),
		JWTSecret:          getEnv("CHATSYNC_JWT_SECRET", DefaultJWTSecret),
		SeedFile:           os.Getenv("CHATSYNC_SEED_FILE"),
		TracingServiceName: getEnv("PUBSUB_TRACING_SERVICE_NAME", "chatsync"),
		TracingZipkinURL:   getEnv("PUBSUB_TRACING_ZIPKIN_URL", "http://localhost:9411/api/v2/spans"),
	}

	if raw := os.Getenv("CHATSYNC_HTTP_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parse CHATSYNC_HTTP_TIMEOUT: %w", err)
		}
		cfg.HTTPTimeout = d
	}

	if raw := os.Getenv("PUBSUB_TRACING_ENABLED"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("parse PUBSUB_TRACING_ENABLED: %w", err)
		}
		cfg.TracingEnabled = enabled
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for missing or malformed values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// RequireSession reports an error when the values needed to act as a chat
// client (a bearer token and the viewer's id) are missing.
func (c *Config) RequireSession() error {
	if c.Token == "" || c.UserID == "" {
		return fmt.Errorf("CHATSYNC_TOKEN and CHATSYNC_USER_ID must be set (see `chatsync token`)")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
