// Package config loads application configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env         string // application environment (e.g. "dev", "prod")
	Port        string // HTTP port to listen on
	StoreDriver string // "mysql" or "memory"

	DBUser string
	DBPass string // optional
	DBHost string
	DBPort string
	DBName string

	JWTSecret  string        // secret used to sign JWTs, no default
	TokenTTL   time.Duration // access token lifetime
	BcryptCost int

	CORSOrigin string

	SMTPHost string // empty disables outgoing mail; messages are logged instead
	SMTPPort int
	SMTPUser string
	SMTPPass string
	MailFrom string

	UploadDir      string
	UploadMaxBytes int64
	ClientDir      string // built SPA bundle, empty to disable

	AMQPURL string // empty disables exchange events
}

// Load reads the configuration.  A .env file in the working directory is
// loaded first if present; variables already set in the environment win.
// Missing or malformed required values are reported together.
func Load() (Config, error) {
	_ = godotenv.Load()

	var e env
	cfg := Config{
		Env:         e.must("APP_ENV"),
		Port:        e.must("APP_PORT"),
		StoreDriver: strings.ToLower(envStr("STORE_DRIVER", DriverMySQL)),

		JWTSecret:  e.must("JWT_SECRET"),
		TokenTTL:   time.Duration(e.intOr("TOKEN_TTL_HOURS", 24)) * time.Hour,
		BcryptCost: e.intOr("BCRYPT_COST", 10),

		CORSOrigin: envStr("CORS_ALLOWED_ORIGIN", "http://localhost:5173"),

		SMTPHost: os.Getenv("SMTP_HOST"),
		SMTPPort: e.intOr("SMTP_PORT", 587),
		SMTPUser: os.Getenv("SMTP_USER"),
		SMTPPass: os.Getenv("SMTP_PASS"),
		MailFrom: envStr("MAIL_FROM", "BookSwap <no-reply@bookswap.local>"),

		UploadDir:      envStr("UPLOAD_DIR", "uploads"),
		UploadMaxBytes: int64(e.intOr("UPLOAD_MAX_BYTES", 5<<20)),
		ClientDir:      os.Getenv("CLIENT_DIR"),

		AMQPURL: envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
	}

	switch cfg.StoreDriver {
	case DriverMySQL:
		cfg.DBUser = e.must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS")
		cfg.DBHost = e.must("DB_HOST")
		cfg.DBPort = e.must("DB_PORT")
		cfg.DBName = e.must("DB_NAME")
	case DriverMemory:
	default:
		e.fail(fmt.Errorf("invalid STORE_DRIVER %q (want %s or %s)", cfg.StoreDriver, DriverMySQL, DriverMemory))
	}
	if cfg.TokenTTL <= 0 {
		e.fail(errors.New("TOKEN_TTL_HOURS must be positive"))
	}
	if cfg.UploadMaxBytes <= 0 {
		e.fail(errors.New("UPLOAD_MAX_BYTES must be positive"))
	}
	if err := e.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsProd reports whether the service runs in production mode.
func (c Config) IsProd() bool {
	return c.Env == "prod" || c.Env == "production"
}

// env collects configuration errors so they can be reported at once.
type env struct {
	errs []error
}

func (e *env) fail(err error) { e.errs = append(e.errs, err) }

func (e *env) err() error { return errors.Join(e.errs...) }

// must retrieves the value of a required environment variable.
func (e *env) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		e.fail(fmt.Errorf("missing required env var: %s", key))
	}
	return v
}

// intOr parses an optional integer variable, falling back to def when the
// variable is unset.
func (e *env) intOr(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		e.fail(fmt.Errorf("invalid int for %s: %q", key, s))
		return def
	}
	return n
}
