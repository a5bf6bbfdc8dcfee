// Package config reads the server's settings from the environment.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend modes.
const (
	BackendLocal = "local"
	BackendREST  = "rest"
)

// Config holds all server configuration.
type Config struct {
	Env  string
	Addr string

	DBPath string

	Backend BackendConfig
	Log     LogConfig
	Email   EmailConfig

	// CSRFKey is the 32-byte gorilla/csrf authentication key, hex-encoded in HEAR_CSRF_KEY.
	CSRFKey []byte
	// SecureCookies marks cookies Secure; on in production.
	SecureCookies bool

	TraceExporter string
	PerfEnabled   bool

	RateLimit      float64 // requests per second per IP
	RateBurst      int
	SlowRequest    time.Duration
	VisitorIdle    time.Duration
	SweepInterval  time.Duration
	ShutdownPeriod time.Duration
}

// BackendConfig selects and configures the hosted backend.
type BackendConfig struct {
	Mode        string
	URL         string
	AnonKey     string
	Timeout     time.Duration
	MaxFailures uint32
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// EmailConfig configures lead notification e-mails.
type EmailConfig struct {
	ResendKey string
	From      string
	LeadInbox string
}

// IsProduction reports whether the server runs in production.
func (c *Config) IsProduction() bool { return c.Env == "production" }

// Load reads configuration from environment variables, after loading a .env
// file when one exists.
// POST: a nil error means every setting required for Env is present
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		Env:    get("HEAR_ENV", "development"),
		Addr:   get("HEAR_ADDR", ":8080"),
		DBPath: get("HEAR_DB_PATH", "hear.db"),
		Backend: BackendConfig{
			Mode:    strings.ToLower(get("HEAR_BACKEND", BackendLocal)),
			URL:     getenv("HEAR_BACKEND_URL"),
			AnonKey: getenv("HEAR_BACKEND_ANON_KEY"),
		},
		Log: LogConfig{
			Level:  get("HEAR_LOG_LEVEL", "info"),
			Format: get("HEAR_LOG_FORMAT", "text"),
			Output: get("HEAR_LOG_OUTPUT", "stderr"),
		},
		Email: EmailConfig{
			ResendKey: getenv("HEAR_RESEND_KEY"),
			From:      get("HEAR_EMAIL_FROM", "H.E.A.R <noreply@hear.example>"),
			LeadInbox: get("HEAR_LEAD_INBOX", "hearcompany25@gmail.com"),
		},
		TraceExporter: get("HEAR_TRACE_EXPORTER", "noop"),
	}

	var err error
	if cfg.Backend.Timeout, err = duration(get("HEAR_BACKEND_TIMEOUT", "10s")); err != nil {
		return nil, fmt.Errorf("HEAR_BACKEND_TIMEOUT: %w", err)
	}
	maxFailures, err := strconv.ParseUint(get("HEAR_BACKEND_MAX_FAILURES", "5"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("HEAR_BACKEND_MAX_FAILURES: %w", err)
	}
	cfg.Backend.MaxFailures = uint32(maxFailures)
	if cfg.PerfEnabled, err = strconv.ParseBool(get("HEAR_PERF", "true")); err != nil {
		return nil, fmt.Errorf("HEAR_PERF: %w", err)
	}
	if cfg.RateLimit, err = strconv.ParseFloat(get("HEAR_RATE_LIMIT", "10"), 64); err != nil {
		return nil, fmt.Errorf("HEAR_RATE_LIMIT: %w", err)
	}
	if cfg.RateBurst, err = strconv.Atoi(get("HEAR_RATE_BURST", "30")); err != nil {
		return nil, fmt.Errorf("HEAR_RATE_BURST: %w", err)
	}
	if cfg.VisitorIdle, err = duration(get("HEAR_VISITOR_IDLE", "24h")); err != nil {
		return nil, fmt.Errorf("HEAR_VISITOR_IDLE: %w", err)
	}
	if cfg.SweepInterval, err = duration(get("HEAR_SWEEP_INTERVAL", "10m")); err != nil {
		return nil, fmt.Errorf("HEAR_SWEEP_INTERVAL: %w", err)
	}
	if cfg.SlowRequest, err = duration(get("HEAR_SLOW_REQUEST", "200ms")); err != nil {
		return nil, fmt.Errorf("HEAR_SLOW_REQUEST: %w", err)
	}
	if cfg.ShutdownPeriod, err = duration(get("HEAR_SHUTDOWN_PERIOD", "10s")); err != nil {
		return nil, fmt.Errorf("HEAR_SHUTDOWN_PERIOD: %w", err)
	}

	if keyHex := getenv("HEAR_CSRF_KEY"); keyHex != "" {
		if cfg.CSRFKey, err = hex.DecodeString(keyHex); err != nil {
			return nil, fmt.Errorf("HEAR_CSRF_KEY must be hex-encoded: %w", err)
		}
	}
	cfg.SecureCookies = cfg.IsProduction()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend.Mode {
	case BackendLocal:
	case BackendREST:
		if c.Backend.URL == "" {
			return fmt.Errorf("HEAR_BACKEND_URL is required when HEAR_BACKEND=rest")
		}
		if c.Backend.AnonKey == "" {
			return fmt.Errorf("HEAR_BACKEND_ANON_KEY is required when HEAR_BACKEND=rest")
		}
	default:
		return fmt.Errorf("HEAR_BACKEND must be %q or %q, got %q", BackendLocal, BackendREST, c.Backend.Mode)
	}

	if len(c.CSRFKey) == 0 {
		if c.IsProduction() {
			return fmt.Errorf("HEAR_CSRF_KEY is required in production")
		}
		// development only: a fixed key keeps forms valid across restarts
		c.CSRFKey = []byte("hear-development-csrf-key-32byte")
	}
	if len(c.CSRFKey) != 32 {
		return fmt.Errorf("HEAR_CSRF_KEY must be 64 hex characters (32 bytes), got %d bytes", len(c.CSRFKey))
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("HEAR_RATE_LIMIT and HEAR_RATE_BURST must be positive")
	}
	return nil
}

func duration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}
