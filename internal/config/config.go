package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the companion chat service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	CompletionMode string
	CompletionURL  string

	SegmentBaseDelay time.Duration

	DatabaseURL   string
	RedisAddr     string
	AttachmentTTL time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "aiko"),
		AllowAnyOrigin:           false,
		CompletionMode:           envOrDefault("COMPLETION_MODE", "auto"),
		CompletionURL:            stringsTrimSpace("COMPLETION_URL"),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		RedisAddr:                stringsTrimSpace("REDIS_ADDR"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 10 * time.Minute,
		SegmentBaseDelay:         500 * time.Millisecond,
		AttachmentTTL:            24 * time.Hour,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SegmentBaseDelay, err = durationFromEnv("APP_SEGMENT_BASE_DELAY", cfg.SegmentBaseDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.AttachmentTTL, err = durationFromEnv("ATTACHMENT_TTL", cfg.AttachmentTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.SegmentBaseDelay < 50*time.Millisecond {
		return Config{}, fmt.Errorf("APP_SEGMENT_BASE_DELAY must be at least 50ms")
	}
	if cfg.AttachmentTTL <= 0 {
		return Config{}, fmt.Errorf("ATTACHMENT_TTL must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.CompletionMode)) {
	case "", "auto", "http", "mock":
	default:
		return Config{}, fmt.Errorf("COMPLETION_MODE must be auto, http or mock")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
