package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is built once at process start and passed by reference into the
// store and provider adapters. Business logic never reads the environment
// directly.
type Config struct {
	DatabaseURL string
	RedisAddr   string
	FactTTL     time.Duration

	MapsBaseURL string
	MapsAPIKey  string

	CarrierBaseURL string
	CarrierAPIKey  string

	AlertWebhookURL string

	Port string

	StoreTimeout     time.Duration
	ProviderBackoff  time.Duration
	WriteBackBackoff time.Duration
}

// Load reads configuration from the environment. DATABASE_URL,
// MAPS_API_KEY and CARRIER_BASE_URL are required; everything else has a
// workable default.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		MapsBaseURL:     Get("MAPS_BASE_URL", "https://maps.googleapis.com"),
		MapsAPIKey:      os.Getenv("MAPS_API_KEY"),
		CarrierBaseURL:  os.Getenv("CARRIER_BASE_URL"),
		CarrierAPIKey:   os.Getenv("CARRIER_API_KEY"),
		AlertWebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
		Port:            Get("PORT", "8080"),
	}

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, fmt.Errorf("load config: DATABASE_URL is required")
	}
	if strings.TrimSpace(cfg.MapsAPIKey) == "" {
		return nil, fmt.Errorf("load config: MAPS_API_KEY is required")
	}
	if strings.TrimSpace(cfg.CarrierBaseURL) == "" {
		return nil, fmt.Errorf("load config: CARRIER_BASE_URL is required")
	}

	var err error
	if cfg.StoreTimeout, err = duration("STORE_TIMEOUT", 6*time.Second); err != nil {
		return nil, err
	}
	if cfg.ProviderBackoff, err = duration("PROVIDER_RETRY_BACKOFF", time.Minute); err != nil {
		return nil, err
	}
	if cfg.WriteBackBackoff, err = duration("WRITEBACK_RETRY_BACKOFF", time.Second); err != nil {
		return nil, err
	}
	if cfg.FactTTL, err = duration("FACT_CACHE_TTL", 12*time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Get returns the environment value for key, or fallback when unset.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("load config: parse %s=%q: %w", key, v, err)
	}
	return d, nil
}
