package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr            string
	BackendBaseURL  string
	BackendToken    string
	PollInterval    time.Duration
	DatabaseURL     string
	KafkaBrokers    []string
	KafkaTopic      string
	S3Bucket        string
	S3Prefix        string
	RedisAddr       string
	CatalogCacheTTL time.Duration
	AuthSecret      string
	AllowDebugToken bool
	DebugToken      string
	LinksFile       string
}

const (
	defaultAddr         = ":8072"
	defaultPollInterval = 30 * time.Second
	defaultKafkaTopic   = "roadmap.stage-transitions"
	defaultCatalogTTL   = 24 * time.Hour
)

func Load() (Config, error) {
	cfg := Config{
		Addr:            getEnv("ROADMAP_ADDR", defaultAddr),
		BackendBaseURL:  os.Getenv("ROADMAP_BACKEND_URL"),
		BackendToken:    os.Getenv("ROADMAP_BACKEND_TOKEN"),
		PollInterval:    getDuration("ROADMAP_POLL_INTERVAL", defaultPollInterval),
		DatabaseURL:     firstNonEmpty(os.Getenv("ROADMAP_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		KafkaBrokers:    splitList(os.Getenv("ROADMAP_KAFKA_BROKERS")),
		KafkaTopic:      getEnv("ROADMAP_KAFKA_TOPIC", defaultKafkaTopic),
		S3Bucket:        os.Getenv("ROADMAP_S3_BUCKET"),
		S3Prefix:        os.Getenv("ROADMAP_S3_PREFIX"),
		RedisAddr:       os.Getenv("ROADMAP_REDIS_ADDR"),
		CatalogCacheTTL: getDuration("ROADMAP_CATALOG_TTL", defaultCatalogTTL),
		AuthSecret:      os.Getenv("ROADMAP_AUTH_SECRET"),
		AllowDebugToken: getBool("ROADMAP_ALLOW_DEBUG_TOKEN", false),
		DebugToken:      os.Getenv("ROADMAP_DEBUG_TOKEN"),
		LinksFile:       os.Getenv("ROADMAP_LINKS_FILE"),
	}
	if cfg.BackendBaseURL == "" {
		return Config{}, fmt.Errorf("ROADMAP_BACKEND_URL required")
	}
	if cfg.AuthSecret == "" && !cfg.AllowDebugToken {
		return Config{}, fmt.Errorf("ROADMAP_AUTH_SECRET required when debug tokens are disabled")
	}
	if cfg.AllowDebugToken && cfg.DebugToken == "" {
		return Config{}, fmt.Errorf("ROADMAP_DEBUG_TOKEN required when ROADMAP_ALLOW_DEBUG_TOKEN is set")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
