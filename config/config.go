package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all application-level configuration
type Config struct {
	// Database
	DatabaseURL string

	// Scheduler
	ParseIntervalSec int // seconds between scheduled cycles
	MaxConcurrency   int // sources scraped in parallel per cycle
	ShutdownGraceSec int // seconds to let in-flight runs finish on shutdown

	// Fetcher
	FetchTimeoutSec int
	MaxRetries      int
	RateLimitDelay  int // milliseconds between requests to the same source

	// Normalizer
	CategoryRulesPath string // YAML keyword->category rules; empty = built-in defaults

	// API
	APIPort string
	APIKey  string

	// Seed sources, comma-separated booking page URLs
	ParseURLs []string

	// Output
	ExportDir string
}

// Load reads configuration from environment variables or falls back to defaults
func Load() *Config {
	return &Config{
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		ParseIntervalSec:  getEnvInt("PARSE_INTERVAL", 600),
		MaxConcurrency:    getEnvInt("MAX_CONCURRENCY", 3),
		ShutdownGraceSec:  getEnvInt("SHUTDOWN_GRACE_SEC", 20),
		FetchTimeoutSec:   getEnvInt("FETCH_TIMEOUT_SEC", 15),
		MaxRetries:        getEnvInt("MAX_RETRIES", 3),
		RateLimitDelay:    getEnvInt("RATE_LIMIT_DELAY_MS", 2000),
		CategoryRulesPath: getEnv("CATEGORY_RULES_PATH", ""),
		APIPort:           getEnv("API_PORT", "8000"),
		APIKey:            getEnv("API_KEY", "default_key"),
		ParseURLs:         splitURLs(getEnv("PARSE_URLS", "")),
		ExportDir:         getEnv("EXPORT_DIR", "output"),
	}
}

func splitURLs(raw string) []string {
	var urls []string
	for _, u := range strings.Split(raw, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}
