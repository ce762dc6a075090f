package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// hardTopItemsCap bounds how many items a single capture cycle may persist
// per realm, regardless of configuration.
const hardTopItemsCap = 500

type Config struct {
	DatabaseURL string
	Port        string
	Environment string

	// Blizzard API credentials (client credentials flow)
	BlizzardClientID     string
	BlizzardClientSecret string
	BlizzardRegion       string
	BlizzardLocale       string
	GameVersion          string // "retail" or "classic"

	// Upstream request budget and timeouts
	RequestsPerSecond float64
	RequestBurst      int
	ConnectTimeout    time.Duration
	RequestTimeout    time.Duration

	// Capture scheduling
	CaptureRealms   []string
	CaptureInterval time.Duration
	RealmTimeout    time.Duration
	TopItemsCap     int

	// Retention windows
	AggregateRetention    time.Duration
	DistributionRetention time.Duration

	// MCP transport: "stdio" or "http"
	MCPTransport string
	MCPHTTPAddr  string

	ActivityLogEnabled bool
}

func Load() *Config {
	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		BlizzardClientID:     getEnv("BLIZZARD_CLIENT_ID", ""),
		BlizzardClientSecret: getEnv("BLIZZARD_CLIENT_SECRET", ""),
		BlizzardRegion:       getEnv("BLIZZARD_REGION", "us"),
		BlizzardLocale:       getEnv("BLIZZARD_LOCALE", "en_US"),
		GameVersion:          getEnv("WOW_VERSION", "retail"),

		RequestsPerSecond: getEnvFloat("REQUESTS_PER_SECOND", 10),
		RequestBurst:      getEnvInt("REQUEST_BURST", 10),
		ConnectTimeout:    getEnvDuration("API_TIMEOUT_CONNECT", 10*time.Second),
		RequestTimeout:    getEnvDuration("API_TIMEOUT_TOTAL", 2*time.Minute),

		CaptureRealms:   getEnvList("CAPTURE_REALMS", []string{"stormrage", "area-52", "illidan"}),
		CaptureInterval: getEnvDuration("CAPTURE_INTERVAL", time.Hour),
		RealmTimeout:    getEnvDuration("CAPTURE_REALM_TIMEOUT", 5*time.Minute),
		TopItemsCap:     getEnvInt("TOP_ITEMS_CAP", hardTopItemsCap),

		AggregateRetention:    getEnvDuration("AGGREGATE_RETENTION", 30*24*time.Hour),
		DistributionRetention: getEnvDuration("DISTRIBUTION_RETENTION", 7*24*time.Hour),

		MCPTransport: getEnv("MCP_TRANSPORT", "stdio"),
		MCPHTTPAddr:  getEnv("MCP_HTTP_ADDR", "127.0.0.1:8483"),

		ActivityLogEnabled: getEnvBool("ACTIVITY_LOG_ENABLED", true),
	}

	if cfg.TopItemsCap <= 0 || cfg.TopItemsCap > hardTopItemsCap {
		cfg.TopItemsCap = hardTopItemsCap
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90m") or a bare number of
// seconds, matching how the original deployment configured timeouts.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
