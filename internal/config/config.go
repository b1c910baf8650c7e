package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	ServerPort string
	GinMode    string
	LogLevel   string
	LogFormat  string

	// BackendURL is the base URL of the exam Backend Service.
	BackendURL     string
	BackendToken   string
	BackendTimeout time.Duration

	// RedisURL enables the Redis answer journal. Empty keeps the journal in memory.
	RedisURL string

	ViolationThreshold int
	TabSwitchDebounce  time.Duration
	BlurGrace          time.Duration
	MultiTabPoll       time.Duration
	TickInterval       time.Duration
	ReportQueueSize    int

	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:         getEnv("SERVER_PORT", "8090"),
		GinMode:            getEnv("GIN_MODE", "debug"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "auto"),
		BackendURL:         strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8080"), "/"),
		BackendToken:       getEnv("BACKEND_TOKEN", ""),
		BackendTimeout:     getEnvMillis("BACKEND_TIMEOUT_MS", 10_000),
		RedisURL:           getEnv("REDIS_URL", ""),
		ViolationThreshold: getEnvInt("VIOLATION_THRESHOLD", 6),
		TabSwitchDebounce:  getEnvMillis("TAB_SWITCH_DEBOUNCE_MS", 500),
		BlurGrace:          getEnvMillis("BLUR_GRACE_MS", 1000),
		MultiTabPoll:       getEnvMillis("MULTI_TAB_POLL_MS", 5000),
		TickInterval:       getEnvMillis("TICK_INTERVAL_MS", 1000),
		ReportQueueSize:    getEnvInt("REPORT_QUEUE_SIZE", 64),
		AllowedOrigins:     parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Millisecond
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
