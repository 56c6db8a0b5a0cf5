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
	RedisURL   string
	JWTSecret  string

	// LMSBaseURL is the upstream LMS REST API that serves papers and
	// accepts submissions.
	LMSBaseURL string
	LMSTimeout time.Duration

	MaxUploadBytes int64
	// IDCardTemplate is a PNG used as the ID card background. Empty means
	// a plain generated card.
	IDCardTemplate string
	IDCardTitle    string

	// SessionIdle is how long a finished attempt stays in memory before it
	// is reaped.
	SessionIdle time.Duration

	// SubmitRatePerMinute limits manual submit calls per student.
	SubmitRatePerMinute int

	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // .env is optional

	return &Config{
		ServerPort:          getEnv("SERVER_PORT", "8080"),
		GinMode:             getEnv("GIN_MODE", "debug"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "pretty"),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret:           getEnv("JWT_SECRET", "change-this-to-a-secure-random-string"),
		LMSBaseURL:          getEnv("LMS_BASE_URL", "http://localhost:8050/api/v1"),
		LMSTimeout:          time.Duration(getEnvInt("LMS_TIMEOUT_SECONDS", 15)) * time.Second,
		MaxUploadBytes:      int64(getEnvInt("MAX_UPLOAD_SIZE_MB", 5)) * 1024 * 1024,
		IDCardTemplate:      getEnv("IDCARD_TEMPLATE", ""),
		IDCardTitle:         getEnv("IDCARD_TITLE", "EXSTEM STUDENT CARD"),
		SessionIdle:         time.Duration(getEnvInt("SESSION_IDLE_MINUTES", 30)) * time.Minute,
		SubmitRatePerMinute: getEnvInt("SUBMIT_RATE_PER_MINUTE", 20),
		AllowedOrigins:      parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
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
	if err != nil {
		return fallback
	}
	return n
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
