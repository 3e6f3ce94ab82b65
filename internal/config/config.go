package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Clinic REST backend
	BackendURL     string
	BackendTimeout time.Duration

	// Session storage
	RedisAddr           string
	RedisPassword       string
	RedisTLS            bool
	SessionTTL          time.Duration
	SessionCookieName   string
	SessionCookieSecure bool
	SessionJWTSecret    string

	// Form protection
	CSRFKey string

	// Audit log (optional)
	DatabaseURL string

	CORSAllowedOrigins []string
	LoginRatePerSec    float64
	LoginRateBurst     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BackendURL:     strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8000"), "/"),
		BackendTimeout: getEnvAsDuration("BACKEND_TIMEOUT", 10*time.Second),

		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisTLS:            getEnvAsBool("REDIS_TLS", false),
		SessionTTL:          getEnvAsDuration("SESSION_TTL", 30*time.Minute),
		SessionCookieName:   getEnv("SESSION_COOKIE_NAME", "portal_session"),
		SessionCookieSecure: getEnvAsBool("SESSION_COOKIE_SECURE", false),
		SessionJWTSecret:    getEnv("SESSION_JWT_SECRET", ""),

		CSRFKey: getEnv("CSRF_KEY", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		LoginRatePerSec:    getEnvAsFloat("LOGIN_RATE_PER_SEC", 1),
		LoginRateBurst:     getEnvAsInt("LOGIN_RATE_BURST", 5),
	}
}

// IsProduction reports whether the portal runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
