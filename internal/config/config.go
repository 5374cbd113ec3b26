package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	Cache    CacheConfig
}

// ServerConfig holds inbound HTTP settings.
type ServerConfig struct {
	Port               string
	FrontendURL        string
	LogLevel           slog.Level
	RateLimitPerMinute int
}

// UpstreamConfig holds settings for the weather provider.
type UpstreamConfig struct {
	APIKey         string
	GeoBaseURL     string
	DataBaseURL    string
	Timeout        time.Duration
	RequestsPerSec float64
}

// CacheConfig holds the optional Redis response cache settings.
type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
}

// AllowedOrigins returns the CORS origins: the configured frontend plus the
// local development servers.
func (c ServerConfig) AllowedOrigins() []string {
	origins := []string{c.FrontendURL}
	for _, o := range []string{"http://localhost:5173", "http://localhost:3000"} {
		if o != c.FrontendURL {
			origins = append(origins, o)
		}
	}
	return origins
}

// Load reads configuration from a .env file, if present, and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	rateLimit, err := getEnvAsInt("RATE_LIMIT_PER_MINUTE", 0)
	if err != nil {
		return nil, err
	}
	timeout, err := getEnvAsDuration("UPSTREAM_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	rps, err := getEnvAsFloat("UPSTREAM_RPS", 0)
	if err != nil {
		return nil, err
	}
	ttl, err := getEnvAsDuration("CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:5173"),
			LogLevel:           level,
			RateLimitPerMinute: rateLimit,
		},
		Upstream: UpstreamConfig{
			APIKey:         os.Getenv("OPENWEATHERMAP_API_KEY"),
			GeoBaseURL:     getEnv("OWM_GEO_BASE_URL", "https://api.openweathermap.org/geo/1.0"),
			DataBaseURL:    getEnv("OWM_DATA_BASE_URL", "https://api.openweathermap.org/data/2.5"),
			Timeout:        timeout,
			RequestsPerSec: rps,
		},
		Cache: CacheConfig{
			RedisURL: os.Getenv("REDIS_URL"),
			TTL:      ttl,
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", key, value)
	}
	return n, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative number", key, value)
	}
	return f, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}
