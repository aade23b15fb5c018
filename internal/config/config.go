// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds everything cmd/weatherd needs to bootstrap the service.
type Config struct {
	AppEnv      string
	AppName     string
	HTTPPort    string
	MetricsPort string
	LogLevel    string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisHost         string
	RedisPort         string
	RedisPassword     string
	RedisDB           int
	RedisPoolSize     int
	RedisMinIdleConns int
	RedisMaxRetries   int

	WeatherProviderBaseURL   string
	WeatherProviderUserAgent string

	WeatherZonesConfigPath string
	UpdateWeatherCron      string
}

// Load reads configuration from the environment, applying defaults and
// validating the fields that have no safe default.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnvOrDefault("APP_ENV", "development"),
		AppName:     getEnvOrDefault("APP_NAME", "weatherzone"),
		HTTPPort:    getEnvOrDefault("HTTP_PORT", "8080"),
		MetricsPort: getEnvOrDefault("METRICS_PORT", "9090"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),

		DBHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DBPort:     getEnvOrDefault("DB_PORT", "5432"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnvOrDefault("DB_NAME", "weatherzone"),
		DBSSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),

		RedisHost:     getEnvOrDefault("REDIS_HOST", "redis"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		WeatherProviderBaseURL:   os.Getenv("WEATHER_PROVIDER_BASE_URL"),
		WeatherProviderUserAgent: os.Getenv("WEATHER_PROVIDER_USER_AGENT"),

		WeatherZonesConfigPath: getEnvOrDefault("WEATHER_ZONES_CONFIG_PATH", "./config/zones.json"),
		UpdateWeatherCron:      getEnvOrDefault("UPDATE_WEATHER_CRON", "@every 15m"),
	}

	var err error
	if v := os.Getenv("REDIS_DB"); v != "" {
		if cfg.RedisDB, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
	}
	cfg.RedisPoolSize = getEnvOrDefaultInt("REDIS_POOL_SIZE", 10)
	cfg.RedisMinIdleConns = getEnvOrDefaultInt("REDIS_MIN_IDLE_CONNS", 5)
	cfg.RedisMaxRetries = getEnvOrDefaultInt("REDIS_MAX_RETRIES", 3)

	if cfg.DBUser == "" || cfg.DBPassword == "" {
		return nil, fmt.Errorf("missing required environment variables: DB_USER/DB_PASSWORD")
	}
	if cfg.WeatherProviderBaseURL == "" {
		return nil, fmt.Errorf("missing required environment variable: WEATHER_PROVIDER_BASE_URL")
	}
	if cfg.WeatherProviderUserAgent == "" {
		return nil, fmt.Errorf("missing required environment variable: WEATHER_PROVIDER_USER_AGENT")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}
