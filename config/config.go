package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration for the citypulse service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port string

	// Gemini configuration
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	// Analytics configuration
	AnalyticsWindowDays int

	// Nearby query defaults
	DefaultNearbyRadiusKm float64

	// RabbitMQ configuration (deferred classification)
	RabbitMQHost          string
	RabbitMQPort          string
	RabbitMQUser          string
	RabbitMQPassword      string
	RabbitMQExchange      string
	RabbitMQClassifyQueue string
	RabbitMQClassifyKey   string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables
func Load() *Config {
	config := &Config{
		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "citypulse"),

		// Server defaults
		Port: getEnv("PORT", "8080"),

		// Gemini defaults
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-flash-latest"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		// Analytics defaults
		AnalyticsWindowDays: getIntEnv("ANALYTICS_WINDOW_DAYS", 30),

		// Nearby defaults
		DefaultNearbyRadiusKm: getFloatEnv("NEARBY_RADIUS_KM", 5.0),

		// RabbitMQ defaults
		RabbitMQHost:          getEnv("RABBITMQ_HOST", ""),
		RabbitMQPort:          getEnv("RABBITMQ_PORT", "5672"),
		RabbitMQUser:          getEnv("RABBITMQ_USER", "guest"),
		RabbitMQPassword:      getEnv("RABBITMQ_PASSWORD", "guest"),
		RabbitMQExchange:      getEnv("RABBITMQ_EXCHANGE", "citypulse"),
		RabbitMQClassifyQueue: getEnv("RABBITMQ_CLASSIFY_QUEUE", "issue-classify"),
		RabbitMQClassifyKey:   getEnv("RABBITMQ_CLASSIFY_ROUTING_KEY", "issue.classify"),

		// Logging defaults
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return config
}

// GetAMQPURL constructs the AMQP URL from individual components
func (c *Config) GetAMQPURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.RabbitMQUser, c.RabbitMQPassword, c.RabbitMQHost, c.RabbitMQPort)
}

// RabbitMQEnabled reports whether deferred classification is configured.
func (c *Config) RabbitMQEnabled() bool {
	return c.RabbitMQHost != ""
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getFloatEnv gets a float environment variable or returns a default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
