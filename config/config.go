package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the report workflow service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port string

	// Auth configuration
	JWTSecret string

	// Notification configuration
	SendGridAPIKey string
	EmailFromName  string
	EmailFrom      string
	OpsEmail       string

	// Jurisdiction lookup
	WardGeoJSONPath string

	// Escalation thresholds in days, per priority
	EscalationCriticalDays int
	EscalationHighDays     int
	EscalationMediumDays   int
	EscalationLowDays      int

	// Rate limiting for report submission
	SubmitRateLimit  int
	SubmitRateWindow time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret"),
		DBName:     getEnv("DB_NAME", "civicreport"),

		Port: getEnv("PORT", "8080"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "Civic Report"),
		EmailFrom:      getEnv("EMAIL_FROM", "noreply@civicreport.example"),
		OpsEmail:       getEnv("OPS_EMAIL", ""),

		WardGeoJSONPath: getEnv("WARD_GEOJSON_PATH", ""),

		EscalationCriticalDays: getIntEnv("ESCALATION_CRITICAL_DAYS", 2),
		EscalationHighDays:     getIntEnv("ESCALATION_HIGH_DAYS", 5),
		EscalationMediumDays:   getIntEnv("ESCALATION_MEDIUM_DAYS", 10),
		EscalationLowDays:      getIntEnv("ESCALATION_LOW_DAYS", 20),

		SubmitRateLimit:  getIntEnv("SUBMIT_RATE_LIMIT", 10),
		SubmitRateWindow: time.Duration(getIntEnv("SUBMIT_RATE_WINDOW_SECONDS", 60)) * time.Second,
	}
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
