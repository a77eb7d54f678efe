package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer             string // Optional: issuer label for TOTP provisioning URIs (default: HexPhish)
	SecretKey          string // Optional: session signing key; generated and persisted when empty
	SecretKeyFile      string // Optional: path the generated signing key is persisted to (default: ./secret.key)
	DatabaseFile       string // Optional: path to SQLite database file (default: ./hexphish.db)
	ForceSecureCookies bool   // Optional: mark cookies Secure and send HSTS even behind plain HTTP (default: false)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	return Config{
		Issuer:               getEnvOrDefault("HEXPHISH_ISSUER", "HexPhish"),
		SecretKey:            os.Getenv("HEXPHISH_SECRET_KEY"),
		SecretKeyFile:        getEnvOrDefault("HEXPHISH_SECRET_KEY_FILE", "secret.key"),
		DatabaseFile:         getEnvOrDefault("HEXPHISH_DATABASE_FILE", "hexphish.db"),
		ForceSecureCookies:   getEnvBoolOrDefault("HEXPHISH_FORCE_SECURE_COOKIES", false),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are treated as minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
