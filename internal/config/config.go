// Package config provides configuration management for the Ossuary server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the server.
type Config struct {
	// Server configuration
	Port string
	Env  string

	// Database configuration
	DatabaseURL string

	// WiFi interface configuration
	WiFiInterface string

	// Access point configuration
	APSSID       string
	APPassphrase string // optional, min 8 chars when set
	APChannel    int
	APIPAddress  string
	APSubnet     string

	// State machine timing
	PollInterval       time.Duration // steady-state poll cadence
	ConnectTimeout     time.Duration // interactive connect wait
	StartupTimeout     time.Duration // per-attempt wait during startup reconnection
	FallbackTimeout    time.Duration // disconnected time before AP mode engages
	ScanSettle         time.Duration // wait after requesting a scan
	APSettle           time.Duration // wait after activating the AP profile
	StartupRetryPause  time.Duration // pause between startup attempts
	ReconnectionMarker string        // path of the AP-mode marker file

	// CORS configuration
	CORSOrigin string
}

// Load loads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "file:/var/lib/ossuary/networks.db"),

		// WiFi
		WiFiInterface: getEnv("WIFI_INTERFACE", "wlan0"),

		// Access point
		APSSID:       getEnv("AP_SSID", "ossuary-setup"),
		APPassphrase: getEnv("AP_PASSPHRASE", ""),
		APChannel:    getEnvInt("AP_CHANNEL", 6),
		APIPAddress:  getEnv("AP_IP", "192.168.42.1"),
		APSubnet:     getEnv("AP_SUBNET", "192.168.42.0/24"),

		// Timing
		PollInterval:       getEnvDuration("POLL_INTERVAL", 5*time.Second),
		ConnectTimeout:     getEnvDuration("CONNECT_TIMEOUT", 30*time.Second),
		StartupTimeout:     getEnvDuration("STARTUP_CONNECT_TIMEOUT", 15*time.Second),
		FallbackTimeout:    getEnvDuration("FALLBACK_TIMEOUT", 300*time.Second),
		ScanSettle:         getEnvDuration("SCAN_SETTLE", 5*time.Second),
		APSettle:           getEnvDuration("AP_SETTLE", 5*time.Second),
		StartupRetryPause:  getEnvDuration("STARTUP_RETRY_PAUSE", 2*time.Second),
		ReconnectionMarker: getEnv("RECONNECTION_MARKER", "/var/lib/ossuary/ap-mode.json"),

		// CORS
		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:3000"),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns the duration value of an environment variable or a
// default value. Plain integers are interpreted as seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
