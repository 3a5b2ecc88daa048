package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "file:/var/lib/ossuary/networks.db", cfg.DatabaseURL)
	assert.Equal(t, "wlan0", cfg.WiFiInterface)

	assert.Equal(t, "ossuary-setup", cfg.APSSID)
	assert.Empty(t, cfg.APPassphrase)
	assert.Equal(t, 6, cfg.APChannel)
	assert.Equal(t, "192.168.42.1", cfg.APIPAddress)
	assert.Equal(t, "192.168.42.0/24", cfg.APSubnet)

	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 15*time.Second, cfg.StartupTimeout)
	assert.Equal(t, 300*time.Second, cfg.FallbackTimeout)
	assert.Equal(t, "/var/lib/ossuary/ap-mode.json", cfg.ReconnectionMarker)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("WIFI_INTERFACE", "wlan1")
	t.Setenv("AP_SSID", "my-device")
	t.Setenv("AP_CHANNEL", "11")
	t.Setenv("FALLBACK_TIMEOUT", "2m")
	t.Setenv("CONNECT_TIMEOUT", "45")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "wlan1", cfg.WiFiInterface)
	assert.Equal(t, "my-device", cfg.APSSID)
	assert.Equal(t, 11, cfg.APChannel)
	assert.Equal(t, 2*time.Minute, cfg.FallbackTimeout)
	assert.Equal(t, 45*time.Second, cfg.ConnectTimeout, "bare integers are seconds")
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("AP_CHANNEL", "not-a-number")
	t.Setenv("POLL_INTERVAL", "soon")

	cfg := Load()

	assert.Equal(t, 6, cfg.APChannel)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
}

func TestEnvironmentChecks(t *testing.T) {
	t.Setenv("ENV", "development")
	cfg := Load()
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	t.Setenv("ENV", "production")
	cfg = Load()
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}
