package netman

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStartupHarness(t *testing.T, h *testHarness) (*StartupReconnector, *FallbackTimer) {
	t.Helper()
	fallback := NewFallbackTimer(time.Hour,
		func() bool { return h.poller.State() == StateDisconnected },
		func() {},
	)
	h.manager.SetFallback(fallback)
	reconnector := NewStartupReconnector(h.manager, h.store, h.poller, fallback, h.markers,
		50*time.Millisecond, time.Millisecond)
	return reconnector, fallback
}

func TestStartupSkipsWhenAlreadyConnected(t *testing.T) {
	h := newTestHarness(t)
	reconnector, fallback := newStartupHarness(t, h)
	h.backend.setConnected("HomeWiFi")

	reconnector.Run(context.Background())

	assert.Empty(t, h.backend.activated, "no attempts when already connected")
	assert.False(t, fallback.Active())
}

func TestStartupAttemptsInRecencyOrder(t *testing.T) {
	h := newTestHarness(t)
	reconnector, _ := newStartupHarness(t, h)

	// Older network remembered first; the newer one must still be tried first.
	seedKnownNetwork(t, h, "OldNetwork", 48*time.Hour)
	seedKnownNetwork(t, h, "RecentNetwork", time.Hour)
	h.backend.addProfile("OldNetwork")
	h.backend.addProfile("RecentNetwork")

	// First attempt fails, second succeeds.
	attempts := 0
	h.backend.onActivate = func(p Profile) {
		attempts++
		if attempts == 1 {
			h.backend.deviceState = DeviceStateFailed
			return
		}
		h.backend.active = &ActiveConnection{ID: "active-" + p.ID, Profile: p}
		h.backend.deviceState = DeviceStateActivated
	}

	reconnector.Run(context.Background())

	require.Len(t, h.backend.activated, 2)
	assert.Equal(t, "RecentNetwork", h.backend.activated[0])
	assert.Equal(t, "OldNetwork", h.backend.activated[1])
	assert.Equal(t, StateConnected, h.poller.State())
}

func TestStartupArmsFallbackWhenAllAttemptsFail(t *testing.T) {
	h := newTestHarness(t)
	reconnector, fallback := newStartupHarness(t, h)

	seedKnownNetwork(t, h, "Unreachable", time.Hour)
	h.backend.addProfile("Unreachable")
	h.backend.onActivate = func(p Profile) {
		h.backend.deviceState = DeviceStateFailed
	}

	reconnector.Run(context.Background())

	assert.NotEqual(t, StateConnected, h.poller.State())
	assert.True(t, fallback.Active(), "fallback must be armed, not AP mode activated directly")
}

func TestStartupArmsFallbackWithNoKnownNetworks(t *testing.T) {
	h := newTestHarness(t)
	reconnector, fallback := newStartupHarness(t, h)

	reconnector.Run(context.Background())

	assert.Empty(t, h.backend.activated)
	assert.True(t, fallback.Active())
}

func TestStartupSkipsAutoConnectDisabled(t *testing.T) {
	h := newTestHarness(t)
	reconnector, _ := newStartupHarness(t, h)

	seedKnownNetwork(t, h, "Suppressed", time.Hour)
	require.NoError(t, h.store.SetAutoConnect(context.Background(), "Suppressed", false))
	h.backend.addProfile("Suppressed")

	reconnector.Run(context.Background())

	assert.Empty(t, h.backend.activated)
}

func TestStartupReconcilesManualMarker(t *testing.T) {
	h := newTestHarness(t)
	reconnector, _ := newStartupHarness(t, h)

	seedKnownNetwork(t, h, "HomeWiFi", time.Hour)
	require.NoError(t, h.store.SetAutoConnect(context.Background(), "HomeWiFi", false))
	h.backend.addProfile("HomeWiFi")

	ssid := "HomeWiFi"
	require.NoError(t, h.markers.Write(ReconnectionMarker{
		PreviousSSID:     &ssid,
		Timestamp:        time.Now(),
		ManualActivation: true,
	}))

	reconnector.Run(context.Background())

	assert.Equal(t, []string{"HomeWiFi"}, h.backend.activated)
	assert.Equal(t, StateConnected, h.poller.State())
	assert.Nil(t, h.markers.Consume(), "marker must be deleted after reconciliation")

	rec, err := h.store.FindBySSID(context.Background(), "HomeWiFi")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.AutoConnect, "auto-connect must be restored from marker reconciliation")
}

func TestStartupAutomaticMarkerRestoresAutoConnectOnly(t *testing.T) {
	h := newTestHarness(t)
	reconnector, fallback := newStartupHarness(t, h)

	require.NoError(t, h.markers.Write(ReconnectionMarker{
		Timestamp:        time.Now(),
		ManualActivation: false,
	}))

	reconnector.Run(context.Background())

	assert.Empty(t, h.backend.activated, "automatic marker must not trigger a targeted reconnect")
	assert.True(t, fallback.Active())
	assert.Nil(t, h.markers.Consume())
}

// seedKnownNetwork stores an auto-connect network whose last use was usedAgo
// in the past.
func seedKnownNetwork(t *testing.T, h *testHarness, ssid string, usedAgo time.Duration) {
	t.Helper()
	rec, err := h.store.Remember(context.Background(), ssid, nil, "unknown", 0)
	require.NoError(t, err)
	used := time.Now().Add(-usedAgo)
	rec.LastUsed = &used
	require.NoError(t, h.store.Save(context.Background(), rec))
}
