package netman

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkerWriteAndConsume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ap-mode.json")
	store := NewMarkerStore(path)

	ssid := "HomeWiFi"
	require.NoError(t, store.Write(ReconnectionMarker{
		PreviousSSID:     &ssid,
		Timestamp:        time.Now(),
		ManualActivation: true,
	}))

	marker := store.Consume()
	require.NotNil(t, marker)
	require.NotNil(t, marker.PreviousSSID)
	assert.Equal(t, "HomeWiFi", *marker.PreviousSSID)
	assert.True(t, marker.ManualActivation)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "marker file must be deleted on consume")

	assert.Nil(t, store.Consume(), "second consume must find nothing")
}

func TestMarkerConsumeMissing(t *testing.T) {
	store := NewMarkerStore(filepath.Join(t.TempDir(), "missing.json"))
	assert.Nil(t, store.Consume())
}

func TestMarkerConsumeCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ap-mode.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	store := NewMarkerStore(path)
	assert.Nil(t, store.Consume(), "corrupt marker must be treated as absent")

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "corrupt marker must still be deleted")
}

func TestMarkerWriteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "ap-mode.json")
	store := NewMarkerStore(path)

	require.NoError(t, store.Write(ReconnectionMarker{Timestamp: time.Now()}))

	marker := store.Consume()
	require.NotNil(t, marker)
	assert.Nil(t, marker.PreviousSSID)
	assert.False(t, marker.ManualActivation)
}

func TestMarkerWriteReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ap-mode.json")
	store := NewMarkerStore(path)

	first := "OldNetwork"
	require.NoError(t, store.Write(ReconnectionMarker{PreviousSSID: &first, Timestamp: time.Now()}))

	second := "NewNetwork"
	require.NoError(t, store.Write(ReconnectionMarker{PreviousSSID: &second, Timestamp: time.Now(), ManualActivation: true}))

	marker := store.Consume()
	require.NotNil(t, marker)
	require.NotNil(t, marker.PreviousSSID)
	assert.Equal(t, "NewNetwork", *marker.PreviousSSID)
}
