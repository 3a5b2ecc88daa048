package netman

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"
)

// ReconnectionMarker records that AP mode was entered, so the next startup
// can reconcile state left over from a prior AP-mode session (including a
// reboot while in AP mode).
type ReconnectionMarker struct {
	PreviousSSID     *string   `json:"previous_ssid"`
	Timestamp        time.Time `json:"timestamp"`
	ManualActivation bool      `json:"manual_activation"`
}

// MarkerStore persists the reconnection marker at a well-known transient
// location with a read-once-and-delete contract. All failures are non-fatal:
// a corrupt or unreadable marker is logged and treated as absent.
type MarkerStore struct {
	path string
}

// NewMarkerStore creates a marker store at the given path.
func NewMarkerStore(path string) *MarkerStore {
	return &MarkerStore{path: path}
}

// Write persists a marker, replacing any existing one.
func (s *MarkerStore) Write(marker ReconnectionMarker) error {
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	data, err := json.Marshal(marker)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

// Consume reads and deletes the marker. Returns nil when no marker exists or
// the file cannot be parsed; the file is removed either way.
func (s *MarkerStore) Consume() *ReconnectionMarker {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Failed to read reconnection marker: %v", err)
			s.remove()
		}
		return nil
	}
	s.remove()

	var marker ReconnectionMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		log.Printf("Ignoring corrupt reconnection marker: %v", err)
		return nil
	}
	return &marker
}

func (s *MarkerStore) remove() {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to delete reconnection marker: %v", err)
	}
}
