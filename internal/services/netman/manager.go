package netman

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ossuary-dev/ossuary-pi/internal/database/repositories"
	"github.com/ossuary-dev/ossuary-pi/internal/telemetry"
)

// Timing holds the orchestrator's operation timing knobs. Timeouts are
// caller-specified durations rather than global constants so startup
// reconnection can use shorter waits than interactive connects.
type Timing struct {
	ConnectTimeout     time.Duration
	ScanSettle         time.Duration
	APSettle           time.Duration
	StateCheckInterval time.Duration
}

// Manager executes connect, disconnect, and AP lifecycle operations, each
// with bounded wait-for-outcome semantics. Only one mutating operation may
// be in flight at a time; overlapping requests are rejected with
// ErrOperationInFlight rather than interleaved.
type Manager struct {
	backend  Backend
	poller   *Poller
	store    *repositories.KnownNetworkRepository
	fallback *FallbackTimer
	markers  *MarkerStore
	apConfig APConfig
	timing   Timing

	// opMu is the single mutual-exclusion point for all mutating backend
	// operations (connect, AP start/stop, forget).
	opMu sync.Mutex
}

// NewManager creates the connection orchestrator.
func NewManager(backend Backend, poller *Poller, store *repositories.KnownNetworkRepository, markers *MarkerStore, apConfig APConfig, timing Timing) *Manager {
	if timing.StateCheckInterval <= 0 {
		timing.StateCheckInterval = 500 * time.Millisecond
	}
	return &Manager{
		backend:  backend,
		poller:   poller,
		store:    store,
		markers:  markers,
		apConfig: apConfig,
		timing:   timing,
	}
}

// SetFallback attaches the fallback timer used after failed connects.
func (m *Manager) SetFallback(timer *FallbackTimer) {
	m.fallback = timer
}

// Status returns the latest status snapshot.
func (m *Manager) Status() NetworkStatus {
	return m.poller.Status()
}

// ScanNetworks requests a scan, waits for the results to settle, and returns
// visible networks sorted by descending signal strength, annotated with
// whether each is known and currently connected. Returns an empty list when
// no wireless device exists.
func (m *Manager) ScanNetworks(ctx context.Context) ([]WiFiNetwork, error) {
	if !m.backend.HasWiFiDevice() {
		log.Printf("Cannot scan networks - no WiFi device available")
		return []WiFiNetwork{}, nil
	}

	telemetry.ScanRequests.Inc()
	if err := m.backend.RequestScan(); err != nil {
		return nil, fmt.Errorf("scan request failed: %w", err)
	}

	if err := sleepCtx(ctx, m.timing.ScanSettle); err != nil {
		return nil, err
	}

	accessPoints, err := m.backend.AccessPoints()
	if err != nil {
		return nil, fmt.Errorf("failed to read scan results: %w", err)
	}

	known := make(map[string]bool)
	if records, err := m.store.List(ctx, false); err == nil {
		for _, rec := range records {
			known[rec.SSID] = true
		}
	} else {
		log.Printf("Failed to load known networks for scan annotation: %v", err)
	}

	var activeBSSID string
	if active, err := m.backend.ActiveAccessPoint(); err == nil && active != nil {
		activeBSSID = active.BSSID
	}

	networks := make([]WiFiNetwork, 0, len(accessPoints))
	for _, ap := range accessPoints {
		if ap.SSID == "" {
			continue
		}
		security := ap.Flags&apFlagPrivacy != 0 || ap.WPAFlags != 0 || ap.RSNFlags != 0
		networks = append(networks, WiFiNetwork{
			SSID:           ap.SSID,
			BSSID:          ap.BSSID,
			Frequency:      ap.Frequency,
			SignalStrength: ap.Strength,
			Security:       security,
			SecurityType:   ClassifySecurity(ap.Flags, ap.WPAFlags, ap.RSNFlags),
			Connected:      activeBSSID != "" && ap.BSSID == activeBSSID,
			Known:          known[ap.SSID],
		})
	}

	sort.Slice(networks, func(i, j int) bool {
		return networks[i].SignalStrength > networks[j].SignalStrength
	})

	log.Printf("Found %d networks", len(networks))
	return networks, nil
}

// ConnectToNetwork connects to a WiFi network, blocking until the state
// reaches Connected or Failed or the configured timeout elapses. A failed or
// timed-out attempt arms the fallback timer; the orchestrator never retries
// the same SSID on its own.
func (m *Manager) ConnectToNetwork(ctx context.Context, ssid, password string) (bool, error) {
	if !m.opMu.TryLock() {
		return false, ErrOperationInFlight
	}
	defer m.opMu.Unlock()

	ok, err := m.connect(ctx, ssid, password, m.timing.ConnectTimeout)
	if !ok && m.fallback != nil {
		m.fallback.Start()
	}
	return ok, err
}

// ConnectForStartup is the startup reconnector's connect path: it waits for
// the in-flight operation instead of rejecting, uses the caller's timeout,
// and leaves fallback handling to the caller.
func (m *Manager) ConnectForStartup(ctx context.Context, ssid string, timeout time.Duration) bool {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	ok, err := m.connect(ctx, ssid, "", timeout)
	if err != nil {
		log.Printf("Startup connection to %s failed: %v", ssid, err)
	}
	return ok
}

func (m *Manager) connect(ctx context.Context, ssid, password string, timeout time.Duration) (bool, error) {
	if !m.backend.HasWiFiDevice() {
		log.Printf("Cannot connect to network - no WiFi device available")
		return false, nil
	}

	log.Printf("Connecting to network: %s", ssid)

	profile := m.findProfile(ssid, false)
	var err error
	if profile != nil {
		log.Printf("Activating existing profile for %s", ssid)
		err = m.backend.ActivateProfile(*profile)
	} else {
		log.Printf("Creating new profile for %s", ssid)
		err = m.backend.CreateAndActivate(ProfileSpec{
			SSID:        ssid,
			Password:    password,
			AutoConnect: true,
		})
	}
	if err != nil {
		telemetry.ConnectAttempts.WithLabelValues("error").Inc()
		m.recordAttempt(ctx, ssid, false)
		return false, fmt.Errorf("failed to activate %s: %w", ssid, err)
	}

	state, err := m.waitForState(ctx, timeout, StateConnected, StateFailed)
	if err != nil {
		telemetry.ConnectAttempts.WithLabelValues("timeout").Inc()
		m.recordAttempt(ctx, ssid, false)
		log.Printf("Timed out waiting for connection to %s", ssid)
		return false, nil
	}

	if state == StateConnected {
		telemetry.ConnectAttempts.WithLabelValues("success").Inc()
		m.recordAttempt(ctx, ssid, true)
		log.Printf("Successfully connected to %s", ssid)
		return true, nil
	}

	telemetry.ConnectAttempts.WithLabelValues("failed").Inc()
	m.recordAttempt(ctx, ssid, false)
	log.Printf("Failed to connect to %s", ssid)
	return false, nil
}

// StartAccessPoint starts AP mode as part of automatic fallback. Idempotent:
// returns true immediately when the configured AP is already active.
func (m *Manager) StartAccessPoint(ctx context.Context) (bool, error) {
	if !m.opMu.TryLock() {
		return false, ErrOperationInFlight
	}
	defer m.opMu.Unlock()

	return m.startAccessPoint(ctx, false, nil)
}

// StopAccessPoint deactivates and deletes the configured AP profile.
// Idempotent: "nothing to stop" returns true, not failure.
func (m *Manager) StopAccessPoint(ctx context.Context) (bool, error) {
	if !m.opMu.TryLock() {
		return false, ErrOperationInFlight
	}
	defer m.opMu.Unlock()

	return m.stopAccessPoint(ctx)
}

// EnableAPMode is the manual AP override, distinct from automatic fallback:
// it records intent to restore the current connection afterward and disables
// known-network auto-connect so the backend does not fight the orchestrator
// for the radio while AP mode is engaged.
func (m *Manager) EnableAPMode(ctx context.Context) (bool, error) {
	if !m.opMu.TryLock() {
		return false, ErrOperationInFlight
	}
	defer m.opMu.Unlock()

	var previousSSID *string
	status := m.poller.Status()
	if status.State == StateConnected && status.SSID != nil {
		previousSSID = status.SSID

		if err := m.store.SetAutoConnect(ctx, *previousSSID, false); err != nil {
			log.Printf("Failed to suppress auto-connect for %s: %v", *previousSSID, err)
		}
		if profile := m.findProfile(*previousSSID, false); profile != nil {
			if err := m.backend.SetProfileAutoConnect(*profile, false); err != nil {
				log.Printf("Failed to suppress backend auto-connect for %s: %v", *previousSSID, err)
			}
		}
	}

	return m.startAccessPoint(ctx, true, previousSSID)
}

// DisableAPMode stops the manually engaged AP, restores auto-connect, and
// reconnects to the previously connected network when one was recorded.
func (m *Manager) DisableAPMode(ctx context.Context) (bool, error) {
	if !m.opMu.TryLock() {
		return false, ErrOperationInFlight
	}
	defer m.opMu.Unlock()

	ok, err := m.stopAccessPoint(ctx)
	if err != nil {
		return false, err
	}

	marker := m.markers.Consume()
	m.restoreAutoConnect(ctx)

	if marker != nil && marker.PreviousSSID != nil {
		connected, err := m.connect(ctx, *marker.PreviousSSID, "", m.timing.ConnectTimeout)
		if err != nil {
			log.Printf("Failed to reconnect to %s after AP mode: %v", *marker.PreviousSSID, err)
		}
		return ok && connected, nil
	}
	return ok, nil
}

// ForgetNetwork removes a network's backend profile and its known-network
// record. Returns true if anything was removed.
func (m *Manager) ForgetNetwork(ctx context.Context, ssid string) (bool, error) {
	if !m.opMu.TryLock() {
		return false, ErrOperationInFlight
	}
	defer m.opMu.Unlock()

	removed := false
	if profiles, err := m.backend.KnownProfiles(); err == nil {
		for _, p := range profiles {
			if p.SSID == ssid && !p.IsAP {
				if err := m.backend.DeleteProfile(p); err != nil {
					log.Printf("Failed to delete profile for %s: %v", ssid, err)
				} else {
					removed = true
				}
			}
		}
	}

	storeRemoved, err := m.store.Forget(ctx, ssid)
	if err != nil {
		log.Printf("Failed to forget network %s: %v", ssid, err)
		return removed, err
	}
	if removed || storeRemoved {
		log.Printf("Forgot network: %s", ssid)
	}
	return removed || storeRemoved, nil
}

// restoreAutoConnect re-enables auto-connect on all known networks, both in
// the store and on the backend's saved profiles.
func (m *Manager) restoreAutoConnect(ctx context.Context) {
	if err := m.store.SetAllAutoConnect(ctx, true); err != nil {
		log.Printf("Failed to restore auto-connect on known networks: %v", err)
	}
	if profiles, err := m.backend.KnownProfiles(); err == nil {
		for _, p := range profiles {
			if p.IsAP || p.AutoConnect {
				continue
			}
			if err := m.backend.SetProfileAutoConnect(p, true); err != nil {
				log.Printf("Failed to restore backend auto-connect for %s: %v", p.SSID, err)
			}
		}
	}
}

func (m *Manager) startAccessPoint(ctx context.Context, manual bool, previousSSID *string) (bool, error) {
	if !m.backend.HasWiFiDevice() {
		log.Printf("Cannot start access point - no WiFi device available")
		return false, nil
	}

	if status := m.poller.Poll(); status.State == StateAPMode {
		log.Printf("Access point already active")
		return true, nil
	}

	log.Printf("Starting access point: %s", m.apConfig.SSID)

	if err := m.markers.Write(ReconnectionMarker{
		PreviousSSID:     previousSSID,
		Timestamp:        time.Now(),
		ManualActivation: manual,
	}); err != nil {
		log.Printf("Failed to write reconnection marker: %v", err)
	}

	// Tear down any active client connection; the single radio can't do both.
	if active, err := m.backend.ActiveConnection(); err == nil && active != nil && !active.Profile.IsAP {
		if err := m.backend.Deactivate(*active); err != nil {
			log.Printf("Failed to deactivate %s before AP start: %v", active.Profile.SSID, err)
		}
	}

	m.deleteStaleAPProfiles()

	profile, err := m.backend.CreateAPProfile(m.apConfig)
	if err != nil {
		// A stale profile name collision is the usual cause; clean up and
		// retry once before surfacing failure.
		log.Printf("AP profile creation failed, cleaning up and retrying: %v", err)
		m.deleteStaleAPProfiles()
		profile, err = m.backend.CreateAPProfile(m.apConfig)
		if err != nil {
			return false, fmt.Errorf("failed to create AP profile: %w", err)
		}
	}

	if err := m.backend.ActivateProfile(profile); err != nil {
		return false, fmt.Errorf("failed to activate AP profile: %w", err)
	}

	if err := sleepCtx(ctx, m.timing.APSettle); err != nil {
		return false, err
	}

	status := m.poller.Poll()
	if status.State != StateAPMode {
		log.Printf("Access point did not come up (state %s)", status.State)
		return false, nil
	}
	log.Printf("Access point started: %s", m.apConfig.SSID)
	return true, nil
}

func (m *Manager) stopAccessPoint(ctx context.Context) (bool, error) {
	if !m.backend.HasWiFiDevice() {
		return true, nil
	}

	found := false
	if active, err := m.backend.ActiveConnection(); err == nil && active != nil && active.Profile.IsAP {
		found = true
		if err := m.backend.Deactivate(*active); err != nil {
			log.Printf("Failed to deactivate AP connection: %v", err)
		}
	}

	if profiles, err := m.backend.KnownProfiles(); err == nil {
		for _, p := range profiles {
			if p.IsAP && p.SSID == m.apConfig.SSID {
				found = true
				if err := m.backend.DeleteProfile(p); err != nil {
					log.Printf("Failed to delete AP profile: %v", err)
				}
			}
		}
	}

	if !found {
		log.Printf("No access point to stop")
		return true, nil
	}

	status := m.poller.Poll()
	if status.State == StateAPMode {
		if err := sleepCtx(ctx, m.timing.APSettle); err != nil {
			return false, err
		}
		status = m.poller.Poll()
	}
	if status.State == StateAPMode {
		log.Printf("Failed to stop access point")
		return false, nil
	}
	log.Printf("Access point stopped")
	return true, nil
}

// deleteStaleAPProfiles removes leftover AP profiles matching the configured
// SSID or generic hotspot naming.
func (m *Manager) deleteStaleAPProfiles() {
	profiles, err := m.backend.KnownProfiles()
	if err != nil {
		return
	}
	for _, p := range profiles {
		stale := p.IsAP && (p.SSID == m.apConfig.SSID ||
			p.Name == m.apConfig.SSID ||
			strings.Contains(strings.ToLower(p.Name), "hotspot"))
		if stale {
			if err := m.backend.DeleteProfile(p); err != nil {
				log.Printf("Failed to delete stale AP profile %s: %v", p.Name, err)
			}
		}
	}
}

// findProfile returns the backend's saved profile for an SSID, or nil.
func (m *Manager) findProfile(ssid string, isAP bool) *Profile {
	profiles, err := m.backend.KnownProfiles()
	if err != nil {
		log.Printf("Failed to list backend profiles: %v", err)
		return nil
	}
	for _, p := range profiles {
		if p.SSID == ssid && p.IsAP == isAP {
			found := p
			return &found
		}
	}
	return nil
}

// waitForState polls until one of the target states is reached or the
// timeout elapses. The poll loop keeps running concurrently; this is an
// additional on-demand polling path so operations detect their own outcome
// without blocking the poller.
func (m *Manager) waitForState(ctx context.Context, timeout time.Duration, targets ...NetworkState) (NetworkState, error) {
	deadline := time.Now().Add(timeout)
	for {
		status := m.poller.Poll()
		for _, target := range targets {
			if status.State == target {
				return status.State, nil
			}
		}
		if time.Now().After(deadline) {
			return status.State, ErrConnectionTimeout
		}
		if err := sleepCtx(ctx, m.timing.StateCheckInterval); err != nil {
			return status.State, err
		}
	}
}

// recordAttempt updates known-network bookkeeping. Persistence failures are
// never fatal to a connection attempt.
func (m *Manager) recordAttempt(ctx context.Context, ssid string, success bool) {
	if err := m.store.RecordAttempt(ctx, ssid, success); err != nil {
		log.Printf("Failed to record connection attempt for %s: %v", ssid, err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
