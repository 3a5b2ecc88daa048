package netman

import (
	"context"
	"log"
	"time"

	"github.com/ossuary-dev/ossuary-pi/internal/database/repositories"
)

// StartupReconnector runs once at process initialization, before the
// steady-state poll loop: it reconciles any state left over from a prior
// AP-mode session, then attempts known networks in recency order before
// committing to the fallback timer.
type StartupReconnector struct {
	manager  *Manager
	store    *repositories.KnownNetworkRepository
	poller   *Poller
	fallback *FallbackTimer
	markers  *MarkerStore

	attemptTimeout time.Duration
	retryPause     time.Duration
}

// NewStartupReconnector creates the startup reconnector. attemptTimeout is
// the per-network connect wait (shorter than interactive connects);
// retryPause is the pause between attempts.
func NewStartupReconnector(manager *Manager, store *repositories.KnownNetworkRepository, poller *Poller, fallback *FallbackTimer, markers *MarkerStore, attemptTimeout, retryPause time.Duration) *StartupReconnector {
	return &StartupReconnector{
		manager:        manager,
		store:          store,
		poller:         poller,
		fallback:       fallback,
		markers:        markers,
		attemptTimeout: attemptTimeout,
		retryPause:     retryPause,
	}
}

// Run executes the startup sequence. All failures are logged and absorbed;
// a device that cannot reconnect must still reach AP mode, never crash.
func (r *StartupReconnector) Run(ctx context.Context) {
	r.reconcileMarker(ctx)

	if status := r.poller.Poll(); status.State == StateConnected {
		log.Printf("Already connected to %s, skipping startup reconnection", deref(status.SSID))
		return
	}

	networks, err := r.store.List(ctx, true)
	if err != nil {
		log.Printf("Failed to load known networks at startup: %v", err)
		networks = nil
	}

	for _, rec := range networks {
		log.Printf("Startup reconnection: trying %s", rec.SSID)
		if r.manager.ConnectForStartup(ctx, rec.SSID, r.attemptTimeout) {
			log.Printf("Startup reconnection succeeded: %s", rec.SSID)
			return
		}
		if err := sleepCtx(ctx, r.retryPause); err != nil {
			return
		}
	}

	// No known network succeeded (or none exist). Arm the fallback timer
	// instead of activating AP mode immediately, giving slower in-progress
	// backend activity a final window to succeed.
	log.Printf("No known network reachable at startup, arming AP fallback")
	r.fallback.Start()
}

// reconcileMarker processes a leftover reconnection marker from a previous
// AP-mode session: auto-connect is re-enabled everywhere, and a manually
// entered AP mode with a recorded previous network triggers a reconnect
// attempt. The marker is deleted unconditionally once processed.
func (r *StartupReconnector) reconcileMarker(ctx context.Context) {
	marker := r.markers.Consume()
	if marker == nil {
		return
	}

	log.Printf("Reconciling AP-mode marker from %s (manual=%v)", marker.Timestamp.Format(time.RFC3339), marker.ManualActivation)
	r.manager.restoreAutoConnect(ctx)

	if marker.ManualActivation && marker.PreviousSSID != nil && *marker.PreviousSSID != "" {
		if err := sleepCtx(ctx, r.retryPause); err != nil {
			return
		}
		if !r.manager.ConnectForStartup(ctx, *marker.PreviousSSID, r.attemptTimeout) {
			log.Printf("Could not restore connection to %s, continuing with normal startup", *marker.PreviousSSID)
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
