package netman

import (
	"log"
	"sync"
	"time"

	"github.com/ossuary-dev/ossuary-pi/internal/telemetry"
)

// FallbackTimer schedules AP activation after a period of disconnection.
// There is never more than one pending fallback task: re-arming cancels the
// existing one first, and Cancel stops the pending task synchronously so a
// fast reconnect can never be undercut by a stale activation firing later.
type FallbackTimer struct {
	timeout time.Duration

	// stillDisconnected is re-checked when the timer fires, closing the race
	// where the device reconnected while the activation was queued.
	stillDisconnected func() bool
	activate          func()

	mu    sync.Mutex
	timer *time.Timer
}

// NewFallbackTimer creates a fallback timer. stillDisconnected must report
// whether the last observed state is Disconnected; activate starts AP mode.
func NewFallbackTimer(timeout time.Duration, stillDisconnected func() bool, activate func()) *FallbackTimer {
	return &FallbackTimer{
		timeout:           timeout,
		stillDisconnected: stillDisconnected,
		activate:          activate,
	}
}

// Start arms the timer. An already-armed timer is cancelled and re-armed.
func (f *FallbackTimer) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.timer != nil {
		f.timer.Stop()
	}
	log.Printf("Starting AP fallback timer (%s)", f.timeout)
	f.timer = time.AfterFunc(f.timeout, f.fire)
}

// Cancel stops any pending fallback. Idempotent and safe to call when no
// timer is running.
func (f *FallbackTimer) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.timer != nil {
		if f.timer.Stop() {
			log.Printf("AP fallback timer cancelled")
		}
		f.timer = nil
	}
}

// Active reports whether a fallback is pending.
func (f *FallbackTimer) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timer != nil
}

func (f *FallbackTimer) fire() {
	f.mu.Lock()
	f.timer = nil
	f.mu.Unlock()

	if !f.stillDisconnected() {
		log.Printf("Fallback timeout reached but device is no longer disconnected, skipping AP mode")
		return
	}

	log.Printf("Fallback timeout reached, starting AP mode")
	telemetry.FallbackActivations.Inc()
	f.activate()
}
