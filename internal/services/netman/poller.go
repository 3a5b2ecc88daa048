package netman

import (
	"log"
	"sync"
	"time"

	"github.com/ossuary-dev/ossuary-pi/internal/services/network"
	"github.com/ossuary-dev/ossuary-pi/internal/telemetry"
)

// WiredOnlyInterface is reported when no wireless device is present. A
// wired-only device is a valid configuration, not an error condition.
const WiredOnlyInterface = "wired-only"

// StateChangeFunc is the subscriber callback contract. Callbacks run
// synchronously in registration order; a panicking callback is recovered and
// does not stop delivery to the remaining subscribers.
type StateChangeFunc func(old, new NetworkState, status NetworkStatus)

// Poller periodically queries the backend, derives the high-level network
// state, and notifies subscribers on every transition. Reads are safe to run
// concurrently with in-flight connect/AP operations.
type Poller struct {
	backend  Backend
	apConfig APConfig
	interval time.Duration

	mu          sync.Mutex
	current     NetworkState
	lastStatus  NetworkStatus
	subscribers []StateChangeFunc
	fallback    *FallbackTimer

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewPoller creates a poller for the given backend. The fallback timer is
// attached separately with SetFallback.
func NewPoller(backend Backend, apConfig APConfig, interval time.Duration) *Poller {
	return &Poller{
		backend:  backend,
		apConfig: apConfig,
		interval: interval,
		current:  StateUnknown,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SetFallback attaches the fallback timer. The timer is armed whenever the
// observed state becomes Disconnected and cancelled synchronously on
// Connected or APMode.
func (p *Poller) SetFallback(timer *FallbackTimer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = timer
}

// Subscribe registers a state change callback.
func (p *Poller) Subscribe(fn StateChangeFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, fn)
}

// State returns the last derived state.
func (p *Poller) State() NetworkState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Status returns the last status snapshot, deriving one first if no poll has
// happened yet.
func (p *Poller) Status() NetworkStatus {
	p.mu.Lock()
	if p.current != StateUnknown {
		status := p.lastStatus
		p.mu.Unlock()
		return status
	}
	p.mu.Unlock()
	return p.Poll()
}

// Start runs the poll loop until Stop is called. Poll errors are logged and
// recovered; the loop never exits on its own.
func (p *Poller) Start() {
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.Poll()
		for {
			select {
			case <-ticker.C:
				p.Poll()
			case <-p.stop:
				return
			}
		}
	}()
}

// Stop terminates the poll loop and waits for it to exit.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

// Poll derives a fresh status snapshot, records it, and dispatches
// notifications when the state changed. It is also invoked on demand after
// every orchestrator operation.
func (p *Poller) Poll() NetworkStatus {
	status := p.derive()

	p.mu.Lock()
	old := p.current
	p.current = status.State
	p.lastStatus = status
	subscribers := make([]StateChangeFunc, len(p.subscribers))
	copy(subscribers, p.subscribers)
	fallback := p.fallback
	p.mu.Unlock()

	if status.State != old {
		log.Printf("Network state changed: %s -> %s", old, status.State)
		telemetry.StateTransitions.WithLabelValues(string(old), string(status.State)).Inc()

		for _, fn := range subscribers {
			p.notify(fn, old, status.State, status)
		}

		if fallback != nil {
			switch status.State {
			case StateDisconnected:
				fallback.Start()
			case StateConnected, StateAPMode:
				fallback.Cancel()
			}
		}
	}

	return status
}

// notify runs one subscriber callback, isolating panics so one subscriber
// cannot break delivery or the poll loop.
func (p *Poller) notify(fn StateChangeFunc, old, new NetworkState, status NetworkStatus) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("State change callback error: %v", r)
		}
	}()
	fn(old, new, status)
}

// derive queries the backend and maps what it finds onto a NetworkStatus.
func (p *Poller) derive() NetworkStatus {
	status := NetworkStatus{
		State:     StateDisconnected,
		Interface: WiredOnlyInterface,
		Timestamp: time.Now(),
	}

	if !p.backend.HasWiFiDevice() {
		return status
	}
	status.Interface = p.backend.Interface()

	deviceState, err := p.backend.DeviceState()
	if err != nil {
		log.Printf("Failed to read device state: %v", err)
		telemetry.PollErrors.Inc()
		msg := err.Error()
		status.LastError = &msg
		return status
	}

	switch {
	case deviceState == DeviceStateActivated:
		active, err := p.backend.ActiveConnection()
		if err != nil {
			log.Printf("Failed to read active connection: %v", err)
			telemetry.PollErrors.Inc()
			msg := err.Error()
			status.LastError = &msg
			return status
		}
		if active == nil {
			return status
		}
		if active.Profile.IsAP {
			status.State = StateAPMode
			status.APActive = true
			apSSID := p.apConfig.SSID
			apIP := p.apConfig.IPAddress
			status.SSID = &apSSID
			status.APSSID = &apSSID
			status.IPAddress = &apIP
			status.APClientCount = p.backend.StationCount()
		} else {
			status.State = StateConnected
			ssid := active.Profile.SSID
			status.SSID = &ssid
			if ip := network.IPv4Address(status.Interface); ip != "" {
				status.IPAddress = &ip
			}
			if ap, err := p.backend.ActiveAccessPoint(); err == nil && ap != nil {
				status.SignalStrength = signalPercent(ap.Strength)
			}
		}
	case deviceState == DeviceStatePrepare, deviceState == DeviceStateConfig,
		deviceState == DeviceStateNeedAuth, deviceState == DeviceStateIPConfig,
		deviceState == DeviceStateIPCheck:
		status.State = StateConnecting
	case deviceState == DeviceStateFailed:
		status.State = StateFailed
	default:
		status.State = StateDisconnected
	}

	return status
}
