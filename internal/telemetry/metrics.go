// Package telemetry exposes Prometheus metrics for the network core.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// StateTransitions counts observed network state transitions
	StateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ossuary",
			Name:      "network_state_transitions_total",
			Help:      "Total number of network state transitions observed by the poller",
		},
		[]string{"from", "to"},
	)

	// ConnectAttempts counts connection attempts by outcome
	ConnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ossuary",
			Name:      "network_connect_attempts_total",
			Help:      "Total number of WiFi connection attempts",
		},
		[]string{"outcome"},
	)

	// FallbackActivations counts automatic AP-mode fallbacks
	FallbackActivations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ossuary",
			Name:      "network_fallback_activations_total",
			Help:      "Total number of times the fallback timer activated AP mode",
		},
	)

	// ScanRequests counts WiFi scan requests
	ScanRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ossuary",
			Name:      "network_scan_requests_total",
			Help:      "Total number of WiFi scan requests",
		},
	)

	// PollErrors counts recovered poll loop errors
	PollErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ossuary",
			Name:      "network_poll_errors_total",
			Help:      "Total number of errors recovered by the poll loop",
		},
	)

	registerOnce sync.Once
)

// Register registers all metrics with the default registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			StateTransitions,
			ConnectAttempts,
			FallbackActivations,
			ScanRequests,
			PollErrors,
		)
	})
}
