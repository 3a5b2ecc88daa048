package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(FallbackActivations)
	FallbackActivations.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(FallbackActivations))

	ConnectAttempts.WithLabelValues("success").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(ConnectAttempts.WithLabelValues("success")), 1.0)

	StateTransitions.WithLabelValues("DISCONNECTED", "CONNECTED").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(StateTransitions.WithLabelValues("DISCONNECTED", "CONNECTED")), 1.0)
}
