package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterfaceType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"wlan0", "wifi"},
		{"wlp2s0", "wifi"},
		{"eth0", "ethernet"},
		{"enp3s0", "ethernet"},
		{"en0", "ethernet"},
		{"lo", "localhost"},
		{"docker0", "other"},
		{"WLAN0", "wifi"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, InterfaceType(tt.name), tt.name)
	}
}

func TestIPv4AddressMissingInterface(t *testing.T) {
	assert.Empty(t, IPv4Address("definitely-not-an-interface"))
}
