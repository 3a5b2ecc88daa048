// Package netman manages WiFi connectivity for the Ossuary device. It keeps
// the device joined to a wireless network when possible and falls back to
// broadcasting a local access point so the configuration portal stays
// reachable without an uplink.
package netman

import (
	"time"
)

// NetworkState represents the high-level connectivity state. Exactly one
// value describes the system at any instant.
type NetworkState string

const (
	// StateUnknown indicates the state has not been derived yet.
	StateUnknown NetworkState = "UNKNOWN"
	// StateDisconnected indicates no active connection.
	StateDisconnected NetworkState = "DISCONNECTED"
	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting NetworkState = "CONNECTING"
	// StateConnected indicates the device is joined to a WiFi network.
	StateConnected NetworkState = "CONNECTED"
	// StateFailed indicates the last connection attempt failed.
	StateFailed NetworkState = "FAILED"
	// StateAPMode indicates the device is broadcasting its own access point.
	StateAPMode NetworkState = "AP_MODE"
	// StateScanning is reported for status parity with the portal protocol;
	// the poller never derives it since scans run alongside polling.
	StateScanning NetworkState = "SCANNING"
)

// NetworkStatus is an immutable snapshot of the current network state,
// produced fresh on every poll and handed to subscribers by value.
type NetworkStatus struct {
	State          NetworkState `json:"state"`
	SSID           *string      `json:"ssid"`
	IPAddress      *string      `json:"ip_address"`
	SignalStrength int          `json:"signal_strength"`
	Interface      string       `json:"interface"`
	APActive       bool         `json:"ap_active"`
	APSSID         *string      `json:"ap_ssid"`
	APClientCount  int          `json:"ap_client_count"`
	LastError      *string      `json:"last_error"`
	Timestamp      time.Time    `json:"timestamp"`
}

// SecurityType classifies a network's security. Advisory metadata only: it
// is never used to gate connection attempts.
type SecurityType string

const (
	SecurityOpen           SecurityType = "Open"
	SecurityWEP            SecurityType = "WEP"
	SecurityWPAPSK         SecurityType = "WPA-PSK"
	SecurityWPA2PSK        SecurityType = "WPA2-PSK"
	SecurityWPAEnterprise  SecurityType = "WPA-Enterprise"
	SecurityWPA2Enterprise SecurityType = "WPA2-Enterprise"
)

// WiFiNetwork represents a scan result.
type WiFiNetwork struct {
	SSID           string       `json:"ssid"`
	BSSID          string       `json:"bssid"`
	Frequency      int          `json:"frequency"`
	SignalStrength int          `json:"signal_strength"` // raw dBm
	Security       bool         `json:"security"`
	SecurityType   SecurityType `json:"security_type"`
	Connected      bool         `json:"connected"`
	Known          bool         `json:"known"`
}

// SignalPercent converts the raw dBm signal reading to a 0-100 percentage
// using fixed buckets.
func (n WiFiNetwork) SignalPercent() int {
	return signalPercent(n.SignalStrength)
}

func signalPercent(dbm int) int {
	switch {
	case dbm >= -50:
		return 100
	case dbm >= -60:
		return 80
	case dbm >= -70:
		return 60
	case dbm >= -80:
		return 40
	case dbm >= -90:
		return 20
	default:
		return 10
	}
}

// APConfig describes the device's own access point. Constructed once from
// system configuration and immutable for the process lifetime.
type APConfig struct {
	SSID      string
	Password  string // optional; min 8 chars when set
	Channel   int
	IPAddress string
	Subnet    string
}

// NM 802.11 access point security flag bits, as exposed by the backend.
const (
	apFlagPrivacy     = 0x1
	apSecKeyMgmtPSK   = 0x100
	apSecKeyMgmt8021X = 0x200
)

// ClassifySecurity determines the advisory security type from access point
// flag words. RSN (WPA2) flags win over legacy WPA, which wins over WEP-era
// privacy.
func ClassifySecurity(flags, wpaFlags, rsnFlags uint32) SecurityType {
	switch {
	case rsnFlags&apSecKeyMgmtPSK != 0:
		return SecurityWPA2PSK
	case rsnFlags&apSecKeyMgmt8021X != 0:
		return SecurityWPA2Enterprise
	case wpaFlags&apSecKeyMgmtPSK != 0:
		return SecurityWPAPSK
	case wpaFlags&apSecKeyMgmt8021X != 0:
		return SecurityWPAEnterprise
	case flags&apFlagPrivacy != 0:
		return SecurityWEP
	default:
		return SecurityOpen
	}
}
