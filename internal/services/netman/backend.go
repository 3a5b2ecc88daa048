package netman

import (
	"errors"
)

// Errors surfaced by backends and the orchestrator.
var (
	// ErrNoWiFiDevice indicates no wireless hardware is present. Callers
	// degrade to wired-only behavior rather than treating this as fatal.
	ErrNoWiFiDevice = errors.New("no wifi device available")
	// ErrOperationInFlight indicates another mutating operation is already
	// executing. Overlapping backend profile mutations are rejected, never
	// interleaved.
	ErrOperationInFlight = errors.New("another network operation is in flight")
	// ErrConnectionTimeout indicates a connect or AP operation did not reach
	// a terminal state within the allotted time.
	ErrConnectionTimeout = errors.New("timed out waiting for network state")
)

// DeviceState mirrors the backend's wireless device state codes.
type DeviceState uint32

const (
	DeviceStateUnknown      DeviceState = 0
	DeviceStateUnavailable  DeviceState = 20
	DeviceStateDisconnected DeviceState = 30
	DeviceStatePrepare      DeviceState = 40
	DeviceStateConfig       DeviceState = 50
	DeviceStateNeedAuth     DeviceState = 60
	DeviceStateIPConfig     DeviceState = 70
	DeviceStateIPCheck      DeviceState = 80
	DeviceStateActivated    DeviceState = 100
	DeviceStateDeactivating DeviceState = 110
	DeviceStateFailed       DeviceState = 120
)

// AccessPoint is a visible access point as reported by the backend.
// Strength is in dBm.
type AccessPoint struct {
	SSID      string
	BSSID     string
	Frequency int
	Strength  int
	Flags     uint32
	WPAFlags  uint32
	RSNFlags  uint32
}

// Profile is a saved connection profile held by the backend.
type Profile struct {
	ID          string // backend handle (object path or name)
	Name        string
	SSID        string
	IsAP        bool
	AutoConnect bool
	LastUsed    int64 // unix seconds, 0 when never used
}

// ActiveConnection describes the connection currently activated on the
// wireless device.
type ActiveConnection struct {
	ID      string // backend handle for deactivation
	Profile Profile
}

// ProfileSpec describes a new client connection profile. A non-empty
// Password requests WPA-PSK security; an empty one creates an open profile.
type ProfileSpec struct {
	SSID        string
	Password    string
	AutoConnect bool
}

// Backend abstracts the OS network management facility. It is the sole seam
// between the state machine and the platform; the core never calls OS tools
// directly. Implementations must be safe for concurrent reads (the poller
// observes while operations run).
type Backend interface {
	// HasWiFiDevice reports whether wireless hardware is present.
	HasWiFiDevice() bool
	// Interface returns the wireless interface name, or "" without hardware.
	Interface() string

	// DeviceState returns the wireless device's current state.
	DeviceState() (DeviceState, error)
	// ActiveConnection returns the activated connection, or nil when none.
	ActiveConnection() (*ActiveConnection, error)

	// RequestScan asks the device to rescan. Results are retrieved with
	// AccessPoints after a settle period.
	RequestScan() error
	// AccessPoints lists the currently visible access points.
	AccessPoints() ([]AccessPoint, error)
	// ActiveAccessPoint returns the associated access point, or nil.
	ActiveAccessPoint() (*AccessPoint, error)

	// KnownProfiles lists the backend's saved wireless profiles.
	KnownProfiles() ([]Profile, error)
	// ActivateProfile activates an existing profile on the wireless device.
	ActivateProfile(profile Profile) error
	// CreateAndActivate creates a new client profile and activates it.
	CreateAndActivate(spec ProfileSpec) error
	// Deactivate tears down an active connection.
	Deactivate(active ActiveConnection) error
	// DeleteProfile removes a saved profile.
	DeleteProfile(profile Profile) error
	// SetProfileAutoConnect flips a saved profile's autoconnect flag.
	SetProfileAutoConnect(profile Profile, autoConnect bool) error

	// CreateAPProfile creates (without activating) an access point profile
	// with shared NAT+DHCP addressing at the configured static IP, the AP's
	// advertised DNS resolver pointed at itself, IPv6 disabled, and
	// autoconnect off.
	CreateAPProfile(cfg APConfig) (Profile, error)

	// StationCount returns the number of clients associated with the AP,
	// or 0 when unavailable.
	StationCount() int

	// Close releases backend resources.
	Close()
}
