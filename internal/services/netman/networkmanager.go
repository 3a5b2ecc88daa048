package netman

import (
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"os/exec"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	nmDest         = "org.freedesktop.NetworkManager"
	nmPath         = "/org/freedesktop/NetworkManager"
	nmIface        = "org.freedesktop.NetworkManager"
	nmSettingsPath = "/org/freedesktop/NetworkManager/Settings"
	nmSettingsFace = "org.freedesktop.NetworkManager.Settings"
	nmConnFace     = "org.freedesktop.NetworkManager.Settings.Connection"
	nmDeviceFace   = "org.freedesktop.NetworkManager.Device"
	nmWirelessFace = "org.freedesktop.NetworkManager.Device.Wireless"
	nmAPFace       = "org.freedesktop.NetworkManager.AccessPoint"
	nmActiveFace   = "org.freedesktop.NetworkManager.Connection.Active"

	nmDeviceTypeWiFi = 2
)

type nmSettings map[string]map[string]dbus.Variant

// NetworkManagerBackend implements Backend against NetworkManager's D-Bus
// API on the system bus. One instance binds one wireless device for the
// process lifetime; alternate platforms get alternate Backend
// implementations, not runtime branching here.
type NetworkManagerBackend struct {
	conn       *dbus.Conn
	devicePath dbus.ObjectPath
	iface      string
}

// NewNetworkManagerBackend connects to the system bus and binds the named
// wireless interface, or the first wireless device when ifaceName is empty.
// Returns ErrNoWiFiDevice when no wireless hardware is managed; callers
// should degrade to the Unavailable backend in that case.
func NewNetworkManagerBackend(ifaceName string) (*NetworkManagerBackend, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	b := &NetworkManagerBackend{conn: conn}

	nm := conn.Object(nmDest, dbus.ObjectPath(nmPath))
	var devicePaths []dbus.ObjectPath
	if err := nm.Call(nmIface+".GetDevices", 0).Store(&devicePaths); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	for _, path := range devicePaths {
		dev := conn.Object(nmDest, path)
		devType, err := dev.GetProperty(nmDeviceFace + ".DeviceType")
		if err != nil {
			continue
		}
		if t, ok := devType.Value().(uint32); !ok || t != nmDeviceTypeWiFi {
			continue
		}
		name, err := dev.GetProperty(nmDeviceFace + ".Interface")
		if err != nil {
			continue
		}
		iface, _ := name.Value().(string)
		if ifaceName != "" && iface != ifaceName {
			continue
		}
		b.devicePath = path
		b.iface = iface
		break
	}

	if b.devicePath == "" {
		conn.Close()
		return nil, ErrNoWiFiDevice
	}

	log.Printf("Bound WiFi device %s (%s)", b.iface, b.devicePath)
	return b, nil
}

func (b *NetworkManagerBackend) HasWiFiDevice() bool { return true }

func (b *NetworkManagerBackend) Interface() string { return b.iface }

func (b *NetworkManagerBackend) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *NetworkManagerBackend) device() dbus.BusObject {
	return b.conn.Object(nmDest, b.devicePath)
}

func (b *NetworkManagerBackend) DeviceState() (DeviceState, error) {
	v, err := b.device().GetProperty(nmDeviceFace + ".State")
	if err != nil {
		return DeviceStateUnknown, fmt.Errorf("failed to read device state: %w", err)
	}
	state, ok := v.Value().(uint32)
	if !ok {
		return DeviceStateUnknown, fmt.Errorf("unexpected device state type %T", v.Value())
	}
	return DeviceState(state), nil
}

func (b *NetworkManagerBackend) ActiveConnection() (*ActiveConnection, error) {
	v, err := b.device().GetProperty(nmDeviceFace + ".ActiveConnection")
	if err != nil {
		return nil, fmt.Errorf("failed to read active connection: %w", err)
	}
	acPath, ok := v.Value().(dbus.ObjectPath)
	if !ok || acPath == "/" || acPath == "" {
		return nil, nil
	}

	ac := b.conn.Object(nmDest, acPath)
	connV, err := ac.GetProperty(nmActiveFace + ".Connection")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve active profile: %w", err)
	}
	profilePath, ok := connV.Value().(dbus.ObjectPath)
	if !ok {
		return nil, fmt.Errorf("unexpected active profile path type %T", connV.Value())
	}

	profile, err := b.readProfile(profilePath)
	if err != nil {
		return nil, err
	}
	return &ActiveConnection{ID: string(acPath), Profile: profile}, nil
}

func (b *NetworkManagerBackend) RequestScan() error {
	call := b.device().Call(nmWirelessFace+".RequestScan", 0, map[string]dbus.Variant{})
	if call.Err != nil {
		return fmt.Errorf("scan request failed: %w", call.Err)
	}
	return nil
}

func (b *NetworkManagerBackend) AccessPoints() ([]AccessPoint, error) {
	var apPaths []dbus.ObjectPath
	if err := b.device().Call(nmWirelessFace+".GetAllAccessPoints", 0).Store(&apPaths); err != nil {
		return nil, fmt.Errorf("failed to list access points: %w", err)
	}

	aps := make([]AccessPoint, 0, len(apPaths))
	for _, path := range apPaths {
		ap, err := b.readAccessPoint(path)
		if err != nil {
			continue
		}
		aps = append(aps, ap)
	}
	return aps, nil
}

func (b *NetworkManagerBackend) ActiveAccessPoint() (*AccessPoint, error) {
	v, err := b.device().GetProperty(nmWirelessFace + ".ActiveAccessPoint")
	if err != nil {
		return nil, fmt.Errorf("failed to read active access point: %w", err)
	}
	path, ok := v.Value().(dbus.ObjectPath)
	if !ok || path == "/" || path == "" {
		return nil, nil
	}
	ap, err := b.readAccessPoint(path)
	if err != nil {
		return nil, err
	}
	return &ap, nil
}

func (b *NetworkManagerBackend) readAccessPoint(path dbus.ObjectPath) (AccessPoint, error) {
	obj := b.conn.Object(nmDest, path)

	var ap AccessPoint
	ssidV, err := obj.GetProperty(nmAPFace + ".Ssid")
	if err != nil {
		return ap, err
	}
	if raw, ok := ssidV.Value().([]byte); ok {
		ap.SSID = string(raw)
	}
	if v, err := obj.GetProperty(nmAPFace + ".HwAddress"); err == nil {
		ap.BSSID, _ = v.Value().(string)
	}
	if v, err := obj.GetProperty(nmAPFace + ".Frequency"); err == nil {
		if freq, ok := v.Value().(uint32); ok {
			ap.Frequency = int(freq)
		}
	}
	if v, err := obj.GetProperty(nmAPFace + ".Strength"); err == nil {
		if pct, ok := v.Value().(byte); ok {
			// NetworkManager reports percent; normalize to approximate dBm
			// so the shared bucket mapping applies.
			ap.Strength = int(pct)/2 - 100
		}
	}
	if v, err := obj.GetProperty(nmAPFace + ".Flags"); err == nil {
		ap.Flags, _ = v.Value().(uint32)
	}
	if v, err := obj.GetProperty(nmAPFace + ".WpaFlags"); err == nil {
		ap.WPAFlags, _ = v.Value().(uint32)
	}
	if v, err := obj.GetProperty(nmAPFace + ".RsnFlags"); err == nil {
		ap.RSNFlags, _ = v.Value().(uint32)
	}
	return ap, nil
}

func (b *NetworkManagerBackend) KnownProfiles() ([]Profile, error) {
	settings := b.conn.Object(nmDest, dbus.ObjectPath(nmSettingsPath))
	var connPaths []dbus.ObjectPath
	if err := settings.Call(nmSettingsFace+".ListConnections", 0).Store(&connPaths); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	profiles := make([]Profile, 0, len(connPaths))
	for _, path := range connPaths {
		profile, err := b.readProfile(path)
		if err != nil {
			continue
		}
		if profile.SSID == "" {
			// Not a wireless profile.
			continue
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

func (b *NetworkManagerBackend) readProfile(path dbus.ObjectPath) (Profile, error) {
	obj := b.conn.Object(nmDest, path)
	var settings nmSettings
	if err := obj.Call(nmConnFace+".GetSettings", 0).Store(&settings); err != nil {
		return Profile{}, fmt.Errorf("failed to read profile settings: %w", err)
	}

	profile := Profile{ID: string(path), AutoConnect: true}
	if conn, ok := settings["connection"]; ok {
		if v, ok := conn["id"]; ok {
			profile.Name, _ = v.Value().(string)
		}
		if v, ok := conn["autoconnect"]; ok {
			profile.AutoConnect, _ = v.Value().(bool)
		}
		if v, ok := conn["timestamp"]; ok {
			if ts, ok := v.Value().(uint64); ok {
				profile.LastUsed = int64(ts)
			}
		}
	}
	if wifi, ok := settings["802-11-wireless"]; ok {
		if v, ok := wifi["ssid"]; ok {
			if raw, ok := v.Value().([]byte); ok {
				profile.SSID = string(raw)
			}
		}
		if v, ok := wifi["mode"]; ok {
			mode, _ := v.Value().(string)
			profile.IsAP = mode == "ap"
		}
	}
	return profile, nil
}

func (b *NetworkManagerBackend) ActivateProfile(profile Profile) error {
	nm := b.conn.Object(nmDest, dbus.ObjectPath(nmPath))
	call := nm.Call(nmIface+".ActivateConnection", 0,
		dbus.ObjectPath(profile.ID), b.devicePath, dbus.ObjectPath("/"))
	if call.Err != nil {
		return fmt.Errorf("failed to activate %s: %w", profile.Name, call.Err)
	}
	return nil
}

func (b *NetworkManagerBackend) CreateAndActivate(spec ProfileSpec) error {
	settings := nmSettings{
		"connection": {
			"id":          dbus.MakeVariant(spec.SSID),
			"type":        dbus.MakeVariant("802-11-wireless"),
			"autoconnect": dbus.MakeVariant(spec.AutoConnect),
		},
		"802-11-wireless": {
			"ssid": dbus.MakeVariant([]byte(spec.SSID)),
			"mode": dbus.MakeVariant("infrastructure"),
		},
		"ipv4": {
			"method": dbus.MakeVariant("auto"),
		},
		"ipv6": {
			"method": dbus.MakeVariant("auto"),
		},
	}
	if spec.Password != "" {
		settings["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(spec.Password),
		}
	}

	nm := b.conn.Object(nmDest, dbus.ObjectPath(nmPath))
	call := nm.Call(nmIface+".AddAndActivateConnection", 0,
		settings, b.devicePath, dbus.ObjectPath("/"))
	if call.Err != nil {
		return fmt.Errorf("failed to create and activate %s: %w", spec.SSID, call.Err)
	}
	return nil
}

func (b *NetworkManagerBackend) Deactivate(active ActiveConnection) error {
	nm := b.conn.Object(nmDest, dbus.ObjectPath(nmPath))
	call := nm.Call(nmIface+".DeactivateConnection", 0, dbus.ObjectPath(active.ID))
	if call.Err != nil {
		return fmt.Errorf("failed to deactivate connection: %w", call.Err)
	}
	return nil
}

func (b *NetworkManagerBackend) DeleteProfile(profile Profile) error {
	obj := b.conn.Object(nmDest, dbus.ObjectPath(profile.ID))
	call := obj.Call(nmConnFace+".Delete", 0)
	if call.Err != nil {
		return fmt.Errorf("failed to delete profile %s: %w", profile.Name, call.Err)
	}
	return nil
}

func (b *NetworkManagerBackend) SetProfileAutoConnect(profile Profile, autoConnect bool) error {
	obj := b.conn.Object(nmDest, dbus.ObjectPath(profile.ID))
	var settings nmSettings
	if err := obj.Call(nmConnFace+".GetSettings", 0).Store(&settings); err != nil {
		return fmt.Errorf("failed to read profile settings: %w", err)
	}
	if settings["connection"] == nil {
		settings["connection"] = map[string]dbus.Variant{}
	}
	settings["connection"]["autoconnect"] = dbus.MakeVariant(autoConnect)

	call := obj.Call(nmConnFace+".Update", 0, settings)
	if call.Err != nil {
		return fmt.Errorf("failed to update profile %s: %w", profile.Name, call.Err)
	}
	return nil
}

func (b *NetworkManagerBackend) CreateAPProfile(cfg APConfig) (Profile, error) {
	prefix := subnetPrefix(cfg.Subnet)
	selfIP, err := ipv4ToNative(cfg.IPAddress)
	if err != nil {
		return Profile{}, fmt.Errorf("invalid AP address %s: %w", cfg.IPAddress, err)
	}

	settings := nmSettings{
		"connection": {
			"id":   dbus.MakeVariant(cfg.SSID),
			"type": dbus.MakeVariant("802-11-wireless"),
			// AP lifecycle is managed explicitly by the orchestrator, never
			// by NetworkManager's own reconnection logic.
			"autoconnect": dbus.MakeVariant(false),
		},
		"802-11-wireless": {
			"ssid":    dbus.MakeVariant([]byte(cfg.SSID)),
			"mode":    dbus.MakeVariant("ap"),
			"band":    dbus.MakeVariant("bg"),
			"channel": dbus.MakeVariant(uint32(cfg.Channel)),
		},
		"ipv4": {
			"method": dbus.MakeVariant("shared"),
			"address-data": dbus.MakeVariant([]map[string]dbus.Variant{{
				"address": dbus.MakeVariant(cfg.IPAddress),
				"prefix":  dbus.MakeVariant(uint32(prefix)),
			}}),
			// Captive-portal detection probes must resolve through the
			// device itself rather than failing outright.
			"dns":             dbus.MakeVariant([]uint32{selfIP}),
			"ignore-auto-dns": dbus.MakeVariant(true),
		},
		"ipv6": {
			"method": dbus.MakeVariant("disabled"),
		},
	}
	if cfg.Password != "" {
		settings["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(cfg.Password),
		}
	}

	settingsObj := b.conn.Object(nmDest, dbus.ObjectPath(nmSettingsPath))
	var profilePath dbus.ObjectPath
	if err := settingsObj.Call(nmSettingsFace+".AddConnection", 0, settings).Store(&profilePath); err != nil {
		return Profile{}, fmt.Errorf("failed to create AP profile: %w", err)
	}

	return Profile{
		ID:   string(profilePath),
		Name: cfg.SSID,
		SSID: cfg.SSID,
		IsAP: true,
	}, nil
}

// StationCount counts clients associated with the AP. NetworkManager does
// not expose station data, so this shells out to iw.
func (b *NetworkManagerBackend) StationCount() int {
	output, err := exec.Command("iw", "dev", b.iface, "station", "dump").Output()
	if err != nil {
		return 0
	}
	return strings.Count(string(output), "Station ")
}

// subnetPrefix extracts the prefix length from a CIDR subnet, defaulting to
// /24 when unparseable.
func subnetPrefix(subnet string) int {
	_, ipNet, err := net.ParseCIDR(subnet)
	if err != nil {
		return 24
	}
	ones, _ := ipNet.Mask.Size()
	return ones
}

// ipv4ToNative encodes a dotted-quad address in the little-endian format
// NetworkManager's legacy dns setting expects.
func ipv4ToNative(addr string) (uint32, error) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return 0, fmt.Errorf("not an IP address")
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, fmt.Errorf("not an IPv4 address")
	}
	return binary.LittleEndian.Uint32(ip4), nil
}
