// Package network provides utilities for network interface inspection
package network

import (
	"net"
	"strings"
)

// IPv4Address returns the first IPv4 address assigned to the named interface,
// or "" when the interface is missing or unaddressed.
func IPv4Address(ifaceName string) string {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return ""
	}

	addrs, err := iface.Addrs()
	if err != nil {
		return ""
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}

// InterfaceType classifies an interface by naming convention. Used for
// display only.
func InterfaceType(ifaceName string) string {
	name := strings.ToLower(ifaceName)
	switch {
	case strings.HasPrefix(name, "wl"):
		return "wifi"
	case strings.HasPrefix(name, "en") || strings.HasPrefix(name, "eth"):
		return "ethernet"
	case strings.HasPrefix(name, "lo"):
		return "localhost"
	default:
		return "other"
	}
}
