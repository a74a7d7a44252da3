package domain

import (
	"regexp"
)

// MaxSSIDLen is the longest SSID element body.
const MaxSSIDLen = 32

// IFNAMSIZ minus the terminating NUL.
const maxIfaceLen = 15

var (
	macPattern   = regexp.MustCompile(`^[0-9A-Fa-f]{2}([:-][0-9A-Fa-f]{2}){5}$`)
	ifacePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// IsValidMAC reports whether mac is a six octet address in colon or dash form.
func IsValidMAC(mac string) bool {
	return macPattern.MatchString(mac)
}

// IsValidStationMAC is IsValidMAC restricted to individual addresses; a
// station cannot transmit from a group address.
func IsValidStationMAC(mac string) bool {
	if !IsValidMAC(mac) {
		return false
	}
	m, err := ParseMAC(mac)
	return err == nil && !m.IsGroup()
}

// IsValidInterface reports whether iface is safe to pass to iw and ip.
func IsValidInterface(iface string) bool {
	return len(iface) > 0 && len(iface) <= maxIfaceLen && ifacePattern.MatchString(iface)
}

// IsValidSSID reports whether ssid fits in an SSID element.
func IsValidSSID(ssid string) bool {
	return len(ssid) <= MaxSSIDLen
}

// IsValidChannel reports whether ch is a 2.4GHz or 5GHz channel number.
func IsValidChannel(ch int) bool {
	switch {
	case ch >= 1 && ch <= 14:
		return true
	case ch >= 32 && ch <= 196:
		return true
	}
	return false
}
