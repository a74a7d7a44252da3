package domain

import (
	"fmt"
	"net"
)

// MacAddr is a 48-bit IEEE MAC address. Unlike net.HardwareAddr it is
// comparable and can key maps.
type MacAddr [6]byte

// BroadcastAddr is ff:ff:ff:ff:ff:ff.
var BroadcastAddr = MacAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseMAC parses a colon or dash separated EUI-48 address.
func ParseMAC(s string) (MacAddr, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return MacAddr{}, err
	}
	return MacFromBytes(hw)
}

// MustParseMAC is ParseMAC for constants and tests.
func MustParseMAC(s string) MacAddr {
	m, err := ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return m
}

// MacFromBytes copies a 6-byte address.
func MacFromBytes(b []byte) (MacAddr, error) {
	var m MacAddr
	if len(b) != len(m) {
		return m, fmt.Errorf("invalid mac length %d", len(b))
	}
	copy(m[:], b)
	return m, nil
}

// HardwareAddr returns a fresh net.HardwareAddr copy of m.
func (m MacAddr) HardwareAddr() net.HardwareAddr {
	hw := make(net.HardwareAddr, len(m))
	copy(hw, m[:])
	return hw
}

// IsGroup reports whether the group (multicast) bit is set.
func (m MacAddr) IsGroup() bool { return m[0]&0x01 != 0 }

// IsUnicast is the inverse of IsGroup.
func (m MacAddr) IsUnicast() bool { return !m.IsGroup() }

// IsBroadcast reports whether m is ff:ff:ff:ff:ff:ff.
func (m MacAddr) IsBroadcast() bool { return m == BroadcastAddr }

// IsZero reports whether m is unset.
func (m MacAddr) IsZero() bool { return m == MacAddr{} }

func (m MacAddr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// MarshalText implements encoding.TextMarshaler.
func (m MacAddr) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MacAddr) UnmarshalText(b []byte) error {
	v, err := ParseMAC(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
