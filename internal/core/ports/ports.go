package ports

import (
	"context"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

// Device is the radio the station drives. Calls never block on the air;
// implementations copy what they need and return.
type Device interface {
	// Address returns the station's own MAC address.
	Address() domain.MacAddr
	// SendFrame transmits a complete 802.11 frame including FCS.
	// The slice must not be retained after SendFrame returns.
	SendFrame(frame []byte, flags domain.TxFlags) error
	// DeliverEthernet hands a decapsulated Ethernet II frame to the network stack.
	DeliverEthernet(frame []byte) error
	// SetKey installs a key for hardware crypto.
	SetKey(key domain.KeyConfig) error
	// ClearAssociation drops hardware association state for bssid.
	ClearAssociation(bssid domain.MacAddr) error
	// ConfigureAssociation offloads the negotiated association to hardware.
	ConfigureAssociation(ctx domain.AssocContext) error
	// SetLinkStatus reports the controlled port to the network stack.
	SetLinkStatus(status domain.LinkStatus) error
	// SetChannel tunes the radio.
	SetChannel(ch domain.Channel) error
	// Capabilities returns what the radio supports.
	Capabilities() domain.DeviceCapabilities
}

// SME receives confirmations and indications. Send must not block.
type SME interface {
	Send(msg domain.MlmeMsg)
}

// SMEFunc adapts a function to SME.
type SMEFunc func(msg domain.MlmeMsg)

// Send calls f(msg).
func (f SMEFunc) Send(msg domain.MlmeMsg) { f(msg) }

// ChannelSwitcher tunes a monitor interface.
type ChannelSwitcher interface {
	SetChannel(iface string, channel int) error
}

// OffChannelListener is told before the radio leaves the home channel and
// after it returns.
type OffChannelListener interface {
	PreSwitchOffChannel(ctx context.Context) error
	BackToMainChannel(ctx context.Context) error
}
