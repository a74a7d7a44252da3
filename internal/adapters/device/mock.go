package device

import (
	"sync"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

// SentFrame is a frame handed to MockDevice.SendFrame.
type SentFrame struct {
	Data  []byte
	Flags domain.TxFlags
}

// MockDevice implements ports.Device in memory. It records every call so
// tests and the simulated access point can observe the station.
type MockDevice struct {
	mu   sync.Mutex
	addr domain.MacAddr
	caps domain.DeviceCapabilities

	Frames     []SentFrame
	Ethernet   [][]byte
	Keys       []domain.KeyConfig
	Cleared    []domain.MacAddr
	Configured []domain.AssocContext
	Links      []domain.LinkStatus
	Channels   []domain.Channel

	// Injected failures.
	SendErr      error
	DeliverErr   error
	SetKeyErr    error
	SetChanErr   error
	ConfigureErr error

	// OnSend, if set, sees every transmitted frame after it is recorded. It
	// runs without the device lock held.
	OnSend func(frame []byte, flags domain.TxFlags)
}

// NewMockDevice creates a device with address addr and capabilities caps.
func NewMockDevice(addr domain.MacAddr, caps domain.DeviceCapabilities) *MockDevice {
	return &MockDevice{addr: addr, caps: caps}
}

// Address returns the configured station address.
func (m *MockDevice) Address() domain.MacAddr { return m.addr }

// SendFrame copies frame, since the caller reuses its buffer.
func (m *MockDevice) SendFrame(frame []byte, flags domain.TxFlags) error {
	m.mu.Lock()
	if m.SendErr != nil {
		err := m.SendErr
		m.mu.Unlock()
		return err
	}
	p := make([]byte, len(frame))
	copy(p, frame)
	m.Frames = append(m.Frames, SentFrame{Data: p, Flags: flags})
	hook := m.OnSend
	m.mu.Unlock()

	if hook != nil {
		hook(p, flags)
	}
	return nil
}

// DeliverEthernet records a frame delivered to the network stack.
func (m *MockDevice) DeliverEthernet(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeliverErr != nil {
		return m.DeliverErr
	}
	p := make([]byte, len(frame))
	copy(p, frame)
	m.Ethernet = append(m.Ethernet, p)
	return nil
}

func (m *MockDevice) SetKey(key domain.KeyConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetKeyErr != nil {
		return m.SetKeyErr
	}
	m.Keys = append(m.Keys, key)
	return nil
}

func (m *MockDevice) ClearAssociation(bssid domain.MacAddr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cleared = append(m.Cleared, bssid)
	return nil
}

func (m *MockDevice) ConfigureAssociation(ctx domain.AssocContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConfigureErr != nil {
		return m.ConfigureErr
	}
	m.Configured = append(m.Configured, ctx)
	return nil
}

func (m *MockDevice) SetLinkStatus(status domain.LinkStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Links = append(m.Links, status)
	return nil
}

func (m *MockDevice) SetChannel(ch domain.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetChanErr != nil {
		return m.SetChanErr
	}
	m.Channels = append(m.Channels, ch)
	return nil
}

func (m *MockDevice) Capabilities() domain.DeviceCapabilities {
	return m.caps
}

// SetSendErr changes the injected send failure.
func (m *MockDevice) SetSendErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SendErr = err
}

// SentFrames returns a copy of the transmitted frames.
func (m *MockDevice) SentFrames() []SentFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentFrame, len(m.Frames))
	copy(out, m.Frames)
	return out
}

// DeliveredEthernet returns a copy of the delivered Ethernet frames.
func (m *MockDevice) DeliveredEthernet() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.Ethernet))
	copy(out, m.Ethernet)
	return out
}

// ClearedAssociations returns the BSSIDs passed to ClearAssociation.
func (m *MockDevice) ClearedAssociations() []domain.MacAddr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.MacAddr(nil), m.Cleared...)
}

// LinkHistory returns every status passed to SetLinkStatus.
func (m *MockDevice) LinkHistory() []domain.LinkStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LinkStatus(nil), m.Links...)
}

// ClearFrames forgets the transmitted frames.
func (m *MockDevice) ClearFrames() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Frames = nil
}

// DefaultCapabilities describes a dual-band 802.11ac radio.
func DefaultCapabilities() domain.DeviceCapabilities {
	return domain.DeviceCapabilities{
		CapabilityInfo: domain.CapEss | domain.CapShortPreamble | domain.CapShortSlotTime | domain.CapQos,
		Phys:           []domain.Phy{domain.PhyDsss, domain.PhyHr, domain.PhyOfdm, domain.PhyErp, domain.PhyHt, domain.PhyVht},
		Bands: map[domain.Band]domain.BandCapabilities{
			domain.Band2GHz: {
				Rates: []domain.SupportedRate{2, 4, 11, 22, 12, 18, 24, 36, 48, 72, 96, 108},
				HtCap: &domain.HtCapabilities{
					ChanWidth40: true,
					SGI20:       true,
					SGI40:       true,
					TxStbc:      true,
					RxStbc:      1,
					AmpduParams: 0x17,
					McsSet:      [16]byte{0xff, 0xff},
				},
			},
			domain.Band5GHz: {
				Rates: []domain.SupportedRate{12, 18, 24, 36, 48, 72, 96, 108},
				HtCap: &domain.HtCapabilities{
					LDPC:        true,
					ChanWidth40: true,
					SGI20:       true,
					SGI40:       true,
					TxStbc:      true,
					RxStbc:      1,
					AmpduParams: 0x17,
					McsSet:      [16]byte{0xff, 0xff},
				},
				VhtCap: &domain.VhtCapabilities{
					MaxMpduLen: 2,
					RxLdpc:     true,
					SGI80:      true,
					TxStbc:     true,
					RxStbc:     1,
					McsNss:     [8]byte{0xfa, 0xff, 0, 0, 0xfa, 0xff, 0, 0},
				},
			},
		},
	}
}
