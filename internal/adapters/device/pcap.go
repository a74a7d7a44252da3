package device

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/lcalzada-xor/wsta/internal/adapters/frame"
	"github.com/lcalzada-xor/wsta/internal/core/domain"
	"github.com/lcalzada-xor/wsta/internal/core/ports"
)

// FrameSink receives every 802.11 frame captured by a PcapDevice. raw
// always ends with an FCS.
type FrameSink func(raw []byte, rx domain.RxInfo) bool

// packetHandle is the part of *pcap.Handle the device uses.
type packetHandle interface {
	gopacket.PacketDataSource
	WritePacketData(data []byte) error
	LinkType() layers.LinkType
	Close()
}

// PcapDevice drives a monitor-mode interface as a softmac radio: frames go
// out through libpcap behind a RadioTap header and captured frames are
// handed to a FrameSink. Hardware crypto is not available.
type PcapDevice struct {
	iface    string
	addr     domain.MacAddr
	caps     domain.DeviceCapabilities
	handle   packetHandle
	switcher ports.ChannelSwitcher

	mu       sync.Mutex
	channel  domain.Channel
	link     domain.LinkStatus
	assoc    *domain.AssocContext
	ethernet func([]byte) error
}

// PcapOption configures a PcapDevice.
type PcapOption func(*PcapDevice)

// WithEthernetSink sets where decapsulated frames are delivered. Without
// one DeliverEthernet returns domain.ErrNotSupported.
func WithEthernetSink(fn func([]byte) error) PcapOption {
	return func(d *PcapDevice) { d.ethernet = fn }
}

// OpenPcapDevice opens iface for capture and injection.
func OpenPcapDevice(iface string, addr domain.MacAddr, caps domain.DeviceCapabilities, switcher ports.ChannelSwitcher, opts ...PcapOption) (*PcapDevice, error) {
	handle, err := pcap.OpenLive(iface, 65536, true, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("pcap open failed: %w", err)
	}
	return newPcapDevice(iface, handle, addr, caps, switcher, opts...), nil
}

func newPcapDevice(iface string, handle packetHandle, addr domain.MacAddr, caps domain.DeviceCapabilities, switcher ports.ChannelSwitcher, opts ...PcapOption) *PcapDevice {
	d := &PcapDevice{
		iface:    iface,
		addr:     addr,
		caps:     caps,
		handle:   handle,
		switcher: switcher,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Address returns the station address the device was opened with.
func (d *PcapDevice) Address() domain.MacAddr { return d.addr }

// Capabilities returns the configured radio capabilities.
func (d *PcapDevice) Capabilities() domain.DeviceCapabilities { return d.caps }

// SendFrame injects frame behind a RadioTap header. The header carries the
// FCS flag because the station always appends one.
func (d *PcapDevice) SendFrame(raw []byte, flags domain.TxFlags) error {
	radiotap := &layers.RadioTap{
		Present: layers.RadioTapPresentFlags | layers.RadioTapPresentRate,
		Flags:   layers.RadioTapFlagsFCS,
		Rate:    txRate(d.Channel()),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, radiotap, gopacket.Payload(raw)); err != nil {
		return domain.DeviceError("radiotap", err)
	}
	if err := d.handle.WritePacketData(buf.Bytes()); err != nil {
		return domain.DeviceError("inject", err)
	}
	return nil
}

// txRate picks the lowest mandatory rate of the band, in 500 kb/s units.
func txRate(ch domain.Channel) layers.RadioTapRate {
	if ch.Band() == domain.Band5GHz {
		return 12
	}
	return 2
}

// DeliverEthernet hands frame to the configured Ethernet sink.
func (d *PcapDevice) DeliverEthernet(raw []byte) error {
	d.mu.Lock()
	sink := d.ethernet
	d.mu.Unlock()
	if sink == nil {
		return fmt.Errorf("deliver ethernet: %w", domain.ErrNotSupported)
	}
	if err := sink(raw); err != nil {
		return domain.DeviceError("deliver ethernet", err)
	}
	return nil
}

// SetKey is not supported: a monitor interface has no key cache.
func (d *PcapDevice) SetKey(key domain.KeyConfig) error {
	return fmt.Errorf("set key %d: %w", key.KeyIndex, domain.ErrNotSupported)
}

// ClearAssociation forgets the association offloaded for bssid.
func (d *PcapDevice) ClearAssociation(bssid domain.MacAddr) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.assoc != nil && d.assoc.Bssid == bssid {
		d.assoc = nil
	}
	return nil
}

// ConfigureAssociation keeps the negotiated context; a monitor interface
// has no rate control to program.
func (d *PcapDevice) ConfigureAssociation(assoc domain.AssocContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.assoc = &assoc
	log.Printf("[DEVICE] %s associated with %s aid=%d phy=%v", d.iface, assoc.Bssid, assoc.Aid, assoc.Phy)
	return nil
}

// SetLinkStatus records the controlled port state.
func (d *PcapDevice) SetLinkStatus(status domain.LinkStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.link != status {
		log.Printf("[DEVICE] %s link %v", d.iface, status)
	}
	d.link = status
	return nil
}

// SetChannel tunes the interface through the channel switcher. Only the
// primary channel is programmed.
func (d *PcapDevice) SetChannel(ch domain.Channel) error {
	if err := d.switcher.SetChannel(d.iface, int(ch.Primary)); err != nil {
		return domain.DeviceError("set channel", err)
	}
	d.mu.Lock()
	d.channel = ch
	d.mu.Unlock()
	return nil
}

// Channel returns the channel last set.
func (d *PcapDevice) Channel() domain.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channel
}

// Link returns the link status last reported by the station.
func (d *PcapDevice) Link() domain.LinkStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.link
}

// Listen feeds captured frames to sink until ctx is done or the capture
// ends.
func (d *PcapDevice) Listen(ctx context.Context, sink FrameSink) error {
	source := gopacket.NewPacketSource(d.handle, d.handle.LinkType())
	source.DecodeOptions.Lazy = true
	packets := source.Packets()

	log.Printf("[DEVICE] Listening on %s", d.iface)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case packet, ok := <-packets:
			if !ok {
				return nil
			}
			d.handlePacket(packet, sink)
		}
	}
}

func (d *PcapDevice) handlePacket(packet gopacket.Packet, sink FrameSink) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[DEVICE] Recovered from panic decoding packet: %v", r)
		}
	}()

	layer := packet.Layer(layers.LayerTypeRadioTap)
	if layer == nil {
		return
	}
	radiotap, ok := layer.(*layers.RadioTap)
	if !ok {
		return
	}

	data := packet.Data()
	if int(radiotap.Length) >= len(data) {
		return
	}
	raw := data[radiotap.Length:]
	if radiotap.Flags.FCS() {
		raw = append([]byte(nil), raw...)
	} else {
		raw = frame.AppendFCS(raw)
	}

	rx := domain.RxInfo{Channel: d.Channel()}
	if radiotap.Present.DBMAntennaSignal() {
		rx.RssiDbm = radiotap.DBMAntennaSignal
	}
	if ch := frequencyToChannel(int(radiotap.ChannelFrequency)); ch != 0 {
		rx.Channel = domain.Channel{Primary: uint8(ch)}
	}
	sink(raw, rx)
}

// Close releases the capture handle.
func (d *PcapDevice) Close() {
	d.handle.Close()
}

func frequencyToChannel(freq int) int {
	if freq >= 2412 && freq <= 2484 {
		if freq == 2484 {
			return 14
		}
		return (freq - 2407) / 5
	}
	if freq >= 5170 && freq <= 5825 {
		return (freq - 5000) / 5
	}
	return 0
}
