package frame

import (
	"github.com/google/gopacket/layers"

	"github.com/lcalzada-xor/wsta/internal/adapters/frame/ie"
	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

// Frame is a classified inbound frame. Every implementation embeds Header,
// so the set of frame types is closed to this package.
type Frame interface {
	FrameHeader() *Header
	isFrame()
}

// Header is the decoded MAC header shared by every frame.
type Header struct {
	Type       layers.Dot11Type
	Flags      layers.Dot11Flags
	DurationID uint16
	Addr1      domain.MacAddr
	Addr2      domain.MacAddr
	Addr3      domain.MacAddr
	Seq        uint16
	// Tid is only meaningful when HasQos is set.
	HasQos bool
	Tid    uint8
}

// FrameHeader returns h.
func (h *Header) FrameHeader() *Header { return h }

func (*Header) isFrame() {}

// ToDS reports the To DS flag.
func (h *Header) ToDS() bool { return h.Flags.ToDS() }

// FromDS reports the From DS flag.
func (h *Header) FromDS() bool { return h.Flags.FromDS() }

// MoreData reports the More Data flag.
func (h *Header) MoreData() bool { return h.Flags.MD() }

// PowerMgmt reports the Power Management flag.
func (h *Header) PowerMgmt() bool { return h.Flags.PowerManagement() }

// Protected reports the Protected Frame flag.
func (h *Header) Protected() bool { return h.Flags.WEP() }

// Bssid returns the BSSID field for the frame's direction.
func (h *Header) Bssid() domain.MacAddr {
	switch {
	case h.Type.MainType() != layers.Dot11TypeData:
		return h.Addr3
	case h.FromDS() && !h.ToDS():
		return h.Addr2
	case h.ToDS() && !h.FromDS():
		return h.Addr1
	default:
		return h.Addr3
	}
}

// Src returns the source address of a data frame, the transmitter otherwise.
func (h *Header) Src() domain.MacAddr {
	if h.Type.MainType() == layers.Dot11TypeData && h.FromDS() && !h.ToDS() {
		return h.Addr3
	}
	return h.Addr2
}

// Dst returns the final destination of a data frame, the receiver otherwise.
func (h *Header) Dst() domain.MacAddr {
	if h.Type.MainType() == layers.Dot11TypeData && h.ToDS() && !h.FromDS() {
		return h.Addr3
	}
	return h.Addr1
}

// AuthFrame is an Authentication frame.
type AuthFrame struct {
	Header
	Algorithm domain.AuthType
	TxSeq     uint16
	Status    domain.StatusCode
}

// AssocReqFrame is an Association Request frame.
type AssocReqFrame struct {
	Header
	CapabilityInfo uint16
	ListenInterval uint16
	Elements       ie.Elements
}

// AssocRespFrame is an Association Response frame.
type AssocRespFrame struct {
	Header
	CapabilityInfo uint16
	Status         domain.StatusCode
	Aid            uint16
	Elements       ie.Elements
}

// DeauthFrame is a Deauthentication frame.
type DeauthFrame struct {
	Header
	Reason domain.ReasonCode
}

// DisassocFrame is a Disassociation frame.
type DisassocFrame struct {
	Header
	Reason domain.ReasonCode
}

// BeaconFrame is a Beacon frame.
type BeaconFrame struct {
	Header
	Timestamp      uint64
	Interval       uint16
	CapabilityInfo uint16
	Elements       ie.Elements
}

// AddBaReqFrame is an ADDBA Request action frame.
type AddBaReqFrame struct {
	Header
	DialogToken uint8
	Params      BlockAckParams
	Timeout     uint16
	StartSeq    uint16
}

// AddBaRespFrame is an ADDBA Response action frame.
type AddBaRespFrame struct {
	Header
	DialogToken uint8
	Status      domain.StatusCode
	Params      BlockAckParams
	Timeout     uint16
}

// ActionFrame is any other action frame.
type ActionFrame struct {
	Header
	Category uint8
	Action   uint8
	Body     []byte
}

// DataFrame is a data frame carrying an LLC/SNAP payload.
type DataFrame struct {
	Header
	EtherType layers.EthernetType
	// Payload is the body after the SNAP header.
	Payload []byte
	// Eapol holds the EAPOL PDU, header included, trimmed to its declared length.
	Eapol []byte
}

// IsEapol reports whether the frame carries EAPOL.
func (d *DataFrame) IsEapol() bool { return d.EtherType == layers.EthernetTypeEAPOL }

// NullDataFrame is a Null or QoS Null data frame.
type NullDataFrame struct {
	Header
}

// PsPollFrame is a PS-Poll control frame.
type PsPollFrame struct {
	Header
	Aid uint16
}

// UnhandledFrame is a well-formed frame the station does not act on.
type UnhandledFrame struct {
	Header
}
