package frame

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

// Layer types for the frame parts gopacket cannot serialize itself.
var (
	LayerTypeQosControl = gopacket.RegisterLayerType(1401, gopacket.LayerTypeMetadata{Name: "Dot11QosControl"})
	LayerTypePsPoll     = gopacket.RegisterLayerType(1402, gopacket.LayerTypeMetadata{Name: "Dot11PsPoll"})
	LayerTypeAuthBody   = gopacket.RegisterLayerType(1403, gopacket.LayerTypeMetadata{Name: "Dot11AuthBody"})
	LayerTypeAssocBody  = gopacket.RegisterLayerType(1404, gopacket.LayerTypeMetadata{Name: "Dot11AssocBody"})
	LayerTypeBlockAck   = gopacket.RegisterLayerType(1405, gopacket.LayerTypeMetadata{Name: "Dot11BlockAckAction"})
	LayerTypeBeaconBody = gopacket.RegisterLayerType(1406, gopacket.LayerTypeMetadata{Name: "Dot11BeaconBody"})
)

const (
	fcsLen         = 4
	mgmtHeaderLen  = 24
	psPollLen      = 16
	ctrlHeaderLen  = 10
	qosControlLen  = 2
	htControlLen   = 4
	addr4Len       = 6
	authBodyLen    = 6
	assocReqLen    = 4
	assocRespLen   = 6
	reasonLen      = 2
	beaconFixedLen = 12
	addBaLen       = 9

	// aidMask strips the two reserved bits the AID field carries on the air.
	aidMask = 0x3fff
)

// Block ack action frame constants (IEEE 802.11-2016 9.6.5).
const (
	CategoryBlockAck uint8 = 3

	ActionAddBaRequest  uint8 = 0
	ActionAddBaResponse uint8 = 1
	ActionDelBa         uint8 = 2
)

// qosControl is the two-byte QoS Control field following the data header.
type qosControl struct {
	Tid uint8
}

func (q *qosControl) LayerType() gopacket.LayerType { return LayerTypeQosControl }

func (q *qosControl) SerializeTo(b gopacket.SerializeBuffer, _ gopacket.SerializeOptions) error {
	buf, err := b.PrependBytes(qosControlLen)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(buf, uint16(q.Tid&0x0f))
	return nil
}

// psPoll is the whole PS-Poll control frame minus FCS.
type psPoll struct {
	Aid   uint16
	Bssid domain.MacAddr
	Ta    domain.MacAddr
}

func (p *psPoll) LayerType() gopacket.LayerType { return LayerTypePsPoll }

func (p *psPoll) SerializeTo(b gopacket.SerializeBuffer, _ gopacket.SerializeOptions) error {
	buf, err := b.PrependBytes(psPollLen)
	if err != nil {
		return err
	}
	buf[0] = uint8(layers.Dot11TypeCtrlPowersavePoll) << 2
	buf[1] = 0
	// The two most significant bits are always set in a PS-Poll AID.
	binary.LittleEndian.PutUint16(buf[2:4], (p.Aid&aidMask)|0xc000)
	copy(buf[4:10], p.Bssid[:])
	copy(buf[10:16], p.Ta[:])
	return nil
}

// authBody is the fixed part of an Authentication frame.
type authBody struct {
	Algorithm domain.AuthType
	TxSeq     uint16
	Status    domain.StatusCode
}

func (a *authBody) LayerType() gopacket.LayerType { return LayerTypeAuthBody }

func (a *authBody) SerializeTo(b gopacket.SerializeBuffer, _ gopacket.SerializeOptions) error {
	buf, err := b.PrependBytes(authBodyLen)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(buf[0:2], authAlgorithm(a.Algorithm))
	binary.LittleEndian.PutUint16(buf[2:4], a.TxSeq)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(a.Status))
	return nil
}

// assocBody is the fixed part of an association request or response.
// Responses carry a status and an AID instead of a listen interval.
type assocBody struct {
	Response       bool
	CapabilityInfo uint16
	ListenInterval uint16
	Status         domain.StatusCode
	Aid            uint16
}

func (a *assocBody) LayerType() gopacket.LayerType { return LayerTypeAssocBody }

func (a *assocBody) SerializeTo(b gopacket.SerializeBuffer, _ gopacket.SerializeOptions) error {
	if !a.Response {
		buf, err := b.PrependBytes(assocReqLen)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint16(buf[0:2], a.CapabilityInfo)
		binary.LittleEndian.PutUint16(buf[2:4], a.ListenInterval)
		return nil
	}
	buf, err := b.PrependBytes(assocRespLen)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(buf[0:2], a.CapabilityInfo)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(a.Status))
	binary.LittleEndian.PutUint16(buf[4:6], (a.Aid&aidMask)|0xc000)
	return nil
}

// beaconBody is the fixed part of a Beacon frame.
type beaconBody struct {
	Timestamp      uint64
	Interval       uint16
	CapabilityInfo uint16
}

func (bb *beaconBody) LayerType() gopacket.LayerType { return LayerTypeBeaconBody }

func (bb *beaconBody) SerializeTo(b gopacket.SerializeBuffer, _ gopacket.SerializeOptions) error {
	buf, err := b.PrependBytes(beaconFixedLen)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(buf[0:8], bb.Timestamp)
	binary.LittleEndian.PutUint16(buf[8:10], bb.Interval)
	binary.LittleEndian.PutUint16(buf[10:12], bb.CapabilityInfo)
	return nil
}

// BlockAckParams is the Block Ack Parameter Set field.
type BlockAckParams struct {
	Amsdu      bool
	Immediate  bool
	Tid        uint8
	BufferSize uint16
}

func (p BlockAckParams) encode() uint16 {
	var v uint16
	if p.Amsdu {
		v |= 1
	}
	if p.Immediate {
		v |= 1 << 1
	}
	v |= uint16(p.Tid&0x0f) << 2
	v |= (p.BufferSize & 0x03ff) << 6
	return v
}

func decodeBlockAckParams(v uint16) BlockAckParams {
	return BlockAckParams{
		Amsdu:      v&1 != 0,
		Immediate:  v&(1<<1) != 0,
		Tid:        uint8((v >> 2) & 0x0f),
		BufferSize: v >> 6,
	}
}

// blockAckAction is an ADDBA request or response action body.
type blockAckAction struct {
	Action      uint8
	DialogToken uint8
	Status      domain.StatusCode
	Params      BlockAckParams
	Timeout     uint16
	StartSeq    uint16
}

func (a *blockAckAction) LayerType() gopacket.LayerType { return LayerTypeBlockAck }

func (a *blockAckAction) SerializeTo(b gopacket.SerializeBuffer, _ gopacket.SerializeOptions) error {
	buf, err := b.PrependBytes(addBaLen)
	if err != nil {
		return err
	}
	buf[0] = CategoryBlockAck
	buf[1] = a.Action
	buf[2] = a.DialogToken
	switch a.Action {
	case ActionAddBaResponse:
		binary.LittleEndian.PutUint16(buf[3:5], uint16(a.Status))
		binary.LittleEndian.PutUint16(buf[5:7], a.Params.encode())
		binary.LittleEndian.PutUint16(buf[7:9], a.Timeout)
	default:
		binary.LittleEndian.PutUint16(buf[3:5], a.Params.encode())
		binary.LittleEndian.PutUint16(buf[5:7], a.Timeout)
		binary.LittleEndian.PutUint16(buf[7:9], a.StartSeq<<4)
	}
	return nil
}

// appendFCS appends the little-endian CRC-32 of everything serialized so far.
func appendFCS(b gopacket.SerializeBuffer) error {
	sum := crc32.ChecksumIEEE(b.Bytes())
	fcs, err := b.AppendBytes(fcsLen)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(fcs, sum)
	return nil
}

// AppendFCS returns a copy of raw with its FCS appended, for radios that
// strip it on receive.
func AppendFCS(raw []byte) []byte {
	out := make([]byte, len(raw), len(raw)+fcsLen)
	copy(out, raw)
	return binary.LittleEndian.AppendUint32(out, crc32.ChecksumIEEE(raw))
}

func fcsValid(raw []byte) bool {
	if len(raw) < fcsLen {
		return false
	}
	n := len(raw) - fcsLen
	return crc32.ChecksumIEEE(raw[:n]) == binary.LittleEndian.Uint32(raw[n:])
}

func authAlgorithm(t domain.AuthType) uint16 {
	switch t {
	case domain.AuthSharedKey:
		return 1
	case domain.AuthFastBssTransition:
		return 2
	case domain.AuthSae:
		return 3
	default:
		return 0
	}
}

func authTypeOf(alg uint16) domain.AuthType {
	switch alg {
	case 1:
		return domain.AuthSharedKey
	case 2:
		return domain.AuthFastBssTransition
	case 3:
		return domain.AuthSae
	default:
		return domain.AuthOpenSystem
	}
}
