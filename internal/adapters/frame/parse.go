package frame

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/lcalzada-xor/wsta/internal/adapters/frame/ie"
	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", domain.ErrMalformed, fmt.Sprintf(format, args...))
}

// headerLen computes the MAC header length from the frame control field.
func headerLen(fc0, fc1 byte) int {
	t := layers.Dot11Type(fc0 >> 2)
	flags := layers.Dot11Flags(fc1)
	switch t.MainType() {
	case layers.Dot11TypeCtrl:
		if t == layers.Dot11TypeCtrlPowersavePoll {
			return psPollLen
		}
		return ctrlHeaderLen
	case layers.Dot11TypeData:
		n := mgmtHeaderLen
		if flags.ToDS() && flags.FromDS() {
			n += addr4Len
		}
		if t.QOS() {
			n += qosControlLen
			if flags.Order() {
				n += htControlLen
			}
		}
		return n
	default:
		n := mgmtHeaderLen
		if flags.Order() {
			n += htControlLen
		}
		return n
	}
}

// Parse validates raw, which must end with the FCS, and classifies it.
// Structural violations return an error wrapping domain.ErrMalformed.
func Parse(raw []byte) (Frame, error) {
	if len(raw) < ctrlHeaderLen+fcsLen {
		return nil, malformed("frame too short: %d bytes", len(raw))
	}
	hl := headerLen(raw[0], raw[1])
	if len(raw) < hl+fcsLen {
		return nil, malformed("frame of %d bytes shorter than %d byte header", len(raw), hl)
	}
	if raw[0]&0x03 != 0 {
		return nil, malformed("unsupported protocol version %d", raw[0]&0x03)
	}

	t := layers.Dot11Type(raw[0] >> 2)
	if t.MainType() == layers.Dot11TypeCtrl && t != layers.Dot11TypeCtrlPowersavePoll {
		// Other control frames are never addressed to the station's state machine.
		if !fcsValid(raw) {
			return nil, malformed("bad FCS")
		}
		return &UnhandledFrame{Header: Header{Type: t, Flags: layers.Dot11Flags(raw[1])}}, nil
	}

	dot11 := &layers.Dot11{}
	if err := dot11.DecodeFromBytes(raw, gopacket.NilDecodeFeedback); err != nil {
		return nil, malformed("dot11 header: %v", err)
	}
	if !dot11.ChecksumValid() {
		return nil, malformed("bad FCS")
	}

	h := Header{
		Type:       dot11.Type,
		Flags:      dot11.Flags,
		DurationID: dot11.DurationID,
		Addr1:      macOf(dot11.Address1),
		Addr2:      macOf(dot11.Address2),
		Addr3:      macOf(dot11.Address3),
		Seq:        dot11.SequenceNumber,
	}
	if t.MainType() == layers.Dot11TypeData && t.QOS() {
		qosOff := mgmtHeaderLen
		if h.ToDS() && h.FromDS() {
			qosOff += addr4Len
		}
		h.HasQos = true
		h.Tid = raw[qosOff] & 0x0f
	}
	body := raw[hl : len(raw)-fcsLen]

	switch t.MainType() {
	case layers.Dot11TypeMgmt:
		return parseMgmt(h, body)
	case layers.Dot11TypeData:
		return parseData(h, body)
	default:
		h.Addr1, h.Addr2 = macOf(raw[4:10]), macOf(raw[10:16])
		return &PsPollFrame{Header: h, Aid: h.DurationID & aidMask}, nil
	}
}

func parseMgmt(h Header, body []byte) (Frame, error) {
	switch h.Type {
	case layers.Dot11TypeMgmtAuthentication:
		if len(body) < authBodyLen {
			return nil, malformed("authentication body %d bytes", len(body))
		}
		auth := &layers.Dot11MgmtAuthentication{}
		if err := auth.DecodeFromBytes(body, gopacket.NilDecodeFeedback); err != nil {
			return nil, malformed("authentication: %v", err)
		}
		return &AuthFrame{
			Header:    h,
			Algorithm: authTypeOf(uint16(auth.Algorithm)),
			TxSeq:     auth.Sequence,
			Status:    domain.StatusCode(auth.Status),
		}, nil

	case layers.Dot11TypeMgmtAssociationReq, layers.Dot11TypeMgmtReassociationReq:
		fixed := assocReqLen
		if h.Type == layers.Dot11TypeMgmtReassociationReq {
			fixed += 6
		}
		if len(body) < fixed {
			return nil, malformed("association request body %d bytes", len(body))
		}
		elems, err := ie.ParseElements(body[fixed:])
		if err != nil {
			return nil, malformed("association request elements: %v", err)
		}
		return &AssocReqFrame{
			Header:         h,
			CapabilityInfo: binary.LittleEndian.Uint16(body[0:2]),
			ListenInterval: binary.LittleEndian.Uint16(body[2:4]),
			Elements:       elems,
		}, nil

	case layers.Dot11TypeMgmtAssociationResp, layers.Dot11TypeMgmtReassociationResp:
		if len(body) < assocRespLen {
			return nil, malformed("association response body %d bytes", len(body))
		}
		resp := &layers.Dot11MgmtAssociationResp{}
		if err := resp.DecodeFromBytes(body, gopacket.NilDecodeFeedback); err != nil {
			return nil, malformed("association response: %v", err)
		}
		elems, err := ie.ParseElements(body[assocRespLen:])
		if err != nil {
			return nil, malformed("association response elements: %v", err)
		}
		return &AssocRespFrame{
			Header:         h,
			CapabilityInfo: resp.CapabilityInfo,
			Status:         domain.StatusCode(resp.Status),
			Aid:            resp.AID & aidMask,
			Elements:       elems,
		}, nil

	case layers.Dot11TypeMgmtDeauthentication:
		if len(body) < reasonLen {
			return nil, malformed("deauthentication body %d bytes", len(body))
		}
		deauth := &layers.Dot11MgmtDeauthentication{}
		if err := deauth.DecodeFromBytes(body, gopacket.NilDecodeFeedback); err != nil {
			return nil, malformed("deauthentication: %v", err)
		}
		return &DeauthFrame{Header: h, Reason: domain.ReasonCode(deauth.Reason)}, nil

	case layers.Dot11TypeMgmtDisassociation:
		if len(body) < reasonLen {
			return nil, malformed("disassociation body %d bytes", len(body))
		}
		disassoc := &layers.Dot11MgmtDisassociation{}
		if err := disassoc.DecodeFromBytes(body, gopacket.NilDecodeFeedback); err != nil {
			return nil, malformed("disassociation: %v", err)
		}
		return &DisassocFrame{Header: h, Reason: domain.ReasonCode(disassoc.Reason)}, nil

	case layers.Dot11TypeMgmtBeacon:
		if len(body) < beaconFixedLen {
			return nil, malformed("beacon body %d bytes", len(body))
		}
		beacon := &layers.Dot11MgmtBeacon{}
		if err := beacon.DecodeFromBytes(body, gopacket.NilDecodeFeedback); err != nil {
			return nil, malformed("beacon: %v", err)
		}
		elems, err := ie.ParseElements(body[beaconFixedLen:])
		if err != nil {
			return nil, malformed("beacon elements: %v", err)
		}
		return &BeaconFrame{
			Header:         h,
			Timestamp:      beacon.Timestamp,
			Interval:       beacon.Interval,
			CapabilityInfo: beacon.Flags,
			Elements:       elems,
		}, nil

	case layers.Dot11TypeMgmtAction:
		return parseAction(h, body)
	}
	return &UnhandledFrame{Header: h}, nil
}

func parseAction(h Header, body []byte) (Frame, error) {
	if len(body) < 2 {
		return nil, malformed("action body %d bytes", len(body))
	}
	category, action := body[0], body[1]
	if category != CategoryBlockAck || (action != ActionAddBaRequest && action != ActionAddBaResponse) {
		return &ActionFrame{Header: h, Category: category, Action: action, Body: body[2:]}, nil
	}
	if len(body) < addBaLen {
		return nil, malformed("block ack action body %d bytes", len(body))
	}
	if action == ActionAddBaRequest {
		return &AddBaReqFrame{
			Header:      h,
			DialogToken: body[2],
			Params:      decodeBlockAckParams(binary.LittleEndian.Uint16(body[3:5])),
			Timeout:     binary.LittleEndian.Uint16(body[5:7]),
			StartSeq:    binary.LittleEndian.Uint16(body[7:9]) >> 4,
		}, nil
	}
	return &AddBaRespFrame{
		Header:      h,
		DialogToken: body[2],
		Status:      domain.StatusCode(binary.LittleEndian.Uint16(body[3:5])),
		Params:      decodeBlockAckParams(binary.LittleEndian.Uint16(body[5:7])),
		Timeout:     binary.LittleEndian.Uint16(body[7:9]),
	}, nil
}

func parseData(h Header, body []byte) (Frame, error) {
	switch h.Type {
	case layers.Dot11TypeDataNull, layers.Dot11TypeDataQOSNull:
		return &NullDataFrame{Header: h}, nil
	case layers.Dot11TypeData, layers.Dot11TypeDataQOSData:
	default:
		return &UnhandledFrame{Header: h}, nil
	}

	llc := &layers.LLC{}
	if err := llc.DecodeFromBytes(body, gopacket.NilDecodeFeedback); err != nil {
		return nil, malformed("llc: %v", err)
	}
	if llc.DSAP != 0xaa || llc.SSAP != 0xaa {
		// Not SNAP encapsulated; nothing above the MAC can consume it.
		return &UnhandledFrame{Header: h}, nil
	}
	snap := &layers.SNAP{}
	if err := snap.DecodeFromBytes(llc.Payload, gopacket.NilDecodeFeedback); err != nil {
		return nil, malformed("snap: %v", err)
	}

	d := &DataFrame{Header: h, EtherType: snap.Type, Payload: snap.Payload}
	if d.IsEapol() {
		eapol := &layers.EAPOL{}
		if err := eapol.DecodeFromBytes(snap.Payload, gopacket.NilDecodeFeedback); err != nil {
			return nil, malformed("eapol: %v", err)
		}
		total := 4 + int(eapol.Length)
		if total > len(snap.Payload) {
			return nil, malformed("eapol length %d exceeds %d byte body", eapol.Length, len(snap.Payload)-4)
		}
		d.Eapol = snap.Payload[:total]
	}
	return d, nil
}

// EthernetHeader is the decoded header of an outbound Ethernet II frame.
type EthernetHeader struct {
	Dst       domain.MacAddr
	Src       domain.MacAddr
	EtherType layers.EthernetType
}

// DecodeEthernet splits an Ethernet II frame into header and payload.
func DecodeEthernet(raw []byte) (EthernetHeader, []byte, error) {
	eth := &layers.Ethernet{}
	if err := eth.DecodeFromBytes(raw, gopacket.NilDecodeFeedback); err != nil {
		return EthernetHeader{}, nil, malformed("ethernet: %v", err)
	}
	if eth.EthernetType == layers.EthernetTypeLLC {
		return EthernetHeader{}, nil, malformed("802.3 length field %d, not an Ethernet II frame", eth.Length)
	}
	return EthernetHeader{
		Dst:       macOf(eth.DstMAC),
		Src:       macOf(eth.SrcMAC),
		EtherType: eth.EthernetType,
	}, eth.Payload, nil
}

func macOf(hw net.HardwareAddr) domain.MacAddr {
	var m domain.MacAddr
	copy(m[:], hw)
	return m
}
