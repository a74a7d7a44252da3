package frame

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/lcalzada-xor/wsta/internal/adapters/frame/ie"
	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

var serializeOpts = gopacket.SerializeOptions{}

// Addressing is the header addressing of an outbound management or data
// frame. For data frames Dst and Src are the final destination and the
// original source; the writer places them according to the DS bits.
type Addressing struct {
	Dst   domain.MacAddr
	Src   domain.MacAddr
	Bssid domain.MacAddr
	Seq   uint16
}

// DataFields tune the header of an outbound data frame.
type DataFields struct {
	// FromDS marks a frame sent by the access point; stations send ToDS.
	FromDS    bool
	Qos       bool
	Tid       uint8
	Protected bool
	MoreData  bool
	PowerMgmt bool
}

// AssocReqFields is the body of an Association Request.
type AssocReqFields struct {
	CapabilityInfo uint16
	ListenInterval uint16
	SSID           string
	Rates          []domain.SupportedRate
	// RSNE is the element body without the ID and length octets.
	RSNE   []byte
	HtCap  *domain.HtCapabilities
	VhtCap *domain.VhtCapabilities
}

// AssocRespFields is the body of an Association Response.
type AssocRespFields struct {
	CapabilityInfo uint16
	Status         domain.StatusCode
	Aid            uint16
	Rates          []domain.SupportedRate
	HtCap          *domain.HtCapabilities
	HtOp           *domain.HtOperation
	VhtCap         *domain.VhtCapabilities
	VhtOp          *domain.VhtOperation
}

// BeaconFields is the body of a Beacon.
type BeaconFields struct {
	Timestamp      uint64
	Interval       uint16
	CapabilityInfo uint16
	SSID           string
	Rates          []domain.SupportedRate
	Channel        uint8
	// TIM is an encoded TIM element body; nil omits the element.
	TIM    []byte
	RSNE   []byte
	HtCap  *domain.HtCapabilities
	HtOp   *domain.HtOperation
	VhtCap *domain.VhtCapabilities
	VhtOp  *domain.VhtOperation
}

func mgmtHeader(t layers.Dot11Type, a Addressing) *layers.Dot11 {
	return &layers.Dot11{
		Type:           t,
		Address1:       a.Dst.HardwareAddr(),
		Address2:       a.Src.HardwareAddr(),
		Address3:       a.Bssid.HardwareAddr(),
		SequenceNumber: a.Seq & 0x0fff,
	}
}

func dataHeader(t layers.Dot11Type, a Addressing, f DataFields) *layers.Dot11 {
	d := &layers.Dot11{Type: t, SequenceNumber: a.Seq & 0x0fff}
	if f.FromDS {
		d.Flags |= layers.Dot11FlagsFromDS
		d.Address1 = a.Dst.HardwareAddr()
		d.Address2 = a.Bssid.HardwareAddr()
		d.Address3 = a.Src.HardwareAddr()
	} else {
		d.Flags |= layers.Dot11FlagsToDS
		d.Address1 = a.Bssid.HardwareAddr()
		d.Address2 = a.Src.HardwareAddr()
		d.Address3 = a.Dst.HardwareAddr()
	}
	if f.Protected {
		d.Flags |= layers.Dot11FlagsWEP
	}
	if f.MoreData {
		d.Flags |= layers.Dot11FlagsMD
	}
	if f.PowerMgmt {
		d.Flags |= layers.Dot11FlagsPowerManagement
	}
	return d
}

// write serializes ls into a pooled buffer and appends the FCS.
func write(p *Pool, what string, ls ...gopacket.SerializableLayer) (*Buffer, error) {
	b, err := p.Get()
	if err != nil {
		return nil, err
	}
	if err := gopacket.SerializeLayers(b.buf, serializeOpts, ls...); err != nil {
		b.Release()
		return nil, fmt.Errorf("serialize %s failed: %w", what, err)
	}
	if err := appendFCS(b.buf); err != nil {
		b.Release()
		return nil, fmt.Errorf("serialize %s failed: %w", what, err)
	}
	return b, nil
}

// WriteAuthFrame builds an Authentication frame.
func WriteAuthFrame(p *Pool, a Addressing, alg domain.AuthType, txSeq uint16, status domain.StatusCode) (*Buffer, error) {
	return write(p, "authentication",
		mgmtHeader(layers.Dot11TypeMgmtAuthentication, a),
		&authBody{Algorithm: alg, TxSeq: txSeq, Status: status},
	)
}

// WriteDeauthFrame builds a Deauthentication frame.
func WriteDeauthFrame(p *Pool, a Addressing, reason domain.ReasonCode) (*Buffer, error) {
	return write(p, "deauthentication",
		mgmtHeader(layers.Dot11TypeMgmtDeauthentication, a),
		&layers.Dot11MgmtDeauthentication{Reason: layers.Dot11Reason(reason)},
	)
}

// WriteDisassocFrame builds a Disassociation frame.
func WriteDisassocFrame(p *Pool, a Addressing, reason domain.ReasonCode) (*Buffer, error) {
	return write(p, "disassociation",
		mgmtHeader(layers.Dot11TypeMgmtDisassociation, a),
		&layers.Dot11MgmtDisassociation{Reason: layers.Dot11Reason(reason)},
	)
}

// WriteAssocReqFrame builds an Association Request frame.
func WriteAssocReqFrame(p *Pool, a Addressing, f AssocReqFields) (*Buffer, error) {
	ls := []gopacket.SerializableLayer{
		mgmtHeader(layers.Dot11TypeMgmtAssociationReq, a),
		&assocBody{CapabilityInfo: f.CapabilityInfo, ListenInterval: f.ListenInterval},
		ie.Element(ie.TagSSID, []byte(f.SSID)),
	}
	for _, e := range ie.RatesElements(f.Rates) {
		ls = append(ls, e)
	}
	if len(f.RSNE) > 0 {
		ls = append(ls, ie.Element(ie.TagRSN, f.RSNE))
	}
	if f.HtCap != nil {
		ls = append(ls, ie.Element(ie.TagHTCapabilities, ie.EncodeHtCapabilities(*f.HtCap)))
	}
	if f.VhtCap != nil {
		ls = append(ls, ie.Element(ie.TagVHTCapabilities, ie.EncodeVhtCapabilities(*f.VhtCap)))
	}
	return write(p, "association request", ls...)
}

// WriteAssocRespFrame builds an Association Response frame.
func WriteAssocRespFrame(p *Pool, a Addressing, f AssocRespFields) (*Buffer, error) {
	ls := []gopacket.SerializableLayer{
		mgmtHeader(layers.Dot11TypeMgmtAssociationResp, a),
		&assocBody{Response: true, CapabilityInfo: f.CapabilityInfo, Status: f.Status, Aid: f.Aid},
	}
	for _, e := range ie.RatesElements(f.Rates) {
		ls = append(ls, e)
	}
	ls = append(ls, optionalHtVht(f.HtCap, f.HtOp, f.VhtCap, f.VhtOp)...)
	return write(p, "association response", ls...)
}

// WriteBeaconFrame builds a Beacon frame.
func WriteBeaconFrame(p *Pool, a Addressing, f BeaconFields) (*Buffer, error) {
	ls := []gopacket.SerializableLayer{
		mgmtHeader(layers.Dot11TypeMgmtBeacon, a),
		&beaconBody{Timestamp: f.Timestamp, Interval: f.Interval, CapabilityInfo: f.CapabilityInfo},
		ie.Element(ie.TagSSID, []byte(f.SSID)),
	}
	for _, e := range ie.RatesElements(f.Rates) {
		ls = append(ls, e)
	}
	if f.Channel != 0 {
		ls = append(ls, ie.Element(ie.TagDSParameterSet, []byte{f.Channel}))
	}
	if f.TIM != nil {
		ls = append(ls, ie.Element(ie.TagTIM, f.TIM))
	}
	if len(f.RSNE) > 0 {
		ls = append(ls, ie.Element(ie.TagRSN, f.RSNE))
	}
	ls = append(ls, optionalHtVht(f.HtCap, f.HtOp, f.VhtCap, f.VhtOp)...)
	return write(p, "beacon", ls...)
}

func optionalHtVht(htCap *domain.HtCapabilities, htOp *domain.HtOperation, vhtCap *domain.VhtCapabilities, vhtOp *domain.VhtOperation) []gopacket.SerializableLayer {
	var ls []gopacket.SerializableLayer
	if htCap != nil {
		ls = append(ls, ie.Element(ie.TagHTCapabilities, ie.EncodeHtCapabilities(*htCap)))
	}
	if htOp != nil {
		ls = append(ls, ie.Element(ie.TagHTOperation, ie.EncodeHtOperation(*htOp)))
	}
	if vhtCap != nil {
		ls = append(ls, ie.Element(ie.TagVHTCapabilities, ie.EncodeVhtCapabilities(*vhtCap)))
	}
	if vhtOp != nil {
		ls = append(ls, ie.Element(ie.TagVHTOperation, ie.EncodeVhtOperation(*vhtOp)))
	}
	return ls
}

// WriteAddBaReqFrame builds an ADDBA Request action frame.
func WriteAddBaReqFrame(p *Pool, a Addressing, token uint8, params BlockAckParams, timeout uint16) (*Buffer, error) {
	return write(p, "addba request",
		mgmtHeader(layers.Dot11TypeMgmtAction, a),
		&blockAckAction{Action: ActionAddBaRequest, DialogToken: token, Params: params, Timeout: timeout},
	)
}

// WriteAddBaRespFrame builds an ADDBA Response action frame.
func WriteAddBaRespFrame(p *Pool, a Addressing, token uint8, status domain.StatusCode, params BlockAckParams, timeout uint16) (*Buffer, error) {
	return write(p, "addba response",
		mgmtHeader(layers.Dot11TypeMgmtAction, a),
		&blockAckAction{Action: ActionAddBaResponse, DialogToken: token, Status: status, Params: params, Timeout: timeout},
	)
}

// WritePsPollFrame builds a PS-Poll control frame.
func WritePsPollFrame(p *Pool, aid uint16, bssid, ta domain.MacAddr) (*Buffer, error) {
	return write(p, "ps-poll", &psPoll{Aid: aid, Bssid: bssid, Ta: ta})
}

// WriteNullDataFrame builds a Null data frame, or a QoS Null when f.Qos is set.
func WriteNullDataFrame(p *Pool, a Addressing, f DataFields) (*Buffer, error) {
	if !f.Qos {
		return write(p, "null data", dataHeader(layers.Dot11TypeDataNull, a, f))
	}
	return write(p, "qos null data", dataHeader(layers.Dot11TypeDataQOSNull, a, f), &qosControl{Tid: f.Tid})
}

// WriteDataFrame builds an LLC/SNAP encapsulated data frame.
func WriteDataFrame(p *Pool, a Addressing, f DataFields, etherType layers.EthernetType, payload []byte) (*Buffer, error) {
	ls := make([]gopacket.SerializableLayer, 0, 5)
	if f.Qos {
		ls = append(ls, dataHeader(layers.Dot11TypeDataQOSData, a, f), &qosControl{Tid: f.Tid})
	} else {
		ls = append(ls, dataHeader(layers.Dot11TypeData, a, f))
	}
	ls = append(ls,
		&layers.LLC{DSAP: 0xaa, SSAP: 0xaa, Control: 0x03},
		&layers.SNAP{OrganizationalCode: []byte{0, 0, 0}, Type: etherType},
		gopacket.Payload(payload),
	)
	return write(p, "data", ls...)
}

// WriteEapolFrame builds a data frame carrying an EAPOL PDU.
func WriteEapolFrame(p *Pool, a Addressing, f DataFields, eapol []byte) (*Buffer, error) {
	return WriteDataFrame(p, a, f, layers.EthernetTypeEAPOL, eapol)
}

// WriteEthernetFrame builds the Ethernet II frame delivered to the network
// stack. It carries no FCS.
func WriteEthernetFrame(p *Pool, dst, src domain.MacAddr, etherType layers.EthernetType, payload []byte) (*Buffer, error) {
	b, err := p.Get()
	if err != nil {
		return nil, err
	}
	eth := &layers.Ethernet{
		DstMAC:       dst.HardwareAddr(),
		SrcMAC:       src.HardwareAddr(),
		EthernetType: etherType,
	}
	if err := gopacket.SerializeLayers(b.buf, serializeOpts, eth, gopacket.Payload(payload)); err != nil {
		b.Release()
		return nil, fmt.Errorf("serialize ethernet failed: %w", err)
	}
	return b, nil
}
