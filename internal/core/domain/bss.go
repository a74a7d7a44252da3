package domain

import "time"

// BssType is the kind of BSS advertised in a beacon.
type BssType int

const (
	BssInfrastructure BssType = iota
	BssIndependent
)

// BssDescription is what a scan learned about an access point.
type BssDescription struct {
	Bssid          MacAddr         `json:"bssid"`
	SSID           string          `json:"ssid"`
	BssType        BssType         `json:"bss_type"`
	BeaconPeriod   uint16          `json:"beacon_period"` // TUs
	DtimPeriod     uint8           `json:"dtim_period"`
	Channel        Channel         `json:"channel"`
	Rates          []SupportedRate `json:"rates"`
	CapabilityInfo uint16          `json:"capability_info"`
	// RSNE is the raw RSN element body; empty for open networks.
	RSNE   []byte           `json:"rsne,omitempty"`
	HtCap  *HtCapabilities  `json:"ht_cap,omitempty"`
	HtOp   *HtOperation     `json:"ht_op,omitempty"`
	VhtCap *VhtCapabilities `json:"vht_cap,omitempty"`
	VhtOp  *VhtOperation    `json:"vht_op,omitempty"`
}

// IsRsn reports whether the BSS advertises an RSN element.
func (b BssDescription) IsRsn() bool {
	return len(b.RSNE) > 0
}

// BeaconInterval returns the beacon period as a duration.
func (b BssDescription) BeaconInterval() time.Duration {
	return TUs(uint32(b.BeaconPeriod))
}

// JoinContext is the BSS the station is joined to. It is immutable for one
// association attempt.
type JoinContext struct {
	Bss            BssDescription `json:"bss"`
	Phy            Phy            `json:"phy"`
	ListenInterval uint16         `json:"listen_interval"`
}

// AssocResponse holds the peer-advertised fields of an association response.
type AssocResponse struct {
	CapabilityInfo uint16
	Status         StatusCode
	Aid            uint16
	Rates          []SupportedRate
	HtCap          *HtCapabilities
	HtOp           *HtOperation
	VhtCap         *VhtCapabilities
	VhtOp          *VhtOperation
}

// AssocContext is the negotiated result of a successful association.
type AssocContext struct {
	Bssid          MacAddr          `json:"bssid"`
	Aid            uint16           `json:"aid"`
	CapabilityInfo uint16           `json:"capability_info"`
	Rates          []SupportedRate  `json:"rates"`
	HtCap          *HtCapabilities  `json:"ht_cap,omitempty"`
	HtOp           *HtOperation     `json:"ht_op,omitempty"`
	VhtCap         *VhtCapabilities `json:"vht_cap,omitempty"`
	VhtOp          *VhtOperation    `json:"vht_op,omitempty"`
	Phy            Phy              `json:"phy"`
	Channel        Channel          `json:"channel"`
	IsCbw40Rx      bool             `json:"is_cbw40_rx"`
	IsCbw40Tx      bool             `json:"is_cbw40_tx"`
	ListenInterval uint16           `json:"listen_interval"`
	AssocStart     time.Time        `json:"assoc_start"`
}

// HasHt reports whether HT was negotiated.
func (a AssocContext) HasHt() bool { return a.HtCap != nil }

// HasVht reports whether VHT was negotiated.
func (a AssocContext) HasVht() bool { return a.VhtCap != nil }

// IsQos reports whether data frames should carry a QoS control field.
func (a AssocContext) IsQos() bool {
	return a.Phy == PhyHt || a.Phy == PhyVht
}

// RxInfo is the per-frame receive metadata reported by the radio.
type RxInfo struct {
	RssiDbm int8
	Channel Channel
}

// TxFlags tune how the device transmits a frame.
type TxFlags uint32

const (
	// TxFavorReliability asks the device for a robust rate and retries.
	TxFavorReliability TxFlags = 1 << iota
	// TxProtected asks the device to encrypt the frame.
	TxProtected
)
