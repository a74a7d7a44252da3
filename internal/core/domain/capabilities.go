package domain

// Capability information field bits (IEEE 802.11-2016 9.4.1.4).
const (
	CapEss               uint16 = 1 << 0
	CapIbss              uint16 = 1 << 1
	CapCfPollable        uint16 = 1 << 2
	CapCfPollRequest     uint16 = 1 << 3
	CapPrivacy           uint16 = 1 << 4
	CapShortPreamble     uint16 = 1 << 5
	CapSpectrumMgmt      uint16 = 1 << 8
	CapQos               uint16 = 1 << 9
	CapShortSlotTime     uint16 = 1 << 10
	CapApsd              uint16 = 1 << 11
	CapRadioMeasure      uint16 = 1 << 12
	CapDelayedBlockAck   uint16 = 1 << 14
	CapImmediateBlockAck uint16 = 1 << 15
)

// HtCapabilities is the decoded HT Capabilities element.
type HtCapabilities struct {
	LDPC        bool  `json:"ldpc"`
	ChanWidth40 bool  `json:"chan_width_40"`
	SmPowerSave uint8 `json:"sm_power_save"`
	Greenfield  bool  `json:"greenfield"`
	SGI20       bool  `json:"sgi20"`
	SGI40       bool  `json:"sgi40"`
	TxStbc      bool  `json:"tx_stbc"`
	// RxStbc is the number of spatial streams, 0..3.
	RxStbc             uint8 `json:"rx_stbc"`
	DelayedBlockAck    bool  `json:"delayed_block_ack"`
	MaxAmsdu7935       bool  `json:"max_amsdu_7935"`
	DsssCck40          bool  `json:"dsss_cck_40"`
	FortyMhzIntolerant bool  `json:"forty_mhz_intolerant"`
	LsigTxopProtection bool  `json:"lsig_txop_protection"`

	AmpduParams     uint8    `json:"ampdu_params"`
	McsSet          [16]byte `json:"mcs_set"`
	ExtCapabilities uint16   `json:"ext_capabilities"`
	TxBeamforming   uint32   `json:"tx_beamforming"`
	Asel            uint8    `json:"asel"`
}

// HtOperation is the decoded HT Operation element.
type HtOperation struct {
	PrimaryChannel uint8 `json:"primary_channel"`
	// SecondaryOffset is 0 (none), 1 (above) or 3 (below).
	SecondaryOffset uint8 `json:"secondary_offset"`
	// StaChanWidthAny is set when the AP allows any supported channel width.
	StaChanWidthAny bool     `json:"sta_chan_width_any"`
	Info            [5]byte  `json:"info"`
	BasicMcsSet     [16]byte `json:"basic_mcs_set"`
}

// VhtCapabilities is the decoded VHT Capabilities element.
type VhtCapabilities struct {
	MaxMpduLen            uint8 `json:"max_mpdu_len"`
	SupportedChanWidthSet uint8 `json:"supported_chan_width_set"`
	RxLdpc                bool  `json:"rx_ldpc"`
	SGI80                 bool  `json:"sgi80"`
	SGI160                bool  `json:"sgi160"`
	TxStbc                bool  `json:"tx_stbc"`
	// RxStbc is the number of spatial streams, 0..4.
	RxStbc uint8 `json:"rx_stbc"`
	// Other holds capability bits 11 and above, carried through untouched.
	Other  uint32  `json:"other"`
	McsNss [8]byte `json:"mcs_nss"`
}

// VhtOperation is the decoded VHT Operation element.
type VhtOperation struct {
	ChannelWidth uint8  `json:"channel_width"`
	Ccfs0        uint8  `json:"ccfs0"`
	Ccfs1        uint8  `json:"ccfs1"`
	BasicMcs     uint16 `json:"basic_mcs"`
}

// BandCapabilities is what the radio supports in one band.
type BandCapabilities struct {
	Rates  []SupportedRate  `json:"rates"`
	HtCap  *HtCapabilities  `json:"ht_cap,omitempty"`
	VhtCap *VhtCapabilities `json:"vht_cap,omitempty"`
}

// DeviceCapabilities describes the local radio.
type DeviceCapabilities struct {
	CapabilityInfo uint16                    `json:"capability_info"`
	Phys           []Phy                     `json:"phys"`
	Bands          map[Band]BandCapabilities `json:"bands"`
}

// ForChannel returns the band capabilities matching ch.
func (d DeviceCapabilities) ForChannel(ch Channel) (BandCapabilities, bool) {
	b, ok := d.Bands[ch.Band()]
	return b, ok
}

// SupportsPhy reports whether the radio lists p.
func (d DeviceCapabilities) SupportsPhy(p Phy) bool {
	for _, x := range d.Phys {
		if x == p {
			return true
		}
	}
	return false
}
