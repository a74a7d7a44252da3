// Package simap simulates an access point on the far side of a
// device.MockDevice, so the station can be driven end to end without a
// radio.
package simap

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"code.cloudfoundry.org/clock"
	"github.com/google/gopacket/layers"

	"github.com/lcalzada-xor/wsta/internal/adapters/frame"
	"github.com/lcalzada-xor/wsta/internal/adapters/frame/ie"
	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

// Sink receives the frames the access point transmits. It must not block
// and must not call back into the station synchronously.
type Sink func(raw []byte, rx domain.RxInfo) bool

// Config describes the simulated BSS and how it answers.
type Config struct {
	Bssid          domain.MacAddr
	SSID           string
	Channel        domain.Channel
	BeaconPeriod   uint16
	DtimPeriod     uint8
	Rates          []domain.SupportedRate
	CapabilityInfo uint16
	RSNE           []byte
	HtCap          *domain.HtCapabilities
	HtOp           *domain.HtOperation

	// AuthStatus and AssocStatus are returned to every request.
	AuthStatus  domain.StatusCode
	AssocStatus domain.StatusCode
	// RssiDbm is reported with every frame the station receives.
	RssiDbm int8
	// Echo reflects uplink data frames back to their sender.
	Echo bool
}

// DefaultConfig is an open 2.4 GHz BSS on channel 6.
func DefaultConfig() Config {
	return Config{
		Bssid:          domain.MustParseMAC("02:5a:00:00:00:01"),
		SSID:           "wsta-lab",
		Channel:        domain.Channel{Primary: 6},
		BeaconPeriod:   100,
		DtimPeriod:     1,
		Rates:          []domain.SupportedRate{0x82, 0x84, 0x8b, 0x96, 0x0c, 0x12, 0x18, 0x24, 0x30, 0x48, 0x60, 0x6c},
		CapabilityInfo: domain.CapEss | domain.CapShortPreamble | domain.CapShortSlotTime,
		RssiDbm:        -45,
		Echo:           true,
	}
}

// ClientState is how far a station got with the access point.
type ClientState int

const (
	ClientAuthenticated ClientState = iota + 1
	ClientAssociated
)

func (s ClientState) String() string {
	switch s {
	case ClientAuthenticated:
		return "authenticated"
	case ClientAssociated:
		return "associated"
	}
	return "unknown"
}

// Client is the access point's view of one station.
type Client struct {
	Addr      domain.MacAddr `json:"addr"`
	State     ClientState    `json:"state"`
	Aid       uint16         `json:"aid"`
	PowerSave bool           `json:"power_save"`
	Buffered  int            `json:"buffered"`
	// Uplink counts data frames received from the station.
	Uplink uint64 `json:"uplink"`
	// EapolKeys lists the handshake messages the station sent.
	EapolKeys []int `json:"eapol_keys,omitempty"`
	BlockAck  bool  `json:"block_ack"`
}

type client struct {
	Client
	buffered [][]byte
}

// AccessPoint answers the frames a station transmits and originates
// beacons, data and management frames of its own.
type AccessPoint struct {
	cfg  Config
	sink Sink
	pool *frame.Pool

	mu      sync.Mutex
	seq     uint16
	nextAid uint16
	clients map[domain.MacAddr]*client
}

// New creates an access point that transmits into sink.
func New(cfg Config, sink Sink) *AccessPoint {
	return &AccessPoint{
		cfg:     cfg,
		sink:    sink,
		pool:    frame.NewPool(8),
		nextAid: 1,
		clients: make(map[domain.MacAddr]*client),
	}
}

// SetSink replaces the transmit sink.
func (ap *AccessPoint) SetSink(sink Sink) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.sink = sink
}

// BssDescription is what a scan of the access point would report.
func (ap *AccessPoint) BssDescription() domain.BssDescription {
	return domain.BssDescription{
		Bssid:          ap.cfg.Bssid,
		SSID:           ap.cfg.SSID,
		BssType:        domain.BssInfrastructure,
		BeaconPeriod:   ap.cfg.BeaconPeriod,
		DtimPeriod:     ap.cfg.DtimPeriod,
		Channel:        ap.cfg.Channel,
		Rates:          append([]domain.SupportedRate(nil), ap.cfg.Rates...),
		CapabilityInfo: ap.capabilityInfo(),
		RSNE:           ap.cfg.RSNE,
		HtCap:          ap.cfg.HtCap,
		HtOp:           ap.cfg.HtOp,
	}
}

func (ap *AccessPoint) capabilityInfo() uint16 {
	c := ap.cfg.CapabilityInfo
	if len(ap.cfg.RSNE) > 0 {
		c |= domain.CapPrivacy
	}
	return c
}

// Clients returns the known stations ordered by address.
func (ap *AccessPoint) Clients() []Client {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	out := make([]Client, 0, len(ap.clients))
	for _, c := range ap.clients {
		snap := c.Client
		snap.Buffered = len(c.buffered)
		snap.EapolKeys = append([]int(nil), c.EapolKeys...)
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Addr.String() < out[j].Addr.String()
	})
	return out
}

// Client returns the view of sta.
func (ap *AccessPoint) Client(sta domain.MacAddr) (Client, bool) {
	for _, c := range ap.Clients() {
		if c.Addr == sta {
			return c, true
		}
	}
	return Client{}, false
}

// Run sends a beacon every beacon period until ctx is done.
func (ap *AccessPoint) Run(ctx context.Context, clk clock.Clock) error {
	ticker := clk.NewTicker(domain.TUs(uint32(ap.cfg.BeaconPeriod)))
	defer ticker.Stop()
	log.Printf("[SIMAP] Beaconing %q as %s on %v", ap.cfg.SSID, ap.cfg.Bssid, ap.cfg.Channel)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := ap.Beacon(); err != nil {
				log.Printf("[SIMAP] Beacon failed: %v", err)
			}
		}
	}
}

func (ap *AccessPoint) emit(frames [][]byte) {
	ap.mu.Lock()
	sink := ap.sink
	ap.mu.Unlock()
	if sink == nil {
		return
	}
	rx := domain.RxInfo{RssiDbm: ap.cfg.RssiDbm, Channel: ap.cfg.Channel}
	for _, f := range frames {
		if !sink(f, rx) {
			log.Printf("[SIMAP] Station dropped a frame")
		}
	}
}

// build runs write and copies the result out of the pool.
func build(write func() (*frame.Buffer, error)) ([]byte, error) {
	b, err := write()
	if err != nil {
		return nil, err
	}
	defer b.Release()
	return append([]byte(nil), b.Bytes()...), nil
}

// nextSeq must be called with ap.mu held.
func (ap *AccessPoint) nextSeq() uint16 {
	ap.seq = (ap.seq + 1) & 0x0fff
	return ap.seq
}

// mgmt must be called with ap.mu held.
func (ap *AccessPoint) mgmt(dst domain.MacAddr) frame.Addressing {
	return frame.Addressing{Dst: dst, Src: ap.cfg.Bssid, Bssid: ap.cfg.Bssid, Seq: ap.nextSeq()}
}

// Beacon transmits one beacon whose TIM lists stations with buffered frames.
func (ap *AccessPoint) Beacon() error {
	ap.mu.Lock()
	var aids []uint16
	for _, c := range ap.clients {
		if len(c.buffered) > 0 {
			aids = append(aids, c.Aid)
		}
	}
	sort.Slice(aids, func(i, j int) bool { return aids[i] < aids[j] })
	f, err := build(func() (*frame.Buffer, error) {
		return frame.WriteBeaconFrame(ap.pool, ap.mgmt(domain.BroadcastAddr), frame.BeaconFields{
			Interval:       ap.cfg.BeaconPeriod,
			CapabilityInfo: ap.capabilityInfo(),
			SSID:           ap.cfg.SSID,
			Rates:          ap.cfg.Rates,
			Channel:        ap.cfg.Channel.Primary,
			TIM:            ie.EncodeTIM(0, ap.cfg.DtimPeriod, aids...),
			RSNE:           ap.cfg.RSNE,
			HtCap:          ap.cfg.HtCap,
			HtOp:           ap.cfg.HtOp,
		})
	})
	ap.mu.Unlock()
	if err != nil {
		return err
	}
	ap.emit([][]byte{f})
	return nil
}

// SendData delivers payload from src to an associated station, or buffers
// it while the station is in power save.
func (ap *AccessPoint) SendData(sta, src domain.MacAddr, etherType layers.EthernetType, payload []byte) error {
	ap.mu.Lock()
	c, ok := ap.clients[sta]
	if !ok || c.State != ClientAssociated {
		ap.mu.Unlock()
		return fmt.Errorf("simap: %s is not associated", sta)
	}
	f, err := build(func() (*frame.Buffer, error) {
		a := frame.Addressing{Dst: sta, Src: src, Bssid: ap.cfg.Bssid, Seq: ap.nextSeq()}
		return frame.WriteDataFrame(ap.pool, a, frame.DataFields{FromDS: true}, etherType, payload)
	})
	if err != nil {
		ap.mu.Unlock()
		return err
	}
	if c.PowerSave {
		c.buffered = append(c.buffered, f)
		ap.mu.Unlock()
		return nil
	}
	ap.mu.Unlock()
	ap.emit([][]byte{f})
	return nil
}

// Deauthenticate removes sta and tells it so.
func (ap *AccessPoint) Deauthenticate(sta domain.MacAddr, reason domain.ReasonCode) error {
	ap.mu.Lock()
	delete(ap.clients, sta)
	f, err := build(func() (*frame.Buffer, error) {
		return frame.WriteDeauthFrame(ap.pool, ap.mgmt(sta), reason)
	})
	ap.mu.Unlock()
	if err != nil {
		return err
	}
	log.Printf("[SIMAP] Deauthenticating %s (reason %d)", sta, reason)
	ap.emit([][]byte{f})
	return nil
}

// Disassociate drops sta back to authenticated and tells it so.
func (ap *AccessPoint) Disassociate(sta domain.MacAddr, reason domain.ReasonCode) error {
	ap.mu.Lock()
	if c, ok := ap.clients[sta]; ok {
		c.State = ClientAuthenticated
		c.Aid = 0
		c.buffered = nil
	}
	f, err := build(func() (*frame.Buffer, error) {
		return frame.WriteDisassocFrame(ap.pool, ap.mgmt(sta), reason)
	})
	ap.mu.Unlock()
	if err != nil {
		return err
	}
	ap.emit([][]byte{f})
	return nil
}

// RequestBlockAck proposes a block ack session on tid to sta.
func (ap *AccessPoint) RequestBlockAck(sta domain.MacAddr, token, tid uint8, bufferSize uint16) error {
	ap.mu.Lock()
	f, err := build(func() (*frame.Buffer, error) {
		params := frame.BlockAckParams{Immediate: true, Amsdu: true, Tid: tid, BufferSize: bufferSize}
		return frame.WriteAddBaReqFrame(ap.pool, ap.mgmt(sta), token, params, 0)
	})
	ap.mu.Unlock()
	if err != nil {
		return err
	}
	ap.emit([][]byte{f})
	return nil
}

// Receive handles a frame the station transmitted. It is meant to be set
// as device.MockDevice.OnSend.
func (ap *AccessPoint) Receive(raw []byte, _ domain.TxFlags) {
	f, err := frame.Parse(raw)
	if err != nil {
		log.Printf("[SIMAP] Ignoring malformed frame: %v", err)
		return
	}
	h := f.FrameHeader()
	bssid := h.Bssid()
	if _, ok := f.(*frame.PsPollFrame); ok {
		bssid = h.Addr1
	}
	if bssid != ap.cfg.Bssid {
		return
	}

	ap.mu.Lock()
	out, err := ap.handle(f)
	ap.mu.Unlock()
	if err != nil {
		log.Printf("[SIMAP] Failed to answer %T from %s: %v", f, h.Addr2, err)
	}
	ap.emit(out)
}

// handle must be called with ap.mu held.
func (ap *AccessPoint) handle(f frame.Frame) ([][]byte, error) {
	switch f := f.(type) {
	case *frame.AuthFrame:
		return ap.onAuth(f)
	case *frame.AssocReqFrame:
		return ap.onAssocReq(f)
	case *frame.DeauthFrame:
		log.Printf("[SIMAP] %s left (reason %d)", f.Addr2, f.Reason)
		delete(ap.clients, f.Addr2)
	case *frame.DisassocFrame:
		if c, ok := ap.clients[f.Addr2]; ok {
			c.State = ClientAuthenticated
		}
	case *frame.NullDataFrame:
		return ap.onPowerMgmt(f.Addr2, f.PowerMgmt())
	case *frame.PsPollFrame:
		return ap.onPsPoll(f)
	case *frame.DataFrame:
		return ap.onData(f)
	case *frame.AddBaReqFrame:
		return ap.onAddBaReq(f)
	case *frame.AddBaRespFrame:
		if c, ok := ap.clients[f.Addr2]; ok {
			c.BlockAck = f.Status == domain.StatusSuccess
		}
	}
	return nil, nil
}

func (ap *AccessPoint) onAuth(f *frame.AuthFrame) ([][]byte, error) {
	if f.TxSeq != 1 {
		return nil, nil
	}
	status := ap.cfg.AuthStatus
	if f.Algorithm != domain.AuthOpenSystem {
		status = domain.StatusUnsupportedAuthAlg
	}
	if status == domain.StatusSuccess {
		ap.clients[f.Addr2] = &client{Client: Client{Addr: f.Addr2, State: ClientAuthenticated}}
	}
	out, err := build(func() (*frame.Buffer, error) {
		return frame.WriteAuthFrame(ap.pool, ap.mgmt(f.Addr2), f.Algorithm, 2, status)
	})
	if err != nil {
		return nil, err
	}
	return [][]byte{out}, nil
}

func (ap *AccessPoint) onAssocReq(f *frame.AssocReqFrame) ([][]byte, error) {
	c, ok := ap.clients[f.Addr2]
	if !ok {
		out, err := build(func() (*frame.Buffer, error) {
			return frame.WriteDeauthFrame(ap.pool, ap.mgmt(f.Addr2), domain.ReasonInvalidClass2Frame)
		})
		if err != nil {
			return nil, err
		}
		return [][]byte{out}, nil
	}

	status := ap.cfg.AssocStatus
	if f.Elements.SSID != ap.cfg.SSID {
		status = domain.StatusRefused
	}
	resp := frame.AssocRespFields{
		CapabilityInfo: ap.capabilityInfo(),
		Status:         status,
		Rates:          ap.cfg.Rates,
	}
	if status == domain.StatusSuccess {
		if c.Aid == 0 {
			c.Aid = ap.nextAid
			ap.nextAid++
		}
		c.State = ClientAssociated
		resp.Aid = c.Aid
		if f.Elements.HtCap != nil && ap.cfg.HtCap != nil {
			resp.HtCap, resp.HtOp = ap.cfg.HtCap, ap.cfg.HtOp
		}
		log.Printf("[SIMAP] %s associated with aid %d", f.Addr2, c.Aid)
	}

	var out [][]byte
	b, err := build(func() (*frame.Buffer, error) {
		return frame.WriteAssocRespFrame(ap.pool, ap.mgmt(f.Addr2), resp)
	})
	if err != nil {
		return nil, err
	}
	out = append(out, b)

	if status == domain.StatusSuccess && len(ap.cfg.RSNE) > 0 {
		m1, err := ap.handshakeStart(f.Addr2)
		if err != nil {
			return out, err
		}
		out = append(out, m1)
	}
	return out, nil
}

// handshakeStart builds message 1 of the 4-way handshake.
func (ap *AccessPoint) handshakeStart(sta domain.MacAddr) ([]byte, error) {
	pdu, err := frame.BuildEapolKey(&layers.EAPOLKey{
		KeyType:       layers.EAPOLKeyTypePairwise,
		KeyACK:        true,
		KeyLength:     16,
		ReplayCounter: 1,
	})
	if err != nil {
		return nil, err
	}
	return build(func() (*frame.Buffer, error) {
		a := frame.Addressing{Dst: sta, Src: ap.cfg.Bssid, Bssid: ap.cfg.Bssid, Seq: ap.nextSeq()}
		return frame.WriteEapolFrame(ap.pool, a, frame.DataFields{FromDS: true}, pdu)
	})
}

func (ap *AccessPoint) onPowerMgmt(sta domain.MacAddr, sleeping bool) ([][]byte, error) {
	c, ok := ap.clients[sta]
	if !ok || c.State != ClientAssociated {
		return nil, nil
	}
	c.PowerSave = sleeping
	if sleeping {
		return nil, nil
	}
	out := make([][]byte, len(c.buffered))
	copy(out, c.buffered)
	c.buffered = nil
	return out, nil
}

func (ap *AccessPoint) onPsPoll(f *frame.PsPollFrame) ([][]byte, error) {
	c, ok := ap.clients[f.Addr2]
	if !ok || c.Aid != f.Aid || len(c.buffered) == 0 {
		return nil, nil
	}
	next := c.buffered[0]
	c.buffered = c.buffered[1:]
	if len(c.buffered) > 0 {
		// Re-encode with More Data set so the station polls again.
		parsed, err := frame.Parse(next)
		if err == nil {
			if d, ok := parsed.(*frame.DataFrame); ok {
				b, err := build(func() (*frame.Buffer, error) {
					a := frame.Addressing{Dst: d.Dst(), Src: d.Src(), Bssid: ap.cfg.Bssid, Seq: d.Seq}
					return frame.WriteDataFrame(ap.pool, a, frame.DataFields{FromDS: true, MoreData: true}, d.EtherType, d.Payload)
				})
				if err != nil {
					return nil, err
				}
				next = b
			}
		}
	}
	return [][]byte{next}, nil
}

func (ap *AccessPoint) onData(f *frame.DataFrame) ([][]byte, error) {
	c, ok := ap.clients[f.Addr2]
	if !ok || c.State != ClientAssociated || !f.ToDS() {
		return nil, nil
	}
	c.Uplink++
	if f.IsEapol() {
		if msg, err := frame.InspectEapolKey(f.Eapol); err == nil {
			c.EapolKeys = append(c.EapolKeys, msg.Number)
		}
		return nil, nil
	}
	if !ap.cfg.Echo {
		return nil, nil
	}
	out, err := build(func() (*frame.Buffer, error) {
		a := frame.Addressing{Dst: f.Src(), Src: f.Dst(), Bssid: ap.cfg.Bssid, Seq: ap.nextSeq()}
		return frame.WriteDataFrame(ap.pool, a, frame.DataFields{FromDS: true}, f.EtherType, f.Payload)
	})
	if err != nil {
		return nil, err
	}
	if c.PowerSave {
		c.buffered = append(c.buffered, out)
		return nil, nil
	}
	return [][]byte{out}, nil
}

func (ap *AccessPoint) onAddBaReq(f *frame.AddBaReqFrame) ([][]byte, error) {
	if _, ok := ap.clients[f.Addr2]; !ok {
		return nil, nil
	}
	out, err := build(func() (*frame.Buffer, error) {
		return frame.WriteAddBaRespFrame(ap.pool, ap.mgmt(f.Addr2), f.DialogToken, domain.StatusSuccess, f.Params, f.Timeout)
	})
	if err != nil {
		return nil, err
	}
	ap.clients[f.Addr2].BlockAck = true
	return [][]byte{out}, nil
}
