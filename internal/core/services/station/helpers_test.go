package station

import (
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/wsta/internal/adapters/device"
	"github.com/lcalzada-xor/wsta/internal/adapters/frame"
	"github.com/lcalzada-xor/wsta/internal/adapters/frame/ie"
	"github.com/lcalzada-xor/wsta/internal/core/domain"
	"github.com/lcalzada-xor/wsta/internal/core/services/timer"
)

var (
	staAddr  = domain.MustParseMAC("02:00:00:00:00:01")
	apAddr   = domain.MustParseMAC("00:11:22:33:44:55")
	otherAP  = domain.MustParseMAC("00:aa:bb:cc:dd:ee")
	hostAddr = domain.MustParseMAC("00:0c:29:00:00:01")

	// rsnePSK is WPA2-PSK with CCMP.
	rsnePSK = []byte{
		0x01, 0x00,
		0x00, 0x0f, 0xac, 0x04,
		0x01, 0x00, 0x00, 0x0f, 0xac, 0x04,
		0x01, 0x00, 0x00, 0x0f, 0xac, 0x02,
		0x00, 0x00,
	}
)

// beaconPeriod is one beacon period of the test BSSs.
const beaconPeriod = 100 * domain.TimeUnit

// recorder is an SME that keeps every message.
type recorder struct {
	msgs []domain.MlmeMsg
}

func (r *recorder) Send(m domain.MlmeMsg) { r.msgs = append(r.msgs, m) }

// take returns and forgets the recorded messages.
func (r *recorder) take() []domain.MlmeMsg {
	out := r.msgs
	r.msgs = nil
	return out
}

type harness struct {
	t      require.TestingT
	clk    *fakeclock.FakeClock
	timers *timer.Manager
	dev    *device.MockDevice
	sme    *recorder
	sta    *Station
	apPool *frame.Pool
	apSeq  uint16
}

func newHarness(t require.TestingT, opts ...Option) *harness {
	clk := fakeclock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	timers := timer.New(clk)
	dev := device.NewMockDevice(staAddr, device.DefaultCapabilities())
	sme := &recorder{}
	return &harness{
		t:      t,
		clk:    clk,
		timers: timers,
		dev:    dev,
		sme:    sme,
		sta:    New(DefaultConfig(), dev, sme, timers, opts...),
		apPool: frame.NewPool(4),
	}
}

func openBss() domain.BssDescription {
	return domain.BssDescription{
		Bssid:          apAddr,
		SSID:           "lab",
		BeaconPeriod:   100,
		DtimPeriod:     1,
		Channel:        domain.Channel{Primary: 6},
		Rates:          []domain.SupportedRate{0x82, 0x84, 0x8b, 0x96, 0x0c, 0x12, 0x18, 0x24},
		CapabilityInfo: domain.CapEss | domain.CapShortPreamble,
	}
}

func rsnBss() domain.BssDescription {
	b := openBss()
	b.CapabilityInfo |= domain.CapPrivacy
	b.RSNE = rsnePSK
	return b
}

func htBss() domain.BssDescription {
	b := openBss()
	b.Channel = domain.Channel{Primary: 36, Cbw: domain.Cbw40Above}
	b.Rates = []domain.SupportedRate{0x8c, 0x12, 0x98, 0x24, 0xb0, 0x48, 0x60, 0x6c}
	b.HtCap = &domain.HtCapabilities{ChanWidth40: true, SGI20: true, SGI40: true, RxStbc: 1}
	b.HtOp = &domain.HtOperation{PrimaryChannel: 36, SecondaryOffset: 1, StaChanWidthAny: true}
	return b
}

func (h *harness) join(bss domain.BssDescription, phy domain.Phy) {
	require.NoError(h.t, h.sta.HandleMlmeMsg(domain.JoinRequest{Bss: bss, Phy: phy, ListenInterval: 10}))
}

// authenticate drives a joined station to Authenticated.
func (h *harness) authenticate() {
	require.NoError(h.t, h.sta.HandleMlmeMsg(domain.AuthenticateRequest{PeerSta: apAddr, AuthType: domain.AuthOpenSystem}))
	h.rxAuth(domain.StatusSuccess)
	require.Equal(h.t, domain.StateAuthenticated, h.sta.State())
}

// associate drives an authenticated station to Associated with aid.
func (h *harness) associate(aid uint16, rsne []byte) {
	require.NoError(h.t, h.sta.HandleMlmeMsg(domain.AssociateRequest{PeerSta: apAddr, RSNE: rsne}))
	h.rxAssocResp(domain.StatusSuccess, aid, nil, nil)
	require.Equal(h.t, domain.StateAssociated, h.sta.State())
}

// connect joins bss, authenticates and associates, then forgets the
// messages and frames that took.
func (h *harness) connect(bss domain.BssDescription, phy domain.Phy, aid uint16) {
	h.join(bss, phy)
	h.authenticate()
	var rsne []byte
	if bss.IsRsn() {
		rsne = bss.RSNE
	}
	h.associate(aid, rsne)
	h.sme.take()
	h.dev.ClearFrames()
}

// fromAP addresses a management frame from the AP to the station.
func (h *harness) fromAP() frame.Addressing {
	h.apSeq++
	return frame.Addressing{Dst: staAddr, Src: apAddr, Bssid: apAddr, Seq: h.apSeq}
}

// rx builds a frame with write and hands it to the station.
func (h *harness) rx(write func() (*frame.Buffer, error)) {
	h.rxRssi(-50, write)
}

func (h *harness) rxRssi(rssi int8, write func() (*frame.Buffer, error)) {
	b, err := write()
	require.NoError(h.t, err)
	raw := append([]byte(nil), b.Bytes()...)
	b.Release()
	h.sta.HandleWlanFrame(raw, domain.RxInfo{RssiDbm: rssi})
}

func (h *harness) rxAuth(status domain.StatusCode) {
	h.rx(func() (*frame.Buffer, error) {
		return frame.WriteAuthFrame(h.apPool, h.fromAP(), domain.AuthOpenSystem, 2, status)
	})
}

func (h *harness) rxAssocResp(status domain.StatusCode, aid uint16, htCap *domain.HtCapabilities, htOp *domain.HtOperation) {
	h.rx(func() (*frame.Buffer, error) {
		return frame.WriteAssocRespFrame(h.apPool, h.fromAP(), frame.AssocRespFields{
			CapabilityInfo: domain.CapEss | domain.CapShortPreamble,
			Status:         status,
			Aid:            aid,
			Rates:          h.sta.join.Bss.Rates,
			HtCap:          htCap,
			HtOp:           htOp,
		})
	})
}

func (h *harness) rxBeacon(rssi int8, timAids ...uint16) {
	h.rxRssi(rssi, func() (*frame.Buffer, error) {
		a := h.fromAP()
		a.Dst = domain.BroadcastAddr
		return frame.WriteBeaconFrame(h.apPool, a, frame.BeaconFields{
			Interval:       100,
			CapabilityInfo: domain.CapEss,
			SSID:           "lab",
			Rates:          openBss().Rates,
			Channel:        6,
			TIM:            ie.EncodeTIM(0, 1, timAids...),
		})
	})
}

// rxData sends a From-DS data frame relayed by the AP.
func (h *harness) rxData(dst domain.MacAddr, moreData bool, payload []byte) {
	h.rx(func() (*frame.Buffer, error) {
		a := frame.Addressing{Dst: dst, Src: hostAddr, Bssid: apAddr, Seq: h.apSeq}
		return frame.WriteDataFrame(h.apPool, a, frame.DataFields{FromDS: true, MoreData: moreData}, 0x0800, payload)
	})
}

func (h *harness) rxEapol(pdu []byte) {
	h.rx(func() (*frame.Buffer, error) {
		a := frame.Addressing{Dst: staAddr, Src: apAddr, Bssid: apAddr}
		return frame.WriteEapolFrame(h.apPool, a, frame.DataFields{FromDS: true}, pdu)
	})
}

// advance moves the clock by d and runs due timeouts.
func (h *harness) advance(d time.Duration) {
	h.clk.Increment(d)
	h.sta.HandleTimeout()
}

// sent parses every frame the station transmitted and forgets them.
func (h *harness) sent() []frame.Frame {
	var out []frame.Frame
	for _, sf := range h.dev.SentFrames() {
		f, err := frame.Parse(sf.Data)
		require.NoError(h.t, err)
		out = append(out, f)
	}
	h.dev.ClearFrames()
	return out
}

// sentOne asserts exactly one frame was sent and returns it.
func (h *harness) sentOne() frame.Frame {
	fs := h.sent()
	require.Len(h.t, fs, 1)
	return fs[0]
}

// eapolKeyM1 is an EAPOL-Key message 1 of the 4-way handshake: version 2,
// 95 byte body, pairwise key with ACK set and no key data.
func eapolKeyM1() []byte {
	pdu := []byte{0x02, 0x03, 0x00, 0x5f, 0x02, 0x00, 0x8a, 0x00, 0x10}
	pdu = append(pdu, 0, 0, 0, 0, 0, 0, 0, 1)
	// nonce, iv, rsc, id and mic
	pdu = append(pdu, make([]byte, 32+16+8+8+16)...)
	return append(pdu, 0x00, 0x00)
}
