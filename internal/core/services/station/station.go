// Package station implements the client-mode MLME: the state machine that
// authenticates and associates with one access point and then carries its
// data traffic.
package station

import (
	"log"
	"time"

	"github.com/lcalzada-xor/wsta/internal/adapters/frame"
	"github.com/lcalzada-xor/wsta/internal/core/domain"
	"github.com/lcalzada-xor/wsta/internal/core/ports"
	"github.com/lcalzada-xor/wsta/internal/core/services/timer"
	"github.com/lcalzada-xor/wsta/internal/telemetry"
)

// defaultBeaconPeriod is used for timeouts when no BSS is joined or the BSS
// advertises a zero beacon interval.
const defaultBeaconPeriod = 100

// Config holds the station timeouts, all in beacon periods of the joined BSS.
type Config struct {
	// AuthFailureTimeout applies when an AuthenticateRequest carries none.
	AuthFailureTimeout   uint32
	AssocTimeout         uint32
	SignalReportInterval uint32
	AutoDeauthBudget     uint32
	// MinOnChannelDwell bounds how soon auto-deauth may fire after returning
	// from an off-channel excursion.
	MinOnChannelDwell uint32
}

// DefaultConfig returns the stock timeouts.
func DefaultConfig() Config {
	return Config{
		AuthFailureTimeout:   10,
		AssocTimeout:         20,
		SignalReportInterval: 10,
		AutoDeauthBudget:     100,
		MinOnChannelDwell:    2,
	}
}

// Option configures a Station.
type Option func(*Station)

// WithPool sets the transmit buffer pool.
func WithPool(p *frame.Pool) Option {
	return func(s *Station) { s.pool = p }
}

// WithDebug logs dropped and ignored frames.
func WithDebug(debug bool) Option {
	return func(s *Station) { s.debug = debug }
}

// autoDeauth tracks the lost-beacon budget. Time spent off-channel is not
// charged against it.
type autoDeauth struct {
	id            timer.TimeoutID
	remaining     time.Duration
	lastAccounted time.Time
}

// Station is the client association state machine. It is not safe for
// concurrent use; Loop serializes every call onto one goroutine.
type Station struct {
	cfg    Config
	dev    ports.Device
	sme    ports.SME
	timers *timer.Manager
	pool   *frame.Pool
	addr   domain.MacAddr
	debug  bool

	state domain.WlanState
	port  domain.ControlledPortState
	join  *domain.JoinContext
	assoc *domain.AssocContext

	authTimeout   timer.TimeoutID
	assocTimeout  timer.TimeoutID
	signalTimeout timer.TimeoutID
	deauth        autoDeauth
	offChannel    bool

	seq   *seqManager
	rssi  movingAverage
	stats domain.StationStats
}

// New creates an idle station bound to dev.
func New(cfg Config, dev ports.Device, sme ports.SME, timers *timer.Manager, opts ...Option) *Station {
	s := &Station{
		cfg:    cfg,
		dev:    dev,
		sme:    sme,
		timers: timers,
		addr:   dev.Address(),
		state:  domain.StateIdle,
		port:   domain.PortBlocked,
		seq:    newSeqManager(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = frame.NewPool(frame.DefaultPoolSize)
	}
	return s
}

// State returns the association state.
func (s *Station) State() domain.WlanState { return s.state }

// PortState returns the 802.1X controlled port state.
func (s *Station) PortState() domain.ControlledPortState { return s.port }

// Address returns the station's MAC address.
func (s *Station) Address() domain.MacAddr { return s.addr }

// AssocContext returns the negotiated association while associated.
func (s *Station) AssocContext() (domain.AssocContext, bool) {
	if s.assoc == nil {
		return domain.AssocContext{}, false
	}
	return *s.assoc, true
}

// JoinContext returns the joined BSS, if any.
func (s *Station) JoinContext() (domain.JoinContext, bool) {
	if s.join == nil {
		return domain.JoinContext{}, false
	}
	return *s.join, true
}

// Stats returns a snapshot of the counters.
func (s *Station) Stats() domain.StationStats {
	st := s.stats
	st.State = s.state
	st.Port = s.port
	st.RssiDbm = s.rssi.Avg()
	st.RssiSamples = s.rssi.Len()
	return st
}

func (s *Station) bssid() domain.MacAddr {
	if s.join == nil {
		return domain.MacAddr{}
	}
	return s.join.Bss.Bssid
}

func (s *Station) setState(next domain.WlanState) {
	if next == s.state {
		return
	}
	log.Printf("[STA] %v -> %v", s.state, next)
	telemetry.StateTransitions.WithLabelValues(s.state.String(), next.String()).Inc()
	s.state = next
	s.stats.LastUpdated = s.timers.Now()
}

// notify hands msg to the SME. The SME never blocks the station.
func (s *Station) notify(msg domain.MlmeMsg) {
	s.stats.SmeMessages++
	telemetry.SmeMessages.WithLabelValues(msg.Name()).Inc()
	s.sme.Send(msg)
}

// beaconPeriods converts n beacon periods of the joined BSS to a duration.
func (s *Station) beaconPeriods(n uint32) time.Duration {
	period := uint32(defaultBeaconPeriod)
	if s.join != nil && s.join.Bss.BeaconPeriod != 0 {
		period = uint32(s.join.Bss.BeaconPeriod)
	}
	return domain.TUs(n * period)
}

// openPort opens the controlled port and brings the link up.
func (s *Station) openPort() error {
	s.port = domain.PortOpen
	if err := s.dev.SetLinkStatus(domain.LinkUp); err != nil {
		return domain.DeviceError("set link status", err)
	}
	return nil
}

// closePort blocks the controlled port, taking the link down if it was up.
func (s *Station) closePort() {
	if s.port == domain.PortBlocked {
		return
	}
	s.port = domain.PortBlocked
	if err := s.dev.SetLinkStatus(domain.LinkDown); err != nil {
		log.Printf("[STA] Warning: link down failed: %v", err)
	}
}

// leave drops every trace of the current association and authentication
// and returns to Idle. The joined BSS is kept.
func (s *Station) leave() {
	if s.state == domain.StateAssociated {
		if err := s.dev.ClearAssociation(s.bssid()); err != nil {
			log.Printf("[STA] Warning: clear association failed: %v", err)
		}
	}
	s.closePort()
	s.cancel(&s.authTimeout)
	s.cancel(&s.assocTimeout)
	s.cancel(&s.signalTimeout)
	s.cancel(&s.deauth.id)
	s.assoc = nil
	s.setState(domain.StateIdle)
}

// countIn, countOut and countDrop keep the per-category counters and their
// Prometheus mirror in step.
func (s *Station) countIn(c domain.FrameCategory) {
	s.stats.Counters(c).In++
	telemetry.FramesTotal.WithLabelValues("in", string(c)).Inc()
}

func (s *Station) countOut(c domain.FrameCategory) {
	s.stats.Counters(c).Out++
	telemetry.FramesTotal.WithLabelValues("out", string(c)).Inc()
}

func (s *Station) countDrop(c domain.FrameCategory, reason string) {
	s.stats.Counters(c).Drop++
	telemetry.FramesDropped.WithLabelValues(string(c), reason).Inc()
}

func (s *Station) debugf(format string, args ...interface{}) {
	if s.debug {
		log.Printf("[STA] "+format, args...)
	}
}
