package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
	"github.com/lcalzada-xor/wsta/internal/core/ports"
)

// ErrNotBound is returned by Connect before the connector has a station.
var ErrNotBound = errors.New("connector: no station bound")

// Phase is where the connector is in the join, authenticate, associate
// sequence.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseJoining
	PhaseAuthenticating
	PhaseAssociating
	PhaseConnected
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseJoining:
		return "joining"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAssociating:
		return "associating"
	case PhaseConnected:
		return "connected"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Poster delivers requests to the station.
type Poster interface {
	PostRequest(ctx context.Context, req domain.MlmeRequest) error
}

// ConnectorStatus is a snapshot of the connector.
type ConnectorStatus struct {
	Phase    string         `json:"phase"`
	Bssid    domain.MacAddr `json:"bssid"`
	Attempts int            `json:"attempts"`
	Aid      uint16         `json:"aid,omitempty"`
	Reason   string         `json:"reason,omitempty"`
}

// Connector is a minimal SME: it walks the station through join,
// open-system authentication and association, and optionally reconnects
// after the AP drops it. Replies arrive on the station goroutine through
// Send, so follow-up requests are posted from a fresh goroutine.
type Connector struct {
	target         func() (domain.BssDescription, error)
	listenInterval uint16
	reconnect      time.Duration
	clock          clock.Clock

	mu       sync.Mutex
	poster   Poster
	ctx      context.Context
	bss      domain.BssDescription
	phase    Phase
	attempts int
	aid      uint16
	reason   string
}

// NewConnector creates a connector for the BSS returned by target.
// reconnect is the delay before rejoining after a deauthentication; zero
// disables reconnecting.
func NewConnector(target func() (domain.BssDescription, error), listenInterval uint16, reconnect time.Duration, clk clock.Clock) *Connector {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Connector{
		target:         target,
		listenInterval: listenInterval,
		reconnect:      reconnect,
		clock:          clk,
		ctx:            context.Background(),
	}
}

// Bind attaches the station requests are posted to. ctx bounds the
// follow-up requests and reconnect timers.
func (c *Connector) Bind(ctx context.Context, p Poster) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = ctx
	c.poster = p
}

// Status returns the current phase and last outcome.
func (c *Connector) Status() ConnectorStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectorStatus{
		Phase:    c.phase.String(),
		Bssid:    c.bss.Bssid,
		Attempts: c.attempts,
		Aid:      c.aid,
		Reason:   c.reason,
	}
}

// Connect starts a new attempt with a JoinRequest.
func (c *Connector) Connect(ctx context.Context) error {
	bss, err := c.target()
	if err != nil {
		return err
	}

	c.mu.Lock()
	poster := c.poster
	if poster == nil {
		c.mu.Unlock()
		return ErrNotBound
	}
	c.bss = bss
	c.phase = PhaseJoining
	c.attempts++
	c.aid = 0
	c.reason = ""
	c.mu.Unlock()

	log.Printf("[STA] Connecting to %q (%s) on channel %d", bss.SSID, bss.Bssid, bss.Channel.Primary)
	return poster.PostRequest(ctx, domain.JoinRequest{Bss: bss, Phy: phyFor(bss), ListenInterval: c.listenInterval})
}

// phyFor picks the richest PHY the BSS advertises.
func phyFor(bss domain.BssDescription) domain.Phy {
	switch {
	case bss.VhtCap != nil && bss.VhtOp != nil:
		return domain.PhyVht
	case bss.HtCap != nil && bss.HtOp != nil:
		return domain.PhyHt
	case bss.Channel.Band() == domain.Band5GHz:
		return domain.PhyOfdm
	default:
		return domain.PhyErp
	}
}

// Send implements ports.SME.
func (c *Connector) Send(msg domain.MlmeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch m := msg.(type) {
	case domain.JoinConfirm:
		if c.phase != PhaseJoining {
			return
		}
		if m.ResultCode != domain.JoinResultSuccess {
			c.fail(m.ResultCode.String())
			return
		}
		c.phase = PhaseAuthenticating
		c.post(domain.AuthenticateRequest{PeerSta: c.bss.Bssid, AuthType: domain.AuthOpenSystem})

	case domain.AuthenticateConfirm:
		if c.phase != PhaseAuthenticating {
			return
		}
		if m.ResultCode != domain.AuthResultSuccess {
			c.fail(m.ResultCode.String())
			return
		}
		c.phase = PhaseAssociating
		var rsne []byte
		if c.bss.IsRsn() {
			rsne = c.bss.RSNE
		}
		c.post(domain.AssociateRequest{PeerSta: c.bss.Bssid, RSNE: rsne})

	case domain.AssociateConfirm:
		if c.phase != PhaseAssociating {
			return
		}
		if m.ResultCode != domain.AssocResultSuccess {
			c.fail(m.ResultCode.String())
			return
		}
		c.phase = PhaseConnected
		c.aid = m.Aid
		log.Printf("[STA] Connected to %s with AID %d", c.bss.Bssid, m.Aid)

	case domain.DeauthenticateIndication:
		c.dropped(m.ReasonCode)
	case domain.DisassociateIndication:
		c.dropped(m.ReasonCode)
	case domain.DeauthenticateConfirm:
		c.phase = PhaseIdle
		c.aid = 0
	}
}

// fail ends the attempt. Caller holds mu.
func (c *Connector) fail(reason string) {
	log.Printf("[STA] Connection to %s failed in phase %s: %s", c.bss.Bssid, c.phase, reason)
	c.phase = PhaseFailed
	c.reason = reason
}

// dropped handles the AP ending the link. Caller holds mu.
func (c *Connector) dropped(reason domain.ReasonCode) {
	if c.phase == PhaseIdle {
		return
	}
	c.phase = PhaseIdle
	c.aid = 0
	c.reason = reason.String()
	if c.reconnect <= 0 {
		return
	}

	log.Printf("[STA] Link to %s lost (%s), reconnecting in %v", c.bss.Bssid, reason, c.reconnect)
	ctx := c.ctx
	timer := c.clock.NewTimer(c.reconnect)
	go func() {
		select {
		case <-timer.C():
			if err := c.Connect(ctx); err != nil {
				log.Printf("[STA] Reconnect failed: %v", err)
			}
		case <-ctx.Done():
			timer.Stop()
		}
	}()
}

// post sends req from a new goroutine; the station may be the caller.
// Caller holds mu.
func (c *Connector) post(req domain.MlmeRequest) {
	poster, ctx := c.poster, c.ctx
	if poster == nil {
		return
	}
	go func() {
		if err := poster.PostRequest(ctx, req); err != nil {
			log.Printf("[STA] Failed to post %s: %v", req.Name(), err)
			c.mu.Lock()
			c.fail(err.Error())
			c.mu.Unlock()
		}
	}()
}

var _ ports.SME = (*Connector)(nil)
