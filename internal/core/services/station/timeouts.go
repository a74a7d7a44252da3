package station

import (
	"log"
	"time"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
	"github.com/lcalzada-xor/wsta/internal/core/services/timer"
	"github.com/lcalzada-xor/wsta/internal/telemetry"
)

// schedule replaces the timeout in slot with one firing after d. A timer
// failure is counted and leaves the slot empty; the station carries on
// without that timeout.
func (s *Station) schedule(slot *timer.TimeoutID, d time.Duration) {
	s.scheduleAt(slot, s.timers.Now().Add(d))
}

func (s *Station) scheduleAt(slot *timer.TimeoutID, deadline time.Time) {
	s.timers.Cancel(*slot)
	*slot = 0
	id, err := s.timers.Schedule(deadline)
	if err != nil {
		s.timerError(err)
		return
	}
	*slot = id
}

func (s *Station) cancel(slot *timer.TimeoutID) {
	s.timers.Cancel(*slot)
	*slot = 0
}

func (s *Station) timerError(err error) {
	log.Printf("[STA] Error: timer: %v", err)
	s.stats.TimerErrors++
	telemetry.Errors.WithLabelValues(string(domain.KindOf(err))).Inc()
}

// HandleTimeout runs every due timeout. Call it whenever the timer
// manager's channel fires.
func (s *Station) HandleTimeout() {
	err := s.timers.HandleTimeout(func(now time.Time, id timer.TimeoutID) {
		switch id {
		case s.authTimeout:
			s.authTimeout = 0
			s.onAuthTimeout()
		case s.assocTimeout:
			s.assocTimeout = 0
			s.onAssocTimeout()
		case s.signalTimeout:
			s.signalTimeout = 0
			s.onSignalReportTimeout()
		case s.deauth.id:
			s.deauth.id = 0
			s.onAutoDeauthTimeout(now)
		default:
			s.debugf("stale timeout %d", id)
		}
	})
	if err != nil {
		s.timerError(err)
	}
}

func (s *Station) onAuthTimeout() {
	if s.state != domain.StateAuthenticating {
		return
	}
	log.Printf("[STA] Authentication with %s timed out", s.bssid())
	s.setState(domain.StateIdle)
	s.notify(domain.AuthenticateConfirm{
		PeerSta:    s.bssid(),
		AuthType:   domain.AuthOpenSystem,
		ResultCode: domain.AuthResultAuthFailureTimeout,
	})
}

func (s *Station) onAssocTimeout() {
	if s.state != domain.StateAuthenticated {
		return
	}
	log.Printf("[STA] Association with %s timed out", s.bssid())
	s.notify(domain.AssociateConfirm{ResultCode: domain.AssocResultRefusedTemporarily})
}

func (s *Station) onSignalReportTimeout() {
	if s.state != domain.StateAssociated {
		return
	}
	s.notify(domain.SignalReportIndication{RssiDbm: s.rssi.Avg()})
	s.schedule(&s.signalTimeout, s.beaconPeriods(s.cfg.SignalReportInterval))
}

// onAutoDeauthTimeout charges the on-channel time since the last accounting
// point against the budget and leaves the BSS once it is spent.
func (s *Station) onAutoDeauthTimeout(now time.Time) {
	if s.state != domain.StateAssociated {
		return
	}
	if s.offChannel {
		log.Printf("[STA] Error: auto-deauth timeout fired off-channel")
		return
	}

	elapsed := now.Sub(s.deauth.lastAccounted)
	if s.deauth.remaining > elapsed {
		s.deauth.remaining -= elapsed
		s.deauth.lastAccounted = now
		s.scheduleAt(&s.deauth.id, now.Add(s.deauth.remaining))
		return
	}

	bssid := s.bssid()
	log.Printf("[STA] Lost BSS %s; no beacon for %d beacon periods", bssid, s.cfg.AutoDeauthBudget)
	s.deauth.remaining = 0
	s.leave()
	s.notify(domain.DeauthenticateIndication{
		PeerSta:          bssid,
		ReasonCode:       domain.ReasonLeavingNetworkDeauth,
		LocallyInitiated: true,
	})
	if err := s.sendDeauthFrame(domain.ReasonLeavingNetworkDeauth); err != nil {
		log.Printf("[STA] Warning: deauth frame after lost BSS not sent: %v", err)
	}
}

// resetAutoDeauth restores the full budget.
func (s *Station) resetAutoDeauth(now time.Time) {
	s.deauth.remaining = s.beaconPeriods(s.cfg.AutoDeauthBudget)
	s.deauth.lastAccounted = now
}
