package station

import (
	"log"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

// PreSwitchOffChannel is called before the radio leaves the home channel.
// While associated the AP is told to buffer our frames and the auto-deauth
// budget stops running.
func (s *Station) PreSwitchOffChannel() {
	if s.offChannel {
		return
	}
	s.offChannel = true
	if s.state != domain.StateAssociated {
		return
	}
	if err := s.sendNullData(true); err != nil {
		log.Printf("[STA] Warning: power-save null data not sent: %v", err)
	}

	now := s.timers.Now()
	s.cancel(&s.deauth.id)
	s.deauth.remaining -= now.Sub(s.deauth.lastAccounted)
	if s.deauth.remaining < 0 {
		s.deauth.remaining = 0
	}
	s.deauth.lastAccounted = now
}

// BackToMainChannel is called once the radio is back on the home channel.
func (s *Station) BackToMainChannel() {
	if !s.offChannel {
		return
	}
	s.offChannel = false
	if s.state != domain.StateAssociated {
		return
	}
	if err := s.sendNullData(false); err != nil {
		log.Printf("[STA] Warning: awake null data not sent: %v", err)
	}

	now := s.timers.Now()
	wait := s.deauth.remaining
	if dwell := s.beaconPeriods(s.cfg.MinOnChannelDwell); wait < dwell {
		wait = dwell
	}
	s.scheduleAt(&s.deauth.id, now.Add(wait))
	s.deauth.lastAccounted = now
}
