package station

import (
	"errors"
	"fmt"
	"log"

	"github.com/lcalzada-xor/wsta/internal/adapters/frame"
	"github.com/lcalzada-xor/wsta/internal/adapters/frame/ie"
	"github.com/lcalzada-xor/wsta/internal/core/domain"
	"github.com/lcalzada-xor/wsta/internal/core/services/negotiation"
	"github.com/lcalzada-xor/wsta/internal/telemetry"
)

// HandleMlmeMsg executes one SME request. Every request is answered with a
// confirmation; the returned error additionally reports failures the caller
// may want to trace. Refusals caused purely by the current state return nil.
func (s *Station) HandleMlmeMsg(req domain.MlmeRequest) error {
	switch r := req.(type) {
	case domain.JoinRequest:
		return s.handleJoin(r)
	case domain.AuthenticateRequest:
		return s.handleAuthenticate(r)
	case domain.DeauthenticateRequest:
		return s.handleDeauthenticate(r)
	case domain.AssociateRequest:
		return s.handleAssociate(r)
	case domain.SetKeysRequest:
		return s.handleSetKeys(r)
	case domain.UpdateControlledPortRequest:
		return s.handleUpdateControlledPort(r)
	case domain.EapolRequest:
		return s.handleEapolRequest(r)
	default:
		return fmt.Errorf("request %T: %w", req, domain.ErrNotSupported)
	}
}

func (s *Station) handleJoin(r domain.JoinRequest) error {
	if s.state == domain.StateAssociated {
		log.Printf("[STA] Join refused while associated to %s", s.bssid())
		s.notify(domain.JoinConfirm{ResultCode: domain.JoinResultRefusedBadState})
		return fmt.Errorf("join while associated: %w", domain.ErrBadState)
	}
	if s.state != domain.StateIdle {
		log.Printf("[STA] Join abandons %v with %s", s.state, s.bssid())
		s.leave()
	}

	if err := s.dev.SetChannel(r.Bss.Channel); err != nil {
		s.notify(domain.JoinConfirm{ResultCode: domain.JoinResultFailureTimeout})
		return domain.DeviceError("set channel", err)
	}

	join := domain.JoinContext{Bss: r.Bss, Phy: r.Phy, ListenInterval: r.ListenInterval}
	s.join = &join
	s.rssi.Reset()
	log.Printf("[STA] Joined %s (%q) on channel %s, phy %s", r.Bss.Bssid, r.Bss.SSID, r.Bss.Channel, r.Phy)
	s.notify(domain.JoinConfirm{ResultCode: domain.JoinResultSuccess})
	return nil
}

func (s *Station) handleAuthenticate(r domain.AuthenticateRequest) error {
	refuse := func(code domain.AuthenticateResultCode) {
		s.notify(domain.AuthenticateConfirm{PeerSta: r.PeerSta, AuthType: r.AuthType, ResultCode: code})
	}

	if s.join == nil || r.PeerSta != s.bssid() {
		log.Printf("[STA] Authenticate refused: %s is not the joined BSS", r.PeerSta)
		refuse(domain.AuthResultRefused)
		return nil
	}
	if s.state != domain.StateIdle {
		log.Printf("[STA] Authenticate refused in state %v", s.state)
		refuse(domain.AuthResultRefused)
		return nil
	}
	if r.AuthType != domain.AuthOpenSystem {
		log.Printf("[STA] Authenticate refused: %v authentication is not supported", r.AuthType)
		refuse(domain.AuthResultRefused)
		return nil
	}

	b, err := frame.WriteAuthFrame(s.pool, s.mgmtAddressing(), domain.AuthOpenSystem, 1, domain.StatusSuccess)
	if err != nil {
		s.countDrop(domain.CategoryMgmt, string(domain.KindOf(err)))
		refuse(domain.AuthResultRefused)
		return err
	}
	if err := s.transmit(b, domain.CategoryMgmt, 0); err != nil {
		refuse(domain.AuthResultRefused)
		return err
	}

	timeout := r.FailureTimeout
	if timeout == 0 {
		timeout = s.cfg.AuthFailureTimeout
	}
	s.schedule(&s.authTimeout, s.beaconPeriods(timeout))
	s.setState(domain.StateAuthenticating)
	return nil
}

// handleDeauthenticate leaves the BSS. The local decision is final, so the
// station returns to Idle even when the deauthentication frame is lost.
func (s *Station) handleDeauthenticate(r domain.DeauthenticateRequest) error {
	if s.state == domain.StateIdle || s.state == domain.StateAuthenticating {
		return nil
	}

	reason := r.ReasonCode
	if reason == 0 {
		reason = domain.ReasonLeavingNetworkDeauth
	}
	if err := s.sendDeauthFrame(reason); err != nil {
		log.Printf("[STA] Warning: deauth frame not sent: %v", err)
	}

	bssid := s.bssid()
	s.leave()
	s.notify(domain.DeauthenticateConfirm{PeerSta: bssid})
	return nil
}

func (s *Station) handleAssociate(r domain.AssociateRequest) error {
	refuse := func(code domain.AssociateResultCode) {
		s.notify(domain.AssociateConfirm{ResultCode: code})
	}

	switch s.state {
	case domain.StateIdle, domain.StateAuthenticating:
		refuse(domain.AssocResultRefusedNotAuthenticated)
		return nil
	case domain.StateAssociated:
		log.Printf("[STA] Associate while associated to %s; sending request anyway", s.bssid())
	}
	if r.PeerSta != s.bssid() {
		log.Printf("[STA] Associate refused: %s is not the joined BSS", r.PeerSta)
		refuse(domain.AssocResultRefusedReasonUnspecified)
		return nil
	}

	if len(r.RSNE) > 0 {
		if _, err := ie.ParseRSN(r.RSNE); err != nil {
			refuse(domain.AssocResultRefusedReasonUnspecified)
			return fmt.Errorf("associate rsne: %w: %v", domain.ErrMalformed, err)
		}
	}

	caps, err := negotiation.BuildAssocRequestCaps(s.dev.Capabilities(), *s.join)
	if err != nil {
		refuse(assocResultFor(err))
		return err
	}

	b, err := frame.WriteAssocReqFrame(s.pool, s.mgmtAddressing(), frame.AssocReqFields{
		CapabilityInfo: caps.CapabilityInfo,
		ListenInterval: s.join.ListenInterval,
		SSID:           s.join.Bss.SSID,
		Rates:          caps.Rates,
		RSNE:           r.RSNE,
		HtCap:          caps.HtCap,
		VhtCap:         caps.VhtCap,
	})
	if err != nil {
		s.countDrop(domain.CategoryMgmt, string(domain.KindOf(err)))
		refuse(domain.AssocResultRefusedReasonUnspecified)
		return err
	}
	if err := s.transmit(b, domain.CategoryMgmt, 0); err != nil {
		refuse(domain.AssocResultRefusedReasonUnspecified)
		return err
	}

	s.schedule(&s.assocTimeout, s.beaconPeriods(s.cfg.AssocTimeout))
	return nil
}

// assocResultFor maps a negotiation failure onto the confirm code.
func assocResultFor(err error) domain.AssociateResultCode {
	switch {
	case errors.Is(err, domain.ErrRatesMismatch):
		return domain.AssocResultRefusedBasicRatesMismatch
	case errors.Is(err, domain.ErrIncompatibleCapabilities):
		return domain.AssocResultRefusedCapabilitiesMismatch
	default:
		return domain.AssocResultRefusedReasonUnspecified
	}
}

func (s *Station) handleSetKeys(r domain.SetKeysRequest) error {
	conf := domain.SetKeysConfirm{}
	var errs []error
	for _, k := range r.Keys {
		if err := s.dev.SetKey(k); err != nil {
			log.Printf("[STA] Error: installing %s key %d failed: %v", k.KeyType, k.KeyIndex, err)
			conf.Failed = append(conf.Failed, k.KeyIndex)
			errs = append(errs, domain.DeviceError("set key", err))
			continue
		}
		conf.Installed++
	}
	s.notify(conf)
	return errors.Join(errs...)
}

func (s *Station) handleUpdateControlledPort(r domain.UpdateControlledPortRequest) error {
	if r.State == domain.PortOpen {
		log.Printf("[STA] Controlled port open")
		return s.openPort()
	}
	log.Printf("[STA] Controlled port blocked")
	s.port = domain.PortBlocked
	if err := s.dev.SetLinkStatus(domain.LinkDown); err != nil {
		return domain.DeviceError("set link status", err)
	}
	return nil
}

func (s *Station) handleEapolRequest(r domain.EapolRequest) error {
	fail := func() {
		s.notify(domain.EapolConfirm{ResultCode: domain.EapolResultTransmissionFailure})
	}

	if s.state != domain.StateAssociated {
		fail()
		return fmt.Errorf("eapol in state %v: %w", s.state, domain.ErrBadState)
	}

	a := frame.Addressing{Dst: r.Dst, Src: r.Src, Bssid: s.bssid(), Seq: s.seq.Next(s.bssid())}
	b, err := frame.WriteEapolFrame(s.pool, a, s.dataFields(), r.Data)
	if err != nil {
		s.countDrop(domain.CategoryEapol, string(domain.KindOf(err)))
		fail()
		return err
	}
	if err := s.transmit(b, domain.CategoryEapol, s.txFlags()|domain.TxFavorReliability); err != nil {
		fail()
		return err
	}
	if msg, err := frame.InspectEapolKey(r.Data); err == nil {
		telemetry.EapolKeyMessages.WithLabelValues("out", msg.String()).Inc()
		s.debugf("EAPOL-Key %s sent to %s", msg, r.Dst)
	}
	s.notify(domain.EapolConfirm{ResultCode: domain.EapolResultSuccess})
	return nil
}
