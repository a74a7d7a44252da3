package station

import (
	"log"

	"github.com/google/gopacket/layers"

	"github.com/lcalzada-xor/wsta/internal/adapters/frame"
	"github.com/lcalzada-xor/wsta/internal/core/domain"
	"github.com/lcalzada-xor/wsta/internal/core/services/negotiation"
	"github.com/lcalzada-xor/wsta/internal/telemetry"
)

// Block ack parameters the station offers and accepts.
const (
	addBaDialogToken = 1
	maxAddBaBuffer   = 64
)

// rawCategory classifies a frame that failed to parse by its type bits.
func rawCategory(raw []byte) domain.FrameCategory {
	if len(raw) == 0 {
		return domain.CategoryMgmt
	}
	switch layers.Dot11Type((raw[0] >> 2) & 0x3) {
	case layers.Dot11TypeCtrl:
		return domain.CategoryCtrl
	case layers.Dot11TypeData:
		return domain.CategoryData
	default:
		return domain.CategoryMgmt
	}
}

// HandleWlanFrame classifies and dispatches one received frame. raw is only
// read during the call.
func (s *Station) HandleWlanFrame(raw []byte, rx domain.RxInfo) {
	f, err := frame.Parse(raw)
	if err != nil {
		s.countDrop(rawCategory(raw), string(domain.KindOf(err)))
		s.debugf("dropping frame: %v", err)
		return
	}

	switch fr := f.(type) {
	case *frame.BeaconFrame:
		if s.fromJoinedBss(&fr.Header, true) {
			s.handleBeacon(fr, rx)
		}
	case *frame.AuthFrame:
		if s.fromJoinedBss(&fr.Header, false) {
			s.handleAuthFrame(fr)
		}
	case *frame.AssocRespFrame:
		if s.fromJoinedBss(&fr.Header, false) {
			s.handleAssocResp(fr)
		}
	case *frame.DeauthFrame:
		if s.fromJoinedBss(&fr.Header, true) {
			s.handleDeauthFrame(fr)
		}
	case *frame.DisassocFrame:
		if s.fromJoinedBss(&fr.Header, true) {
			s.handleDisassocFrame(fr)
		}
	case *frame.AddBaReqFrame:
		if s.fromJoinedBss(&fr.Header, false) {
			s.handleAddBaReq(fr)
		}
	case *frame.AddBaRespFrame:
		if s.fromJoinedBss(&fr.Header, false) {
			s.handleAddBaResp(fr)
		}
	case *frame.ActionFrame:
		if s.fromJoinedBss(&fr.Header, false) {
			s.debugf("ignoring action frame category %d action %d", fr.Category, fr.Action)
		}
	case *frame.AssocReqFrame:
		s.countDrop(domain.CategoryMgmt, "unexpected")
	case *frame.DataFrame:
		if s.acceptData(&fr.Header) {
			s.handleDataFrame(fr)
		}
	case *frame.NullDataFrame:
		if s.acceptData(&fr.Header) {
			s.handleNullData(rx)
		}
	case *frame.PsPollFrame:
		s.countDrop(domain.CategoryCtrl, "unexpected")
	case *frame.UnhandledFrame:
		s.countDrop(rawCategory(raw), "unhandled")
	default:
		log.Printf("[STA] Error: unclassified frame %T", f)
	}
}

// fromJoinedBss filters management frames: they must come from the joined
// BSS and be addressed to us, or to a group when group is allowed.
func (s *Station) fromJoinedBss(h *frame.Header, group bool) bool {
	switch {
	case s.join == nil || h.Bssid() != s.bssid():
		s.countDrop(domain.CategoryMgmt, "foreign_bssid")
		s.debugf("dropping mgmt frame from %s", h.Bssid())
		return false
	case h.Addr1 != s.addr && !(group && h.Addr1.IsGroup()):
		s.countDrop(domain.CategoryMgmt, "not_for_us")
		return false
	}
	s.countIn(domain.CategoryMgmt)
	return true
}

// acceptData filters data frames: only while associated, only From-DS
// frames relayed by our AP and addressed to us or a group.
func (s *Station) acceptData(h *frame.Header) bool {
	reason := ""
	switch {
	case s.state != domain.StateAssociated:
		reason = "not_associated"
	case !h.FromDS() || h.ToDS():
		reason = "direction"
	case h.Bssid() != s.bssid():
		reason = "foreign_bssid"
	case h.Addr1 != s.addr && !h.Addr1.IsGroup():
		reason = "not_for_us"
	}
	if reason != "" {
		s.countDrop(domain.CategoryData, reason)
		s.debugf("dropping data frame from %s: %s", h.Addr2, reason)
		return false
	}
	return true
}

func (s *Station) handleBeacon(f *frame.BeaconFrame, rx domain.RxInfo) {
	if s.state != domain.StateAssociated {
		return
	}
	s.rssi.Add(rx.RssiDbm)
	telemetry.RssiDbm.Set(float64(s.rssi.Avg()))
	s.resetAutoDeauth(s.timers.Now())

	if tim := f.Elements.TIM; tim != nil && tim.HasBufferedUnicast(s.assoc.Aid) {
		s.debugf("TIM announces buffered frames for AID %d", s.assoc.Aid)
		s.sendPsPoll()
	}
}

func (s *Station) handleAuthFrame(f *frame.AuthFrame) {
	if s.state != domain.StateAuthenticating {
		s.debugf("ignoring authentication frame in state %v", s.state)
		return
	}
	if f.Algorithm != domain.AuthOpenSystem || f.TxSeq != 2 {
		log.Printf("[STA] Ignoring authentication frame: algorithm %v, sequence %d", f.Algorithm, f.TxSeq)
		return
	}

	s.cancel(&s.authTimeout)
	if f.Status != domain.StatusSuccess {
		log.Printf("[STA] Authentication with %s rejected: status %d", s.bssid(), f.Status)
		s.setState(domain.StateIdle)
		s.notify(domain.AuthenticateConfirm{
			PeerSta:    s.bssid(),
			AuthType:   domain.AuthOpenSystem,
			ResultCode: domain.AuthResultAuthenticationRejected,
		})
		return
	}

	log.Printf("[STA] Authenticated with %s", s.bssid())
	s.setState(domain.StateAuthenticated)
	s.notify(domain.AuthenticateConfirm{
		PeerSta:    s.bssid(),
		AuthType:   domain.AuthOpenSystem,
		ResultCode: domain.AuthResultSuccess,
	})
}

func (s *Station) handleAssocResp(f *frame.AssocRespFrame) {
	if s.state != domain.StateAuthenticated {
		s.debugf("ignoring association response in state %v", s.state)
		return
	}

	s.cancel(&s.assocTimeout)
	if f.Status != domain.StatusSuccess {
		log.Printf("[STA] Association with %s refused: status %d", s.bssid(), f.Status)
		code := domain.AssocResultRefusedReasonUnspecified
		if f.Status == domain.StatusRefusedTemporarily {
			code = domain.AssocResultRefusedTemporarily
		}
		s.notify(domain.AssociateConfirm{ResultCode: code})
		return
	}

	now := s.timers.Now()
	peer := domain.AssocResponse{
		CapabilityInfo: f.CapabilityInfo,
		Status:         f.Status,
		Aid:            f.Aid,
		Rates:          f.Elements.Rates,
		HtCap:          f.Elements.HtCap,
		HtOp:           f.Elements.HtOp,
		VhtCap:         f.Elements.VhtCap,
		VhtOp:          f.Elements.VhtOp,
	}
	ctx, err := negotiation.Resolve(s.dev.Capabilities(), peer, *s.join, now)
	if err != nil {
		log.Printf("[STA] Association with %s failed: %v", s.bssid(), err)
		telemetry.Errors.WithLabelValues(string(domain.KindOf(err))).Inc()
		s.notify(domain.AssociateConfirm{ResultCode: assocResultFor(err)})
		return
	}

	s.assoc = &ctx
	s.setState(domain.StateAssociated)
	log.Printf("[STA] Associated with %s, aid %d, phy %s", ctx.Bssid, ctx.Aid, ctx.Phy)
	s.notify(domain.AssociateConfirm{ResultCode: domain.AssocResultSuccess, Aid: ctx.Aid})

	if err := s.dev.ConfigureAssociation(ctx); err != nil {
		log.Printf("[STA] Error: configure association failed: %v", err)
	}

	s.rssi.Reset()
	s.schedule(&s.signalTimeout, s.beaconPeriods(s.cfg.SignalReportInterval))
	s.resetAutoDeauth(now)
	if !s.offChannel {
		s.scheduleAt(&s.deauth.id, now.Add(s.deauth.remaining))
	}

	if !s.join.Bss.IsRsn() {
		if err := s.openPort(); err != nil {
			log.Printf("[STA] Error: %v", err)
		}
	}

	if ctx.HasHt() {
		if err := s.sendAddBaRequest(); err != nil {
			log.Printf("[STA] Warning: ADDBA request not sent: %v", err)
		}
	}
}

func (s *Station) handleDeauthFrame(f *frame.DeauthFrame) {
	if s.state != domain.StateAuthenticated && s.state != domain.StateAssociated {
		s.debugf("ignoring deauthentication in state %v", s.state)
		return
	}
	bssid := s.bssid()
	log.Printf("[STA] Deauthenticated by %s: %v", bssid, f.Reason)
	s.leave()
	s.notify(domain.DeauthenticateIndication{PeerSta: bssid, ReasonCode: f.Reason})
}

func (s *Station) handleDisassocFrame(f *frame.DisassocFrame) {
	if s.state != domain.StateAssociated {
		s.debugf("ignoring disassociation in state %v", s.state)
		return
	}
	bssid := s.bssid()
	log.Printf("[STA] Disassociated by %s: %v", bssid, f.Reason)
	if err := s.dev.ClearAssociation(bssid); err != nil {
		log.Printf("[STA] Warning: clear association failed: %v", err)
	}
	s.closePort()
	s.cancel(&s.signalTimeout)
	s.cancel(&s.deauth.id)
	s.assoc = nil
	s.setState(domain.StateAuthenticated)
	s.notify(domain.DisassociateIndication{PeerSta: bssid, ReasonCode: f.Reason})
}

// handleAddBaReq accepts every block ack agreement, capping the reorder
// buffer at what the hardware holds.
func (s *Station) handleAddBaReq(f *frame.AddBaReqFrame) {
	if s.state != domain.StateAssociated {
		return
	}
	params := f.Params
	if params.BufferSize == 0 || params.BufferSize > maxAddBaBuffer {
		params.BufferSize = maxAddBaBuffer
	}

	b, err := frame.WriteAddBaRespFrame(s.pool, s.mgmtAddressing(), f.DialogToken, domain.StatusSuccess, params, f.Timeout)
	if err != nil {
		s.countDrop(domain.CategoryMgmt, string(domain.KindOf(err)))
		log.Printf("[STA] Error: ADDBA response: %v", err)
		return
	}
	if err := s.transmit(b, domain.CategoryMgmt, 0); err != nil {
		log.Printf("[STA] Error: ADDBA response: %v", err)
	}
}

// handleAddBaResp only logs: block ack sessions are not tracked.
func (s *Station) handleAddBaResp(f *frame.AddBaRespFrame) {
	log.Printf("[STA] ADDBA response from %s: token %d status %d tid %d buffer %d",
		f.Addr2, f.DialogToken, f.Status, f.Params.Tid, f.Params.BufferSize)
}

func (s *Station) handleDataFrame(f *frame.DataFrame) {
	h := &f.Header
	if f.IsEapol() {
		s.countIn(domain.CategoryEapol)
		if msg, err := frame.InspectEapolKey(f.Eapol); err == nil {
			telemetry.EapolKeyMessages.WithLabelValues("in", msg.String()).Inc()
			s.debugf("EAPOL-Key %s from %s", msg, h.Src())
		}
		data := make([]byte, len(f.Eapol))
		copy(data, f.Eapol)
		s.notify(domain.EapolIndication{Src: h.Src(), Dst: h.Dst(), Data: data})
		return
	}

	if s.port != domain.PortOpen {
		s.countDrop(domain.CategoryData, "port_blocked")
		return
	}
	s.countIn(domain.CategoryData)

	b, err := frame.WriteEthernetFrame(s.pool, h.Dst(), h.Src(), f.EtherType, f.Payload)
	if err != nil {
		s.countDrop(domain.CategoryData, string(domain.KindOf(err)))
		log.Printf("[STA] Error: ethernet delivery: %v", err)
	} else {
		if err := s.dev.DeliverEthernet(b.Bytes()); err != nil {
			log.Printf("[STA] Error: ethernet delivery: %v", err)
		}
		b.Release()
	}

	if h.MoreData() && h.Addr1 == s.addr {
		s.sendPsPoll()
	}
}

// handleNullData answers the AP's liveness probe.
func (s *Station) handleNullData(rx domain.RxInfo) {
	s.countIn(domain.CategoryData)
	s.rssi.Add(rx.RssiDbm)
	telemetry.RssiDbm.Set(float64(s.rssi.Avg()))
	if err := s.sendNullData(false); err != nil {
		log.Printf("[STA] Warning: keep-alive null data not sent: %v", err)
	}
}
