package negotiation

import (
	"fmt"
	"log"
	"time"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

// clientClearedCaps are capability bits that have no meaning for a client
// of an infrastructure BSS.
const clientClearedCaps = domain.CapIbss | domain.CapCfPollable | domain.CapCfPollRequest |
	domain.CapPrivacy | domain.CapSpectrumMgmt

// Resolve computes the association context from what the radio supports,
// what the AP answered in its association response and the joined BSS.
// It does not mutate its inputs.
func Resolve(local domain.DeviceCapabilities, peer domain.AssocResponse, join domain.JoinContext, now time.Time) (domain.AssocContext, error) {
	band, ok := local.ForChannel(join.Bss.Channel)
	if !ok {
		return domain.AssocContext{}, fmt.Errorf("%w: no %s band capabilities for channel %s",
			domain.ErrCapabilitiesMismatch, join.Bss.Channel.Band(), join.Bss.Channel)
	}

	ctx := domain.AssocContext{
		Bssid:          join.Bss.Bssid,
		Aid:            peer.Aid,
		Channel:        join.Bss.Channel,
		ListenInterval: join.ListenInterval,
		AssocStart:     now,
	}

	// 1. Capability info
	ctx.CapabilityInfo = IntersectCapabilityInfo(local.CapabilityInfo, peer.CapabilityInfo)

	// 2. Rates. Some APs leave rates out of the response; the beacon's set applies then.
	peerRates := peer.Rates
	if len(peerRates) == 0 {
		peerRates = join.Bss.Rates
	}
	rates, err := IntersectRates(band.Rates, peerRates)
	if err != nil {
		return domain.AssocContext{}, err
	}
	ctx.Rates = rates

	// 3. HT
	if band.HtCap != nil && peer.HtCap != nil {
		ht := IntersectHtCaps(*band.HtCap, *peer.HtCap)
		ctx.HtCap = &ht
		if peer.HtOp != nil {
			op := *peer.HtOp
			ctx.HtOp = &op
		}
	}

	// 4. VHT
	if band.VhtCap != nil && peer.VhtCap != nil {
		vht := IntersectVhtCaps(*band.VhtCap, *peer.VhtCap, join.Bss.Channel)
		ctx.VhtCap = &vht
		if peer.VhtOp != nil {
			op := *peer.VhtOp
			ctx.VhtOp = &op
		}
	}

	// 5. PHY
	ctx.Phy = DerivePhy(join, ctx)
	if ctx.Phy != join.Phy {
		log.Printf("[STA] Warning: AP %s negotiated PHY %s, joined as %s", join.Bss.Bssid, ctx.Phy, join.Phy)
	}

	// 6. Channel bandwidth
	if band.HtCap != nil && peer.HtCap != nil {
		ctx.IsCbw40Rx = join.Bss.Channel.Is40OrWider() && peer.HtCap.ChanWidth40 && band.HtCap.ChanWidth40
		ctx.IsCbw40Tx = ctx.IsCbw40Rx && ctx.HtOp != nil && ctx.HtOp.StaChanWidthAny
	}

	return ctx, nil
}

// IntersectCapabilityInfo ANDs both capability fields, then forces the
// bits a client must or must not claim.
func IntersectCapabilityInfo(local, peer uint16) uint16 {
	c := local & peer
	c |= domain.CapEss
	c &^= clientClearedCaps
	return c
}

// IntersectRates returns the peer rates the radio supports, keeping the
// peer's basic flags. Every basic rate of the peer must be supported and the
// result must not be empty.
func IntersectRates(local, peer []domain.SupportedRate) ([]domain.SupportedRate, error) {
	for _, r := range domain.BasicRates(peer) {
		if !domain.ContainsRate(local, r) {
			return nil, fmt.Errorf("%w: basic rate %s not supported locally", domain.ErrRatesMismatch, r)
		}
	}

	var out []domain.SupportedRate
	for _, r := range peer {
		if domain.ContainsRate(local, r) && !domain.ContainsRate(out, r) {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no common rates", domain.ErrRatesMismatch)
	}
	return out, nil
}

// IntersectHtCaps narrows our HT capabilities to what the peer can use.
// STBC is asymmetric: we only transmit STBC if the peer receives it, and we
// only advertise STBC reception if the peer transmits it.
func IntersectHtCaps(ours, theirs domain.HtCapabilities) domain.HtCapabilities {
	out := ours
	out.ChanWidth40 = ours.ChanWidth40 && theirs.ChanWidth40
	out.SGI20 = ours.SGI20 && theirs.SGI20
	out.SGI40 = ours.SGI40 && theirs.SGI40
	out.LDPC = ours.LDPC && theirs.LDPC
	out.Greenfield = ours.Greenfield && theirs.Greenfield

	out.TxStbc = ours.TxStbc && theirs.RxStbc > 0
	if !theirs.TxStbc {
		out.RxStbc = 0
	}
	return out
}

// IntersectVhtCaps narrows our VHT capabilities to what the peer can use on ch.
func IntersectVhtCaps(ours, theirs domain.VhtCapabilities, ch domain.Channel) domain.VhtCapabilities {
	out := ours
	if !ch.Is160Class() {
		out.SupportedChanWidthSet = 0
	}
	out.RxLdpc = ours.RxLdpc && theirs.RxLdpc
	out.SGI80 = ours.SGI80 && theirs.SGI80
	out.SGI160 = ours.SGI160 && theirs.SGI160 && ch.Is160Class()

	out.TxStbc = ours.TxStbc && theirs.RxStbc > 0
	if !theirs.TxStbc {
		out.RxStbc = 0
	}
	if theirs.MaxMpduLen < out.MaxMpduLen {
		out.MaxMpduLen = theirs.MaxMpduLen
	}
	return out
}

// DerivePhy picks the PHY the association actually runs. It starts from
// the join PHY and only ever upgrades: to HT when the negotiated context
// carries both HT elements, then to VHT when it carries both VHT elements.
func DerivePhy(join domain.JoinContext, ctx domain.AssocContext) domain.Phy {
	phy := join.Phy
	if ctx.HtCap != nil && ctx.HtOp != nil && phy < domain.PhyHt {
		phy = domain.PhyHt
	}
	if ctx.VhtCap != nil && ctx.VhtOp != nil && phy == domain.PhyHt {
		phy = domain.PhyVht
	}
	return phy
}

// RequestCaps is what the station advertises in its association request.
type RequestCaps struct {
	CapabilityInfo uint16
	Rates          []domain.SupportedRate
	HtCap          *domain.HtCapabilities
	VhtCap         *domain.VhtCapabilities
}

// BuildAssocRequestCaps derives the association request capabilities for
// join. It refuses BSSs whose basic rates the radio lacks before anything
// is transmitted.
func BuildAssocRequestCaps(local domain.DeviceCapabilities, join domain.JoinContext) (RequestCaps, error) {
	band, ok := local.ForChannel(join.Bss.Channel)
	if !ok {
		return RequestCaps{}, fmt.Errorf("%w: no %s band capabilities", domain.ErrCapabilitiesMismatch, join.Bss.Channel.Band())
	}
	rates, err := IntersectRates(band.Rates, join.Bss.Rates)
	if err != nil {
		return RequestCaps{}, err
	}

	rc := RequestCaps{
		CapabilityInfo: domain.CapEss | (local.CapabilityInfo & domain.CapShortPreamble),
		Rates:          rates,
	}
	if (join.Phy == domain.PhyHt || join.Phy == domain.PhyVht) && band.HtCap != nil {
		ht := *band.HtCap
		rc.HtCap = &ht
		rc.CapabilityInfo |= local.CapabilityInfo & (domain.CapShortSlotTime | domain.CapQos)
	}
	if join.Phy == domain.PhyVht && band.VhtCap != nil {
		vht := *band.VhtCap
		rc.VhtCap = &vht
	}
	return rc, nil
}
