package negotiation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

var (
	bssid = domain.MustParseMAC("00:11:22:33:44:55")
	now   = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

func legacyRates() []domain.SupportedRate {
	return []domain.SupportedRate{0x82, 0x84, 0x8b, 0x96, 0x0c, 0x12, 0x18, 0x24, 0x30, 0x48, 0x60, 0x6c}
}

func localCaps() domain.DeviceCapabilities {
	return domain.DeviceCapabilities{
		CapabilityInfo: domain.CapEss | domain.CapShortPreamble | domain.CapShortSlotTime | domain.CapQos,
		Phys:           []domain.Phy{domain.PhyErp, domain.PhyHt, domain.PhyVht},
		Bands: map[domain.Band]domain.BandCapabilities{
			domain.Band2GHz: {
				Rates: legacyRates(),
				HtCap: &domain.HtCapabilities{ChanWidth40: true, SGI20: true, TxStbc: true, RxStbc: 1},
			},
			domain.Band5GHz: {
				Rates:  []domain.SupportedRate{0x0c, 0x12, 0x18, 0x24, 0x30, 0x48, 0x60, 0x6c},
				HtCap:  &domain.HtCapabilities{ChanWidth40: true, SGI20: true, SGI40: true, TxStbc: true, RxStbc: 1},
				VhtCap: &domain.VhtCapabilities{SupportedChanWidthSet: 1, SGI80: true, TxStbc: true, RxStbc: 1, MaxMpduLen: 2},
			},
		},
	}
}

func joinCtx(ch domain.Channel, phy domain.Phy) domain.JoinContext {
	return domain.JoinContext{
		Bss: domain.BssDescription{
			Bssid:          bssid,
			SSID:           "corp",
			BeaconPeriod:   100,
			Channel:        ch,
			Rates:          []domain.SupportedRate{0x82, 0x84, 0x8b, 0x96, 0x0c, 0x12},
			CapabilityInfo: domain.CapEss | domain.CapPrivacy,
		},
		Phy:            phy,
		ListenInterval: 10,
	}
}

func TestIntersectCapabilityInfo(t *testing.T) {
	local := domain.CapEss | domain.CapShortPreamble | domain.CapCfPollable | domain.CapSpectrumMgmt
	peer := domain.CapIbss | domain.CapShortPreamble | domain.CapCfPollable | domain.CapPrivacy | domain.CapSpectrumMgmt

	got := IntersectCapabilityInfo(local, peer)

	assert.Equal(t, domain.CapEss|domain.CapShortPreamble, got)
	assert.Equal(t, domain.CapEss, IntersectCapabilityInfo(0, 0), "ESS is always asserted")
}

func TestIntersectRates(t *testing.T) {
	tests := []struct {
		name    string
		local   []domain.SupportedRate
		peer    []domain.SupportedRate
		want    []domain.SupportedRate
		wantErr error
	}{
		{
			name:  "keeps peer basic flags",
			local: []domain.SupportedRate{0x02, 0x04, 0x0c},
			peer:  []domain.SupportedRate{0x82, 0x84, 0x0c, 0x18},
			want:  []domain.SupportedRate{0x82, 0x84, 0x0c},
		},
		{
			name:    "basic rate unsupported",
			local:   []domain.SupportedRate{0x02, 0x04},
			peer:    []domain.SupportedRate{0x82, 0x8b},
			wantErr: domain.ErrRatesMismatch,
		},
		{
			name:    "empty intersection",
			local:   []domain.SupportedRate{0x02},
			peer:    []domain.SupportedRate{0x0c},
			wantErr: domain.ErrRatesMismatch,
		},
		{
			name:  "duplicates collapse",
			local: []domain.SupportedRate{0x02},
			peer:  []domain.SupportedRate{0x82, 0x02},
			want:  []domain.SupportedRate{0x82},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IntersectRates(tt.local, tt.peer)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, domain.ErrIncompatibleCapabilities)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIntersectHtCaps_Stbc(t *testing.T) {
	ours := domain.HtCapabilities{TxStbc: true, RxStbc: 2, ChanWidth40: true}

	got := IntersectHtCaps(ours, domain.HtCapabilities{TxStbc: false, RxStbc: 0, ChanWidth40: true})
	assert.False(t, got.TxStbc, "peer cannot receive STBC")
	assert.Equal(t, uint8(0), got.RxStbc, "peer cannot transmit STBC")
	assert.True(t, got.ChanWidth40)

	got = IntersectHtCaps(ours, domain.HtCapabilities{TxStbc: true, RxStbc: 1})
	assert.True(t, got.TxStbc)
	assert.Equal(t, uint8(2), got.RxStbc, "our own stream count is kept")
	assert.False(t, got.ChanWidth40)
}

func TestIntersectVhtCaps_ChannelWidthSet(t *testing.T) {
	ours := domain.VhtCapabilities{SupportedChanWidthSet: 2, SGI160: true, MaxMpduLen: 2}
	theirs := domain.VhtCapabilities{SupportedChanWidthSet: 2, SGI160: true, MaxMpduLen: 1}

	got := IntersectVhtCaps(ours, theirs, domain.Channel{Primary: 36, Cbw: domain.Cbw80})
	assert.Equal(t, uint8(0), got.SupportedChanWidthSet)
	assert.False(t, got.SGI160)
	assert.Equal(t, uint8(1), got.MaxMpduLen)

	got = IntersectVhtCaps(ours, theirs, domain.Channel{Primary: 36, Cbw: domain.Cbw160})
	assert.Equal(t, uint8(2), got.SupportedChanWidthSet)
	assert.True(t, got.SGI160)

	got = IntersectVhtCaps(ours, theirs, domain.Channel{Primary: 36, Cbw: domain.Cbw80P80, Secondary80: 106})
	assert.Equal(t, uint8(2), got.SupportedChanWidthSet)
}

func TestResolve_Legacy(t *testing.T) {
	join := joinCtx(domain.Channel{Primary: 6}, domain.PhyErp)
	peer := domain.AssocResponse{
		CapabilityInfo: domain.CapEss | domain.CapShortPreamble | domain.CapPrivacy,
		Aid:            5,
		Rates:          []domain.SupportedRate{0x82, 0x84, 0x0c, 0x12},
	}

	ctx, err := Resolve(localCaps(), peer, join, now)
	require.NoError(t, err)
	assert.Equal(t, bssid, ctx.Bssid)
	assert.Equal(t, uint16(5), ctx.Aid)
	assert.Equal(t, domain.CapEss|domain.CapShortPreamble, ctx.CapabilityInfo)
	assert.Equal(t, peer.Rates, ctx.Rates)
	assert.Equal(t, domain.PhyErp, ctx.Phy)
	assert.False(t, ctx.HasHt())
	assert.False(t, ctx.IsQos())
	assert.Equal(t, uint16(10), ctx.ListenInterval)
	assert.Equal(t, now, ctx.AssocStart)
}

func TestResolve_RatesFallBackToBeacon(t *testing.T) {
	join := joinCtx(domain.Channel{Primary: 6}, domain.PhyErp)

	ctx, err := Resolve(localCaps(), domain.AssocResponse{Aid: 1}, join, now)
	require.NoError(t, err)
	assert.Equal(t, join.Bss.Rates, ctx.Rates)
}

func TestResolve_Errors(t *testing.T) {
	join := joinCtx(domain.Channel{Primary: 6}, domain.PhyErp)

	_, err := Resolve(localCaps(), domain.AssocResponse{Rates: []domain.SupportedRate{0x82, 0xff}}, join, now)
	assert.ErrorIs(t, err, domain.ErrRatesMismatch)

	local := localCaps()
	delete(local.Bands, domain.Band2GHz)
	_, err = Resolve(local, domain.AssocResponse{Rates: []domain.SupportedRate{0x82}}, join, now)
	assert.ErrorIs(t, err, domain.ErrCapabilitiesMismatch)
	assert.NotErrorIs(t, err, domain.ErrRatesMismatch)
}

func TestResolve_HtVht(t *testing.T) {
	ch := domain.Channel{Primary: 36, Cbw: domain.Cbw80}
	join := joinCtx(ch, domain.PhyVht)
	join.Bss.Rates = []domain.SupportedRate{0x8c, 0x12, 0x98, 0x24}
	peer := domain.AssocResponse{
		Aid:    3,
		HtCap:  &domain.HtCapabilities{ChanWidth40: true, SGI20: true, RxStbc: 1},
		HtOp:   &domain.HtOperation{PrimaryChannel: 36, SecondaryOffset: 1, StaChanWidthAny: true},
		VhtCap: &domain.VhtCapabilities{SupportedChanWidthSet: 1, SGI80: true, MaxMpduLen: 2},
		VhtOp:  &domain.VhtOperation{ChannelWidth: 1, Ccfs0: 42},
	}

	ctx, err := Resolve(localCaps(), peer, join, now)
	require.NoError(t, err)
	assert.Equal(t, domain.PhyVht, ctx.Phy)
	require.True(t, ctx.HasHt())
	require.True(t, ctx.HasVht())
	assert.True(t, ctx.IsQos())
	assert.True(t, ctx.IsCbw40Rx)
	assert.True(t, ctx.IsCbw40Tx)
	assert.False(t, ctx.HtCap.SGI40, "peer lacks SGI40")
	assert.True(t, ctx.HtCap.TxStbc, "peer receives STBC")
	assert.Equal(t, uint8(0), ctx.HtCap.RxStbc, "peer does not transmit STBC")
	assert.Equal(t, uint8(0), ctx.VhtCap.SupportedChanWidthSet)

	// Resolve must not alias the response.
	ctx.HtOp.PrimaryChannel = 40
	assert.Equal(t, uint8(36), peer.HtOp.PrimaryChannel)
}

func TestResolve_PhyDerivation(t *testing.T) {
	ch := domain.Channel{Primary: 36, Cbw: domain.Cbw40Above}
	join := joinCtx(ch, domain.PhyVht)
	join.Bss.Rates = []domain.SupportedRate{0x8c, 0x12}
	htCap := &domain.HtCapabilities{ChanWidth40: true}
	htOp := &domain.HtOperation{PrimaryChannel: 36}

	// HT cap without HT operation: the join PHY stands.
	ctx, err := Resolve(localCaps(), domain.AssocResponse{HtCap: htCap}, join, now)
	require.NoError(t, err)
	assert.Equal(t, domain.PhyVht, ctx.Phy)
	assert.True(t, ctx.HasHt())
	assert.True(t, ctx.IsCbw40Rx)
	assert.False(t, ctx.IsCbw40Tx, "no operation element")

	// HT only on a VHT join: no downgrade.
	ctx, err = Resolve(localCaps(), domain.AssocResponse{HtCap: htCap, HtOp: htOp}, join, now)
	require.NoError(t, err)
	assert.Equal(t, domain.PhyVht, ctx.Phy)
	assert.False(t, ctx.HasVht())
	assert.True(t, ctx.IsCbw40Rx)
	assert.False(t, ctx.IsCbw40Tx, "operation element does not allow any width")

	// Legacy join with an HT response upgrades.
	ctx, err = Resolve(localCaps(), domain.AssocResponse{HtCap: htCap, HtOp: htOp}, joinCtx(domain.Channel{Primary: 6}, domain.PhyErp), now)
	require.NoError(t, err)
	assert.Equal(t, domain.PhyHt, ctx.Phy)

	// HT join with full VHT elements upgrades further.
	vhtPeer := domain.AssocResponse{
		HtCap:  htCap,
		HtOp:   htOp,
		VhtCap: &domain.VhtCapabilities{MaxMpduLen: 2},
		VhtOp:  &domain.VhtOperation{},
	}
	htJoin := joinCtx(ch, domain.PhyHt)
	htJoin.Bss.Rates = join.Bss.Rates
	ctx, err = Resolve(localCaps(), vhtPeer, htJoin, now)
	require.NoError(t, err)
	assert.Equal(t, domain.PhyVht, ctx.Phy)
	assert.True(t, ctx.HasVht())
}

func TestResolve_KeepsJoinPhyWithoutElements(t *testing.T) {
	tests := []struct {
		name string
		ch   domain.Channel
		phy  domain.Phy
	}{
		{"ht on 5GHz", domain.Channel{Primary: 36}, domain.PhyHt},
		{"vht on 5GHz", domain.Channel{Primary: 36, Cbw: domain.Cbw80}, domain.PhyVht},
		{"erp on 2.4GHz", domain.Channel{Primary: 6}, domain.PhyErp},
		{"ofdm on 5GHz", domain.Channel{Primary: 36}, domain.PhyOfdm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			join := joinCtx(tt.ch, tt.phy)
			join.Bss.Rates = []domain.SupportedRate{0x8c, 0x12}
			ctx, err := Resolve(localCaps(), domain.AssocResponse{}, join, now)
			require.NoError(t, err)
			assert.Equal(t, tt.phy, ctx.Phy)
			assert.False(t, ctx.HasHt())
			assert.False(t, ctx.IsCbw40Rx)
		})
	}
}

func TestResolve_Cbw40Eligibility(t *testing.T) {
	tests := []struct {
		name     string
		cbw      domain.Cbw
		peer40   bool
		local40  bool
		widthAny bool
		wantRx   bool
		wantTx   bool
	}{
		{"all 40", domain.Cbw40Above, true, true, true, true, true},
		{"20MHz channel", domain.Cbw20, true, true, true, false, false},
		{"peer 20 only", domain.Cbw40Below, false, true, true, false, false},
		{"local 20 only", domain.Cbw40Above, true, false, true, false, false},
		{"rx only", domain.Cbw40Above, true, true, false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := localCaps()
			band := local.Bands[domain.Band5GHz]
			band.HtCap = &domain.HtCapabilities{ChanWidth40: tt.local40}
			local.Bands[domain.Band5GHz] = band

			join := joinCtx(domain.Channel{Primary: 36, Cbw: tt.cbw}, domain.PhyHt)
			join.Bss.Rates = []domain.SupportedRate{0x8c}
			peer := domain.AssocResponse{
				HtCap: &domain.HtCapabilities{ChanWidth40: tt.peer40},
				HtOp:  &domain.HtOperation{PrimaryChannel: 36, StaChanWidthAny: tt.widthAny},
			}

			ctx, err := Resolve(local, peer, join, now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRx, ctx.IsCbw40Rx)
			assert.Equal(t, tt.wantTx, ctx.IsCbw40Tx)
		})
	}
}

func TestBuildAssocRequestCaps(t *testing.T) {
	rc, err := BuildAssocRequestCaps(localCaps(), joinCtx(domain.Channel{Primary: 6}, domain.PhyErp))
	require.NoError(t, err)
	assert.Equal(t, domain.CapEss|domain.CapShortPreamble, rc.CapabilityInfo)
	assert.Nil(t, rc.HtCap)
	assert.Equal(t, []domain.SupportedRate{0x82, 0x84, 0x8b, 0x96, 0x0c, 0x12}, rc.Rates)

	rc, err = BuildAssocRequestCaps(localCaps(), joinCtx(domain.Channel{Primary: 6}, domain.PhyHt))
	require.NoError(t, err)
	require.NotNil(t, rc.HtCap)
	assert.Nil(t, rc.VhtCap)
	assert.NotZero(t, rc.CapabilityInfo&domain.CapQos)

	join := joinCtx(domain.Channel{Primary: 6}, domain.PhyErp)
	join.Bss.Rates = append(join.Bss.Rates, 0xff)
	_, err = BuildAssocRequestCaps(localCaps(), join)
	assert.ErrorIs(t, err, domain.ErrRatesMismatch)
}

func rateGen() *rapid.Generator[domain.SupportedRate] {
	return rapid.Custom(func(t *rapid.T) domain.SupportedRate {
		r := rapid.SampledFrom([]uint8{2, 4, 11, 22, 12, 18, 24, 36, 48, 72, 96, 108}).Draw(t, "rate")
		if rapid.Bool().Draw(t, "basic") {
			return domain.SupportedRate(r).AsBasic()
		}
		return domain.SupportedRate(r)
	})
}

func TestProperty_RateIntersectionIsSubset(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		local := rapid.SliceOfN(rateGen(), 1, 12).Draw(t, "local")
		peer := rapid.SliceOfN(rateGen(), 1, 12).Draw(t, "peer")

		got, err := IntersectRates(local, peer)

		basicOK := true
		for _, r := range domain.BasicRates(peer) {
			if !domain.ContainsRate(local, r) {
				basicOK = false
			}
		}
		if !basicOK {
			if err == nil {
				t.Fatalf("peer basic rates %v not within %v but no error", peer, local)
			}
			return
		}
		if err != nil {
			if len(got) != 0 {
				t.Fatalf("error with non-empty result")
			}
			return
		}
		for _, r := range got {
			if !domain.ContainsRate(local, r) || !domain.ContainsRate(peer, r) {
				t.Fatalf("rate %v not in both %v and %v", r, local, peer)
			}
		}
	})
}

func htCapGen() *rapid.Generator[domain.HtCapabilities] {
	return rapid.Custom(func(t *rapid.T) domain.HtCapabilities {
		return domain.HtCapabilities{
			TxStbc:      rapid.Bool().Draw(t, "tx_stbc"),
			RxStbc:      rapid.Uint8Range(0, 3).Draw(t, "rx_stbc"),
			ChanWidth40: rapid.Bool().Draw(t, "cbw40"),
		}
	})
}

func TestProperty_StbcMirror(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ap := htCapGen().Draw(t, "ap")
		client := htCapGen().Draw(t, "client")

		forward := IntersectHtCaps(client, ap)
		reverse := IntersectHtCaps(ap, client)

		if forward.TxStbc != (reverse.RxStbc > 0) {
			t.Fatalf("client tx %v but ap rx %d", forward.TxStbc, reverse.RxStbc)
		}
		if reverse.TxStbc != (forward.RxStbc > 0) {
			t.Fatalf("ap tx %v but client rx %d", reverse.TxStbc, forward.RxStbc)
		}
		if forward.ChanWidth40 != reverse.ChanWidth40 {
			t.Fatalf("channel width is symmetric")
		}
	})
}
