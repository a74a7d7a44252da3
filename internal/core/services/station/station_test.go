package station

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/lcalzada-xor/wsta/internal/adapters/frame"
	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

// msgsOf filters the messages of type T.
func msgsOf[T domain.MlmeMsg](msgs []domain.MlmeMsg) []T {
	var out []T
	for _, m := range msgs {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func TestStation_StartsIdle(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, domain.StateIdle, h.sta.State())
	assert.Equal(t, domain.PortBlocked, h.sta.PortState())
	assert.Equal(t, staAddr, h.sta.Address())
	_, joined := h.sta.JoinContext()
	assert.False(t, joined)
	_, associated := h.sta.AssocContext()
	assert.False(t, associated)
}

func TestJoin(t *testing.T) {
	h := newHarness(t)
	h.join(openBss(), domain.PhyErp)

	assert.Equal(t, []domain.MlmeMsg{domain.JoinConfirm{ResultCode: domain.JoinResultSuccess}}, h.sme.take())
	assert.Equal(t, []domain.Channel{{Primary: 6}}, h.dev.Channels)
	j, ok := h.sta.JoinContext()
	require.True(t, ok)
	assert.Equal(t, apAddr, j.Bss.Bssid)
	assert.Equal(t, uint16(10), j.ListenInterval)
	assert.Equal(t, domain.StateIdle, h.sta.State())
}

func TestJoin_SetChannelFailure(t *testing.T) {
	h := newHarness(t)
	h.dev.SetChanErr = errors.New("radio busy")

	err := h.sta.HandleMlmeMsg(domain.JoinRequest{Bss: openBss(), Phy: domain.PhyErp})
	assert.ErrorIs(t, err, domain.ErrDeviceIO)
	assert.Equal(t, []domain.MlmeMsg{domain.JoinConfirm{ResultCode: domain.JoinResultFailureTimeout}}, h.sme.take())
	_, joined := h.sta.JoinContext()
	assert.False(t, joined)
}

func TestJoin_WhileAssociated(t *testing.T) {
	h := newHarness(t)
	h.connect(openBss(), domain.PhyErp, 5)

	other := openBss()
	other.Bssid = otherAP
	err := h.sta.HandleMlmeMsg(domain.JoinRequest{Bss: other, Phy: domain.PhyErp})
	assert.ErrorIs(t, err, domain.ErrBadState)
	assert.Equal(t, []domain.MlmeMsg{domain.JoinConfirm{ResultCode: domain.JoinResultRefusedBadState}}, h.sme.take())
	assert.Equal(t, domain.StateAssociated, h.sta.State())
	j, _ := h.sta.JoinContext()
	assert.Equal(t, apAddr, j.Bss.Bssid)
}

func TestJoin_AbandonsAuthenticated(t *testing.T) {
	h := newHarness(t)
	h.join(openBss(), domain.PhyErp)
	h.authenticate()
	h.sme.take()

	other := openBss()
	other.Bssid = otherAP
	h.join(other, domain.PhyErp)

	assert.Equal(t, domain.StateIdle, h.sta.State())
	j, _ := h.sta.JoinContext()
	assert.Equal(t, otherAP, j.Bss.Bssid)
}

func TestAuthenticate_Success(t *testing.T) {
	h := newHarness(t)
	h.join(openBss(), domain.PhyErp)
	h.sme.take()

	require.NoError(t, h.sta.HandleMlmeMsg(domain.AuthenticateRequest{PeerSta: apAddr, AuthType: domain.AuthOpenSystem}))
	assert.Equal(t, domain.StateAuthenticating, h.sta.State())

	auth, ok := h.sentOne().(*frame.AuthFrame)
	require.True(t, ok)
	assert.Equal(t, domain.AuthOpenSystem, auth.Algorithm)
	assert.Equal(t, uint16(1), auth.TxSeq)
	assert.Equal(t, apAddr, auth.Addr1)
	assert.Equal(t, staAddr, auth.Addr2)
	assert.Equal(t, apAddr, auth.Addr3)

	h.rxAuth(domain.StatusSuccess)
	assert.Equal(t, domain.StateAuthenticated, h.sta.State())
	assert.Equal(t, []domain.MlmeMsg{domain.AuthenticateConfirm{
		PeerSta:    apAddr,
		AuthType:   domain.AuthOpenSystem,
		ResultCode: domain.AuthResultSuccess,
	}}, h.sme.take())

	// The authentication timeout was cancelled.
	h.advance(20 * beaconPeriod)
	assert.Empty(t, h.sme.take())
	assert.Equal(t, domain.StateAuthenticated, h.sta.State())
	assert.Zero(t, h.timers.Pending())
}

func TestAuthenticate_Rejected(t *testing.T) {
	h := newHarness(t)
	h.join(openBss(), domain.PhyErp)
	require.NoError(t, h.sta.HandleMlmeMsg(domain.AuthenticateRequest{PeerSta: apAddr, AuthType: domain.AuthOpenSystem}))
	h.sme.take()

	h.rxAuth(domain.StatusRefused)

	assert.Equal(t, domain.StateIdle, h.sta.State())
	assert.Equal(t, []domain.MlmeMsg{domain.AuthenticateConfirm{
		PeerSta:    apAddr,
		AuthType:   domain.AuthOpenSystem,
		ResultCode: domain.AuthResultAuthenticationRejected,
	}}, h.sme.take())
	assert.Zero(t, h.timers.Pending())
}

func TestAuthenticate_Timeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout uint32
		periods int
	}{
		{"default", 0, 10},
		{"from request", 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.join(openBss(), domain.PhyErp)
			require.NoError(t, h.sta.HandleMlmeMsg(domain.AuthenticateRequest{
				PeerSta:        apAddr,
				AuthType:       domain.AuthOpenSystem,
				FailureTimeout: tt.timeout,
			}))
			h.sme.take()

			h.advance(beaconPeriod*time.Duration(tt.periods) - 1)
			assert.Equal(t, domain.StateAuthenticating, h.sta.State())
			assert.Empty(t, h.sme.take())

			h.advance(1)
			assert.Equal(t, domain.StateIdle, h.sta.State())
			assert.Equal(t, []domain.MlmeMsg{domain.AuthenticateConfirm{
				PeerSta:    apAddr,
				AuthType:   domain.AuthOpenSystem,
				ResultCode: domain.AuthResultAuthFailureTimeout,
			}}, h.sme.take())
		})
	}
}

func TestAuthenticate_Refused(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		peer  domain.MacAddr
	}{
		{"not joined", func(h *harness) {}, apAddr},
		{"wrong peer", func(h *harness) { h.join(openBss(), domain.PhyErp) }, otherAP},
		{"already authenticated", func(h *harness) {
			h.join(openBss(), domain.PhyErp)
			h.authenticate()
		}, apAddr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)
			h.sme.take()
			h.dev.ClearFrames()
			before := h.sta.State()

			err := h.sta.HandleMlmeMsg(domain.AuthenticateRequest{PeerSta: tt.peer, AuthType: domain.AuthOpenSystem})
			require.NoError(t, err)

			assert.Equal(t, []domain.MlmeMsg{domain.AuthenticateConfirm{
				PeerSta:    tt.peer,
				AuthType:   domain.AuthOpenSystem,
				ResultCode: domain.AuthResultRefused,
			}}, h.sme.take())
			assert.Empty(t, h.dev.SentFrames())
			assert.Equal(t, before, h.sta.State())
		})
	}
}

func TestProperty_OnlyOpenSystemIsAttempted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		alg := rapid.SampledFrom([]domain.AuthType{
			domain.AuthSharedKey,
			domain.AuthFastBssTransition,
			domain.AuthSae,
		}).Draw(t, "auth_type")

		h := newHarness(t)
		h.join(openBss(), domain.PhyErp)
		h.sme.take()

		require.NoError(t, h.sta.HandleMlmeMsg(domain.AuthenticateRequest{PeerSta: apAddr, AuthType: alg}))
		msgs := msgsOf[domain.AuthenticateConfirm](h.sme.take())
		require.Len(t, msgs, 1)
		require.Equal(t, domain.AuthResultRefused, msgs[0].ResultCode)
		require.Equal(t, alg, msgs[0].AuthType)
		require.Empty(t, h.dev.SentFrames())
		require.Equal(t, domain.StateIdle, h.sta.State())
	})
}

func TestAuthenticate_TransmitFailures(t *testing.T) {
	t.Run("pool exhausted", func(t *testing.T) {
		pool := frame.NewPool(1)
		h := newHarness(t, WithPool(pool))
		h.join(openBss(), domain.PhyErp)
		h.sme.take()

		held, err := pool.Get()
		require.NoError(t, err)
		defer held.Release()

		err = h.sta.HandleMlmeMsg(domain.AuthenticateRequest{PeerSta: apAddr, AuthType: domain.AuthOpenSystem})
		assert.ErrorIs(t, err, domain.ErrResourceExhausted)
		assert.Equal(t, domain.StateIdle, h.sta.State())
		assert.Equal(t, domain.AuthResultRefused, msgsOf[domain.AuthenticateConfirm](h.sme.take())[0].ResultCode)
		assert.Equal(t, uint64(1), h.sta.Stats().Mgmt.Drop)
	})

	t.Run("device error", func(t *testing.T) {
		h := newHarness(t)
		h.join(openBss(), domain.PhyErp)
		h.sme.take()
		h.dev.SetSendErr(errors.New("tx queue stalled"))

		err := h.sta.HandleMlmeMsg(domain.AuthenticateRequest{PeerSta: apAddr, AuthType: domain.AuthOpenSystem})
		assert.ErrorIs(t, err, domain.ErrDeviceIO)
		assert.Equal(t, domain.StateIdle, h.sta.State())
		assert.Equal(t, domain.AuthResultRefused, msgsOf[domain.AuthenticateConfirm](h.sme.take())[0].ResultCode)
		assert.Zero(t, h.timers.Pending())
	})
}

func TestAssociate_OpenNetwork(t *testing.T) {
	h := newHarness(t)
	h.join(openBss(), domain.PhyErp)
	h.authenticate()
	h.sme.take()
	h.dev.ClearFrames()

	require.NoError(t, h.sta.HandleMlmeMsg(domain.AssociateRequest{PeerSta: apAddr}))
	req, ok := h.sentOne().(*frame.AssocReqFrame)
	require.True(t, ok)
	assert.Equal(t, uint16(10), req.ListenInterval)
	assert.Equal(t, "lab", req.Elements.SSID)
	assert.Equal(t, domain.CapEss|domain.CapShortPreamble, req.CapabilityInfo)
	assert.Nil(t, req.Elements.HtCap)

	h.rxAssocResp(domain.StatusSuccess, 5, nil, nil)

	assert.Equal(t, domain.StateAssociated, h.sta.State())
	assert.Equal(t, []domain.MlmeMsg{domain.AssociateConfirm{ResultCode: domain.AssocResultSuccess, Aid: 5}}, h.sme.take())
	assert.Equal(t, domain.PortOpen, h.sta.PortState())
	assert.Equal(t, []domain.LinkStatus{domain.LinkUp}, h.dev.LinkHistory())

	ctx, ok := h.sta.AssocContext()
	require.True(t, ok)
	assert.Equal(t, uint16(5), ctx.Aid)
	assert.Equal(t, apAddr, ctx.Bssid)
	assert.Equal(t, domain.PhyErp, ctx.Phy)
	require.Len(t, h.dev.Configured, 1)
	assert.Equal(t, ctx, h.dev.Configured[0])

	// No block ack session without HT.
	assert.Empty(t, h.sent())
}

func TestAssociate_Refusals(t *testing.T) {
	t.Run("not authenticated", func(t *testing.T) {
		h := newHarness(t)
		h.join(openBss(), domain.PhyErp)
		h.sme.take()

		require.NoError(t, h.sta.HandleMlmeMsg(domain.AssociateRequest{PeerSta: apAddr}))
		assert.Equal(t, []domain.MlmeMsg{domain.AssociateConfirm{ResultCode: domain.AssocResultRefusedNotAuthenticated}}, h.sme.take())
		assert.Empty(t, h.dev.SentFrames())
	})

	t.Run("wrong peer", func(t *testing.T) {
		h := newHarness(t)
		h.join(openBss(), domain.PhyErp)
		h.authenticate()
		h.sme.take()
		h.dev.ClearFrames()

		require.NoError(t, h.sta.HandleMlmeMsg(domain.AssociateRequest{PeerSta: otherAP}))
		assert.Equal(t, []domain.MlmeMsg{domain.AssociateConfirm{ResultCode: domain.AssocResultRefusedReasonUnspecified}}, h.sme.take())
		assert.Empty(t, h.dev.SentFrames())
	})

	t.Run("malformed rsne", func(t *testing.T) {
		h := newHarness(t)
		h.join(rsnBss(), domain.PhyErp)
		h.authenticate()
		h.sme.take()
		h.dev.ClearFrames()

		err := h.sta.HandleMlmeMsg(domain.AssociateRequest{PeerSta: apAddr, RSNE: []byte{0x01}})
		assert.ErrorIs(t, err, domain.ErrMalformed)
		assert.Equal(t, []domain.MlmeMsg{domain.AssociateConfirm{ResultCode: domain.AssocResultRefusedReasonUnspecified}}, h.sme.take())
		assert.Empty(t, h.dev.SentFrames())
	})

	t.Run("basic rates mismatch", func(t *testing.T) {
		bss := openBss()
		bss.Rates = append(bss.Rates, 0xff)
		h := newHarness(t)
		h.join(bss, domain.PhyErp)
		h.authenticate()
		h.sme.take()
		h.dev.ClearFrames()

		err := h.sta.HandleMlmeMsg(domain.AssociateRequest{PeerSta: apAddr})
		assert.ErrorIs(t, err, domain.ErrIncompatibleCapabilities)
		assert.Equal(t, []domain.MlmeMsg{domain.AssociateConfirm{ResultCode: domain.AssocResultRefusedBasicRatesMismatch}}, h.sme.take())
		assert.Empty(t, h.dev.SentFrames())
		assert.Equal(t, domain.StateAuthenticated, h.sta.State())
	})
}

func TestAssociate_RefusedByAP(t *testing.T) {
	tests := []struct {
		status domain.StatusCode
		want   domain.AssociateResultCode
	}{
		{domain.StatusRefused, domain.AssocResultRefusedReasonUnspecified},
		{domain.StatusRefusedTemporarily, domain.AssocResultRefusedTemporarily},
	}
	for _, tt := range tests {
		h := newHarness(t)
		h.join(openBss(), domain.PhyErp)
		h.authenticate()
		require.NoError(t, h.sta.HandleMlmeMsg(domain.AssociateRequest{PeerSta: apAddr}))
		h.sme.take()

		h.rxAssocResp(tt.status, 0, nil, nil)

		assert.Equal(t, []domain.MlmeMsg{domain.AssociateConfirm{ResultCode: tt.want}}, h.sme.take(), "status %d", tt.status)
		assert.Equal(t, domain.StateAuthenticated, h.sta.State())
		assert.Zero(t, h.timers.Pending())
	}
}

func TestAssociate_Timeout(t *testing.T) {
	h := newHarness(t)
	h.join(openBss(), domain.PhyErp)
	h.authenticate()
	require.NoError(t, h.sta.HandleMlmeMsg(domain.AssociateRequest{PeerSta: apAddr}))
	h.sme.take()

	h.advance(19 * beaconPeriod)
	assert.Empty(t, h.sme.take())

	h.advance(beaconPeriod)
	assert.Equal(t, []domain.MlmeMsg{domain.AssociateConfirm{ResultCode: domain.AssocResultRefusedTemporarily}}, h.sme.take())
	assert.Equal(t, domain.StateAuthenticated, h.sta.State())

	// A late response is still honoured.
	h.rxAssocResp(domain.StatusSuccess, 3, nil, nil)
	assert.Equal(t, domain.StateAssociated, h.sta.State())
}

func TestAssociate_HtRequestsBlockAck(t *testing.T) {
	h := newHarness(t)
	h.join(htBss(), domain.PhyHt)
	h.authenticate()
	h.dev.ClearFrames()
	require.NoError(t, h.sta.HandleMlmeMsg(domain.AssociateRequest{PeerSta: apAddr}))

	req, ok := h.sentOne().(*frame.AssocReqFrame)
	require.True(t, ok)
	require.NotNil(t, req.Elements.HtCap)

	bss := htBss()
	h.rxAssocResp(domain.StatusSuccess, 1, bss.HtCap, bss.HtOp)
	require.Equal(t, domain.StateAssociated, h.sta.State())

	ctx, _ := h.sta.AssocContext()
	assert.Equal(t, domain.PhyHt, ctx.Phy)
	assert.True(t, ctx.IsCbw40Rx)

	addba, ok := h.sentOne().(*frame.AddBaReqFrame)
	require.True(t, ok)
	assert.Equal(t, uint8(1), addba.DialogToken)
	assert.Equal(t, uint8(0), addba.Params.Tid)
	assert.Equal(t, uint16(64), addba.Params.BufferSize)
	assert.True(t, addba.Params.Amsdu)
	assert.True(t, addba.Params.Immediate)
	assert.Equal(t, apAddr, addba.Addr1)
}

func TestAssociate_HtJoinWithoutHtResponse(t *testing.T) {
	h := newHarness(t)
	h.join(htBss(), domain.PhyHt)
	h.authenticate()
	require.NoError(t, h.sta.HandleMlmeMsg(domain.AssociateRequest{PeerSta: apAddr}))
	h.dev.ClearFrames()

	h.rxAssocResp(domain.StatusSuccess, 4, nil, nil)
	require.Equal(t, domain.StateAssociated, h.sta.State())

	ctx, _ := h.sta.AssocContext()
	assert.Equal(t, domain.PhyHt, ctx.Phy)
	assert.False(t, ctx.HasHt())
	assert.False(t, ctx.IsCbw40Rx)
	for _, f := range h.sent() {
		_, isAddBa := f.(*frame.AddBaReqFrame)
		assert.False(t, isAddBa, "no block ack without HT elements")
	}
}

func TestAssociate_RsnKeepsPortBlocked(t *testing.T) {
	h := newHarness(t)
	h.connect(rsnBss(), domain.PhyErp, 1)

	assert.Equal(t, domain.PortBlocked, h.sta.PortState())
	assert.Empty(t, h.dev.LinkHistory())

	h.rxData(staAddr, false, []byte("blocked"))
	assert.Empty(t, h.dev.DeliveredEthernet())
	assert.Equal(t, uint64(1), h.sta.Stats().Data.Drop)

	// EAPOL passes the blocked port.
	m1 := eapolKeyM1()
	h.rxEapol(m1)
	assert.Equal(t, []domain.MlmeMsg{domain.EapolIndication{Src: apAddr, Dst: staAddr, Data: m1}}, h.sme.take())
	assert.Equal(t, uint64(1), h.sta.Stats().Eapol.In)

	require.NoError(t, h.sta.HandleMlmeMsg(domain.UpdateControlledPortRequest{State: domain.PortOpen}))
	assert.Equal(t, domain.PortOpen, h.sta.PortState())
	assert.Equal(t, []domain.LinkStatus{domain.LinkUp}, h.dev.LinkHistory())

	h.rxData(staAddr, false, []byte("open"))
	assert.Len(t, h.dev.DeliveredEthernet(), 1)

	require.NoError(t, h.sta.HandleEthFrame(ethFrame(t, apAddr, []byte("ping"))))
	sent := h.dev.SentFrames()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.TxProtected, sent[0].Flags)
	// Protected bit of the frame control field.
	assert.NotZero(t, sent[0].Data[1]&0x40)

	require.NoError(t, h.sta.HandleMlmeMsg(domain.UpdateControlledPortRequest{State: domain.PortBlocked}))
	assert.Equal(t, domain.PortBlocked, h.sta.PortState())
	assert.Equal(t, []domain.LinkStatus{domain.LinkUp, domain.LinkDown}, h.dev.LinkHistory())
}

func TestDeauthenticatedByAP(t *testing.T) {
	h := newHarness(t)
	h.connect(openBss(), domain.PhyErp, 5)

	h.rx(func() (*frame.Buffer, error) {
		return frame.WriteDeauthFrame(h.apPool, h.fromAP(), domain.ReasonInvalidClass3Frame)
	})

	assert.Equal(t, domain.StateIdle, h.sta.State())
	assert.Equal(t, domain.PortBlocked, h.sta.PortState())
	assert.Equal(t, []domain.MlmeMsg{domain.DeauthenticateIndication{
		PeerSta:    apAddr,
		ReasonCode: domain.ReasonInvalidClass3Frame,
	}}, h.sme.take())
	assert.Equal(t, []domain.MacAddr{apAddr}, h.dev.ClearedAssociations())
	assert.Equal(t, []domain.LinkStatus{domain.LinkUp, domain.LinkDown}, h.dev.LinkHistory())
	assert.Zero(t, h.timers.Pending())
	_, associated := h.sta.AssocContext()
	assert.False(t, associated)
}

func TestDeauthenticatedByAP_WhileAuthenticated(t *testing.T) {
	h := newHarness(t)
	h.join(openBss(), domain.PhyErp)
	h.authenticate()
	h.sme.take()

	h.rx(func() (*frame.Buffer, error) {
		return frame.WriteDeauthFrame(h.apPool, h.fromAP(), domain.ReasonInactivity)
	})

	assert.Equal(t, domain.StateIdle, h.sta.State())
	assert.Equal(t, []domain.MlmeMsg{domain.DeauthenticateIndication{PeerSta: apAddr, ReasonCode: domain.ReasonInactivity}}, h.sme.take())
	// Nothing was configured, so nothing is cleared.
	assert.Empty(t, h.dev.ClearedAssociations())
}

func TestDisassociatedByAP(t *testing.T) {
	h := newHarness(t)
	h.connect(openBss(), domain.PhyErp, 5)

	h.rx(func() (*frame.Buffer, error) {
		return frame.WriteDisassocFrame(h.apPool, h.fromAP(), domain.ReasonLeavingNetworkDisassoc)
	})

	assert.Equal(t, domain.StateAuthenticated, h.sta.State())
	assert.Equal(t, domain.PortBlocked, h.sta.PortState())
	assert.Equal(t, []domain.MlmeMsg{domain.DisassociateIndication{
		PeerSta:    apAddr,
		ReasonCode: domain.ReasonLeavingNetworkDisassoc,
	}}, h.sme.take())
	assert.Equal(t, []domain.MacAddr{apAddr}, h.dev.ClearedAssociations())

	// Signal reports and auto-deauth stopped with the association.
	h.advance(200 * beaconPeriod)
	assert.Empty(t, h.sme.take())
	assert.Equal(t, domain.StateAuthenticated, h.sta.State())
}

func TestDeauthenticateRequest(t *testing.T) {
	tests := []struct {
		name    string
		sendErr error
	}{
		{"frame sent", nil},
		{"frame lost", errors.New("tx queue stalled")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.connect(openBss(), domain.PhyErp, 5)
			h.dev.SetSendErr(tt.sendErr)

			require.NoError(t, h.sta.HandleMlmeMsg(domain.DeauthenticateRequest{PeerSta: apAddr}))

			assert.Equal(t, domain.StateIdle, h.sta.State())
			assert.Equal(t, []domain.MlmeMsg{domain.DeauthenticateConfirm{PeerSta: apAddr}}, h.sme.take())
			assert.Zero(t, h.timers.Pending())
			if tt.sendErr == nil {
				deauth, ok := h.sentOne().(*frame.DeauthFrame)
				require.True(t, ok)
				assert.Equal(t, domain.ReasonLeavingNetworkDeauth, deauth.Reason)
				assert.Equal(t, apAddr, deauth.Addr1)
			}
		})
	}
}

func TestDeauthenticateRequest_IdleIsNoop(t *testing.T) {
	h := newHarness(t)
	h.join(openBss(), domain.PhyErp)
	h.sme.take()

	for i := 0; i < 2; i++ {
		require.NoError(t, h.sta.HandleMlmeMsg(domain.DeauthenticateRequest{PeerSta: apAddr, ReasonCode: domain.ReasonUnspecified}))
	}
	assert.Empty(t, h.sme.take())
	assert.Empty(t, h.dev.SentFrames())
	assert.Equal(t, domain.StateIdle, h.sta.State())
}

func TestBeacon_TimRequestsBufferedFrames(t *testing.T) {
	h := newHarness(t)
	h.connect(openBss(), domain.PhyErp, 5)

	h.rxBeacon(-40, 6)
	assert.Empty(t, h.sent())

	h.rxBeacon(-40, 2, 5)
	poll, ok := h.sentOne().(*frame.PsPollFrame)
	require.True(t, ok)
	assert.Equal(t, uint16(5), poll.Aid)
	assert.Equal(t, apAddr, poll.Addr1)
	assert.Equal(t, staAddr, poll.Addr2)
}

func TestBeacon_IgnoredBeforeAssociation(t *testing.T) {
	h := newHarness(t)
	h.join(openBss(), domain.PhyErp)

	h.rxBeacon(-30, 0, 1, 2, 3)

	assert.Empty(t, h.dev.SentFrames())
	assert.Zero(t, h.sta.Stats().RssiSamples)
}

func TestData_DeliveredToNetworkStack(t *testing.T) {
	h := newHarness(t)
	h.connect(openBss(), domain.PhyErp, 5)

	payload := []byte("hello station")
	h.rxData(staAddr, false, payload)

	delivered := h.dev.DeliveredEthernet()
	require.Len(t, delivered, 1)
	eth := delivered[0]
	assert.Equal(t, staAddr[:], eth[0:6])
	assert.Equal(t, hostAddr[:], eth[6:12])
	assert.Equal(t, []byte{0x08, 0x00}, eth[12:14])
	assert.Equal(t, payload, eth[14:14+len(payload)])
	assert.Equal(t, uint64(1), h.sta.Stats().Data.In)
	assert.Empty(t, h.dev.SentFrames())
}

func TestData_MoreDataPollsForUnicastOnly(t *testing.T) {
	h := newHarness(t)
	h.connect(openBss(), domain.PhyErp, 5)

	h.rxData(domain.BroadcastAddr, true, []byte("group"))
	assert.Empty(t, h.sent())

	h.rxData(staAddr, true, []byte("unicast"))
	poll, ok := h.sentOne().(*frame.PsPollFrame)
	require.True(t, ok)
	assert.Equal(t, uint16(5), poll.Aid)
	assert.Len(t, h.dev.DeliveredEthernet(), 2)
}

func TestData_Dropped(t *testing.T) {
	t.Run("before association", func(t *testing.T) {
		h := newHarness(t)
		h.join(openBss(), domain.PhyErp)
		h.authenticate()

		h.rxData(staAddr, false, []byte("early"))
		assert.Empty(t, h.dev.DeliveredEthernet())
		assert.Equal(t, uint64(1), h.sta.Stats().Data.Drop)
	})

	t.Run("other station", func(t *testing.T) {
		h := newHarness(t)
		h.connect(openBss(), domain.PhyErp, 5)

		h.rxData(domain.MustParseMAC("02:00:00:00:00:99"), false, []byte("not ours"))
		assert.Empty(t, h.dev.DeliveredEthernet())
		assert.Equal(t, uint64(1), h.sta.Stats().Data.Drop)
	})
}

func TestNullData_KeepAlive(t *testing.T) {
	h := newHarness(t)
	h.connect(openBss(), domain.PhyErp, 5)

	h.rxRssi(-45, func() (*frame.Buffer, error) {
		a := frame.Addressing{Dst: staAddr, Src: apAddr, Bssid: apAddr}
		return frame.WriteNullDataFrame(h.apPool, a, frame.DataFields{FromDS: true})
	})

	null, ok := h.sentOne().(*frame.NullDataFrame)
	require.True(t, ok)
	assert.False(t, null.PowerMgmt())
	assert.True(t, null.ToDS())
	assert.Equal(t, apAddr, null.Addr1)
	assert.Equal(t, 1, h.sta.Stats().RssiSamples)
}

func TestForeignBssIgnored(t *testing.T) {
	h := newHarness(t)
	h.connect(openBss(), domain.PhyErp, 5)

	h.rx(func() (*frame.Buffer, error) {
		a := frame.Addressing{Dst: staAddr, Src: otherAP, Bssid: otherAP}
		return frame.WriteDeauthFrame(h.apPool, a, domain.ReasonUnspecified)
	})

	assert.Equal(t, domain.StateAssociated, h.sta.State())
	assert.Empty(t, h.sme.take())
	assert.Equal(t, uint64(1), h.sta.Stats().Mgmt.Drop)
}

func TestMalformedFrameCounted(t *testing.T) {
	h := newHarness(t)

	h.sta.HandleWlanFrame([]byte{0x80}, domain.RxInfo{})
	h.sta.HandleWlanFrame(nil, domain.RxInfo{})

	assert.Equal(t, uint64(2), h.sta.Stats().Mgmt.Drop)
	assert.Equal(t, domain.StateIdle, h.sta.State())
}

func TestAddBaRequest_Accepted(t *testing.T) {
	tests := []struct {
		offered uint16
		want    uint16
	}{
		{128, 64},
		{0, 64},
		{32, 32},
		{64, 64},
	}
	for _, tt := range tests {
		h := newHarness(t)
		h.connect(openBss(), domain.PhyErp, 5)

		h.rx(func() (*frame.Buffer, error) {
			params := frame.BlockAckParams{Immediate: true, Tid: 3, BufferSize: tt.offered}
			return frame.WriteAddBaReqFrame(h.apPool, h.fromAP(), 7, params, 500)
		})

		resp, ok := h.sentOne().(*frame.AddBaRespFrame)
		require.True(t, ok)
		assert.Equal(t, uint8(7), resp.DialogToken)
		assert.Equal(t, domain.StatusSuccess, resp.Status)
		assert.Equal(t, uint8(3), resp.Params.Tid)
		assert.Equal(t, tt.want, resp.Params.BufferSize, "offered %d", tt.offered)
		assert.Equal(t, uint16(500), resp.Timeout)
	}
}

func TestAddBaResponse_NotAnswered(t *testing.T) {
	h := newHarness(t)
	h.connect(openBss(), domain.PhyErp, 5)

	h.rx(func() (*frame.Buffer, error) {
		params := frame.BlockAckParams{Immediate: true, BufferSize: 64}
		return frame.WriteAddBaRespFrame(h.apPool, h.fromAP(), 1, domain.StatusSuccess, params, 0)
	})

	assert.Empty(t, h.dev.SentFrames())
	assert.Equal(t, domain.StateAssociated, h.sta.State())
}

func TestSetKeys(t *testing.T) {
	h := newHarness(t)
	keys := []domain.KeyConfig{
		{KeyType: domain.KeyPairwise, KeyIndex: 0, PeerAddr: apAddr, Key: make([]byte, 16)},
		{KeyType: domain.KeyGroup, KeyIndex: 1, Key: make([]byte, 16)},
	}

	require.NoError(t, h.sta.HandleMlmeMsg(domain.SetKeysRequest{Keys: keys}))
	assert.Equal(t, []domain.MlmeMsg{domain.SetKeysConfirm{Installed: 2}}, h.sme.take())
	assert.Len(t, h.dev.Keys, 2)

	h.dev.SetKeyErr = errors.New("no key slot")
	err := h.sta.HandleMlmeMsg(domain.SetKeysRequest{Keys: keys[1:]})
	assert.ErrorIs(t, err, domain.ErrDeviceIO)
	assert.Equal(t, []domain.MlmeMsg{domain.SetKeysConfirm{Failed: []uint8{1}}}, h.sme.take())
}

func TestEapolRequest(t *testing.T) {
	h := newHarness(t)
	h.connect(rsnBss(), domain.PhyErp, 1)

	m := eapolKeyM1()
	require.NoError(t, h.sta.HandleMlmeMsg(domain.EapolRequest{Src: staAddr, Dst: apAddr, Data: m}))

	sent := h.dev.SentFrames()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.TxFavorReliability, sent[0].Flags)
	data, ok := h.sentOne().(*frame.DataFrame)
	require.True(t, ok)
	assert.True(t, data.IsEapol())
	assert.Equal(t, m, data.Eapol)
	assert.Equal(t, apAddr, data.Addr1)
	assert.Equal(t, staAddr, data.Src())
	assert.Equal(t, []domain.MlmeMsg{domain.EapolConfirm{ResultCode: domain.EapolResultSuccess}}, h.sme.take())
	assert.Equal(t, uint64(1), h.sta.Stats().Eapol.Out)
}

func TestEapolRequest_NotAssociated(t *testing.T) {
	h := newHarness(t)
	h.join(rsnBss(), domain.PhyErp)
	h.sme.take()

	err := h.sta.HandleMlmeMsg(domain.EapolRequest{Src: staAddr, Dst: apAddr, Data: eapolKeyM1()})
	assert.ErrorIs(t, err, domain.ErrBadState)
	assert.Equal(t, []domain.MlmeMsg{domain.EapolConfirm{ResultCode: domain.EapolResultTransmissionFailure}}, h.sme.take())
	assert.Empty(t, h.dev.SentFrames())
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	h.connect(openBss(), domain.PhyErp, 5)
	h.rxBeacon(-40)
	h.rxBeacon(-60)

	st := h.sta.Stats()
	assert.Equal(t, domain.StateAssociated, st.State)
	assert.Equal(t, domain.PortOpen, st.Port)
	assert.Equal(t, int8(-50), st.RssiDbm)
	assert.Equal(t, 2, st.RssiSamples)
	// Auth, assoc response and two beacons.
	assert.Equal(t, uint64(4), st.Mgmt.In)
	// Auth and assoc request.
	assert.Equal(t, uint64(2), st.Mgmt.Out)
	// Join, authenticate and associate confirms.
	assert.Equal(t, uint64(3), st.SmeMessages)
}
