package station

import (
	"fmt"

	"github.com/lcalzada-xor/wsta/internal/adapters/frame"
	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

// HandleEthFrame encapsulates an outbound Ethernet II frame and sends it to
// the AP. ErrShouldWait means the radio is away from the home channel and
// the caller may retry.
func (s *Station) HandleEthFrame(raw []byte) error {
	if s.state != domain.StateAssociated {
		s.countDrop(domain.CategoryData, "not_associated")
		return fmt.Errorf("ethernet frame in state %v: %w", s.state, domain.ErrBadState)
	}
	if s.offChannel {
		s.countDrop(domain.CategoryData, "off_channel")
		return fmt.Errorf("ethernet frame while off-channel: %w", domain.ErrShouldWait)
	}

	eth, payload, err := frame.DecodeEthernet(raw)
	if err != nil {
		s.countDrop(domain.CategoryData, string(domain.KindOf(err)))
		return err
	}

	a := frame.Addressing{Dst: eth.Dst, Src: eth.Src, Bssid: s.bssid(), Seq: s.seq.Next(s.bssid())}
	b, err := frame.WriteDataFrame(s.pool, a, s.dataFields(), eth.EtherType, payload)
	if err != nil {
		s.countDrop(domain.CategoryData, string(domain.KindOf(err)))
		return err
	}
	return s.transmit(b, domain.CategoryData, s.txFlags())
}

// transmit sends b and releases it.
func (s *Station) transmit(b *frame.Buffer, c domain.FrameCategory, flags domain.TxFlags) error {
	defer b.Release()
	if err := s.dev.SendFrame(b.Bytes(), flags); err != nil {
		s.countDrop(c, string(domain.KindDeviceIO))
		return domain.DeviceError("send frame", err)
	}
	s.countOut(c)
	return nil
}

// protected reports whether data frames are encrypted: the BSS uses RSN and
// the handshake opened the port.
func (s *Station) protected() bool {
	return s.join != nil && s.join.Bss.IsRsn() && s.port == domain.PortOpen
}

func (s *Station) txFlags() domain.TxFlags {
	if s.protected() {
		return domain.TxProtected
	}
	return 0
}

func (s *Station) dataFields() frame.DataFields {
	f := frame.DataFields{Protected: s.protected()}
	if s.assoc != nil && s.assoc.IsQos() {
		f.Qos = true
	}
	return f
}

// mgmtAddressing addresses a management frame to the joined BSS.
func (s *Station) mgmtAddressing() frame.Addressing {
	bssid := s.bssid()
	return frame.Addressing{Dst: bssid, Src: s.addr, Bssid: bssid, Seq: s.seq.Next(bssid)}
}

func (s *Station) sendDeauthFrame(reason domain.ReasonCode) error {
	b, err := frame.WriteDeauthFrame(s.pool, s.mgmtAddressing(), reason)
	if err != nil {
		s.countDrop(domain.CategoryMgmt, string(domain.KindOf(err)))
		return err
	}
	return s.transmit(b, domain.CategoryMgmt, domain.TxFavorReliability)
}

func (s *Station) sendAddBaRequest() error {
	params := frame.BlockAckParams{Amsdu: true, Immediate: true, Tid: 0, BufferSize: maxAddBaBuffer}
	b, err := frame.WriteAddBaReqFrame(s.pool, s.mgmtAddressing(), addBaDialogToken, params, 0)
	if err != nil {
		s.countDrop(domain.CategoryMgmt, string(domain.KindOf(err)))
		return err
	}
	return s.transmit(b, domain.CategoryMgmt, 0)
}

// sendPsPoll asks the AP for one buffered frame. Failures are logged only.
func (s *Station) sendPsPoll() {
	if s.assoc == nil {
		return
	}
	b, err := frame.WritePsPollFrame(s.pool, s.assoc.Aid, s.bssid(), s.addr)
	if err != nil {
		s.countDrop(domain.CategoryCtrl, string(domain.KindOf(err)))
		s.debugf("PS-Poll not built: %v", err)
		return
	}
	if err := s.transmit(b, domain.CategoryCtrl, 0); err != nil {
		s.debugf("PS-Poll not sent: %v", err)
	}
}

// sendNullData sends a Null data frame to the AP with the given power
// management bit.
func (s *Station) sendNullData(powerSave bool) error {
	bssid := s.bssid()
	a := frame.Addressing{Dst: bssid, Src: s.addr, Bssid: bssid, Seq: s.seq.Next(bssid)}
	f := frame.DataFields{PowerMgmt: powerSave}
	b, err := frame.WriteNullDataFrame(s.pool, a, f)
	if err != nil {
		s.countDrop(domain.CategoryData, string(domain.KindOf(err)))
		return err
	}
	return s.transmit(b, domain.CategoryData, 0)
}
