package ie

import (
	"encoding/binary"
	"fmt"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

const (
	htCapLen = 26
	htOpLen  = 22
)

// HT capability info bits.
const (
	htLdpc            = 1 << 0
	htChanWidth       = 1 << 1
	htSmpsShift       = 2
	htGreenfield      = 1 << 4
	htSgi20           = 1 << 5
	htSgi40           = 1 << 6
	htTxStbc          = 1 << 7
	htRxStbcShift     = 8
	htDelayedBA       = 1 << 10
	htMaxAmsdu        = 1 << 11
	htDsssCck40       = 1 << 12
	htFortyIntolerant = 1 << 14
	htLsigTxop        = 1 << 15
)

// ParseHtCapabilities decodes an HT Capabilities element body.
func ParseHtCapabilities(b []byte) (*domain.HtCapabilities, error) {
	if len(b) != htCapLen {
		return nil, fmt.Errorf("%w: ht capabilities length %d", ErrMalformedIE, len(b))
	}
	info := binary.LittleEndian.Uint16(b[0:2])
	c := &domain.HtCapabilities{
		LDPC:               info&htLdpc != 0,
		ChanWidth40:        info&htChanWidth != 0,
		SmPowerSave:        uint8(info>>htSmpsShift) & 0x3,
		Greenfield:         info&htGreenfield != 0,
		SGI20:              info&htSgi20 != 0,
		SGI40:              info&htSgi40 != 0,
		TxStbc:             info&htTxStbc != 0,
		RxStbc:             uint8(info>>htRxStbcShift) & 0x3,
		DelayedBlockAck:    info&htDelayedBA != 0,
		MaxAmsdu7935:       info&htMaxAmsdu != 0,
		DsssCck40:          info&htDsssCck40 != 0,
		FortyMhzIntolerant: info&htFortyIntolerant != 0,
		LsigTxopProtection: info&htLsigTxop != 0,
		AmpduParams:        b[2],
		ExtCapabilities:    binary.LittleEndian.Uint16(b[19:21]),
		TxBeamforming:      binary.LittleEndian.Uint32(b[21:25]),
		Asel:               b[25],
	}
	copy(c.McsSet[:], b[3:19])
	return c, nil
}

// EncodeHtCapabilities is the inverse of ParseHtCapabilities.
func EncodeHtCapabilities(c domain.HtCapabilities) []byte {
	var info uint16
	setBit(&info, htLdpc, c.LDPC)
	setBit(&info, htChanWidth, c.ChanWidth40)
	info |= uint16(c.SmPowerSave&0x3) << htSmpsShift
	setBit(&info, htGreenfield, c.Greenfield)
	setBit(&info, htSgi20, c.SGI20)
	setBit(&info, htSgi40, c.SGI40)
	setBit(&info, htTxStbc, c.TxStbc)
	info |= uint16(c.RxStbc&0x3) << htRxStbcShift
	setBit(&info, htDelayedBA, c.DelayedBlockAck)
	setBit(&info, htMaxAmsdu, c.MaxAmsdu7935)
	setBit(&info, htDsssCck40, c.DsssCck40)
	setBit(&info, htFortyIntolerant, c.FortyMhzIntolerant)
	setBit(&info, htLsigTxop, c.LsigTxopProtection)

	b := make([]byte, htCapLen)
	binary.LittleEndian.PutUint16(b[0:2], info)
	b[2] = c.AmpduParams
	copy(b[3:19], c.McsSet[:])
	binary.LittleEndian.PutUint16(b[19:21], c.ExtCapabilities)
	binary.LittleEndian.PutUint32(b[21:25], c.TxBeamforming)
	b[25] = c.Asel
	return b
}

// ParseHtOperation decodes an HT Operation element body.
func ParseHtOperation(b []byte) (*domain.HtOperation, error) {
	if len(b) != htOpLen {
		return nil, fmt.Errorf("%w: ht operation length %d", ErrMalformedIE, len(b))
	}
	op := &domain.HtOperation{
		PrimaryChannel:  b[0],
		SecondaryOffset: b[1] & 0x3,
		StaChanWidthAny: b[1]&0x4 != 0,
	}
	copy(op.Info[:], b[1:6])
	copy(op.BasicMcsSet[:], b[6:22])
	return op, nil
}

// EncodeHtOperation is the inverse of ParseHtOperation.
func EncodeHtOperation(op domain.HtOperation) []byte {
	b := make([]byte, htOpLen)
	b[0] = op.PrimaryChannel
	copy(b[1:6], op.Info[:])
	b[1] = b[1]&^0x7 | op.SecondaryOffset&0x3
	if op.StaChanWidthAny {
		b[1] |= 0x4
	}
	copy(b[6:22], op.BasicMcsSet[:])
	return b
}

func setBit(v *uint16, mask uint16, on bool) {
	if on {
		*v |= mask
	}
}
