package ie

import (
	"encoding/binary"
	"fmt"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

const (
	vhtCapLen = 12
	vhtOpLen  = 5

	// Bits 0..10 of the VHT capability info are decoded into fields,
	// the remainder travels in VhtCapabilities.Other.
	vhtDecodedMask = 0x7ff
)

// ParseVhtCapabilities decodes a VHT Capabilities element body.
func ParseVhtCapabilities(b []byte) (*domain.VhtCapabilities, error) {
	if len(b) != vhtCapLen {
		return nil, fmt.Errorf("%w: vht capabilities length %d", ErrMalformedIE, len(b))
	}
	info := binary.LittleEndian.Uint32(b[0:4])
	c := &domain.VhtCapabilities{
		MaxMpduLen:            uint8(info & 0x3),
		SupportedChanWidthSet: uint8(info>>2) & 0x3,
		RxLdpc:                info&(1<<4) != 0,
		SGI80:                 info&(1<<5) != 0,
		SGI160:                info&(1<<6) != 0,
		TxStbc:                info&(1<<7) != 0,
		RxStbc:                uint8(info>>8) & 0x7,
		Other:                 info &^ vhtDecodedMask,
	}
	copy(c.McsNss[:], b[4:12])
	return c, nil
}

// EncodeVhtCapabilities is the inverse of ParseVhtCapabilities.
func EncodeVhtCapabilities(c domain.VhtCapabilities) []byte {
	info := uint32(c.MaxMpduLen & 0x3)
	info |= uint32(c.SupportedChanWidthSet&0x3) << 2
	if c.RxLdpc {
		info |= 1 << 4
	}
	if c.SGI80 {
		info |= 1 << 5
	}
	if c.SGI160 {
		info |= 1 << 6
	}
	if c.TxStbc {
		info |= 1 << 7
	}
	info |= uint32(c.RxStbc&0x7) << 8
	info |= c.Other &^ vhtDecodedMask

	b := make([]byte, vhtCapLen)
	binary.LittleEndian.PutUint32(b[0:4], info)
	copy(b[4:12], c.McsNss[:])
	return b
}

// ParseVhtOperation decodes a VHT Operation element body.
func ParseVhtOperation(b []byte) (*domain.VhtOperation, error) {
	if len(b) != vhtOpLen {
		return nil, fmt.Errorf("%w: vht operation length %d", ErrMalformedIE, len(b))
	}
	return &domain.VhtOperation{
		ChannelWidth: b[0],
		Ccfs0:        b[1],
		Ccfs1:        b[2],
		BasicMcs:     binary.LittleEndian.Uint16(b[3:5]),
	}, nil
}

// EncodeVhtOperation is the inverse of ParseVhtOperation.
func EncodeVhtOperation(op domain.VhtOperation) []byte {
	b := []byte{op.ChannelWidth, op.Ccfs0, op.Ccfs1, 0, 0}
	binary.LittleEndian.PutUint16(b[3:5], op.BasicMcs)
	return b
}
