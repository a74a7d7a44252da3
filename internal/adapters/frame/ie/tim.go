package ie

import "fmt"

// TIM is a decoded Traffic Indication Map element.
type TIM struct {
	DtimCount     uint8
	DtimPeriod    uint8
	BitmapControl uint8
	PartialBitmap []byte
}

// ParseTIM decodes a TIM element body.
func ParseTIM(b []byte) (*TIM, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: tim length %d", ErrMalformedIE, len(b))
	}
	return &TIM{
		DtimCount:     b[0],
		DtimPeriod:    b[1],
		BitmapControl: b[2],
		PartialBitmap: b[3:],
	}, nil
}

// GroupTraffic reports whether the AP buffered group-addressed frames.
func (t *TIM) GroupTraffic() bool {
	return t.BitmapControl&0x1 != 0
}

// HasBufferedUnicast reports whether the AP holds unicast frames for aid.
func (t *TIM) HasBufferedUnicast(aid uint16) bool {
	// Bitmap offset N1 is in units of two octets, stored in bits 1..7.
	n1 := int(t.BitmapControl & 0xfe)
	octet := int(aid / 8)
	if octet < n1 || octet >= n1+len(t.PartialBitmap) {
		return false
	}
	return t.PartialBitmap[octet-n1]&(1<<(aid%8)) != 0
}

// EncodeTIM builds a TIM body announcing traffic for the given AIDs.
func EncodeTIM(dtimCount, dtimPeriod uint8, aids ...uint16) []byte {
	var bitmap [251]byte
	lo, hi := len(bitmap), -1
	for _, aid := range aids {
		octet := int(aid / 8)
		if octet >= len(bitmap) {
			continue
		}
		bitmap[octet] |= 1 << (aid % 8)
		if octet < lo {
			lo = octet
		}
		if octet > hi {
			hi = octet
		}
	}
	if hi < 0 {
		return []byte{dtimCount, dtimPeriod, 0, 0}
	}
	n1 := lo &^ 1
	out := []byte{dtimCount, dtimPeriod, uint8(n1)}
	return append(out, bitmap[n1:hi+1]...)
}
