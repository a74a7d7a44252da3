// Package ie reads and writes 802.11 information elements.
package ie

import (
	"errors"
	"fmt"

	"github.com/google/gopacket/layers"
)

// Element IDs used by the station.
const (
	TagSSID            = 0
	TagSupportedRates  = 1
	TagDSParameterSet  = 3
	TagTIM             = 5
	TagHTCapabilities  = 45
	TagRSN             = 48
	TagExtendedRates   = 50
	TagHTOperation     = 61
	TagVHTCapabilities = 191
	TagVHTOperation    = 192
	TagVendorSpecific  = 221 // 0xDD
)

// Errors
var (
	ErrMalformedIE = errors.New("malformed information element")
	ErrIENotFound  = errors.New("information element not found")
)

// Iterate calls fn for each element in data. Unlike a lenient scan it
// reports ErrMalformedIE when an element header or body runs past the end.
func Iterate(data []byte, fn func(id int, body []byte) error) error {
	offset := 0
	for offset < len(data) {
		if offset+2 > len(data) {
			return fmt.Errorf("%w: dangling header at offset %d", ErrMalformedIE, offset)
		}
		id := int(data[offset])
		length := int(data[offset+1])
		offset += 2
		if offset+length > len(data) {
			return fmt.Errorf("%w: element %d length %d exceeds %d remaining", ErrMalformedIE, id, length, len(data)-offset)
		}
		if err := fn(id, data[offset:offset+length]); err != nil {
			return err
		}
		offset += length
	}
	return nil
}

// FindIE returns the body of the first element with the given ID, or nil.
func FindIE(data []byte, targetID int) []byte {
	var result []byte
	_ = Iterate(data, func(id int, body []byte) error {
		if result == nil && id == targetID {
			result = body
		}
		return nil
	})
	return result
}

// Element builds a serializable element.
func Element(id int, body []byte) *layers.Dot11InformationElement {
	return &layers.Dot11InformationElement{
		ID:     layers.Dot11InformationElementID(id),
		Length: uint8(len(body)),
		Info:   body,
	}
}
