package ie

import (
	"fmt"

	"github.com/google/gopacket/layers"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

// maxSupportedRates is the most rates the Supported Rates element carries;
// the rest go into Extended Supported Rates.
const maxSupportedRates = 8

// ParseRates decodes a Supported Rates or Extended Supported Rates body.
func ParseRates(b []byte) ([]domain.SupportedRate, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty rates element", ErrMalformedIE)
	}
	out := make([]domain.SupportedRate, len(b))
	for i, r := range b {
		out[i] = domain.SupportedRate(r)
	}
	return out, nil
}

// RatesElements encodes rates as a Supported Rates element followed, when
// needed, by an Extended Supported Rates element.
func RatesElements(rates []domain.SupportedRate) []*layers.Dot11InformationElement {
	raw := make([]byte, len(rates))
	for i, r := range rates {
		raw[i] = byte(r)
	}
	if len(raw) <= maxSupportedRates {
		return []*layers.Dot11InformationElement{Element(TagSupportedRates, raw)}
	}
	return []*layers.Dot11InformationElement{
		Element(TagSupportedRates, raw[:maxSupportedRates]),
		Element(TagExtendedRates, raw[maxSupportedRates:]),
	}
}
