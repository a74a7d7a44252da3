package domain

import "fmt"

// SupportedRate is a rate in 500 kb/s units as carried in the Supported Rates
// element. The high bit flags a basic (mandatory) rate.
type SupportedRate uint8

const basicRateBit = 0x80

// Rate returns the rate value without the basic flag.
func (r SupportedRate) Rate() uint8 { return uint8(r) &^ basicRateBit }

// IsBasic reports whether the BSS requires this rate.
func (r SupportedRate) IsBasic() bool { return uint8(r)&basicRateBit != 0 }

// AsBasic returns r with the basic flag set.
func (r SupportedRate) AsBasic() SupportedRate { return r | basicRateBit }

// AsNonBasic returns r with the basic flag cleared.
func (r SupportedRate) AsNonBasic() SupportedRate { return SupportedRate(r.Rate()) }

func (r SupportedRate) String() string {
	s := fmt.Sprintf("%.1f", float32(r.Rate())*0.5)
	if r.IsBasic() {
		s += "*"
	}
	return s
}

// BasicRates returns the rates of rs flagged as basic.
func BasicRates(rs []SupportedRate) []SupportedRate {
	var out []SupportedRate
	for _, r := range rs {
		if r.IsBasic() {
			out = append(out, r)
		}
	}
	return out
}

// ContainsRate reports whether rs has a rate with the same value as r,
// ignoring the basic flag.
func ContainsRate(rs []SupportedRate, r SupportedRate) bool {
	for _, x := range rs {
		if x.Rate() == r.Rate() {
			return true
		}
	}
	return false
}
