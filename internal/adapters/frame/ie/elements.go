package ie

import (
	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

// Elements is the subset of a frame's elements the station acts on.
type Elements struct {
	SSID    string
	HasSSID bool
	// Rates merges Supported Rates and Extended Supported Rates.
	Rates   []domain.SupportedRate
	Channel uint8
	TIM     *TIM
	RSNE    []byte
	HtCap   *domain.HtCapabilities
	HtOp    *domain.HtOperation
	VhtCap  *domain.VhtCapabilities
	VhtOp   *domain.VhtOperation
}

// ParseElements walks data and decodes every element the station knows.
// Unknown elements are skipped; a known element with a bad body is an error.
func ParseElements(data []byte) (Elements, error) {
	var e Elements
	err := Iterate(data, func(id int, body []byte) error {
		var err error
		switch id {
		case TagSSID:
			e.SSID, e.HasSSID = safeString(body), true
		case TagSupportedRates, TagExtendedRates:
			var rs []domain.SupportedRate
			if rs, err = ParseRates(body); err == nil {
				e.Rates = append(e.Rates, rs...)
			}
		case TagDSParameterSet:
			if len(body) >= 1 {
				e.Channel = body[0]
			}
		case TagTIM:
			e.TIM, err = ParseTIM(body)
		case TagRSN:
			e.RSNE = body
		case TagHTCapabilities:
			e.HtCap, err = ParseHtCapabilities(body)
		case TagHTOperation:
			e.HtOp, err = ParseHtOperation(body)
		case TagVHTCapabilities:
			e.VhtCap, err = ParseVhtCapabilities(body)
		case TagVHTOperation:
			e.VhtOp, err = ParseVhtOperation(body)
		}
		return err
	})
	return e, err
}

func safeString(b []byte) string {
	out := make([]rune, 0, len(b))
	for _, c := range b {
		if c >= 0x20 && c < 0x7f {
			out = append(out, rune(c))
		} else {
			out = append(out, '?')
		}
	}
	return string(out)
}
