package ie

import (
	"encoding/binary"
	"fmt"
)

// ieee80211OUI is 00-0F-AC, the OUI of suites defined by 802.11 itself.
var ieee80211OUI = [3]byte{0x00, 0x0f, 0xac}

// Suite is a cipher or AKM suite selector.
type Suite struct {
	OUI  [3]byte
	Type uint8
}

var cipherNames = map[uint8]string{
	1: "WEP-40", 2: "TKIP", 4: "CCMP", 5: "WEP-104",
	6: "BIP-CMAC-128", 8: "GCMP-128", 9: "GCMP-256", 10: "CCMP-256",
}

var akmNames = map[uint8]string{
	1: "802.1X", 2: "PSK", 3: "FT-802.1X", 4: "FT-PSK", 5: "802.1X-SHA256",
	6: "PSK-SHA256", 8: "SAE", 9: "FT-SAE", 18: "OWE",
}

func (s Suite) name(table map[uint8]string) string {
	if s.OUI != ieee80211OUI {
		return fmt.Sprintf("VENDOR(%02x%02x%02x:%d)", s.OUI[0], s.OUI[1], s.OUI[2], s.Type)
	}
	if n, ok := table[s.Type]; ok {
		return n
	}
	return fmt.Sprintf("UNKNOWN(%d)", s.Type)
}

// RSN is a parsed RSN element body. Fields the element omits are zero.
type RSN struct {
	Version      uint16
	GroupCipher  Suite
	Pairwise     []Suite
	AKM          []Suite
	Capabilities uint16
}

// GroupCipherName returns the group cipher, e.g. "CCMP".
func (r *RSN) GroupCipherName() string { return r.GroupCipher.name(cipherNames) }

// PairwiseNames returns the pairwise cipher names in element order.
func (r *RSN) PairwiseNames() []string { return names(r.Pairwise, cipherNames) }

// AKMNames returns the AKM suite names in element order.
func (r *RSN) AKMNames() []string { return names(r.AKM, akmNames) }

// MFPRequired reports the management frame protection required bit.
func (r *RSN) MFPRequired() bool { return r.Capabilities&0x0040 != 0 }

// MFPCapable reports the management frame protection capable bit.
func (r *RSN) MFPCapable() bool { return r.Capabilities&0x0080 != 0 }

func names(suites []Suite, table map[uint8]string) []string {
	out := make([]string, len(suites))
	for i, s := range suites {
		out[i] = s.name(table)
	}
	return out
}

// ParseRSN parses the body of an RSN element. Trailing fields may be
// omitted, but a suite count that runs past the element is malformed.
func ParseRSN(data []byte) (*RSN, error) {
	r := rsnReader{data: data}
	version, ok := r.u16()
	if !ok {
		return nil, fmt.Errorf("%w: rsn too short", ErrMalformedIE)
	}
	if version != 1 {
		return nil, fmt.Errorf("%w: rsn version %d", ErrMalformedIE, version)
	}
	rsn := &RSN{Version: version}

	if g, ok := r.suite(); ok {
		rsn.GroupCipher = g
	} else {
		return rsn, nil
	}

	var err error
	if rsn.Pairwise, err = r.suiteList(); err != nil {
		return nil, err
	}
	if rsn.AKM, err = r.suiteList(); err != nil {
		return nil, err
	}
	rsn.Capabilities, _ = r.u16()
	return rsn, nil
}

type rsnReader struct {
	data []byte
	off  int
}

func (r *rsnReader) u16() (uint16, bool) {
	if r.off+2 > len(r.data) {
		return 0, false
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v, true
}

func (r *rsnReader) suite() (Suite, bool) {
	if r.off+4 > len(r.data) {
		return Suite{}, false
	}
	var s Suite
	copy(s.OUI[:], r.data[r.off:r.off+3])
	s.Type = r.data[r.off+3]
	r.off += 4
	return s, true
}

// suiteList reads a count followed by that many suites. A missing count
// is an omitted field, not an error.
func (r *rsnReader) suiteList() ([]Suite, error) {
	count, ok := r.u16()
	if !ok {
		return nil, nil
	}
	if r.off+4*int(count) > len(r.data) {
		return nil, fmt.Errorf("%w: rsn suite count %d exceeds element", ErrMalformedIE, count)
	}
	out := make([]Suite, count)
	for i := range out {
		out[i], _ = r.suite()
	}
	return out, nil
}
