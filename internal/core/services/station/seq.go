package station

import "github.com/lcalzada-xor/wsta/internal/core/domain"

// seqModulus is the range of the 12-bit sequence number field.
const seqModulus = 4096

// seqManager hands out sequence numbers per receiver address.
type seqManager struct {
	next map[domain.MacAddr]uint16
}

func newSeqManager() *seqManager {
	return &seqManager{next: make(map[domain.MacAddr]uint16)}
}

// Next returns the sequence number for the next frame sent to addr.
func (m *seqManager) Next(addr domain.MacAddr) uint16 {
	n := m.next[addr]
	m.next[addr] = (n + 1) % seqModulus
	return n
}
