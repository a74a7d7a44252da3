package station

// rssiWindow is the number of samples the signal average spans.
const rssiWindow = 20

// movingAverage is a fixed-window mean of RSSI samples in dBm.
type movingAverage struct {
	samples [rssiWindow]int8
	next    int
	n       int
	sum     int
}

// Add records v, evicting the oldest sample once the window is full.
func (m *movingAverage) Add(v int8) {
	if m.n == rssiWindow {
		m.sum -= int(m.samples[m.next])
	} else {
		m.n++
	}
	m.samples[m.next] = v
	m.sum += int(v)
	m.next = (m.next + 1) % rssiWindow
}

// Avg returns the integer mean, 0 with no samples.
func (m *movingAverage) Avg() int8 {
	if m.n == 0 {
		return 0
	}
	return int8(m.sum / m.n)
}

// Len returns the number of samples in the window.
func (m *movingAverage) Len() int { return m.n }

func (m *movingAverage) Reset() { *m = movingAverage{} }
