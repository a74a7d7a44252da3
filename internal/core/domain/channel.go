package domain

import (
	"fmt"
	"time"
)

// TimeUnit is the 802.11 time unit (1024 microseconds).
const TimeUnit = 1024 * time.Microsecond

// TUs converts a count of time units into a duration.
func TUs(n uint32) time.Duration {
	return time.Duration(n) * TimeUnit
}

// Cbw is the channel bandwidth of a channel.
type Cbw int

const (
	Cbw20 Cbw = iota
	Cbw40Above
	Cbw40Below
	Cbw80
	Cbw160
	Cbw80P80
)

func (c Cbw) String() string {
	switch c {
	case Cbw20:
		return "20"
	case Cbw40Above:
		return "40+"
	case Cbw40Below:
		return "40-"
	case Cbw80:
		return "80"
	case Cbw160:
		return "160"
	case Cbw80P80:
		return "80+80"
	default:
		return fmt.Sprintf("cbw(%d)", int(c))
	}
}

// Band identifies the frequency band a channel lives in.
type Band int

const (
	Band2GHz Band = iota
	Band5GHz
)

func (b Band) String() string {
	if b == Band5GHz {
		return "5GHz"
	}
	return "2.4GHz"
}

// Channel describes the operating channel of a BSS.
type Channel struct {
	Primary uint8 `json:"primary"`
	Cbw     Cbw   `json:"cbw"`
	// Secondary80 is only meaningful for Cbw80P80.
	Secondary80 uint8 `json:"secondary80,omitempty"`
}

// Band returns the band of the primary channel.
func (c Channel) Band() Band {
	if c.Primary <= 14 {
		return Band2GHz
	}
	return Band5GHz
}

// Is40OrWider reports whether the channel occupies at least 40MHz.
func (c Channel) Is40OrWider() bool {
	return c.Cbw != Cbw20
}

// Is160Class reports whether the channel is 160MHz or 80+80MHz.
func (c Channel) Is160Class() bool {
	return c.Cbw == Cbw160 || c.Cbw == Cbw80P80
}

func (c Channel) String() string {
	if c.Cbw == Cbw80P80 {
		return fmt.Sprintf("%d%s/%d", c.Primary, c.Cbw, c.Secondary80)
	}
	return fmt.Sprintf("%d(%s)", c.Primary, c.Cbw)
}

// Phy is a PHY generation.
type Phy int

const (
	PhyDsss Phy = iota
	PhyHr
	PhyOfdm
	PhyErp
	PhyHt
	PhyVht
)

func (p Phy) String() string {
	switch p {
	case PhyDsss:
		return "dsss"
	case PhyHr:
		return "hr"
	case PhyOfdm:
		return "ofdm"
	case PhyErp:
		return "erp"
	case PhyHt:
		return "ht"
	case PhyVht:
		return "vht"
	default:
		return fmt.Sprintf("phy(%d)", int(p))
	}
}

// IsLegacy reports whether p predates HT.
func (p Phy) IsLegacy() bool {
	return p < PhyHt
}
