package domain

import "fmt"

// WlanState is the client association lifecycle state.
type WlanState int

const (
	// StateIdle means no authentication with any BSS.
	StateIdle WlanState = iota
	// StateAuthenticating means an authentication frame was sent and a response is pending.
	StateAuthenticating
	// StateAuthenticated means open-system authentication completed.
	StateAuthenticated
	// StateAssociated means the BSS accepted our association request.
	StateAssociated
)

func (s WlanState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateAssociated:
		return "associated"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ControlledPortState gates non-EAPOL data traffic (802.1X).
type ControlledPortState int

const (
	PortBlocked ControlledPortState = iota
	PortOpen
)

func (p ControlledPortState) String() string {
	if p == PortOpen {
		return "open"
	}
	return "blocked"
}

// LinkStatus is what the device reports to the network stack.
type LinkStatus int

const (
	LinkDown LinkStatus = iota
	LinkUp
)

func (l LinkStatus) String() string {
	if l == LinkUp {
		return "up"
	}
	return "down"
}
