package domain

import "fmt"

// AuthType is the authentication algorithm requested by the SME.
type AuthType int

const (
	AuthOpenSystem AuthType = iota
	AuthSharedKey
	AuthFastBssTransition
	AuthSae
)

func (a AuthType) String() string {
	switch a {
	case AuthOpenSystem:
		return "open"
	case AuthSharedKey:
		return "shared-key"
	case AuthFastBssTransition:
		return "ft"
	case AuthSae:
		return "sae"
	default:
		return fmt.Sprintf("auth(%d)", int(a))
	}
}

// AuthenticateResultCode is carried by AuthenticateConfirm.
type AuthenticateResultCode int

const (
	AuthResultSuccess AuthenticateResultCode = iota
	AuthResultRefused
	AuthResultAntiCloggingTokenRequired
	AuthResultFiniteCyclicGroupNotSupported
	AuthResultAuthenticationRejected
	AuthResultAuthFailureTimeout
)

var authResultNames = [...]string{
	"SUCCESS",
	"REFUSED",
	"ANTI_CLOGGING_TOKEN_REQUIRED",
	"FINITE_CYCLIC_GROUP_NOT_SUPPORTED",
	"AUTHENTICATION_REJECTED",
	"AUTH_FAILURE_TIMEOUT",
}

func (c AuthenticateResultCode) String() string {
	if int(c) < len(authResultNames) {
		return authResultNames[c]
	}
	return fmt.Sprintf("AUTH_RESULT(%d)", int(c))
}

// AssociateResultCode is carried by AssociateConfirm.
type AssociateResultCode int

const (
	AssocResultSuccess AssociateResultCode = iota
	AssocResultRefusedReasonUnspecified
	AssocResultRefusedNotAuthenticated
	AssocResultRefusedCapabilitiesMismatch
	AssocResultRefusedExternalReason
	AssocResultRefusedApOutOfMemory
	AssocResultRefusedBasicRatesMismatch
	AssocResultRejectedEmergencyServicesNotSupported
	AssocResultRefusedTemporarily
)

var assocResultNames = [...]string{
	"SUCCESS",
	"REFUSED_REASON_UNSPECIFIED",
	"REFUSED_NOT_AUTHENTICATED",
	"REFUSED_CAPABILITIES_MISMATCH",
	"REFUSED_EXTERNAL_REASON",
	"REFUSED_AP_OUT_OF_MEMORY",
	"REFUSED_BASIC_RATES_MISMATCH",
	"REJECTED_EMERGENCY_SERVICES_NOT_SUPPORTED",
	"REFUSED_TEMPORARILY",
}

func (c AssociateResultCode) String() string {
	if int(c) < len(assocResultNames) {
		return assocResultNames[c]
	}
	return fmt.Sprintf("ASSOC_RESULT(%d)", int(c))
}

// JoinResultCode is carried by JoinConfirm.
type JoinResultCode int

const (
	JoinResultSuccess JoinResultCode = iota
	JoinResultFailureTimeout
	// JoinResultRefusedBadState: a join was requested while associated.
	JoinResultRefusedBadState
)

func (c JoinResultCode) String() string {
	switch c {
	case JoinResultSuccess:
		return "SUCCESS"
	case JoinResultRefusedBadState:
		return "JOIN_REFUSED_BAD_STATE"
	}
	return "JOIN_FAILURE_TIMEOUT"
}

// EapolResultCode is carried by EapolConfirm.
type EapolResultCode int

const (
	EapolResultSuccess EapolResultCode = iota
	EapolResultTransmissionFailure
)

func (c EapolResultCode) String() string {
	if c == EapolResultSuccess {
		return "SUCCESS"
	}
	return "TRANSMISSION_FAILURE"
}

// ReasonCode is an 802.11 reason code (9.4.1.7).
type ReasonCode uint16

const (
	ReasonUnspecified                 ReasonCode = 1
	ReasonInvalidAuthentication       ReasonCode = 2
	ReasonLeavingNetworkDeauth        ReasonCode = 3
	ReasonInactivity                  ReasonCode = 4
	ReasonNoMoreStas                  ReasonCode = 5
	ReasonInvalidClass2Frame          ReasonCode = 6
	ReasonInvalidClass3Frame          ReasonCode = 7
	ReasonLeavingNetworkDisassoc      ReasonCode = 8
	ReasonNotAuthenticated            ReasonCode = 9
	ReasonUnacceptablePowerCapability ReasonCode = 10
)

func (r ReasonCode) String() string {
	switch r {
	case ReasonUnspecified:
		return "UNSPECIFIED_REASON"
	case ReasonInvalidAuthentication:
		return "INVALID_AUTHENTICATION"
	case ReasonLeavingNetworkDeauth:
		return "LEAVING_NETWORK_DEAUTH"
	case ReasonInactivity:
		return "REASON_INACTIVITY"
	case ReasonNoMoreStas:
		return "NO_MORE_STAS"
	case ReasonInvalidClass2Frame:
		return "INVALID_CLASS2_FRAME"
	case ReasonInvalidClass3Frame:
		return "INVALID_CLASS3_FRAME"
	case ReasonLeavingNetworkDisassoc:
		return "LEAVING_NETWORK_DISASSOC"
	case ReasonNotAuthenticated:
		return "NOT_AUTHENTICATED"
	case ReasonUnacceptablePowerCapability:
		return "UNACCEPTABLE_POWER_CAPABILITY"
	default:
		return fmt.Sprintf("REASON(%d)", uint16(r))
	}
}

// StatusCode is an 802.11 status code (9.4.1.9).
type StatusCode uint16

const (
	StatusSuccess            StatusCode = 0
	StatusRefused            StatusCode = 1
	StatusUnsupportedAuthAlg StatusCode = 13
	StatusRefusedTemporarily StatusCode = 30
)
