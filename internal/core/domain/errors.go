package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the station and its adapters.
var (
	// ErrMalformed is returned for inbound frames that fail structural validation.
	ErrMalformed = errors.New("malformed frame")
	// ErrResourceExhausted is returned when no transmit buffer is available.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrIncompatibleCapabilities is the parent of every negotiation failure.
	ErrIncompatibleCapabilities = errors.New("incompatible capabilities")
	// ErrDeviceIO wraps errors reported by the radio.
	ErrDeviceIO = errors.New("device i/o error")
	// ErrInternal is returned by the timer subsystem.
	ErrInternal = errors.New("internal error")
	// ErrShouldWait is a transient refusal; the caller may retry.
	ErrShouldWait = errors.New("should wait")
	// ErrNotSupported is returned by devices for operations they cannot perform.
	ErrNotSupported = errors.New("not supported")
	// ErrBadState is returned when a request does not apply to the current state.
	ErrBadState = errors.New("bad state")
)

// ErrRatesMismatch is a negotiation failure over the basic rate set.
var ErrRatesMismatch = fmt.Errorf("%w: basic rates mismatch", ErrIncompatibleCapabilities)

// ErrCapabilitiesMismatch is any other negotiation failure.
var ErrCapabilitiesMismatch = fmt.Errorf("%w: capabilities mismatch", ErrIncompatibleCapabilities)

// ErrorKind classifies an error for metrics and logs.
type ErrorKind string

const (
	KindNone                     ErrorKind = ""
	KindMalformed                ErrorKind = "malformed"
	KindResourceExhausted        ErrorKind = "resource_exhausted"
	KindIncompatibleCapabilities ErrorKind = "incompatible_capabilities"
	KindDeviceIO                 ErrorKind = "device_io"
	KindInternal                 ErrorKind = "internal"
	KindShouldWait               ErrorKind = "should_wait"
	KindOther                    ErrorKind = "other"
)

// KindOf maps err onto the taxonomy.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	case errors.Is(err, ErrResourceExhausted):
		return KindResourceExhausted
	case errors.Is(err, ErrIncompatibleCapabilities):
		return KindIncompatibleCapabilities
	case errors.Is(err, ErrDeviceIO):
		return KindDeviceIO
	case errors.Is(err, ErrInternal):
		return KindInternal
	case errors.Is(err, ErrShouldWait):
		return KindShouldWait
	default:
		return KindOther
	}
}

// DeviceError tags err as a device failure.
func DeviceError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDeviceIO) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrDeviceIO, err)
}
