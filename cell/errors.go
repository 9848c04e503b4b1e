package cell

import "errors"

var (
	// ErrNotInitialized is returned when an operation is attempted before
	// the cellular subsystem has been brought up.
	ErrNotInitialized = errors.New("cell: not initialized")

	// ErrInvalidParameter is returned when a handle does not resolve to a
	// known device instance or a required argument is missing.
	ErrInvalidParameter = errors.New("cell: invalid parameter")

	// ErrNotRegistered is returned when an operation requires network
	// registration and the module is not currently attached.
	ErrNotRegistered = errors.New("cell: not registered")

	// ErrAT is returned when an AT command could not be completed. The
	// underlying transport error is attached to the chain unchanged.
	ErrAT = errors.New("cell: AT command failed")

	// ErrValueOutOfRange is returned when a derived computation is
	// undefined for the stored values, for example an SNR denominator
	// that is not positive.
	ErrValueOutOfRange = errors.New("cell: value out of range")

	// ErrUnknown is returned for unexpected decode failures, for example
	// a module timestamp that cannot be parsed.
	ErrUnknown = errors.New("cell: unknown error")

	// ErrNoDialer is returned when an instance is added without a Dialer.
	ErrNoDialer = errors.New("cell: no dialer configured")
)
