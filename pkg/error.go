package pkg

import "errors"

// Endpoint errors. These are the transport-level failures an endpoint read or
// write can surface; callers abandon the current frame and go back to waiting
// for the link.
var (
	// ErrDisabled indicates the endpoint (or its interface) is not enabled.
	ErrDisabled = errors.New("endpoint disabled")

	// ErrBufferOverflow indicates a packet or frame larger than the space
	// available for it.
	ErrBufferOverflow = errors.New("buffer overflow")

	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrCancelled indicates a cancelled transfer.
	ErrCancelled = errors.New("transfer cancelled")

	// ErrReset indicates a bus reset was received.
	ErrReset = errors.New("bus reset")
)

// Protocol and request errors.
var (
	// ErrProtocol indicates malformed data on the wire.
	ErrProtocol = errors.New("protocol error")

	// ErrInvalidRequest indicates an invalid or unsupported request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidEndpoint indicates an invalid endpoint address.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrInvalidState indicates an invalid device state for the operation.
	ErrInvalidState = errors.New("invalid device state")

	// ErrNotConfigured indicates the device is not configured.
	ErrNotConfigured = errors.New("device not configured")

	// ErrBufferTooSmall indicates the caller's buffer cannot hold the result.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrDescriptorTooShort indicates the descriptor data is too short.
	ErrDescriptorTooShort = errors.New("descriptor too short")

	// ErrDescriptorTypeMismatch indicates the descriptor type does not match expected.
	ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrNoMemory indicates a fixed-size table is full.
	ErrNoMemory = errors.New("insufficient memory")

	// ErrAlreadyRunning indicates the stack is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// IsEndpointError reports whether err is one of the transport-level endpoint
// errors, as opposed to a protocol or caller error.
func IsEndpointError(err error) bool {
	return errors.Is(err, ErrDisabled) ||
		errors.Is(err, ErrBufferOverflow) ||
		errors.Is(err, ErrStall) ||
		errors.Is(err, ErrCancelled) ||
		errors.Is(err, ErrReset)
}
