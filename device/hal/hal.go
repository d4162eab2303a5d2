package hal

import (
	"context"
	"encoding/binary"
)

// Speed represents the USB connection speed.
type Speed uint8

// USB speed constants (USB 2.0 Specification).
const (
	SpeedUnknown Speed = iota // Not connected or unknown
	SpeedLow                  // Low Speed (1.5 Mbit/s)
	SpeedFull                 // Full Speed (12 Mbit/s)
	SpeedHigh                 // High Speed (480 Mbit/s)
)

// String returns a human-readable speed name.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "Low Speed"
	case SpeedFull:
		return "Full Speed"
	case SpeedHigh:
		return "High Speed"
	default:
		return "Unknown"
	}
}

// EndpointConfig describes a hardware endpoint to enable when a configuration
// or alternate setting becomes active.
type EndpointConfig struct {
	Address       uint8  // Endpoint address including direction bit
	Attributes    uint8  // Transfer type
	MaxPacketSize uint16 // Maximum packet size
	Interval      uint8  // Polling interval for interrupt endpoints
}

// Number returns the endpoint number (0-15).
func (e *EndpointConfig) Number() uint8 {
	return e.Address & 0x0F
}

// IsIn returns true if this is an IN endpoint (device to host).
func (e *EndpointConfig) IsIn() bool {
	return e.Address&0x80 != 0
}

// SetupPacket is the raw 8-byte SETUP transaction as seen by the controller.
type SetupPacket struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = 8

// ParseSetupPacket parses raw bytes into out.
// Returns false if data is too short.
func ParseSetupPacket(data []byte, out *SetupPacket) bool {
	if len(data) < SetupPacketSize {
		return false
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = binary.LittleEndian.Uint16(data[2:4])
	out.Index = binary.LittleEndian.Uint16(data[4:6])
	out.Length = binary.LittleEndian.Uint16(data[6:8])
	return true
}

// MarshalTo writes the setup packet to buf.
// Returns the number of bytes written (8), or 0 if buf is too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	binary.LittleEndian.PutUint16(buf[2:4], s.Value)
	binary.LittleEndian.PutUint16(buf[4:6], s.Index)
	binary.LittleEndian.PutUint16(buf[6:8], s.Length)
	return SetupPacketSize
}

// DeviceHAL is the boundary between the device stack and a USB device
// controller.
//
// Packet semantics are those of the USB wire: Write sends exactly one packet
// (a zero-length data slice sends a ZLP) and Read returns exactly one packet.
// Implementations return pkg.ErrBufferOverflow when a received packet does not
// fit buf, and pkg.ErrReset from ReadSetup when the bus is reset.
type DeviceHAL interface {
	// Init prepares the controller.
	Init(ctx context.Context) error

	// Start attaches to the bus.
	Start() error

	// Stop detaches from the bus and releases the controller.
	Stop() error

	// SetAddress applies the address assigned by the host.
	SetAddress(address uint8) error

	// ConfigureEndpoints enables exactly the given data endpoints.
	// An empty slice disables every data endpoint.
	ConfigureEndpoints(endpoints []EndpointConfig) error

	// ReadSetup blocks until a SETUP packet arrives.
	ReadSetup(ctx context.Context, out *SetupPacket) error

	// WriteEP0 sends the data stage of a control IN transfer.
	WriteEP0(ctx context.Context, data []byte) error

	// ReadEP0 reads the data stage of a control OUT transfer.
	ReadEP0(ctx context.Context, buf []byte) (int, error)

	// StallEP0 rejects the current control transfer.
	StallEP0() error

	// AckEP0 completes the status stage of a control transfer.
	AckEP0() error

	// Read receives one packet from an OUT endpoint.
	Read(ctx context.Context, address uint8, buf []byte) (int, error)

	// Write sends one packet on an IN endpoint.
	Write(ctx context.Context, address uint8, data []byte) (int, error)

	// Stall halts the given endpoint.
	Stall(address uint8) error

	// ClearStall clears a halt on the given endpoint.
	ClearStall(address uint8) error

	// IsConnected reports whether a host is attached.
	IsConnected() bool

	// GetSpeed returns the negotiated connection speed.
	GetSpeed() Speed

	// WaitConnect blocks until a host attaches.
	WaitConnect(ctx context.Context) error
}
