package device

// OutResponse is a handler's answer to a host-to-device control request.
type OutResponse uint8

const (
	OutRejected OutResponse = iota // Stall the request
	OutAccepted                    // Complete the status stage
)

// InResponse is a handler's answer to a device-to-host control request.
// Data is only meaningful when Accepted is set.
type InResponse struct {
	Accepted bool
	Data     []byte
}

// InAccepted returns an accepting InResponse carrying data.
func InAccepted(data []byte) InResponse {
	return InResponse{Accepted: true, Data: data}
}

// InRejected returns a rejecting InResponse.
func InRejected() InResponse {
	return InResponse{}
}

// Handler receives the control-plane events of one interface.
//
// The stack calls every method from its control goroutine, so
// implementations must not block.
type Handler interface {
	// Reset is called on bus reset and when the device is deconfigured.
	Reset()

	// ControlOut handles a class request addressed to the interface.
	// data holds the request's data stage.
	ControlOut(req *SetupPacket, data []byte) OutResponse

	// ControlIn handles a class request addressed to the interface. buf is
	// scratch space of req.Length bytes the handler may fill and return.
	ControlIn(req *SetupPacket, buf []byte) InResponse

	// SetAlternateSetting is called after the host selects alternate
	// setting alt and its endpoints are enabled.
	SetAlternateSetting(alt uint8)
}

// NopHandler implements Handler by rejecting every request and ignoring
// events. Embed it to implement only the methods a class needs.
type NopHandler struct{}

func (NopHandler) Reset() {}
func (NopHandler) ControlOut(*SetupPacket, []byte) OutResponse { return OutRejected }
func (NopHandler) ControlIn(*SetupPacket, []byte) InResponse { return InRejected() }
func (NopHandler) SetAlternateSetting(uint8) {}
