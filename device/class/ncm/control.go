package ncm

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/ardnew/usbncm/device"
	"github.com/ardnew/usbncm/device/class/cdc"
	"github.com/ardnew/usbncm/pkg"
)

// CommControl handles the communications interface. It answers the NCM
// requests a host issues during bring-up and drops the link on reset.
type CommControl struct {
	device.NopHandler

	state     *LinkState
	inputSize atomic.Uint32
	params    [NTBParametersSize]byte
}

// NewCommControl returns a handler sharing state with the data path.
func NewCommControl(state *LinkState) *CommControl {
	c := &CommControl{state: state}
	p := DefaultNTBParameters()
	p.MarshalTo(c.params[:])
	return c
}

// Reset implements device.Handler.
func (c *CommControl) Reset() {
	c.state.set(false)
}

// ControlOut implements device.Handler. SEND_ENCAPSULATED_COMMAND and
// SET_NTB_INPUT_SIZE are accepted; everything else is rejected.
func (c *CommControl) ControlOut(req *device.SetupPacket, data []byte) device.OutResponse {
	switch req.Request {
	case cdc.RequestSendEncapsulatedCommand:
		return device.OutAccepted
	case cdc.RequestSetNTBInputSize:
		if len(data) >= 4 {
			c.inputSize.Store(binary.LittleEndian.Uint32(data))
		}
		pkg.LogDebug(pkg.ComponentControl, "NTB input size set",
			"size", c.inputSize.Load())
		return device.OutAccepted
	default:
		pkg.LogDebug(pkg.ComponentControl, "control OUT rejected",
			"request", req.String())
		return device.OutRejected
	}
}

// ControlIn implements device.Handler. Only GET_NTB_PARAMETERS is answered.
func (c *CommControl) ControlIn(req *device.SetupPacket, buf []byte) device.InResponse {
	if req.Request != cdc.RequestGetNTBParameters {
		pkg.LogDebug(pkg.ComponentControl, "control IN rejected",
			"request", req.String())
		return device.InRejected()
	}
	return device.InAccepted(c.params[:])
}

// NTBInputSize returns the last size set by SET_NTB_INPUT_SIZE, or 0.
func (c *CommControl) NTBInputSize() uint32 {
	return c.inputSize.Load()
}

// DataControl handles the data interface: its alternate setting is the
// link switch.
type DataControl struct {
	device.NopHandler

	state *LinkState
}

// NewDataControl returns a handler sharing state with the data path.
func NewDataControl(state *LinkState) *DataControl {
	return &DataControl{state: state}
}

// Reset implements device.Handler.
func (d *DataControl) Reset() {
	d.state.set(false)
}

// SetAlternateSetting implements device.Handler.
func (d *DataControl) SetAlternateSetting(alt uint8) {
	switch alt {
	case AltEnabled:
		d.state.set(true)
	case AltDisabled:
		d.state.set(false)
	default:
		pkg.LogWarn(pkg.ComponentControl, "unknown data alternate setting",
			"alt", alt)
		d.state.set(false)
	}
}
