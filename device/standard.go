package device

import (
	"encoding/binary"

	"github.com/ardnew/usbncm/pkg"
)

// standardHandler answers the USB 2.0 chapter 9 requests for a Device.
// Returned slices reference responseBuf and are valid until the next call.
type standardHandler struct {
	device      *Device
	responseBuf [MaxControlDataSize]byte
}

// handleSetup processes a standard SETUP request and returns the IN data
// stage, if any.
func (h *standardHandler) handleSetup(setup *SetupPacket) ([]byte, error) {
	switch setup.Recipient() {
	case RequestRecipientDevice:
		return h.handleDeviceRequest(setup)
	case RequestRecipientInterface:
		return h.handleInterfaceRequest(setup)
	case RequestRecipientEndpoint:
		return h.handleEndpointRequest(setup)
	default:
		return nil, pkg.ErrInvalidRequest
	}
}

func (h *standardHandler) handleDeviceRequest(setup *SetupPacket) ([]byte, error) {
	switch setup.Request {
	case RequestGetStatus:
		var status uint16
		if h.device.IsSelfPowered() {
			status |= 0x0001
		}
		return h.status(status), nil
	case RequestSetAddress:
		return nil, h.device.setAddress(uint8(setup.Value))
	case RequestGetDescriptor:
		return h.getDescriptor(setup)
	case RequestGetConfiguration:
		h.responseBuf[0] = h.device.Configuration()
		return h.responseBuf[:1], nil
	case RequestSetConfiguration:
		return nil, h.device.configure(uint8(setup.Value))
	default:
		// Remote wakeup and test mode are not supported.
		return nil, pkg.ErrInvalidRequest
	}
}

func (h *standardHandler) handleInterfaceRequest(setup *SetupPacket) ([]byte, error) {
	iface := h.device.Interface(setup.InterfaceNumber())
	if iface == nil || h.device.Configuration() == 0 {
		return nil, pkg.ErrInvalidRequest
	}
	switch setup.Request {
	case RequestGetStatus:
		return h.status(0), nil
	case RequestGetInterface:
		h.responseBuf[0] = iface.CurrentAlt()
		return h.responseBuf[:1], nil
	case RequestSetInterface:
		return nil, h.device.setInterface(iface.number, uint8(setup.Value))
	default:
		return nil, pkg.ErrInvalidRequest
	}
}

func (h *standardHandler) handleEndpointRequest(setup *SetupPacket) ([]byte, error) {
	address := setup.EndpointAddress()
	if address&0x0F == 0 {
		if setup.Request == RequestGetStatus {
			return h.status(0), nil
		}
		return nil, pkg.ErrInvalidRequest
	}
	ep := h.device.endpoint(address)
	if ep == nil {
		return nil, pkg.ErrInvalidEndpoint
	}

	switch setup.Request {
	case RequestGetStatus:
		var status uint16
		if ep.IsStalled() {
			status = 0x0001
		}
		return h.status(status), nil
	case RequestClearFeature, RequestSetFeature:
		if setup.Value != FeatureEndpointHalt {
			return nil, pkg.ErrInvalidRequest
		}
		halt := setup.Request == RequestSetFeature
		ep.setStall(halt)
		if h.device.hal == nil {
			return nil, nil
		}
		if halt {
			return nil, h.device.hal.Stall(address)
		}
		return nil, h.device.hal.ClearStall(address)
	default:
		return nil, pkg.ErrInvalidRequest
	}
}

func (h *standardHandler) status(v uint16) []byte {
	binary.LittleEndian.PutUint16(h.responseBuf[:2], v)
	return h.responseBuf[:2]
}

func (h *standardHandler) getDescriptor(setup *SetupPacket) ([]byte, error) {
	var n int
	switch setup.DescriptorType() {
	case DescriptorTypeDevice:
		n = h.device.desc.MarshalTo(h.responseBuf[:])
	case DescriptorTypeConfiguration:
		if setup.DescriptorIndex() != 0 {
			return nil, pkg.ErrInvalidRequest
		}
		n = copy(h.responseBuf[:], h.device.config)
	case DescriptorTypeString:
		index := setup.DescriptorIndex()
		if index == 0 {
			n = LanguageDescriptorTo(h.responseBuf[:], LangIDUSEnglish)
			break
		}
		s, ok := h.device.String(index)
		if !ok {
			return nil, pkg.ErrInvalidRequest
		}
		n = StringDescriptorTo(h.responseBuf[:], s)
	default:
		// Full-speed only: no device qualifier or other-speed configuration.
		return nil, pkg.ErrInvalidRequest
	}
	if n > int(setup.Length) {
		n = int(setup.Length)
	}
	return h.responseBuf[:n], nil
}
