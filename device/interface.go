package device

import (
	"sync"
)

// AltSetting is one alternate setting of an interface: its class triple,
// the class-specific descriptors that follow its interface descriptor, and
// the endpoints it enables.
type AltSetting struct {
	Number      uint8
	Class       uint8
	SubClass    uint8
	Protocol    uint8
	StringIndex uint8

	descriptors []byte
	endpoints   []*Endpoint
}

// Endpoints returns the endpoints of the alternate setting.
func (a *AltSetting) Endpoints() []*Endpoint {
	return a.endpoints
}

// marshalTo writes the interface descriptor, class-specific descriptors and
// endpoint descriptors of the alternate setting. Returns bytes written, or 0
// if buf is too small.
func (a *AltSetting) marshalTo(buf []byte, ifaceNum uint8) int {
	if len(buf) < a.size() {
		return 0
	}
	desc := InterfaceDescriptor{
		InterfaceNumber:   ifaceNum,
		AlternateSetting:  a.Number,
		NumEndpoints:      uint8(len(a.endpoints)),
		InterfaceClass:    a.Class,
		InterfaceSubClass: a.SubClass,
		InterfaceProtocol: a.Protocol,
		InterfaceIndex:    a.StringIndex,
	}
	n := desc.MarshalTo(buf)
	n += copy(buf[n:], a.descriptors)
	for _, ep := range a.endpoints {
		d := ep.info.Descriptor()
		n += d.MarshalTo(buf[n:])
	}
	return n
}

func (a *AltSetting) size() int {
	return InterfaceDescriptorSize + len(a.descriptors) + len(a.endpoints)*EndpointDescriptorSize
}

// Interface is a USB interface with one or more alternate settings and the
// Handler that owns its class requests.
type Interface struct {
	number  uint8
	handler Handler
	alts    []*AltSetting

	mutex   sync.Mutex
	current uint8
}

// Number returns the interface number.
func (i *Interface) Number() uint8 {
	return i.number
}

// Handler returns the interface's control handler.
func (i *Interface) Handler() Handler {
	return i.handler
}

// AltSettings returns the interface's alternate settings in order.
func (i *Interface) AltSettings() []*AltSetting {
	return i.alts
}

// AltSetting returns alternate setting alt, or nil if it does not exist.
func (i *Interface) AltSetting(alt uint8) *AltSetting {
	if int(alt) >= len(i.alts) {
		return nil
	}
	return i.alts[alt]
}

// CurrentAlt returns the active alternate setting number.
func (i *Interface) CurrentAlt() uint8 {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.current
}

// active returns the endpoints of the active alternate setting.
func (i *Interface) active() []*Endpoint {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.alts[i.current].endpoints
}

func (i *Interface) setCurrent(alt uint8) {
	i.mutex.Lock()
	i.current = alt
	i.mutex.Unlock()
}

// InterfaceAssociation groups contiguous interfaces into one function.
type InterfaceAssociation struct {
	FirstInterface uint8
	InterfaceCount uint8
	Class          uint8
	SubClass       uint8
	Protocol       uint8
	StringIndex    uint8
}

func (a *InterfaceAssociation) descriptor() InterfaceAssociationDescriptor {
	return InterfaceAssociationDescriptor{
		FirstInterface:   a.FirstInterface,
		InterfaceCount:   a.InterfaceCount,
		FunctionClass:    a.Class,
		FunctionSubClass: a.SubClass,
		FunctionProtocol: a.Protocol,
		FunctionIndex:    a.StringIndex,
	}
}
