package device

import (
	"github.com/pkg/errors"

	"github.com/ardnew/usbncm/pkg"
)

// Config holds the device-level identity used by [NewBuilder].
type Config struct {
	VendorID      uint16
	ProductID     uint16
	DeviceVersion uint16 // BCD; defaults to 0x0100

	Manufacturer string
	Product      string
	SerialNumber string

	MaxPacketSize0 uint8 // defaults to 64
	MaxPower       uint8 // 2 mA units; defaults to 50
	SelfPowered    bool
}

// Builder assembles a [Device] and its single configuration.
//
// Endpoint addresses are allocated in order per direction: the first IN
// endpoint is 0x81, the first OUT endpoint 0x01, and so on. The first error
// encountered is reported by Build; calls made after an error are no-ops
// that still return usable values.
type Builder struct {
	dev     *Device
	maxPwr  uint8
	nextIn  uint8
	nextOut uint8
	err     error
}

// NewBuilder returns a Builder for a device with the given identity.
func NewBuilder(cfg Config) *Builder {
	if cfg.MaxPacketSize0 == 0 {
		cfg.MaxPacketSize0 = 64
	}
	if cfg.DeviceVersion == 0 {
		cfg.DeviceVersion = 0x0100
	}
	if cfg.MaxPower == 0 {
		cfg.MaxPower = 50
	}

	b := &Builder{
		dev: &Device{
			desc: DeviceDescriptor{
				USBVersion:        0x0200,
				DeviceClass:       ClassPerInterface,
				MaxPacketSize0:    cfg.MaxPacketSize0,
				VendorID:          cfg.VendorID,
				ProductID:         cfg.ProductID,
				DeviceVersion:     cfg.DeviceVersion,
				NumConfigurations: 1,
			},
			attributes: ConfigAttrBusPowered,
			state:      StatePowered,
		},
		maxPwr:  cfg.MaxPower,
		nextIn:  1,
		nextOut: 1,
	}
	if cfg.SelfPowered {
		b.dev.attributes |= ConfigAttrSelfPowered
	}
	b.dev.desc.ManufacturerIndex = b.optionalString(cfg.Manufacturer)
	b.dev.desc.ProductIndex = b.optionalString(cfg.Product)
	b.dev.desc.SerialNumberIndex = b.optionalString(cfg.SerialNumber)
	return b
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder) optionalString(s string) uint8 {
	if s == "" {
		return 0
	}
	return b.String(s)
}

// String registers a string descriptor and returns its index.
func (b *Builder) String(s string) uint8 {
	if len(b.dev.strings) >= MaxStrings {
		b.fail(errors.Wrap(pkg.ErrNoMemory, "string table full"))
		return 0
	}
	b.dev.strings = append(b.dev.strings, s)
	return uint8(len(b.dev.strings))
}

// Function starts an interface association. Interfaces added through the
// returned FunctionBuilder are grouped under one IAD.
func (b *Builder) Function(class, subClass, protocol uint8) *FunctionBuilder {
	b.dev.assocs = append(b.dev.assocs, InterfaceAssociation{
		FirstInterface: uint8(len(b.dev.interfaces)),
		Class:          class,
		SubClass:       subClass,
		Protocol:       protocol,
	})
	return &FunctionBuilder{b: b, index: len(b.dev.assocs) - 1}
}

// Interface adds a standalone interface owned by h.
func (b *Builder) Interface(h Handler) *InterfaceBuilder {
	if h == nil {
		h = NopHandler{}
	}
	iface := &Interface{
		number:  uint8(len(b.dev.interfaces)),
		handler: h,
	}
	if len(b.dev.interfaces) >= MaxInterfaces {
		b.fail(errors.Wrap(pkg.ErrNoMemory, "interface table full"))
		return &InterfaceBuilder{b: b, iface: iface}
	}
	b.dev.interfaces = append(b.dev.interfaces, iface)
	return &InterfaceBuilder{b: b, iface: iface}
}

// Build validates the tree and serializes the configuration descriptor.
func (b *Builder) Build() (*Device, error) {
	if b.err != nil {
		return nil, b.err
	}
	d := b.dev
	if len(d.interfaces) == 0 {
		return nil, errors.Wrap(pkg.ErrInvalidParameter, "device has no interfaces")
	}
	for _, iface := range d.interfaces {
		if len(iface.alts) == 0 {
			return nil, errors.Wrapf(pkg.ErrInvalidParameter,
				"interface %d has no alternate settings", iface.number)
		}
	}
	for _, a := range d.assocs {
		if a.InterfaceCount == 0 {
			return nil, errors.Wrap(pkg.ErrInvalidParameter, "function has no interfaces")
		}
	}
	if len(d.assocs) > 0 {
		// Interface Association Descriptor device class triple.
		d.desc.DeviceClass = ClassMisc
		d.desc.DeviceSubClass = 0x02
		d.desc.DeviceProtocol = 0x01
	}

	total := ConfigurationDescriptorSize + len(d.assocs)*IADSize
	for _, iface := range d.interfaces {
		for _, alt := range iface.alts {
			total += alt.size()
		}
	}
	if total > MaxControlDataSize {
		return nil, errors.Wrapf(pkg.ErrNoMemory, "configuration descriptor is %d bytes", total)
	}

	buf := make([]byte, total)
	hdr := ConfigurationDescriptor{
		TotalLength:        uint16(total),
		NumInterfaces:      uint8(len(d.interfaces)),
		ConfigurationValue: ConfigurationValue,
		Attributes:         d.attributes,
		MaxPower:           b.maxPwr,
	}
	n := hdr.MarshalTo(buf)
	for _, iface := range d.interfaces {
		for i := range d.assocs {
			if d.assocs[i].FirstInterface == iface.number {
				iad := d.assocs[i].descriptor()
				n += iad.MarshalTo(buf[n:])
			}
		}
		for _, alt := range iface.alts {
			n += alt.marshalTo(buf[n:], iface.number)
		}
	}
	d.config = buf[:n]

	pkg.LogDebug(pkg.ComponentDevice, "device built",
		"interfaces", len(d.interfaces),
		"functions", len(d.assocs),
		"configLength", n)
	return d, nil
}

// FunctionBuilder adds interfaces to one interface association.
type FunctionBuilder struct {
	b     *Builder
	index int
}

// Interface adds an interface owned by h to the function.
func (f *FunctionBuilder) Interface(h Handler) *InterfaceBuilder {
	ib := f.b.Interface(h)
	if f.b.err == nil {
		f.b.dev.assocs[f.index].InterfaceCount++
	}
	return ib
}

// String sets the function's string descriptor.
func (f *FunctionBuilder) String(s string) *FunctionBuilder {
	f.b.dev.assocs[f.index].StringIndex = f.b.String(s)
	return f
}

// InterfaceBuilder adds alternate settings to one interface.
type InterfaceBuilder struct {
	b     *Builder
	iface *Interface
}

// Number returns the interface number.
func (i *InterfaceBuilder) Number() uint8 {
	return i.iface.number
}

// AltSetting appends the next alternate setting.
func (i *InterfaceBuilder) AltSetting(class, subClass, protocol uint8) *AltSettingBuilder {
	alt := &AltSetting{
		Number:   uint8(len(i.iface.alts)),
		Class:    class,
		SubClass: subClass,
		Protocol: protocol,
	}
	if len(i.iface.alts) >= MaxAltSettings {
		i.b.fail(errors.Wrapf(pkg.ErrNoMemory, "interface %d: too many alternate settings", i.iface.number))
		return &AltSettingBuilder{b: i.b, alt: alt}
	}
	i.iface.alts = append(i.iface.alts, alt)
	return &AltSettingBuilder{b: i.b, alt: alt}
}

// AltSettingBuilder adds descriptors and endpoints to one alternate setting.
type AltSettingBuilder struct {
	b   *Builder
	alt *AltSetting
}

// Number returns the alternate setting number.
func (a *AltSettingBuilder) Number() uint8 {
	return a.alt.Number
}

// Descriptor appends a class-specific descriptor. data is the complete
// descriptor including its length and type bytes.
func (a *AltSettingBuilder) Descriptor(data []byte) *AltSettingBuilder {
	if len(data) < 2 || int(data[0]) != len(data) {
		a.b.fail(errors.Wrap(pkg.ErrDescriptorTooShort, "class-specific descriptor"))
		return a
	}
	a.alt.descriptors = append(a.alt.descriptors, data...)
	return a
}

// EndpointInterruptIn adds an interrupt IN endpoint.
func (a *AltSettingBuilder) EndpointInterruptIn(maxPacketSize uint16, interval uint8) *Endpoint {
	return a.endpoint(EndpointDirectionIn, EndpointTypeInterrupt, maxPacketSize, interval)
}

// EndpointBulkIn adds a bulk IN endpoint.
func (a *AltSettingBuilder) EndpointBulkIn(maxPacketSize uint16) *Endpoint {
	return a.endpoint(EndpointDirectionIn, EndpointTypeBulk, maxPacketSize, 0)
}

// EndpointBulkOut adds a bulk OUT endpoint.
func (a *AltSettingBuilder) EndpointBulkOut(maxPacketSize uint16) *Endpoint {
	return a.endpoint(EndpointDirectionOut, EndpointTypeBulk, maxPacketSize, 0)
}

func (a *AltSettingBuilder) endpoint(dir, transferType uint8, maxPacketSize uint16, interval uint8) *Endpoint {
	next := &a.b.nextOut
	if dir == EndpointDirectionIn {
		next = &a.b.nextIn
	}
	ep := newEndpoint(EndpointInfo{
		Address:       dir | *next,
		Attributes:    transferType,
		MaxPacketSize: maxPacketSize,
		Interval:      interval,
	})

	switch {
	case maxPacketSize == 0:
		a.b.fail(errors.Wrap(pkg.ErrInvalidParameter, "endpoint max packet size is zero"))
	case *next > 15:
		a.b.fail(errors.Wrap(pkg.ErrNoMemory, "endpoint numbers exhausted"))
	case len(a.alt.endpoints) >= MaxEndpointsPerAlt:
		a.b.fail(errors.Wrapf(pkg.ErrNoMemory, "alternate setting %d: too many endpoints", a.alt.Number))
	default:
		*next++
		a.alt.endpoints = append(a.alt.endpoints, ep)
	}
	return ep
}
