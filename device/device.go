package device

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/ardnew/usbncm/device/hal"
	"github.com/ardnew/usbncm/pkg"
)

// Device is a USB device with a single configuration, as produced by
// [Builder.Build]. It tracks the USB device state machine and enables the
// endpoints of the active alternate settings.
type Device struct {
	desc       DeviceDescriptor
	strings    []string // index i+1
	interfaces []*Interface
	assocs     []InterfaceAssociation
	config     []byte // full configuration descriptor

	attributes uint8
	hal        hal.DeviceHAL

	mutex         sync.Mutex
	state         State
	address       uint8
	configuration uint8
}

// Descriptor returns the device descriptor.
func (d *Device) Descriptor() DeviceDescriptor {
	return d.desc
}

// ConfigurationDescriptor returns the full configuration descriptor,
// including every interface, class-specific and endpoint descriptor.
// The returned slice must not be modified.
func (d *Device) ConfigurationDescriptor() []byte {
	return d.config
}

// String returns the string registered at index. Index 0 is the language
// table and is never returned here.
func (d *Device) String(index uint8) (string, bool) {
	if index == 0 || int(index) > len(d.strings) {
		return "", false
	}
	return d.strings[index-1], true
}

// Interface returns interface number, or nil if it does not exist.
func (d *Device) Interface(number uint8) *Interface {
	if int(number) >= len(d.interfaces) {
		return nil
	}
	return d.interfaces[number]
}

// Interfaces returns all interfaces in order.
func (d *Device) Interfaces() []*Interface {
	return d.interfaces
}

// State returns the current device state.
func (d *Device) State() State {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.state
}

// Address returns the assigned device address.
func (d *Device) Address() uint8 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.address
}

// Configuration returns the active configuration value (0 if unconfigured).
func (d *Device) Configuration() uint8 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.configuration
}

// IsSelfPowered reports the self-powered configuration attribute.
func (d *Device) IsSelfPowered() bool {
	return d.attributes&ConfigAttrSelfPowered != 0
}

// bind attaches the device and all of its endpoints to a controller.
func (d *Device) bind(h hal.DeviceHAL) {
	d.hal = h
	for _, iface := range d.interfaces {
		for _, alt := range iface.alts {
			for _, ep := range alt.endpoints {
				ep.bind(h)
			}
		}
	}
}

func (d *Device) setState(state State) {
	if d.state != state {
		pkg.LogDebug(pkg.ComponentDevice, "state change",
			"from", d.state.String(),
			"to", state.String())
		d.state = state
	}
}

// reset returns the device to the Default state after a bus reset.
func (d *Device) reset() {
	d.mutex.Lock()
	d.deconfigureLocked()
	d.address = 0
	d.setState(StateDefault)
	d.mutex.Unlock()

	d.resetHandlers()
	pkg.LogInfo(pkg.ComponentDevice, "device reset")
}

func (d *Device) setAddress(address uint8) error {
	if address > 127 {
		return pkg.ErrInvalidRequest
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.state == StateConfigured {
		return pkg.ErrInvalidState
	}
	d.address = address
	if address == 0 {
		d.setState(StateDefault)
	} else {
		d.setState(StateAddress)
	}
	return nil
}

// configure handles SET_CONFIGURATION. Value 0 deconfigures the device;
// ConfigurationValue selects alternate setting 0 of every interface and
// enables its endpoints.
func (d *Device) configure(value uint8) error {
	switch value {
	case 0:
		d.mutex.Lock()
		wasConfigured := d.configuration != 0
		d.deconfigureLocked()
		d.mutex.Unlock()
		if wasConfigured {
			d.resetHandlers()
		}
		return nil
	case ConfigurationValue:
	default:
		return errors.Wrapf(pkg.ErrInvalidRequest, "configuration %d", value)
	}

	d.mutex.Lock()
	if d.state == StateDefault {
		d.mutex.Unlock()
		return pkg.ErrInvalidState
	}
	reconfigure := d.configuration != 0
	d.deconfigureLocked()
	d.mutex.Unlock()

	// Alternate settings revert to 0 so handlers drop any state tied to
	// the previous ones.
	if reconfigure {
		d.resetHandlers()
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.applyEndpointsLocked(); err != nil {
		return err
	}
	for _, iface := range d.interfaces {
		for _, ep := range iface.active() {
			ep.enable()
		}
	}
	d.configuration = value
	d.setState(StateConfigured)
	return nil
}

// setInterface handles SET_INTERFACE: the old alternate setting's endpoints
// are disabled, the new one's enabled, and the handler notified.
func (d *Device) setInterface(number, alt uint8) error {
	d.mutex.Lock()
	if d.configuration == 0 {
		d.mutex.Unlock()
		return pkg.ErrNotConfigured
	}
	iface := d.Interface(number)
	if iface == nil || iface.AltSetting(alt) == nil {
		d.mutex.Unlock()
		return errors.Wrapf(pkg.ErrInvalidRequest, "interface %d alt %d", number, alt)
	}

	for _, ep := range iface.active() {
		ep.disable()
	}
	iface.setCurrent(alt)
	if err := d.applyEndpointsLocked(); err != nil {
		d.mutex.Unlock()
		return err
	}
	for _, ep := range iface.active() {
		ep.enable()
	}
	d.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentDevice, "alternate setting selected",
		"interface", number,
		"alt", alt)
	iface.handler.SetAlternateSetting(alt)
	return nil
}

// endpoint returns the enabled endpoint with the given address.
func (d *Device) endpoint(address uint8) *Endpoint {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.configuration == 0 {
		return nil
	}
	for _, iface := range d.interfaces {
		for _, ep := range iface.active() {
			if ep.info.Address == address {
				return ep
			}
		}
	}
	return nil
}

// applyEndpointsLocked programs the controller with the endpoints of every
// active alternate setting. Caller holds mutex.
func (d *Device) applyEndpointsLocked() error {
	var configs []hal.EndpointConfig
	for _, iface := range d.interfaces {
		for _, ep := range iface.active() {
			configs = append(configs, ep.info.halConfig())
		}
	}
	if d.hal == nil {
		return nil
	}
	return errors.Wrap(d.hal.ConfigureEndpoints(configs), "configure endpoints")
}

// deconfigureLocked disables every endpoint and reverts each interface to
// alternate setting 0. Caller holds mutex.
func (d *Device) deconfigureLocked() {
	for _, iface := range d.interfaces {
		for _, ep := range iface.active() {
			ep.disable()
		}
		iface.setCurrent(0)
	}
	if d.configuration != 0 && d.hal != nil {
		if err := d.hal.ConfigureEndpoints(nil); err != nil {
			pkg.LogWarn(pkg.ComponentDevice, "failed to release endpoints",
				"error", err)
		}
	}
	d.configuration = 0
	if d.state == StateConfigured {
		d.setState(StateAddress)
	}
}

func (d *Device) resetHandlers() {
	for _, iface := range d.interfaces {
		iface.handler.Reset()
	}
}
