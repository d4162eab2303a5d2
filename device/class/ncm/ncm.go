package ncm

import (
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/ardnew/usbncm/device"
	"github.com/ardnew/usbncm/device/class/cdc"
	"github.com/ardnew/usbncm/pkg"
)

// Config holds the options of an NCM function. Zero fields take defaults.
type Config struct {
	// MaxPacketSize of the bulk endpoints. 64 for full speed, 512 for high.
	MaxPacketSize uint16

	// SettleDelay between the host enabling the data interface and the
	// connection notification.
	SettleDelay time.Duration

	// MACAddress advertised to the host as the function's Ethernet address.
	MACAddress net.HardwareAddr

	// MaxSegmentSize reported in the Ethernet Networking descriptor.
	MaxSegmentSize uint16

	// Metrics receives traffic counters; nil disables them.
	Metrics *Metrics
}

// DefaultMACAddress is a locally administered unicast address.
var DefaultMACAddress = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

func (c *Config) applyDefaults() error {
	if c.MaxPacketSize == 0 {
		c.MaxPacketSize = DefaultMaxPacketSize
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.MACAddress == nil {
		c.MACAddress = DefaultMACAddress
	}
	if c.MaxSegmentSize == 0 {
		c.MaxSegmentSize = DefaultMaxSegmentSize
	}

	switch {
	case c.MaxPacketSize > 1024:
		return errors.Wrapf(pkg.ErrInvalidParameter, "max packet size %d", c.MaxPacketSize)
	case c.SettleDelay < 0:
		return errors.Wrapf(pkg.ErrInvalidParameter, "settle delay %v", c.SettleDelay)
	case len(c.MACAddress) != 6:
		return errors.Wrapf(pkg.ErrInvalidParameter, "MAC address %v", c.MACAddress)
	}
	return nil
}

// macString renders mac as the 12 uppercase hex digits iMACAddress expects.
func macString(mac net.HardwareAddr) string {
	return fmt.Sprintf("%02X%02X%02X%02X%02X%02X",
		mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

// Function is one CDC-NCM function added to a device: a communications
// interface with an interrupt endpoint and a data interface whose alternate
// setting 1 carries the bulk pair.
type Function struct {
	cfg   Config
	state *LinkState
	comm  *CommControl
	data  *DataControl

	commIf   uint8
	dataIf   uint8
	macIndex uint8

	notify  *device.Endpoint
	bulkOut *device.Endpoint
	bulkIn  *device.Endpoint
}

// New adds an NCM function to b. Errors in the builder itself are reported
// by b.Build.
func New(b *device.Builder, cfg Config) (*Function, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	state := NewLinkState(cfg.Metrics)
	f := &Function{
		cfg:   cfg,
		state: state,
		comm:  NewCommControl(state),
		data:  NewDataControl(state),
	}
	f.macIndex = b.String(macString(cfg.MACAddress))

	fn := b.Function(cdc.ClassCDC, cdc.SubclassNCM, cdc.ProtocolNone)

	commIf := fn.Interface(f.comm)
	f.commIf = commIf.Number()
	f.dataIf = f.commIf + 1

	var buf [cdc.EthernetDescriptorSize]byte
	comm := commIf.AltSetting(cdc.ClassCDC, cdc.SubclassNCM, cdc.ProtocolNone)
	comm.Descriptor(marshal(&cdc.HeaderDescriptor{CDCVersion: cdc.CDCVersion110}, buf[:]))
	comm.Descriptor(marshal(&cdc.UnionDescriptor{
		ControlInterface:     f.commIf,
		SubordinateInterface: f.dataIf,
	}, buf[:]))
	comm.Descriptor(marshal(&cdc.EthernetDescriptor{
		MACAddressIndex: f.macIndex,
		MaxSegmentSize:  cfg.MaxSegmentSize,
	}, buf[:]))
	comm.Descriptor(marshal(&cdc.NCMDescriptor{NCMVersion: cdc.NCMVersion100}, buf[:]))
	f.notify = comm.EndpointInterruptIn(notifyPacketSize, notifyInterval)

	dataIf := fn.Interface(f.data)
	dataIf.AltSetting(cdc.ClassCDCData, cdc.SubclassNone, cdc.ProtocolNTB)
	active := dataIf.AltSetting(cdc.ClassCDCData, cdc.SubclassNone, cdc.ProtocolNTB)
	f.bulkOut = active.EndpointBulkOut(cfg.MaxPacketSize)
	f.bulkIn = active.EndpointBulkIn(cfg.MaxPacketSize)

	pkg.LogDebug(pkg.ComponentNCM, "function added",
		"comm", f.commIf,
		"data", f.dataIf,
		"mac", cfg.MACAddress.String(),
		"maxPacketSize", cfg.MaxPacketSize)
	return f, nil
}

type marshaler interface {
	MarshalTo(buf []byte) int
}

// marshal returns a copy of m's encoding; the builder keeps the slice.
func marshal(m marshaler, scratch []byte) []byte {
	n := m.MarshalTo(scratch)
	return append([]byte(nil), scratch[:n]...)
}

// Split returns the transmit and receive halves. Each may be driven by its
// own goroutine; both observe the function's LinkState.
func (f *Function) Split() (*Sender, *Receiver) {
	s := newSender(f.bulkIn, f.state, f.cfg.Metrics)
	r := newReceiver(f.bulkOut, f.notify, f.state, f.cfg.Metrics, f.dataIf, f.cfg.SettleDelay)
	return s, r
}

// LinkState returns the state shared by the handlers and the halves.
func (f *Function) LinkState() *LinkState { return f.state }

// CommInterface returns the communications interface number.
func (f *Function) CommInterface() uint8 { return f.commIf }

// DataInterface returns the data interface number.
func (f *Function) DataInterface() uint8 { return f.dataIf }

// MACAddressIndex returns the string index of the MAC address.
func (f *Function) MACAddressIndex() uint8 { return f.macIndex }

// MACAddress returns the advertised MAC address.
func (f *Function) MACAddress() net.HardwareAddr { return f.cfg.MACAddress }

// Comm returns the communications interface handler.
func (f *Function) Comm() *CommControl { return f.comm }

// Data returns the data interface handler.
func (f *Function) Data() *DataControl { return f.data }
