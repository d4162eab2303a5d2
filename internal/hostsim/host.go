// Package hostsim drives an NCM device over a memory bus the way a host
// driver would: it enumerates the device, brings the data interface up,
// sends Ethernet frames in NTBs and decodes the NTBs the device returns.
package hostsim

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"net"

	"github.com/pkg/errors"

	"github.com/ardnew/usbncm/device"
	"github.com/ardnew/usbncm/device/class/cdc"
	"github.com/ardnew/usbncm/device/class/ncm"
	"github.com/ardnew/usbncm/device/hal"
	"github.com/ardnew/usbncm/device/hal/memhal"
	"github.com/ardnew/usbncm/pkg"
)

// Address assigned to the device during enumeration.
const Address = 1

// Host is a simulated NCM host driver bound to one memory bus.
type Host struct {
	bus *memhal.Host
	mac net.HardwareAddr

	desc   device.DeviceDescriptor
	config []byte

	commIf uint8
	dataIf uint8
	altOn  uint8

	notifyEP uint8
	outEP    uint8
	inEP     uint8
	mps      int

	deviceMAC net.HardwareAddr
	params    ncm.NTBParameters
	seq       uint16
	packet    []byte
}

// New returns a host on bus whose own Ethernet address is mac.
func New(bus *memhal.Host, mac net.HardwareAddr) *Host {
	return &Host{bus: bus, mac: mac}
}

// MAC returns the host's Ethernet address.
func (h *Host) MAC() net.HardwareAddr { return h.mac }

// DeviceMAC returns the address the device advertised.
func (h *Host) DeviceMAC() net.HardwareAddr { return h.deviceMAC }

// DeviceDescriptor returns the descriptor read during enumeration.
func (h *Host) DeviceDescriptor() device.DeviceDescriptor { return h.desc }

// ConfigurationDescriptor returns the full configuration descriptor read
// during enumeration.
func (h *Host) ConfigurationDescriptor() []byte { return h.config }

// NTBParameters returns the device's GET_NTB_PARAMETERS answer.
func (h *Host) NTBParameters() ncm.NTBParameters { return h.params }

// MaxPacketSize returns the bulk endpoint packet size.
func (h *Host) MaxPacketSize() int { return h.mps }

func (h *Host) control(ctx context.Context, setup device.SetupPacket, data []byte) ([]byte, error) {
	resp, err := h.bus.Control(ctx, hal.SetupPacket(setup), data)
	if err != nil {
		return nil, errors.Wrap(err, setup.String())
	}
	return resp, nil
}

func (h *Host) descriptor(ctx context.Context, descType, index uint8, length uint16) ([]byte, error) {
	var setup device.SetupPacket
	device.GetDescriptorSetup(&setup, descType, index, length)
	return h.control(ctx, setup, nil)
}

// Enumerate reads the descriptors, addresses and configures the device, and
// negotiates the NTB parameters. The data interface is left disabled.
func (h *Host) Enumerate(ctx context.Context) error {
	raw, err := h.descriptor(ctx, device.DescriptorTypeDevice, 0, device.DeviceDescriptorSize)
	if err != nil {
		return err
	}
	if err := device.ParseDeviceDescriptor(raw, &h.desc); err != nil {
		return errors.Wrap(err, "device descriptor")
	}

	var setup device.SetupPacket
	device.GetSetAddressSetup(&setup, Address)
	if _, err := h.control(ctx, setup, nil); err != nil {
		return err
	}

	head, err := h.descriptor(ctx, device.DescriptorTypeConfiguration, 0, device.ConfigurationDescriptorSize)
	if err != nil {
		return err
	}
	if len(head) < device.ConfigurationDescriptorSize {
		return errors.Wrap(pkg.ErrDescriptorTooShort, "configuration descriptor")
	}
	total := binary.LittleEndian.Uint16(head[2:4])
	if h.config, err = h.descriptor(ctx, device.DescriptorTypeConfiguration, 0, total); err != nil {
		return err
	}

	macIndex, err := h.parseConfiguration()
	if err != nil {
		return err
	}

	raw, err = h.descriptor(ctx, device.DescriptorTypeString, macIndex, 255)
	if err != nil {
		return err
	}
	s, err := device.ParseStringDescriptor(raw)
	if err != nil {
		return errors.Wrap(err, "MAC address string")
	}
	mac, err := hex.DecodeString(s)
	if err != nil || len(mac) != 6 {
		return errors.Wrapf(pkg.ErrProtocol, "MAC address string %q", s)
	}
	h.deviceMAC = mac

	device.GetSetConfigurationSetup(&setup, device.ConfigurationValue)
	if _, err := h.control(ctx, setup, nil); err != nil {
		return err
	}

	device.ClassInterfaceSetup(&setup, true, cdc.RequestGetNTBParameters, h.commIf, 0, ncm.NTBParametersSize)
	raw, err = h.control(ctx, setup, nil)
	if err != nil {
		return err
	}
	if err := ncm.ParseNTBParameters(raw, &h.params); err != nil {
		return errors.Wrap(err, "NTB parameters")
	}
	if h.params.FormatsSupported&0x0001 == 0 {
		return errors.Wrap(pkg.ErrProtocol, "device lacks 16-bit NTBs")
	}

	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], h.params.InMaxSize)
	device.ClassInterfaceSetup(&setup, false, cdc.RequestSetNTBInputSize, h.commIf, 0, uint16(len(size)))
	if _, err := h.control(ctx, setup, size[:]); err != nil {
		return err
	}

	pkg.LogInfo(pkg.ComponentHost, "device enumerated",
		"vendor", h.desc.VendorID,
		"product", h.desc.ProductID,
		"mac", h.deviceMAC.String(),
		"maxPacketSize", h.mps)
	return nil
}

// parseConfiguration locates the NCM interfaces and endpoints and returns
// the MAC address string index.
func (h *Host) parseConfiguration() (uint8, error) {
	var (
		macIndex  uint8
		current   device.InterfaceDescriptor
		foundComm bool
		foundData bool
		walkErr   error
	)

	err := device.WalkDescriptors(h.config, func(descType uint8, desc []byte) bool {
		switch descType {
		case device.DescriptorTypeInterface:
			if walkErr = device.ParseInterfaceDescriptor(desc, &current); walkErr != nil {
				return false
			}
			switch {
			case current.InterfaceClass == cdc.ClassCDC && current.InterfaceSubClass == cdc.SubclassNCM:
				h.commIf = current.InterfaceNumber
				foundComm = true
			case current.InterfaceClass == cdc.ClassCDCData && current.NumEndpoints == 2:
				h.dataIf = current.InterfaceNumber
				h.altOn = current.AlternateSetting
				foundData = true
			}

		case cdc.DescriptorTypeCSInterface:
			if len(desc) >= cdc.EthernetDescriptorSize && desc[2] == cdc.SubtypeEthernet {
				macIndex = desc[3]
			}

		case device.DescriptorTypeEndpoint:
			var ep device.EndpointDescriptor
			if walkErr = device.ParseEndpointDescriptor(desc, &ep); walkErr != nil {
				return false
			}
			isIn := ep.EndpointAddress&device.EndpointDirectionIn != 0
			switch {
			case foundComm && current.InterfaceNumber == h.commIf && isIn:
				h.notifyEP = ep.EndpointAddress
			case foundData && current.InterfaceNumber == h.dataIf && isIn:
				h.inEP = ep.EndpointAddress
				h.mps = int(ep.MaxPacketSize)
			case foundData && current.InterfaceNumber == h.dataIf:
				h.outEP = ep.EndpointAddress
			}
		}
		return true
	})
	if err == nil {
		err = walkErr
	}
	if err != nil {
		return 0, errors.Wrap(err, "configuration descriptor")
	}
	if !foundComm || !foundData || h.notifyEP == 0 || h.inEP == 0 || h.outEP == 0 || macIndex == 0 {
		return 0, errors.Wrap(pkg.ErrProtocol, "no NCM function in configuration")
	}
	h.packet = make([]byte, h.mps)
	return macIndex, nil
}

// SetLink selects the data interface's active (up) or empty (down)
// alternate setting.
func (h *Host) SetLink(ctx context.Context, up bool) error {
	alt := uint8(0)
	if up {
		alt = h.altOn
	}
	var setup device.SetupPacket
	device.GetSetInterfaceSetup(&setup, h.dataIf, alt)
	_, err := h.control(ctx, setup, nil)
	return err
}

// WaitConnected reads the interrupt endpoint until the device reports
// NETWORK_CONNECTION (connected).
func (h *Host) WaitConnected(ctx context.Context) error {
	buf := make([]byte, cdc.NotificationSize)
	for {
		n, err := h.bus.ReadPacket(ctx, h.notifyEP, buf)
		if err != nil {
			return errors.Wrap(err, "read notification")
		}
		var note cdc.Notification
		if !cdc.ParseNotification(buf[:n], &note) {
			return errors.Wrapf(pkg.ErrProtocol, "notification % X", buf[:n])
		}
		if note.Code == cdc.NotificationNetworkConnection && note.Value == 1 {
			if note.Interface != uint16(h.dataIf) {
				return errors.Wrapf(pkg.ErrProtocol, "connection reported on interface %d", note.Interface)
			}
			return nil
		}
	}
}

// Send packs frames into one NTB and writes it to the bulk OUT endpoint.
func (h *Host) Send(ctx context.Context, frames ...[]byte) error {
	ntb, err := ncm.AppendNTB(nil, h.seq, frames...)
	if err != nil {
		return err
	}
	h.seq++

	for off := 0; ; off += h.mps {
		end := min(off+h.mps, len(ntb))
		if err := h.bus.WritePacket(ctx, h.outEP, ntb[off:end]); err != nil {
			return errors.Wrap(err, "write NTB")
		}
		if end-off < h.mps {
			return nil
		}
	}
}

// Receive reads one NTB from the bulk IN endpoint and returns copies of its
// datagrams.
func (h *Host) Receive(ctx context.Context) ([][]byte, error) {
	var ntb []byte
	for {
		n, err := h.bus.ReadPacket(ctx, h.inEP, h.packet)
		if err != nil {
			return nil, errors.Wrap(err, "read NTB")
		}
		ntb = append(ntb, h.packet[:n]...)
		if n < h.mps {
			break
		}
	}

	var frames [][]byte
	err := ncm.ParseNTB(ntb, func(dg []byte) bool {
		frames = append(frames, append([]byte(nil), dg...))
		return true
	})
	return frames, err
}
