package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"github.com/ardnew/usbncm/device"
	"github.com/ardnew/usbncm/device/class/cdc"
	"github.com/ardnew/usbncm/device/class/ncm"
	"github.com/ardnew/usbncm/pkg"
)

var (
	nameColor  = color.New(color.FgHiCyan)
	bytesColor = color.New(color.Faint)
)

type descriptorsCommand struct {
	common commonFlags
	out    io.Writer
}

func (c *descriptorsCommand) Synopsis() string {
	return "print the descriptors the NCM device presents to a host"
}

func (c *descriptorsCommand) Help() string {
	var b strings.Builder
	b.WriteString("Usage: ncm-device descriptors [options]\n\n")
	b.WriteString("  Builds the device from the configuration and prints its device,\n")
	b.WriteString("  configuration and string descriptors.\n\n")
	b.WriteString("Options:\n\n")
	c.flags(&b).PrintDefaults()
	return b.String()
}

func (c *descriptorsCommand) flags(out io.Writer) *flag.FlagSet {
	fs := newFlagSet("descriptors", out)
	c.common.register(fs)
	return fs
}

func (c *descriptorsCommand) Run(args []string) int {
	if err := c.flags(os.Stderr).Parse(args); err != nil {
		return 1
	}
	cfg, err := c.common.load()
	if err != nil {
		pkg.LogError(component, "invalid configuration", "error", err)
		return 1
	}

	b := device.NewBuilder(cfg.DeviceConfig())
	if _, err := ncm.New(b, cfg.NCMConfig(nil)); err != nil {
		pkg.LogError(component, "failed to add NCM function", "error", err)
		return 1
	}
	dev, err := b.Build()
	if err != nil {
		pkg.LogError(component, "failed to build device", "error", err)
		return 1
	}

	if err := dumpDevice(c.out, dev); err != nil {
		pkg.LogError(component, "failed to print descriptors", "error", err)
		return 1
	}
	return 0
}

// dumpDevice writes one line per descriptor followed by the string table.
func dumpDevice(w io.Writer, dev *device.Device) error {
	var buf [device.DeviceDescriptorSize]byte
	desc := dev.Descriptor()
	desc.MarshalTo(buf[:])
	dumpDescriptor(w, 0, buf[:])

	err := device.WalkDescriptors(dev.ConfigurationDescriptor(), func(descType uint8, d []byte) bool {
		depth := 2
		switch descType {
		case device.DescriptorTypeConfiguration:
			depth = 0
		case device.DescriptorTypeInterfaceAssociation, device.DescriptorTypeInterface:
			depth = 1
		}
		dumpDescriptor(w, depth, d)
		return true
	})
	if err != nil {
		return errors.Wrap(err, "configuration descriptor")
	}

	for i := uint8(1); ; i++ {
		s, ok := dev.String(i)
		if !ok {
			break
		}
		fmt.Fprintf(w, "%s %d %q\n", nameColor.Sprint("string"), i, s)
	}
	return nil
}

func dumpDescriptor(w io.Writer, depth int, d []byte) {
	fmt.Fprintf(w, "%s%s %s\n",
		strings.Repeat("  ", depth),
		nameColor.Sprint(descriptorName(d)),
		bytesColor.Sprintf("% X", d))
}

// descriptorName names a raw descriptor by its type and, for class-specific
// interface descriptors, its subtype.
func descriptorName(d []byte) string {
	if len(d) < 2 {
		return "invalid"
	}
	switch d[1] {
	case device.DescriptorTypeDevice:
		return "device"
	case device.DescriptorTypeConfiguration:
		return "configuration"
	case device.DescriptorTypeString:
		return "string"
	case device.DescriptorTypeInterface:
		if len(d) >= device.InterfaceDescriptorSize {
			return fmt.Sprintf("interface %d alt %d", d[2], d[3])
		}
		return "interface"
	case device.DescriptorTypeEndpoint:
		if len(d) >= device.EndpointDescriptorSize {
			return fmt.Sprintf("endpoint %#02x", d[2])
		}
		return "endpoint"
	case device.DescriptorTypeInterfaceAssociation:
		return "interface association"
	case cdc.DescriptorTypeCSInterface:
		if len(d) < 3 {
			return "cdc"
		}
		switch d[2] {
		case cdc.SubtypeHeader:
			return "cdc header"
		case cdc.SubtypeUnion:
			return "cdc union"
		case cdc.SubtypeEthernet:
			return "cdc ethernet"
		case cdc.SubtypeNCM:
			return "cdc ncm"
		}
		return fmt.Sprintf("cdc subtype %#02x", d[2])
	}
	return fmt.Sprintf("type %#02x", d[1])
}
