package device

import (
	"errors"
	"testing"

	"github.com/ardnew/usbncm/pkg"
)

func TestDeviceDescriptorRoundTrip(t *testing.T) {
	want := DeviceDescriptor{
		USBVersion:        0x0200,
		DeviceClass:       ClassMisc,
		DeviceSubClass:    0x02,
		DeviceProtocol:    0x01,
		MaxPacketSize0:    64,
		VendorID:          0x1209,
		ProductID:         0x0001,
		DeviceVersion:     0x0100,
		ManufacturerIndex: 1,
		ProductIndex:      2,
		SerialNumberIndex: 3,
		NumConfigurations: 1,
	}

	var buf [DeviceDescriptorSize]byte
	if n := want.MarshalTo(buf[:]); n != DeviceDescriptorSize {
		t.Fatalf("MarshalTo() = %d, want %d", n, DeviceDescriptorSize)
	}
	if buf[0] != DeviceDescriptorSize || buf[1] != DescriptorTypeDevice {
		t.Errorf("header = % X", buf[:2])
	}
	if buf[8] != 0x09 || buf[9] != 0x12 {
		t.Errorf("VendorID bytes = % X, want 09 12", buf[8:10])
	}

	var got DeviceDescriptor
	if err := ParseDeviceDescriptor(buf[:], &got); err != nil {
		t.Fatalf("ParseDeviceDescriptor() error = %v", err)
	}
	if got != want {
		t.Errorf("round-trip = %+v, want %+v", got, want)
	}
}

func TestParseDescriptorErrors(t *testing.T) {
	var dd DeviceDescriptor
	if err := ParseDeviceDescriptor(make([]byte, 4), &dd); !errors.Is(err, pkg.ErrDescriptorTooShort) {
		t.Errorf("short device descriptor error = %v", err)
	}
	bad := make([]byte, DeviceDescriptorSize)
	bad[1] = DescriptorTypeConfiguration
	if err := ParseDeviceDescriptor(bad, &dd); !errors.Is(err, pkg.ErrDescriptorTypeMismatch) {
		t.Errorf("mismatched device descriptor error = %v", err)
	}

	var ed EndpointDescriptor
	if err := ParseEndpointDescriptor([]byte{7, DescriptorTypeInterface, 0, 0, 0, 0, 0}, &ed); !errors.Is(err, pkg.ErrDescriptorTypeMismatch) {
		t.Errorf("mismatched endpoint descriptor error = %v", err)
	}
}

func TestEndpointDescriptorRoundTrip(t *testing.T) {
	want := EndpointDescriptor{
		EndpointAddress: 0x82,
		Attributes:      EndpointTypeBulk,
		MaxPacketSize:   64,
	}
	var buf [EndpointDescriptorSize]byte
	want.MarshalTo(buf[:])

	var got EndpointDescriptor
	if err := ParseEndpointDescriptor(buf[:], &got); err != nil {
		t.Fatalf("ParseEndpointDescriptor() error = %v", err)
	}
	if got != want {
		t.Errorf("round-trip = %+v, want %+v", got, want)
	}
}

func TestStringDescriptor(t *testing.T) {
	tests := []string{"", "usbncm", "020000000001", "Ünïcode"}

	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			var buf [255]byte
			n := StringDescriptorTo(buf[:], s)
			if n < 2 || buf[0] != uint8(n) || buf[1] != DescriptorTypeString {
				t.Fatalf("StringDescriptorTo() = %d, header % X", n, buf[:2])
			}
			got, err := ParseStringDescriptor(buf[:n])
			if err != nil {
				t.Fatalf("ParseStringDescriptor() error = %v", err)
			}
			if got != s {
				t.Errorf("round-trip = %q, want %q", got, s)
			}
		})
	}

	var small [4]byte
	if n := StringDescriptorTo(small[:], "too long"); n != 0 {
		t.Errorf("StringDescriptorTo(small) = %d, want 0", n)
	}
}

func TestLanguageDescriptor(t *testing.T) {
	var buf [4]byte
	n := LanguageDescriptorTo(buf[:], LangIDUSEnglish)
	want := []byte{4, DescriptorTypeString, 0x09, 0x04}
	if n != 4 || string(buf[:n]) != string(want) {
		t.Errorf("LanguageDescriptorTo() = % X, want % X", buf[:n], want)
	}
}

func TestWalkDescriptors(t *testing.T) {
	blob := []byte{
		9, DescriptorTypeInterface, 0, 0, 1, 2, 0x0D, 0, 0,
		5, DescriptorTypeCSInterface, 0x00, 0x10, 0x01,
		7, DescriptorTypeEndpoint, 0x81, 0x03, 8, 0, 255,
	}

	var types []uint8
	err := WalkDescriptors(blob, func(descType uint8, desc []byte) bool {
		types = append(types, descType)
		return true
	})
	if err != nil {
		t.Fatalf("WalkDescriptors() error = %v", err)
	}
	want := []uint8{DescriptorTypeInterface, DescriptorTypeCSInterface, DescriptorTypeEndpoint}
	if string(types) != string(want) {
		t.Errorf("types = % X, want % X", types, want)
	}

	count := 0
	_ = WalkDescriptors(blob, func(uint8, []byte) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("early stop visited %d descriptors, want 1", count)
	}

	for name, bad := range map[string][]byte{
		"zero length": {0, DescriptorTypeInterface},
		"overrun":     {9, DescriptorTypeInterface, 0},
		"dangling":    {9},
	} {
		if err := WalkDescriptors(bad, func(uint8, []byte) bool { return true }); !errors.Is(err, pkg.ErrDescriptorTooShort) {
			t.Errorf("%s: error = %v, want ErrDescriptorTooShort", name, err)
		}
	}
}
