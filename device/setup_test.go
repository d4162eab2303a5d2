package device

import (
	"strings"
	"testing"
)

func TestParseSetupPacket(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    SetupPacket
		wantErr bool
	}{
		{
			name: "GET_DESCRIPTOR device",
			data: []byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x12, 0x00},
			want: SetupPacket{RequestType: 0x80, Request: 0x06, Value: 0x0100, Length: 18},
		},
		{
			name: "SET_INTERFACE data alt 1",
			data: []byte{0x01, 0x0B, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00},
			want: SetupPacket{RequestType: 0x01, Request: 0x0B, Value: 1, Index: 1},
		},
		{
			name: "GET_NTB_PARAMETERS",
			data: []byte{0xA1, 0x80, 0x00, 0x00, 0x00, 0x00, 0x1C, 0x00},
			want: SetupPacket{RequestType: 0xA1, Request: 0x80, Length: 28},
		},
		{
			name:    "too short",
			data:    []byte{0x80, 0x06, 0x00},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got SetupPacket
			err := ParseSetupPacket(tt.data, &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSetupPacket() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got != tt.want {
				t.Errorf("ParseSetupPacket() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSetupPacketMarshalTo(t *testing.T) {
	pkt := SetupPacket{
		RequestType: 0x80,
		Request:     0x06,
		Value:       0x0100,
		Length:      18,
	}

	var buf [SetupPacketSize]byte
	if n := pkt.MarshalTo(buf[:]); n != SetupPacketSize {
		t.Fatalf("MarshalTo() length = %d, want %d", n, SetupPacketSize)
	}
	var parsed SetupPacket
	if err := ParseSetupPacket(buf[:], &parsed); err != nil {
		t.Fatalf("ParseSetupPacket() error = %v", err)
	}
	if parsed != pkt {
		t.Errorf("round-trip failed: got %+v, want %+v", parsed, pkt)
	}

	if n := pkt.MarshalTo(buf[:4]); n != 0 {
		t.Errorf("MarshalTo(short) = %d, want 0", n)
	}
}

func TestSetupPacketFields(t *testing.T) {
	tests := []struct {
		name        string
		requestType uint8
		wantIn      bool
		wantType    uint8
		wantRecip   uint8
	}{
		{"standard device IN", 0x80, true, RequestTypeStandard, RequestRecipientDevice},
		{"standard interface OUT", 0x01, false, RequestTypeStandard, RequestRecipientInterface},
		{"class interface IN", 0xA1, true, RequestTypeClass, RequestRecipientInterface},
		{"class interface OUT", 0x21, false, RequestTypeClass, RequestRecipientInterface},
		{"vendor endpoint OUT", 0x42, false, RequestTypeVendor, RequestRecipientEndpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt := &SetupPacket{RequestType: tt.requestType}
			if got := pkt.IsDeviceToHost(); got != tt.wantIn {
				t.Errorf("IsDeviceToHost() = %v, want %v", got, tt.wantIn)
			}
			if got := pkt.Type(); got != tt.wantType {
				t.Errorf("Type() = 0x%02X, want 0x%02X", got, tt.wantType)
			}
			if got := pkt.IsClass(); got != (tt.wantType == RequestTypeClass) {
				t.Errorf("IsClass() = %v", got)
			}
			if got := pkt.Recipient(); got != tt.wantRecip {
				t.Errorf("Recipient() = 0x%02X, want 0x%02X", got, tt.wantRecip)
			}
		})
	}
}

func TestSetupPacketDescriptorFields(t *testing.T) {
	pkt := &SetupPacket{Value: 0x0301, Index: 0x0081}

	if got := pkt.DescriptorType(); got != DescriptorTypeString {
		t.Errorf("DescriptorType() = 0x%02X, want 0x03", got)
	}
	if got := pkt.DescriptorIndex(); got != 0x01 {
		t.Errorf("DescriptorIndex() = 0x%02X, want 0x01", got)
	}
	if got := pkt.EndpointAddress(); got != 0x81 {
		t.Errorf("EndpointAddress() = 0x%02X, want 0x81", got)
	}
}

func TestSetupPacketString(t *testing.T) {
	pkt := &SetupPacket{RequestType: 0xA1, Request: 0x80, Length: 28}
	s := pkt.String()
	for _, want := range []string{"IN", "Class", "Interface", "0x80"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func TestRequestBuilders(t *testing.T) {
	var pkt SetupPacket

	GetDescriptorSetup(&pkt, DescriptorTypeString, 3, 255)
	if !pkt.IsDeviceToHost() || pkt.Request != RequestGetDescriptor {
		t.Errorf("GetDescriptorSetup() = %+v", pkt)
	}
	if pkt.Index != LangIDUSEnglish {
		t.Errorf("string descriptor Index = 0x%04X, want 0x%04X", pkt.Index, LangIDUSEnglish)
	}
	GetDescriptorSetup(&pkt, DescriptorTypeString, 0, 255)
	if pkt.Index != 0 {
		t.Errorf("language table Index = 0x%04X, want 0", pkt.Index)
	}

	GetSetAddressSetup(&pkt, 7)
	if pkt.IsDeviceToHost() || pkt.Request != RequestSetAddress || pkt.Value != 7 {
		t.Errorf("GetSetAddressSetup() = %+v", pkt)
	}

	GetSetConfigurationSetup(&pkt, 1)
	if pkt.Request != RequestSetConfiguration || pkt.Value != 1 {
		t.Errorf("GetSetConfigurationSetup() = %+v", pkt)
	}

	GetSetInterfaceSetup(&pkt, 1, 1)
	if pkt.Recipient() != RequestRecipientInterface || pkt.Value != 1 || pkt.Index != 1 {
		t.Errorf("GetSetInterfaceSetup() = %+v", pkt)
	}

	ClassInterfaceSetup(&pkt, true, 0x80, 0, 0, 28)
	if pkt.RequestType != 0xA1 || pkt.Length != 28 {
		t.Errorf("ClassInterfaceSetup(in) = %+v", pkt)
	}
	ClassInterfaceSetup(&pkt, false, 0x86, 0, 0, 4)
	if pkt.RequestType != 0x21 {
		t.Errorf("ClassInterfaceSetup(out) RequestType = 0x%02X, want 0x21", pkt.RequestType)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StatePowered, "Powered"},
		{StateDefault, "Default"},
		{StateAddress, "Address"},
		{StateConfigured, "Configured"},
		{State(99), "Unknown State (99)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("State.String() = %v, want %v", got, tt.want)
			}
		})
	}
}
