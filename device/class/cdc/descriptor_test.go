package cdc

import (
	"bytes"
	"testing"
)

func TestFunctionalDescriptors(t *testing.T) {
	tests := []struct {
		name    string
		marshal func(buf []byte) int
		want    []byte
	}{
		{
			name:    "header",
			marshal: (&HeaderDescriptor{CDCVersion: CDCVersion110}).MarshalTo,
			want:    []byte{0x05, 0x24, 0x00, 0x10, 0x01},
		},
		{
			name:    "union",
			marshal: (&UnionDescriptor{ControlInterface: 0, SubordinateInterface: 1}).MarshalTo,
			want:    []byte{0x05, 0x24, 0x06, 0x00, 0x01},
		},
		{
			name: "ethernet",
			marshal: (&EthernetDescriptor{
				MACAddressIndex: 4,
				MaxSegmentSize:  1514,
			}).MarshalTo,
			want: []byte{0x0D, 0x24, 0x0F, 0x04, 0, 0, 0, 0, 0xEA, 0x05, 0, 0, 0},
		},
		{
			name:    "ncm",
			marshal: (&NCMDescriptor{NCMVersion: NCMVersion100}).MarshalTo,
			want:    []byte{0x06, 0x24, 0x1A, 0x00, 0x01, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, 32)
			n := tt.marshal(buf)
			if !bytes.Equal(buf[:n], tt.want) {
				t.Errorf("MarshalTo() = % X, want % X", buf[:n], tt.want)
			}
			if got := tt.marshal(buf[:len(tt.want)-1]); got != 0 {
				t.Errorf("MarshalTo(short) = %d, want 0", got)
			}
		})
	}
}

func TestNotification(t *testing.T) {
	n := Notification{
		Code:      NotificationNetworkConnection,
		Value:     1,
		Interface: 1,
	}
	var buf [NotificationSize]byte
	n.MarshalTo(buf[:])

	want := []byte{0xA1, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00}
	if !bytes.Equal(buf[:], want) {
		t.Errorf("MarshalTo() = % X, want % X", buf[:], want)
	}

	var got Notification
	if !ParseNotification(buf[:], &got) || got != n {
		t.Errorf("ParseNotification() = %+v, want %+v", got, n)
	}
	if ParseNotification(buf[:4], &got) {
		t.Error("ParseNotification(short) = true")
	}
}
