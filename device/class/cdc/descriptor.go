package cdc

import "encoding/binary"

// Functional descriptor sizes in bytes.
const (
	HeaderDescriptorSize   = 5
	UnionDescriptorSize    = 5 // one subordinate interface
	EthernetDescriptorSize = 13
	NCMDescriptorSize      = 6
	NotificationSize       = 8
)

// HeaderDescriptor is the CDC Header Functional Descriptor.
type HeaderDescriptor struct {
	CDCVersion uint16 // CDC specification release number (BCD)
}

// MarshalTo writes the descriptor to buf.
func (d *HeaderDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < HeaderDescriptorSize {
		return 0
	}
	buf[0] = HeaderDescriptorSize
	buf[1] = DescriptorTypeCSInterface
	buf[2] = SubtypeHeader
	binary.LittleEndian.PutUint16(buf[3:5], d.CDCVersion)
	return HeaderDescriptorSize
}

// UnionDescriptor is the Union Functional Descriptor.
type UnionDescriptor struct {
	ControlInterface     uint8 // Communications interface number
	SubordinateInterface uint8 // Data interface number
}

// MarshalTo writes the descriptor to buf.
func (d *UnionDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < UnionDescriptorSize {
		return 0
	}
	buf[0] = UnionDescriptorSize
	buf[1] = DescriptorTypeCSInterface
	buf[2] = SubtypeUnion
	buf[3] = d.ControlInterface
	buf[4] = d.SubordinateInterface
	return UnionDescriptorSize
}

// EthernetDescriptor is the Ethernet Networking Functional Descriptor.
type EthernetDescriptor struct {
	MACAddressIndex    uint8  // String index of the 12 hex digit MAC address
	EthernetStatistics uint32 // Statistics bitmap
	MaxSegmentSize     uint16 // Largest Ethernet frame, including header
	NumberMCFilters    uint16 // Multicast filters
	NumberPowerFilters uint8  // Wake-up pattern filters
}

// MarshalTo writes the descriptor to buf.
func (d *EthernetDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < EthernetDescriptorSize {
		return 0
	}
	buf[0] = EthernetDescriptorSize
	buf[1] = DescriptorTypeCSInterface
	buf[2] = SubtypeEthernet
	buf[3] = d.MACAddressIndex
	binary.LittleEndian.PutUint32(buf[4:8], d.EthernetStatistics)
	binary.LittleEndian.PutUint16(buf[8:10], d.MaxSegmentSize)
	binary.LittleEndian.PutUint16(buf[10:12], d.NumberMCFilters)
	buf[12] = d.NumberPowerFilters
	return EthernetDescriptorSize
}

// NCMDescriptor is the NCM Functional Descriptor.
type NCMDescriptor struct {
	NCMVersion          uint16 // NCM specification release number (BCD)
	NetworkCapabilities uint8  // Optional requests supported
}

// MarshalTo writes the descriptor to buf.
func (d *NCMDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < NCMDescriptorSize {
		return 0
	}
	buf[0] = NCMDescriptorSize
	buf[1] = DescriptorTypeCSInterface
	buf[2] = SubtypeNCM
	binary.LittleEndian.PutUint16(buf[3:5], d.NCMVersion)
	buf[5] = d.NetworkCapabilities
	return NCMDescriptorSize
}

// Notification is the 8-byte header of a CDC notification sent on the
// communications interface's interrupt IN endpoint.
type Notification struct {
	Code      uint8  // bNotification
	Value     uint16 // wValue
	Interface uint16 // wIndex
	Length    uint16 // wLength of the trailing data
}

// MarshalTo writes the notification header to buf.
func (n *Notification) MarshalTo(buf []byte) int {
	if len(buf) < NotificationSize {
		return 0
	}
	buf[0] = NotificationRequestType
	buf[1] = n.Code
	binary.LittleEndian.PutUint16(buf[2:4], n.Value)
	binary.LittleEndian.PutUint16(buf[4:6], n.Interface)
	binary.LittleEndian.PutUint16(buf[6:8], n.Length)
	return NotificationSize
}

// ParseNotification parses a notification header from data.
// Returns false if data is too short or is not a class notification.
func ParseNotification(data []byte, out *Notification) bool {
	if len(data) < NotificationSize || data[0] != NotificationRequestType {
		return false
	}
	out.Code = data[1]
	out.Value = binary.LittleEndian.Uint16(data[2:4])
	out.Interface = binary.LittleEndian.Uint16(data[4:6])
	out.Length = binary.LittleEndian.Uint16(data[6:8])
	return true
}
