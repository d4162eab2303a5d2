package cdc

// CDC class-specific descriptor type.
const DescriptorTypeCSInterface = 0x24

// CDC Functional Descriptor subtypes.
const (
	SubtypeHeader   = 0x00 // Header Functional Descriptor
	SubtypeUnion    = 0x06 // Union Functional Descriptor
	SubtypeEthernet = 0x0F // Ethernet Networking Functional Descriptor
	SubtypeNCM      = 0x1A // NCM Functional Descriptor
)

// CDC Class codes.
const (
	ClassCDC     = 0x02 // Communications Device Class
	ClassCDCData = 0x0A // CDC Data Class
)

// CDC Subclass codes.
const (
	SubclassNone = 0x00 // No subclass
	SubclassACM  = 0x02 // Abstract Control Model
	SubclassECM  = 0x06 // Ethernet Networking Control Model
	SubclassNCM  = 0x0D // Network Control Model
)

// CDC Protocol codes.
const (
	ProtocolNone = 0x00 // No protocol (communications interface)
	ProtocolNTB  = 0x01 // Network Transfer Block (NCM data interface)
)

// CDC Request codes used by the networking models.
const (
	RequestSendEncapsulatedCommand = 0x00
	RequestGetEncapsulatedResponse = 0x01
	RequestSetEthernetPacketFilter = 0x43
	RequestGetNTBParameters        = 0x80
	RequestGetNetAddress           = 0x81
	RequestSetNetAddress           = 0x82
	RequestGetNTBFormat            = 0x83
	RequestSetNTBFormat            = 0x84
	RequestGetNTBInputSize         = 0x85
	RequestSetNTBInputSize         = 0x86
	RequestGetMaxDatagramSize      = 0x87
	RequestSetMaxDatagramSize      = 0x88
	RequestGetCRCMode              = 0x89
	RequestSetCRCMode              = 0x8A
)

// CDC Notification codes.
const (
	NotificationNetworkConnection     = 0x00
	NotificationResponseAvailable     = 0x01
	NotificationConnectionSpeedChange = 0x2A
)

// NotificationRequestType is bmRequestType of every CDC notification:
// device-to-host, class, interface.
const NotificationRequestType = 0xA1

// CDC specification releases (BCD).
const (
	CDCVersion110 = 0x0110
	NCMVersion100 = 0x0100
)
