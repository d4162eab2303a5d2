package device

import "fmt"

// Fixed limits for the builder's tables.
const (
	// MaxInterfaces is the maximum number of interfaces in the configuration.
	MaxInterfaces = 8

	// MaxAltSettings is the maximum number of alternate settings per interface.
	MaxAltSettings = 4

	// MaxEndpointsPerAlt is the maximum number of endpoints per alternate setting.
	MaxEndpointsPerAlt = 4

	// MaxStrings is the maximum number of string descriptors per device.
	MaxStrings = 16

	// MaxControlDataSize is the largest control data stage the stack handles.
	MaxControlDataSize = 512
)

// ConfigurationValue is the bConfigurationValue of the single configuration
// built by [Builder].
const ConfigurationValue = 1

// Device states as defined in USB 2.0 specification section 9.1.
const (
	StateAttached   State = 0 // Device is attached but not powered
	StatePowered    State = 1 // Device is powered
	StateDefault    State = 2 // Device has been reset, using default address
	StateAddress    State = 3 // Device has been assigned a unique address
	StateConfigured State = 4 // Device is configured and operational
	StateSuspended  State = 5 // Device is in suspend mode
)

// State represents USB device state.
type State uint8

// String returns a human-readable state description.
func (s State) String() string {
	switch s {
	case StateAttached:
		return "Attached"
	case StatePowered:
		return "Powered"
	case StateDefault:
		return "Default"
	case StateAddress:
		return "Address"
	case StateConfigured:
		return "Configured"
	case StateSuspended:
		return "Suspended"
	default:
		return fmt.Sprintf("Unknown State (%d)", s)
	}
}

// USB Descriptor Types (USB 2.0 Spec Table 9-5).
const (
	DescriptorTypeDevice               = 0x01
	DescriptorTypeConfiguration        = 0x02
	DescriptorTypeString               = 0x03
	DescriptorTypeInterface            = 0x04
	DescriptorTypeEndpoint             = 0x05
	DescriptorTypeDeviceQualifier      = 0x06
	DescriptorTypeInterfaceAssociation = 0x0B
	DescriptorTypeCSInterface          = 0x24 // Class-specific interface
)

// USB Class Codes used at device level.
const (
	ClassPerInterface = 0x00 // Class defined at interface level
	ClassMisc         = 0xEF // Miscellaneous (IAD composite)
)

// Standard USB request codes (USB 2.0 Spec Table 9-4).
const (
	RequestGetStatus        = 0x00
	RequestClearFeature     = 0x01
	RequestSetFeature       = 0x03
	RequestSetAddress       = 0x05
	RequestGetDescriptor    = 0x06
	RequestGetConfiguration = 0x08
	RequestSetConfiguration = 0x09
	RequestGetInterface     = 0x0A
	RequestSetInterface     = 0x0B
)

// FeatureEndpointHalt is the ENDPOINT_HALT feature selector.
const FeatureEndpointHalt = 0x00

// Request type masks (USB 2.0 Spec Table 9-2).
const (
	RequestTypeDirectionMask = 0x80
	RequestTypeTypeMask      = 0x60
	RequestTypeRecipientMask = 0x1F
)

// Request type direction values.
const (
	RequestDirectionHostToDevice = 0x00
	RequestDirectionDeviceToHost = 0x80
)

// Request type values.
const (
	RequestTypeStandard = 0x00
	RequestTypeClass    = 0x20
	RequestTypeVendor   = 0x40
)

// Request recipient values.
const (
	RequestRecipientDevice    = 0x00
	RequestRecipientInterface = 0x01
	RequestRecipientEndpoint  = 0x02
)

// Endpoint transfer types (USB 2.0 Spec Table 9-13).
const (
	EndpointTypeControl     = 0x00
	EndpointTypeIsochronous = 0x01
	EndpointTypeBulk        = 0x02
	EndpointTypeInterrupt   = 0x03
)

// Endpoint directions.
const (
	EndpointDirectionOut = 0x00 // Host to device
	EndpointDirectionIn  = 0x80 // Device to host
)

// LangIDUSEnglish is the US English language identifier.
const LangIDUSEnglish = 0x0409
