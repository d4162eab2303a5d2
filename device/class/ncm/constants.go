package ncm

import "time"

// NTB wire constants (16-bit NTB format).
const (
	// NTBMaxSize is the largest NTB accepted or produced in either direction.
	NTBMaxSize = 1600

	// NTHSignature is "NCMH" read as a little-endian uint32.
	NTHSignature uint32 = 0x484D434E

	// NDPSignature is "NCM0" read as a little-endian uint32 (no CRC).
	NDPSignature uint32 = 0x304D434E

	// NTHSize is the length of the NTB header.
	NTHSize = 12

	// NDPHeaderSize is the fixed part of an NDP before its entries.
	NDPHeaderSize = 8

	// NDPMinSize is the smallest legal NDP: one entry plus the terminator.
	NDPMinSize = 16

	// HeaderSize is the NTH plus a single-entry NDP; it is also the index
	// of the datagram in every NTB a Sender builds.
	HeaderSize = NTHSize + NDPMinSize

	// MaxDatagramSize is the largest datagram that fits a single-datagram NTB.
	MaxDatagramSize = NTBMaxSize - HeaderSize
)

// NTB parameters advertised by GET_NTB_PARAMETERS.
const (
	NTBParametersSize = 28

	ntbFormats16     = 0x0001
	ndpDivisor       = 4
	ndpRemainder     = 0
	ndpAlignment     = 4
	ntbOutDatagrams  = 20
	notifyPacketSize = 8
	notifyInterval   = 255
)

// Defaults applied by [New].
const (
	DefaultMaxPacketSize  = 64
	DefaultSettleDelay    = time.Second
	DefaultMaxSegmentSize = 1514
)

// Alternate settings of the data interface.
const (
	AltDisabled = 0 // no endpoints, link down
	AltEnabled  = 1 // bulk endpoints, link up
)
