package ncm

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/ardnew/usbncm/pkg"
)

// NTH is the 16-bit NCM Transfer Header that starts every NTB.
type NTH struct {
	Sequence    uint16 // wSequence, wraps
	BlockLength uint16 // wBlockLength, whole NTB
	NDPIndex    uint16 // wNdpIndex, first NDP
}

// MarshalTo writes the header to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (h *NTH) MarshalTo(buf []byte) int {
	if len(buf) < NTHSize {
		return 0
	}
	binary.LittleEndian.PutUint32(buf[0:4], NTHSignature)
	binary.LittleEndian.PutUint16(buf[4:6], NTHSize)
	binary.LittleEndian.PutUint16(buf[6:8], h.Sequence)
	binary.LittleEndian.PutUint16(buf[8:10], h.BlockLength)
	binary.LittleEndian.PutUint16(buf[10:12], h.NDPIndex)
	return NTHSize
}

// ParseNTH validates the header at the start of ntb and stores it in out.
// BlockLength may not exceed len(ntb).
func ParseNTH(ntb []byte, out *NTH) error {
	if len(ntb) < NTHSize {
		return protocolError("short NTB", len(ntb))
	}
	if binary.LittleEndian.Uint32(ntb[0:4]) != NTHSignature {
		return protocolError("bad NTH signature", 0)
	}
	if binary.LittleEndian.Uint16(ntb[4:6]) != NTHSize {
		return protocolError("bad NTH length", 4)
	}
	out.Sequence = binary.LittleEndian.Uint16(ntb[6:8])
	out.BlockLength = binary.LittleEndian.Uint16(ntb[8:10])
	out.NDPIndex = binary.LittleEndian.Uint16(ntb[10:12])

	switch {
	case int(out.BlockLength) > len(ntb):
		return protocolError("block length exceeds received data", 8)
	case out.BlockLength < NTHSize:
		return protocolError("block length shorter than header", 8)
	case out.NDPIndex == 0:
		return protocolError("zero NDP index", 10)
	}
	return nil
}

// putSingleNDP writes an NDP describing one datagram at HeaderSize.
func putSingleNDP(buf []byte, length uint16) {
	binary.LittleEndian.PutUint32(buf[0:4], NDPSignature)
	binary.LittleEndian.PutUint16(buf[4:6], NDPMinSize)
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint16(buf[8:10], HeaderSize)
	binary.LittleEndian.PutUint16(buf[10:12], length)
	binary.LittleEndian.PutUint32(buf[12:16], 0)
}

// AppendNTB appends an NTB carrying datagrams to dst and returns the
// extended slice. All datagrams are described by a single NDP that follows
// the header, and each payload starts on a 4-byte boundary. It fails with
// pkg.ErrBufferOverflow if the NTB would exceed NTBMaxSize.
func AppendNTB(dst []byte, seq uint16, datagrams ...[]byte) ([]byte, error) {
	ndpLen := max(NDPMinSize, NDPHeaderSize+4*(len(datagrams)+1))
	size := NTHSize + ndpLen
	for _, dg := range datagrams {
		size = align(size, ndpAlignment) + len(dg)
	}
	if size > NTBMaxSize {
		return dst, errors.Wrapf(pkg.ErrBufferOverflow, "NTB of %d bytes", size)
	}

	start := len(dst)
	dst = append(dst, make([]byte, size)...)
	ntb := dst[start:]

	nth := NTH{Sequence: seq, BlockLength: uint16(size), NDPIndex: NTHSize}
	nth.MarshalTo(ntb)

	ndp := ntb[NTHSize:]
	binary.LittleEndian.PutUint32(ndp[0:4], NDPSignature)
	binary.LittleEndian.PutUint16(ndp[4:6], uint16(ndpLen))
	binary.LittleEndian.PutUint16(ndp[6:8], 0)

	off := NTHSize + ndpLen
	for i, dg := range datagrams {
		off = align(off, ndpAlignment)
		entry := ndp[NDPHeaderSize+4*i:]
		binary.LittleEndian.PutUint16(entry[0:2], uint16(off))
		binary.LittleEndian.PutUint16(entry[2:4], uint16(len(dg)))
		off += copy(ntb[off:], dg)
	}
	return dst, nil
}

func align(n, a int) int {
	return (n + a - 1) / a * a
}

// ParseNTB validates ntb and calls fn with each datagram in order until fn
// returns false. Datagram slices alias ntb.
func ParseNTB(ntb []byte, fn func(datagram []byte) bool) error {
	var c cursor
	if err := c.reset(ntb); err != nil {
		return err
	}
	for {
		dg, ok, err := c.next()
		if err != nil || !ok {
			return err
		}
		if !fn(dg) {
			return nil
		}
	}
}

// maxNDPs bounds the NDP chain walked in one NTB; a longer chain must loop.
const maxNDPs = NTBMaxSize / NDPMinSize

// cursor walks the datagrams of one validated NTB: the NDP being served and
// the next entry within it. A zero ndp means the NTB is exhausted.
type cursor struct {
	ntb   []byte
	ndp   int
	entry int
	hops  int
}

func (c *cursor) active() bool {
	return c.ndp != 0
}

// clear drops whatever remains of the current NTB.
func (c *cursor) clear() {
	c.ntb = nil
	c.ndp = 0
	c.entry = 0
	c.hops = 0
}

// reset validates the NTH of ntb and positions the cursor on its first NDP.
func (c *cursor) reset(ntb []byte) error {
	c.clear()
	var nth NTH
	if err := ParseNTH(ntb, &nth); err != nil {
		return err
	}
	c.ntb = ntb[:nth.BlockLength]
	return c.enter(int(nth.NDPIndex))
}

// enter validates the NDP at off and makes it current.
func (c *cursor) enter(off int) error {
	c.hops++
	switch {
	case c.hops > maxNDPs:
		c.clear()
		return protocolError("NDP chain loop", off)
	case off < NTHSize || off+NDPHeaderSize > len(c.ntb):
		c.clear()
		return protocolError("NDP out of bounds", off)
	}
	ndp := c.ntb[off:]
	if binary.LittleEndian.Uint32(ndp[0:4]) != NDPSignature {
		c.clear()
		return protocolError("bad NDP signature", off)
	}
	length := int(binary.LittleEndian.Uint16(ndp[4:6]))
	if length < NDPMinSize || off+length > len(c.ntb) {
		c.clear()
		return protocolError("bad NDP length", off+4)
	}
	c.ndp = off
	c.entry = 0
	return nil
}

// next returns the next datagram. ok is false once the NDP chain ends, at
// which point the cursor is inactive. Any error also deactivates it.
func (c *cursor) next() (datagram []byte, ok bool, err error) {
	for c.active() {
		ndp := c.ntb[c.ndp:]
		length := int(binary.LittleEndian.Uint16(ndp[4:6]))
		pos := NDPHeaderSize + 4*c.entry

		if pos+4 <= length {
			index := int(binary.LittleEndian.Uint16(ndp[pos : pos+2]))
			size := int(binary.LittleEndian.Uint16(ndp[pos+2 : pos+4]))
			if index != 0 || size != 0 {
				c.entry++
				if index < NTHSize || index+size > len(c.ntb) {
					off := c.ndp + pos
					c.clear()
					return nil, false, protocolError("datagram out of bounds", off)
				}
				return c.ntb[index : index+size], true, nil
			}
		}

		// Terminator, or entries ran to the end of the NDP.
		nextIndex := int(binary.LittleEndian.Uint16(ndp[6:8]))
		if nextIndex == 0 {
			c.clear()
			return nil, false, nil
		}
		if err := c.enter(nextIndex); err != nil {
			return nil, false, err
		}
	}
	return nil, false, nil
}

// NTBParameters is the GET_NTB_PARAMETERS response structure.
type NTBParameters struct {
	FormatsSupported    uint16
	InMaxSize           uint32
	InDivisor           uint16
	InPayloadRemainder  uint16
	InAlignment         uint16
	OutMaxSize          uint32
	OutDivisor          uint16
	OutPayloadRemainder uint16
	OutAlignment        uint16
	OutMaxDatagrams     uint16
}

// DefaultNTBParameters returns the parameters this function advertises:
// 16-bit NTBs only, NTBMaxSize in both directions, 4-byte alignment, and at
// most 20 datagrams per host NTB.
func DefaultNTBParameters() NTBParameters {
	return NTBParameters{
		FormatsSupported:    ntbFormats16,
		InMaxSize:           NTBMaxSize,
		InDivisor:           ndpDivisor,
		InPayloadRemainder:  ndpRemainder,
		InAlignment:         ndpAlignment,
		OutMaxSize:          NTBMaxSize,
		OutDivisor:          ndpDivisor,
		OutPayloadRemainder: ndpRemainder,
		OutAlignment:        ndpAlignment,
		OutMaxDatagrams:     ntbOutDatagrams,
	}
}

// MarshalTo writes the 28-byte structure to buf.
func (p *NTBParameters) MarshalTo(buf []byte) int {
	if len(buf) < NTBParametersSize {
		return 0
	}
	binary.LittleEndian.PutUint16(buf[0:2], NTBParametersSize)
	binary.LittleEndian.PutUint16(buf[2:4], p.FormatsSupported)
	binary.LittleEndian.PutUint32(buf[4:8], p.InMaxSize)
	binary.LittleEndian.PutUint16(buf[8:10], p.InDivisor)
	binary.LittleEndian.PutUint16(buf[10:12], p.InPayloadRemainder)
	binary.LittleEndian.PutUint16(buf[12:14], p.InAlignment)
	binary.LittleEndian.PutUint16(buf[14:16], 0)
	binary.LittleEndian.PutUint32(buf[16:20], p.OutMaxSize)
	binary.LittleEndian.PutUint16(buf[20:22], p.OutDivisor)
	binary.LittleEndian.PutUint16(buf[22:24], p.OutPayloadRemainder)
	binary.LittleEndian.PutUint16(buf[24:26], p.OutAlignment)
	binary.LittleEndian.PutUint16(buf[26:28], p.OutMaxDatagrams)
	return NTBParametersSize
}

// ParseNTBParameters parses a GET_NTB_PARAMETERS response.
func ParseNTBParameters(data []byte, out *NTBParameters) error {
	if len(data) < NTBParametersSize || binary.LittleEndian.Uint16(data[0:2]) != NTBParametersSize {
		return pkg.ErrDescriptorTooShort
	}
	out.FormatsSupported = binary.LittleEndian.Uint16(data[2:4])
	out.InMaxSize = binary.LittleEndian.Uint32(data[4:8])
	out.InDivisor = binary.LittleEndian.Uint16(data[8:10])
	out.InPayloadRemainder = binary.LittleEndian.Uint16(data[10:12])
	out.InAlignment = binary.LittleEndian.Uint16(data[12:14])
	out.OutMaxSize = binary.LittleEndian.Uint32(data[16:20])
	out.OutDivisor = binary.LittleEndian.Uint16(data[20:22])
	out.OutPayloadRemainder = binary.LittleEndian.Uint16(data[22:24])
	out.OutAlignment = binary.LittleEndian.Uint16(data[24:26])
	out.OutMaxDatagrams = binary.LittleEndian.Uint16(data[26:28])
	return nil
}
