package hostsim

import (
	"encoding/binary"
	"net"

	"github.com/google/netstack/tcpip"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"

	"github.com/ardnew/usbncm/pkg"
)

// Addresses carried by test frames. The link is point to point, so these
// never leave the simulation.
var (
	HostIP   = tcpip.Address("\x0a\x4e\x43\x01") // 10.78.67.1
	DeviceIP = tcpip.Address("\x0a\x4e\x43\x02") // 10.78.67.2
)

const (
	selftestPort = 7 // echo

	frameHeaderSize = header.EthernetMinimumSize + header.IPv4MinimumSize + header.UDPMinimumSize

	// MinFrameSize fits the headers and the sequence number.
	MinFrameSize = frameHeaderSize + 4
)

// Frame builds an Ethernet/IPv4/UDP frame of size bytes whose payload starts
// with seq and continues with a pattern derived from it.
func Frame(src, dst net.HardwareAddr, seq uint32, size int) ([]byte, error) {
	if size < MinFrameSize {
		return nil, errors.Wrapf(pkg.ErrInvalidParameter, "frame size %d below %d", size, MinFrameSize)
	}
	b := make([]byte, size)

	eth := header.Ethernet(b)
	eth.Encode(&header.EthernetFields{
		SrcAddr: tcpip.LinkAddress(src),
		DstAddr: tcpip.LinkAddress(dst),
		Type:    header.IPv4ProtocolNumber,
	})

	ip := header.IPv4(b[header.EthernetMinimumSize:])
	ip.Encode(&header.IPv4Fields{
		IHL:         header.IPv4MinimumSize,
		TotalLength: uint16(size - header.EthernetMinimumSize),
		ID:          uint16(seq),
		TTL:         64,
		Protocol:    uint8(header.UDPProtocolNumber),
		SrcAddr:     HostIP,
		DstAddr:     DeviceIP,
	})
	ip.SetChecksum(^ip.CalculateChecksum())

	udp := header.UDP(ip[header.IPv4MinimumSize:])
	udp.Encode(&header.UDPFields{
		SrcPort: selftestPort,
		DstPort: selftestPort,
		Length:  uint16(len(udp)),
	})

	payload := udp[header.UDPMinimumSize:]
	binary.BigEndian.PutUint32(payload, seq)
	fill(payload[4:], seq)
	return b, nil
}

func fill(b []byte, seq uint32) {
	for i := range b {
		b[i] = byte(seq) + byte(i)
	}
}

// CheckFrame validates a frame built by Frame and addressed to dst, and
// returns its sequence number.
func CheckFrame(frame []byte, dst net.HardwareAddr) (uint32, error) {
	if len(frame) < MinFrameSize {
		return 0, errors.Errorf("frame of %d bytes is too short", len(frame))
	}

	eth := header.Ethernet(frame)
	if eth.Type() != header.IPv4ProtocolNumber {
		return 0, errors.Errorf("ethertype %#04x", eth.Type())
	}
	if got := eth.DestinationAddress(); got != tcpip.LinkAddress(dst) {
		return 0, errors.Errorf("destination %v, want %v", net.HardwareAddr(got), dst)
	}

	ip := header.IPv4(frame[header.EthernetMinimumSize:])
	if !ip.IsValid(len(ip)) {
		return 0, errors.New("invalid IPv4 header")
	}
	if ip.CalculateChecksum() != 0xFFFF {
		return 0, errors.New("IPv4 checksum mismatch")
	}
	if ip.Protocol() != uint8(header.UDPProtocolNumber) {
		return 0, errors.Errorf("IP protocol %d", ip.Protocol())
	}

	udp := header.UDP(ip.Payload())
	if int(udp.Length()) != len(udp) {
		return 0, errors.Errorf("UDP length %d, have %d", udp.Length(), len(udp))
	}

	payload := udp.Payload()
	seq := binary.BigEndian.Uint32(payload)
	for i, c := range payload[4:] {
		if c != byte(seq)+byte(i) {
			return seq, errors.Errorf("frame %d: payload corrupt at byte %d", seq, i)
		}
	}
	return seq, nil
}

// SwapAddresses exchanges the source and destination MAC addresses of an
// Ethernet frame in place.
func SwapAddresses(frame []byte) {
	if len(frame) < header.EthernetMinimumSize {
		return
	}
	var tmp [6]byte
	copy(tmp[:], frame[0:6])
	copy(frame[0:6], frame[6:12])
	copy(frame[6:12], tmp[:])
}
