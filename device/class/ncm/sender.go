package ncm

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ardnew/usbncm/device"
	"github.com/ardnew/usbncm/pkg"
)

// EndpointIn is the device-to-host endpoint primitive the NCM function
// writes to. *device.Endpoint implements it.
type EndpointIn interface {
	Write(ctx context.Context, data []byte) error
	WaitEnabled(ctx context.Context) error
	Info() device.EndpointInfo
}

// EndpointOut is the host-to-device endpoint primitive the NCM function
// reads from. *device.Endpoint implements it.
type EndpointOut interface {
	Read(ctx context.Context, buf []byte) (int, error)
	WaitEnabled(ctx context.Context) error
	Info() device.EndpointInfo
}

// Sender is the transmit half: it wraps each datagram in its own NTB and
// writes it to the bulk IN endpoint. A Sender is not safe for concurrent use.
type Sender struct {
	ep      EndpointIn
	state   *LinkState
	metrics *Metrics
	seq     uint16
	ntb     [NTBMaxSize]byte
}

func newSender(ep EndpointIn, state *LinkState, metrics *Metrics) *Sender {
	return &Sender{ep: ep, state: state, metrics: metrics}
}

// Sequence returns the sequence number the next NTB will carry.
func (s *Sender) Sequence() uint16 {
	return s.seq
}

// WaitLinkUp blocks until the host selects the data interface's active
// alternate setting.
func (s *Sender) WaitLinkUp(ctx context.Context) error {
	return s.state.WaitTx(ctx)
}

// WritePacket sends datagram as one NTB. The sequence number advances on
// every call, even one that fails.
//
// The NTB is split into packets of the endpoint's max packet size M. A
// transfer whose length is a multiple of M, including one that exactly
// fills a single packet, is terminated with a zero-length packet.
// Endpoint errors are returned wrapped and unretried; datagrams larger
// than MaxDatagramSize fail with pkg.ErrBufferOverflow before any I/O.
func (s *Sender) WritePacket(ctx context.Context, datagram []byte) error {
	seq := s.seq
	s.seq++

	total := HeaderSize + len(datagram)
	if total > NTBMaxSize {
		return errors.Wrapf(pkg.ErrBufferOverflow, "datagram of %d bytes", len(datagram))
	}

	nth := NTH{Sequence: seq, BlockLength: uint16(total), NDPIndex: NTHSize}
	nth.MarshalTo(s.ntb[:])
	putSingleNDP(s.ntb[NTHSize:], uint16(len(datagram)))
	copy(s.ntb[HeaderSize:], datagram)

	m := int(s.ep.Info().MaxPacketSize)
	ntb := s.ntb[:total]
	packets, zlps := 0, 0
	for len(ntb) > 0 {
		n := min(m, len(ntb))
		if err := s.ep.Write(ctx, ntb[:n]); err != nil {
			s.metrics.transferError("in")
			return errors.Wrapf(err, "write NTB %d packet %d", seq, packets)
		}
		packets++
		ntb = ntb[n:]
	}
	if total%m == 0 {
		if err := s.ep.Write(ctx, nil); err != nil {
			s.metrics.transferError("in")
			return errors.Wrapf(err, "write NTB %d terminator", seq)
		}
		packets++
		zlps++
	}

	s.metrics.sent(len(datagram), packets, zlps)
	pkg.LogDebug(pkg.ComponentNCM, "NTB sent",
		"sequence", seq,
		"length", len(datagram),
		"packets", packets)
	return nil
}
