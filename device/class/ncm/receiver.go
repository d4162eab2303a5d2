package ncm

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/ardnew/usbncm/device/class/cdc"
	"github.com/ardnew/usbncm/pkg"
)

// Receiver is the receive half: it reassembles NTBs from the bulk OUT
// endpoint and hands out their datagrams one per call. It also owns the
// interrupt endpoint used to announce the link. A Receiver is not safe for
// concurrent use.
type Receiver struct {
	ep      EndpointOut
	notify  EndpointIn
	state   *LinkState
	metrics *Metrics

	dataInterface uint8
	settleDelay   time.Duration

	ntb    [NTBMaxSize]byte
	packet []byte
	cur    cursor
}

func newReceiver(ep EndpointOut, notify EndpointIn, state *LinkState, metrics *Metrics, dataInterface uint8, settle time.Duration) *Receiver {
	return &Receiver{
		ep:            ep,
		notify:        notify,
		state:         state,
		metrics:       metrics,
		dataInterface: dataInterface,
		settleDelay:   settle,
		packet:        make([]byte, ep.Info().MaxPacketSize),
	}
}

// WaitConnection blocks until the host enables the data interface, waits
// the settle delay, and sends NETWORK_CONNECTION (connected) on the
// interrupt endpoint. A failed notification write is returned as is; the
// caller is expected to call WaitConnection again.
func (r *Receiver) WaitConnection(ctx context.Context) error {
	for {
		if err := r.state.WaitRx(ctx); err != nil {
			return err
		}
		if err := r.ep.WaitEnabled(ctx); err != nil {
			return err
		}

		timer := time.NewTimer(r.settleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if r.state.Enabled() {
			break
		}
		pkg.LogDebug(pkg.ComponentNCM, "link dropped while settling")
	}

	n := cdc.Notification{
		Code:      cdc.NotificationNetworkConnection,
		Value:     1,
		Interface: uint16(r.dataInterface),
	}
	var buf [cdc.NotificationSize]byte
	n.MarshalTo(buf[:])
	if err := r.notify.Write(ctx, buf[:]); err != nil {
		r.metrics.transferError("notify")
		return errors.Wrap(err, "send connection notification")
	}
	pkg.LogInfo(pkg.ComponentNCM, "link up",
		"interface", r.dataInterface)
	return nil
}

// ReadPacket copies the next datagram into buf and returns its length.
//
// Datagrams of the current NTB are served before the endpoint is read
// again. A malformed NTB yields a *ProtocolError and is dropped. A datagram
// larger than buf fails with pkg.ErrBufferTooSmall and is skipped. Endpoint
// errors are returned wrapped; the partial NTB is discarded.
func (r *Receiver) ReadPacket(ctx context.Context, buf []byte) (int, error) {
	for {
		if !r.cur.active() {
			n, err := r.readNTB(ctx)
			if err != nil {
				return 0, err
			}
			if err := r.cur.reset(r.ntb[:n]); err != nil {
				return 0, r.dropped(err)
			}
		}

		dg, ok, err := r.cur.next()
		if err != nil {
			return 0, r.dropped(err)
		}
		if !ok {
			continue
		}
		if len(dg) > len(buf) {
			return 0, errors.Wrapf(pkg.ErrBufferTooSmall,
				"datagram of %d bytes, buffer of %d", len(dg), len(buf))
		}
		r.metrics.received(len(dg))
		return copy(buf, dg), nil
	}
}

func (r *Receiver) dropped(err error) error {
	r.metrics.protocolError()
	pkg.LogWarn(pkg.ComponentNCM, "dropping malformed NTB",
		"error", err)
	return err
}

// readNTB reads packets until one shorter than the max packet size ends
// the transfer. An NTB longer than NTBMaxSize is drained to its end and
// reported as a ProtocolError.
func (r *Receiver) readNTB(ctx context.Context) (int, error) {
	m := len(r.packet)
	n := 0
	overflow := false
	for {
		k, err := r.ep.Read(ctx, r.packet)
		if err != nil {
			r.metrics.transferError("out")
			return 0, errors.Wrap(err, "read NTB packet")
		}
		r.metrics.packetReceived()

		if overflow || n+k > len(r.ntb) {
			overflow = true
		} else {
			n += copy(r.ntb[n:], r.packet[:k])
		}
		if k < m {
			break
		}
	}
	if overflow {
		return 0, r.dropped(protocolError("NTB exceeds maximum size", NTBMaxSize))
	}
	return n, nil
}
