package memhal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbncm/device/hal"
	"github.com/ardnew/usbncm/pkg"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func bulkPair() []hal.EndpointConfig {
	return []hal.EndpointConfig{
		{Address: 0x01, Attributes: 0x02, MaxPacketSize: 64},
		{Address: 0x82, Attributes: 0x02, MaxPacketSize: 64},
	}
}

func TestStartStop(t *testing.T) {
	r := require.New(t)
	h := New()
	r.False(h.IsConnected())
	r.NoError(h.Init(testContext(t)))
	r.NoError(h.Start())
	r.True(h.IsConnected())
	r.NoError(h.WaitConnect(testContext(t)))
	r.Equal(hal.SpeedFull, h.GetSpeed())

	r.NoError(h.Stop())
	r.NoError(h.Stop())
	r.False(h.IsConnected())

	var setup hal.SetupPacket
	r.True(errors.Is(h.ReadSetup(testContext(t), &setup), pkg.ErrCancelled))
}

func TestControlIn(t *testing.T) {
	r := require.New(t)
	h := New()
	host := h.Host()
	ctx := testContext(t)

	go func() {
		var setup hal.SetupPacket
		if err := h.ReadSetup(ctx, &setup); err != nil {
			return
		}
		_ = h.WriteEP0(ctx, []byte{byte(setup.Request), 0xAA})
	}()

	resp, err := host.Control(ctx, hal.SetupPacket{RequestType: 0x80, Request: 0x06, Length: 18}, nil)
	r.NoError(err)
	r.Equal([]byte{0x06, 0xAA}, resp)
}

func TestControlOutData(t *testing.T) {
	r := require.New(t)
	h := New()
	host := h.Host()
	ctx := testContext(t)

	got := make(chan []byte, 1)
	go func() {
		var setup hal.SetupPacket
		if err := h.ReadSetup(ctx, &setup); err != nil {
			return
		}
		buf := make([]byte, setup.Length)
		n, _ := h.ReadEP0(ctx, buf)
		got <- buf[:n]
		_ = h.AckEP0()
	}()

	_, err := host.Control(ctx, hal.SetupPacket{RequestType: 0x21, Request: 0x86, Length: 4}, []byte{1, 2, 3, 4})
	r.NoError(err)
	r.Equal([]byte{1, 2, 3, 4}, <-got)

	_, err = host.Control(ctx, hal.SetupPacket{RequestType: 0x21, Length: 4}, []byte{1})
	r.True(errors.Is(err, pkg.ErrInvalidParameter))
}

func TestControlStall(t *testing.T) {
	r := require.New(t)
	h := New()
	ctx := testContext(t)

	go func() {
		var setup hal.SetupPacket
		if err := h.ReadSetup(ctx, &setup); err != nil {
			return
		}
		_ = h.StallEP0()
	}()

	_, err := h.Host().Control(ctx, hal.SetupPacket{RequestType: 0xA1, Request: 0x81, Length: 6}, nil)
	r.True(errors.Is(err, pkg.ErrStall))

	// No transfer pending: answering is an error.
	r.True(errors.Is(h.AckEP0(), pkg.ErrInvalidState))
}

func TestReset(t *testing.T) {
	r := require.New(t)
	h := New()
	ctx := testContext(t)
	r.NoError(h.Host().Reset(ctx))

	var setup hal.SetupPacket
	r.True(errors.Is(h.ReadSetup(ctx, &setup), pkg.ErrReset))
}

func TestBulkPackets(t *testing.T) {
	r := require.New(t)
	h := New()
	host := h.Host()
	ctx := testContext(t)
	r.NoError(h.ConfigureEndpoints(bulkPair()))

	r.NoError(host.WritePacket(ctx, 0x01, []byte{1, 2, 3}))
	r.NoError(host.WritePacket(ctx, 0x01, nil))
	buf := make([]byte, 64)
	n, err := h.Read(ctx, 0x01, buf)
	r.NoError(err)
	r.Equal([]byte{1, 2, 3}, buf[:n])
	n, err = h.Read(ctx, 0x01, buf)
	r.NoError(err)
	r.Zero(n, "zero-length packet")

	n, err = h.Write(ctx, 0x82, []byte{9, 8})
	r.NoError(err)
	r.Equal(2, n)
	n, err = host.ReadPacket(ctx, 0x82, buf)
	r.NoError(err)
	r.Equal([]byte{9, 8}, buf[:n])

	_, err = h.Write(ctx, 0x82, make([]byte, 65))
	r.True(errors.Is(err, pkg.ErrBufferOverflow))

	_, err = h.Write(ctx, 0x01, []byte{1})
	r.True(errors.Is(err, pkg.ErrInvalidEndpoint))
	_, err = h.Read(ctx, 0x82, buf)
	r.True(errors.Is(err, pkg.ErrInvalidEndpoint))
	r.True(errors.Is(host.WritePacket(ctx, 0x82, nil), pkg.ErrInvalidEndpoint))
}

func TestUnconfiguredEndpoint(t *testing.T) {
	r := require.New(t)
	h := New()
	_, err := h.Read(testContext(t), 0x03, make([]byte, 8))
	r.True(errors.Is(err, pkg.ErrDisabled))
	r.True(errors.Is(h.ConfigureEndpoints([]hal.EndpointConfig{{Address: 0x80}}), pkg.ErrInvalidEndpoint))
}

func TestReconfigureKeepsQueues(t *testing.T) {
	r := require.New(t)
	h := New()
	host := h.Host()
	ctx := testContext(t)
	r.NoError(h.ConfigureEndpoints(bulkPair()))
	r.NoError(host.WritePacket(ctx, 0x01, []byte{7}))

	// Reconfiguring with the same endpoints keeps their queues.
	r.NoError(h.ConfigureEndpoints(bulkPair()))
	buf := make([]byte, 64)
	n, err := h.Read(ctx, 0x01, buf)
	r.NoError(err)
	r.Equal([]byte{7}, buf[:n])
}

func TestRemovedEndpointAbortsReader(t *testing.T) {
	r := require.New(t)
	h := New()
	r.NoError(h.ConfigureEndpoints(bulkPair()))
	ctx := testContext(t)

	done := make(chan error, 1)
	go func() {
		_, err := h.Read(ctx, 0x01, make([]byte, 64))
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	r.NoError(h.ConfigureEndpoints(nil))
	r.True(errors.Is(<-done, pkg.ErrDisabled))
}

func TestStall(t *testing.T) {
	r := require.New(t)
	h := New()
	host := h.Host()
	ctx := testContext(t)
	r.NoError(h.ConfigureEndpoints(bulkPair()))

	r.NoError(h.Stall(0x82))
	_, err := h.Write(ctx, 0x82, []byte{1})
	r.True(errors.Is(err, pkg.ErrStall))
	_, err = host.ReadPacket(ctx, 0x82, make([]byte, 8))
	r.True(errors.Is(err, pkg.ErrStall))

	r.NoError(h.ClearStall(0x82))
	_, err = h.Write(ctx, 0x82, []byte{1})
	r.NoError(err)

	r.True(errors.Is(h.Stall(0x05), pkg.ErrInvalidEndpoint))
	r.True(errors.Is(h.ClearStall(0x05), pkg.ErrInvalidEndpoint))
}

func TestSetAddress(t *testing.T) {
	r := require.New(t)
	h := New()
	r.NoError(h.SetAddress(42))
	r.EqualValues(42, h.Host().Address())
}

func TestContextCancelled(t *testing.T) {
	r := require.New(t)
	h := New()
	r.NoError(h.ConfigureEndpoints(bulkPair()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.Read(ctx, 0x01, make([]byte, 64))
	r.ErrorIs(err, context.Canceled)
}
