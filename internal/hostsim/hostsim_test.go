package hostsim

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/netstack/tcpip/header"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbncm/device"
	"github.com/ardnew/usbncm/device/class/ncm"
	"github.com/ardnew/usbncm/device/hal/memhal"
	"github.com/ardnew/usbncm/pkg"
)

var hostMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}

type bench struct {
	host   *Host
	fn     *ncm.Function
	reg    *prometheus.Registry
	echo   chan error
	cancel context.CancelFunc
}

// newBench starts a device with one NCM function and an echo loop, and
// returns an unenumerated host attached to it.
func newBench(t *testing.T, mps uint16) *bench {
	t.Helper()
	r := require.New(t)

	reg := prometheus.NewRegistry()
	metrics := ncm.NewMetrics(reg)
	b := device.NewBuilder(device.Config{
		VendorID:     0x1209,
		ProductID:    0x4E43,
		Manufacturer: "ardnew",
		Product:      "hostsim test",
	})
	fn, err := ncm.New(b, ncm.Config{
		MaxPacketSize: mps,
		SettleDelay:   time.Millisecond,
		Metrics:       metrics,
	})
	r.NoError(err)
	dev, err := b.Build()
	r.NoError(err)

	h := memhal.New()
	stack := device.NewStack(dev, h)
	r.NoError(stack.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	tx, rx := fn.Split()
	echo := make(chan error, 1)
	go func() { echo <- Echo(ctx, tx, rx) }()

	t.Cleanup(func() {
		cancel()
		<-echo
		_ = stack.Stop()
	})

	return &bench{
		host:   New(h.Host(), hostMAC),
		fn:     fn,
		reg:    reg,
		echo:   echo,
		cancel: cancel,
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// connect enumerates the device and waits for the link.
func (b *bench) connect(t *testing.T) {
	t.Helper()
	r := require.New(t)
	ctx := testContext(t)
	r.NoError(b.host.Enumerate(ctx))
	r.NoError(b.host.SetLink(ctx, true))
	r.NoError(b.host.WaitConnected(ctx))
}

// frames compares the device's frame counter for direction with want.
func (b *bench) frames(direction, help string, want int) error {
	name := "usbncm_frames_" + direction
	expected := fmt.Sprintf("# HELP %[1]s The total number of datagrams %[2]s\n# TYPE %[1]s counter\n%[1]s %[3]d\n",
		name, help, want)
	return testutil.GatherAndCompare(b.reg, strings.NewReader(expected), name)
}

func TestFrame(t *testing.T) {
	r := require.New(t)
	dev := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

	frame, err := Frame(hostMAC, dev, 0x01020304, 200)
	r.NoError(err)
	r.Len(frame, 200)
	r.Equal([]byte(dev), frame[0:6])
	r.Equal([]byte(hostMAC), frame[6:12])

	ip := header.IPv4(frame[header.EthernetMinimumSize:])
	r.EqualValues(200-header.EthernetMinimumSize, ip.TotalLength())
	r.Equal(HostIP, ip.SourceAddress())
	r.Equal(DeviceIP, ip.DestinationAddress())

	seq, err := CheckFrame(frame, dev)
	r.NoError(err)
	r.EqualValues(0x01020304, seq)

	SwapAddresses(frame)
	r.Equal([]byte(hostMAC), frame[0:6])
	_, err = CheckFrame(frame, dev)
	r.Error(err, "wrong destination")
	_, err = CheckFrame(frame, hostMAC)
	r.NoError(err)

	_, err = Frame(hostMAC, dev, 0, MinFrameSize-1)
	r.True(errors.Is(err, pkg.ErrInvalidParameter))
	frame, err = Frame(hostMAC, dev, 7, MinFrameSize)
	r.NoError(err)
	_, err = CheckFrame(frame, dev)
	r.NoError(err)
}

func TestCheckFrameCorruption(t *testing.T) {
	dev := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	tests := []struct {
		name    string
		corrupt func([]byte) []byte
	}{
		{"truncated", func(b []byte) []byte { return b[:MinFrameSize-1] }},
		{"ethertype", func(b []byte) []byte { b[12] = 0x86; b[13] = 0xDD; return b }},
		{"checksum", func(b []byte) []byte { b[header.EthernetMinimumSize+8]--; return b }},
		{"payload", func(b []byte) []byte { b[len(b)-1] ^= 0xFF; return b }},
		{"short", func(b []byte) []byte { return b[:len(b)-4] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Frame(hostMAC, dev, 3, 128)
			require.NoError(t, err)
			_, err = CheckFrame(tt.corrupt(frame), dev)
			require.Error(t, err)
		})
	}
}

func TestSwapAddressesShortFrame(t *testing.T) {
	b := []byte{1, 2, 3}
	SwapAddresses(b)
	require.Equal(t, []byte{1, 2, 3}, b)
}

func TestEnumerate(t *testing.T) {
	r := require.New(t)
	b := newBench(t, 64)
	r.NoError(b.host.Enumerate(testContext(t)))

	r.EqualValues(0x1209, b.host.DeviceDescriptor().VendorID)
	r.EqualValues(0x4E43, b.host.DeviceDescriptor().ProductID)
	r.Equal(ncm.DefaultMACAddress, b.host.DeviceMAC())
	r.Equal(hostMAC, b.host.MAC())
	r.Equal(64, b.host.MaxPacketSize())
	r.EqualValues(ncm.NTBMaxSize, b.host.NTBParameters().InMaxSize)
	r.EqualValues(ncm.NTBMaxSize, b.host.NTBParameters().OutMaxSize)
	r.NotEmpty(b.host.ConfigurationDescriptor())
	r.False(b.fn.LinkState().Enabled())
}

func TestLinkUpDown(t *testing.T) {
	r := require.New(t)
	b := newBench(t, 64)
	b.connect(t)
	r.True(b.fn.LinkState().Enabled())

	r.NoError(b.host.SetLink(testContext(t), false))
	r.Eventually(func() bool { return !b.fn.LinkState().Enabled() }, time.Second, time.Millisecond)

	// The echo loop waits for the next connection.
	r.NoError(b.host.SetLink(testContext(t), true))
	r.NoError(b.host.WaitConnected(testContext(t)))

	res, err := b.host.Exchange(testContext(t), Options{Frames: 4, FrameSize: 100})
	r.NoError(err)
	r.Equal(4, res.Received)
}

func TestExchange(t *testing.T) {
	tests := []struct {
		mps       uint16
		frames    int
		frameSize int
	}{
		{8, 8, MinFrameSize},
		{64, 32, 60},
		{64, 16, 1514},
		{64, 16, ncm.MaxDatagramSize},
		{512, 64, 484},
		{512, 10, 1000},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("mps=%d/size=%d", tt.mps, tt.frameSize), func(t *testing.T) {
			r := require.New(t)
			b := newBench(t, tt.mps)
			b.connect(t)

			res, err := b.host.Exchange(testContext(t), Options{Frames: tt.frames, FrameSize: tt.frameSize})
			r.NoError(err)
			r.Equal(tt.frames, res.Sent)
			r.Equal(tt.frames, res.Received)
			r.Equal(tt.frames*tt.frameSize, res.Bytes)
			r.LessOrEqual(res.NTBs, tt.frames)
			r.Positive(res.NTBs)

			r.NoError(b.frames("received", "received from the host", tt.frames))
			r.Eventually(func() bool {
				return b.frames("sent", "sent to the host", tt.frames) == nil
			}, time.Second, time.Millisecond)
		})
	}
}

func TestExchangeBatchesSmallFrames(t *testing.T) {
	r := require.New(t)
	b := newBench(t, 512)
	b.connect(t)

	res, err := b.host.Exchange(testContext(t), Options{Frames: 30, FrameSize: 100})
	r.NoError(err)
	r.Equal(30, res.Received)
	r.Less(res.NTBs, 30)
}

func TestExchangeOptions(t *testing.T) {
	r := require.New(t)
	b := newBench(t, 64)

	res, err := b.host.Exchange(testContext(t), Options{})
	r.NoError(err)
	r.Zero(res.Sent)

	_, err = b.host.Exchange(testContext(t), Options{Frames: 1, FrameSize: 10})
	r.True(errors.Is(err, pkg.ErrInvalidParameter))
	_, err = b.host.Exchange(testContext(t), Options{Frames: 1, FrameSize: ncm.MaxDatagramSize + 1})
	r.True(errors.Is(err, pkg.ErrInvalidParameter))
}

func TestEchoStopsOnCancel(t *testing.T) {
	r := require.New(t)
	b := newBench(t, 64)
	b.connect(t)

	b.cancel()
	select {
	case err := <-b.echo:
		r.ErrorIs(err, context.Canceled)
		b.echo <- err
	case <-time.After(2 * time.Second):
		r.Fail("echo did not stop")
	}
}
