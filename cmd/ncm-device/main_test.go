package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbncm/device"
	"github.com/ardnew/usbncm/device/class/ncm"
	"github.com/ardnew/usbncm/internal/config"
)

func init() {
	color.NoColor = true
}

func TestDescriptorName(t *testing.T) {
	tests := []struct {
		desc []byte
		want string
	}{
		{[]byte{9, 0x02}, "configuration"},
		{[]byte{9, 0x04, 1, 1, 2, 0x0A, 0, 1, 0}, "interface 1 alt 1"},
		{[]byte{7, 0x05, 0x81, 3, 16, 0, 255}, "endpoint 0x81"},
		{[]byte{5, 0x24, 0x00, 0x10, 0x01}, "cdc header"},
		{[]byte{13, 0x24, 0x0F}, "cdc ethernet"},
		{[]byte{6, 0x24, 0x1A}, "cdc ncm"},
		{[]byte{3, 0x24, 0x77}, "cdc subtype 0x77"},
		{[]byte{2, 0x99}, "type 0x99"},
		{[]byte{1}, "invalid"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, descriptorName(tt.desc))
	}
}

func TestDumpDevice(t *testing.T) {
	r := require.New(t)
	cfg := config.Default()

	b := device.NewBuilder(cfg.DeviceConfig())
	_, err := ncm.New(b, cfg.NCMConfig(nil))
	r.NoError(err)
	dev, err := b.Build()
	r.NoError(err)

	var out bytes.Buffer
	r.NoError(dumpDevice(&out, dev))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	r.True(strings.HasPrefix(lines[0], "device 12 01"), lines[0])
	r.Contains(out.String(), "\nconfiguration 09 02")
	r.Contains(out.String(), "    cdc ethernet")
	r.Contains(out.String(), "    endpoint 0x81")
	r.Contains(out.String(), `"020000000001"`)
	r.Contains(out.String(), `"`+config.DefaultProduct+`"`)
}

func TestSelftest(t *testing.T) {
	for _, mps := range []int{8, 64, 512} {
		cfg := config.Default()
		cfg.Network.MaxPacketSize = mps
		cfg.Network.SettleDelay = "1ms"
		cfg.Selftest.Frames = 12
		cfg.Selftest.FrameSize = 600
		require.NoError(t, cfg.Validate())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		res, err := selftest(ctx, cfg, nil)
		cancel()
		require.NoError(t, err, "mps %d", mps)
		require.Equal(t, 12, res.Received)
		require.Equal(t, 12*600, res.Bytes)
	}
}
