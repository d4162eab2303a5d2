// Package config loads the ncm-device configuration file.
package config

import (
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/pkg/errors"

	"github.com/ardnew/usbncm/device"
	"github.com/ardnew/usbncm/device/class/ncm"
	"github.com/ardnew/usbncm/internal/hostsim"
	"github.com/ardnew/usbncm/pkg"
)

// Config is the top level of an ncm-device HCL file. Every attribute and
// block is optional.
type Config struct {
	LogLevel    string `hcl:"log_level,optional"`
	LogFormat   string `hcl:"log_format,optional"`
	MetricsAddr string `hcl:"metrics_addr,optional"`

	Device   *DeviceConfig   `hcl:"device,block"`
	Network  *NetworkConfig  `hcl:"network,block"`
	Selftest *SelftestConfig `hcl:"selftest,block"`

	level  slog.Level
	format pkg.LogFormat
	mac    net.HardwareAddr
	settle time.Duration
	wait   time.Duration
}

// DeviceConfig is the USB identity of the device.
type DeviceConfig struct {
	VendorID     int    `hcl:"vendor_id,optional"`
	ProductID    int    `hcl:"product_id,optional"`
	Manufacturer string `hcl:"manufacturer,optional"`
	Product      string `hcl:"product,optional"`
	SerialNumber string `hcl:"serial_number,optional"`
	MaxPower     int    `hcl:"max_power,optional"`
}

// NetworkConfig configures the NCM function.
type NetworkConfig struct {
	MACAddress     string `hcl:"mac_address,optional"`
	MaxPacketSize  int    `hcl:"max_packet_size,optional"`
	MaxSegmentSize int    `hcl:"max_segment_size,optional"`
	SettleDelay    string `hcl:"settle_delay,optional"`
}

// SelftestConfig configures the simulated host run by the selftest command.
type SelftestConfig struct {
	Frames    int    `hcl:"frames,optional"`
	FrameSize int    `hcl:"frame_size,optional"`
	Timeout   string `hcl:"timeout,optional"`
}

// Defaults used for anything the file leaves out.
const (
	DefaultVendorID     = 0x1209
	DefaultProductID    = 0x4E43
	DefaultManufacturer = "usbncm"
	DefaultProduct      = "USB NCM Ethernet"
	DefaultFrames       = 64
	DefaultFrameSize    = 512
	DefaultTimeout      = 10 * time.Second
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	if err := cfg.finish(); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads and validates the HCL file at path.
func Load(path string) (*Config, error) {
	var (
		ctx hcl.EvalContext
		cfg Config
	)

	if err := hclsimple.DecodeFile(path, &ctx, &cfg); err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	if err := cfg.finish(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return &cfg, nil
}

// Parse decodes src as HCL. filename is used in diagnostics and must end in
// ".hcl".
func Parse(filename string, src []byte) (*Config, error) {
	var (
		ctx hcl.EvalContext
		cfg Config
	)

	if err := hclsimple.Decode(filename, src, &ctx, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate re-checks the configuration after fields were changed in place,
// for example by command line overrides.
func (c *Config) Validate() error {
	return c.finish()
}

// finish fills in defaults and validates.
func (c *Config) finish() error {
	if c.Device == nil {
		c.Device = &DeviceConfig{}
	}
	if c.Network == nil {
		c.Network = &NetworkConfig{}
	}
	if c.Selftest == nil {
		c.Selftest = &SelftestConfig{}
	}

	d := c.Device
	if d.VendorID == 0 {
		d.VendorID = DefaultVendorID
	}
	if d.ProductID == 0 {
		d.ProductID = DefaultProductID
	}
	if d.Manufacturer == "" {
		d.Manufacturer = DefaultManufacturer
	}
	if d.Product == "" {
		d.Product = DefaultProduct
	}

	n := c.Network
	if n.MaxPacketSize == 0 {
		n.MaxPacketSize = ncm.DefaultMaxPacketSize
	}
	if n.MaxSegmentSize == 0 {
		n.MaxSegmentSize = ncm.DefaultMaxSegmentSize
	}

	s := c.Selftest
	if s.Frames == 0 {
		s.Frames = DefaultFrames
	}
	if s.FrameSize == 0 {
		s.FrameSize = DefaultFrameSize
	}

	return c.validate()
}

func (c *Config) validate() error {
	var err error

	if c.level, err = pkg.ParseLogLevel(c.LogLevel); err != nil {
		return errors.Wrapf(err, "log_level %q", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text":
		c.format = pkg.LogFormatText
	case "json":
		c.format = pkg.LogFormatJSON
	default:
		return errors.Wrapf(pkg.ErrInvalidParameter, "log_format %q", c.LogFormat)
	}

	d := c.Device
	switch {
	case d.VendorID < 0 || d.VendorID > 0xFFFF:
		return errors.Wrapf(pkg.ErrInvalidParameter, "vendor_id %d", d.VendorID)
	case d.ProductID < 0 || d.ProductID > 0xFFFF:
		return errors.Wrapf(pkg.ErrInvalidParameter, "product_id %d", d.ProductID)
	case d.MaxPower < 0 || d.MaxPower > 500:
		return errors.Wrapf(pkg.ErrInvalidParameter, "max_power %d mA", d.MaxPower)
	}

	n := c.Network
	switch n.MaxPacketSize {
	case 8, 16, 32, 64, 512:
	default:
		return errors.Wrapf(pkg.ErrInvalidParameter, "max_packet_size %d", n.MaxPacketSize)
	}
	if n.MaxSegmentSize < 64 || n.MaxSegmentSize > ncm.MaxDatagramSize {
		return errors.Wrapf(pkg.ErrInvalidParameter, "max_segment_size %d", n.MaxSegmentSize)
	}

	c.mac = append(net.HardwareAddr(nil), ncm.DefaultMACAddress...)
	if n.MACAddress != "" {
		if c.mac, err = net.ParseMAC(n.MACAddress); err != nil {
			return errors.Wrapf(pkg.ErrInvalidParameter, "mac_address %q", n.MACAddress)
		}
		if len(c.mac) != 6 {
			return errors.Wrapf(pkg.ErrInvalidParameter, "mac_address %q is not EUI-48", n.MACAddress)
		}
	}

	c.settle = ncm.DefaultSettleDelay
	if n.SettleDelay != "" {
		if c.settle, err = time.ParseDuration(n.SettleDelay); err != nil || c.settle < 0 {
			return errors.Wrapf(pkg.ErrInvalidParameter, "settle_delay %q", n.SettleDelay)
		}
	}

	s := c.Selftest
	if s.Frames < 0 {
		return errors.Wrapf(pkg.ErrInvalidParameter, "frames %d", s.Frames)
	}
	if s.FrameSize < hostsim.MinFrameSize || s.FrameSize > ncm.MaxDatagramSize {
		return errors.Wrapf(pkg.ErrInvalidParameter, "frame_size %d", s.FrameSize)
	}
	c.wait = DefaultTimeout
	if s.Timeout != "" {
		if c.wait, err = time.ParseDuration(s.Timeout); err != nil || c.wait <= 0 {
			return errors.Wrapf(pkg.ErrInvalidParameter, "timeout %q", s.Timeout)
		}
	}
	return nil
}

// ApplyLogging sets the stack's log level and format.
func (c *Config) ApplyLogging() {
	pkg.SetLogLevel(c.level)
	pkg.SetLogFormat(c.format)
}

// Level returns the parsed log level.
func (c *Config) Level() slog.Level { return c.level }

// DeviceConfig returns the device identity for device.NewBuilder.
func (c *Config) DeviceConfig() device.Config {
	return device.Config{
		VendorID:     uint16(c.Device.VendorID),
		ProductID:    uint16(c.Device.ProductID),
		Manufacturer: c.Device.Manufacturer,
		Product:      c.Device.Product,
		SerialNumber: c.Device.SerialNumber,
		MaxPower:     uint8(c.Device.MaxPower / 2),
	}
}

// NCMConfig returns the function options. metrics may be nil.
func (c *Config) NCMConfig(metrics *ncm.Metrics) ncm.Config {
	return ncm.Config{
		MaxPacketSize:  uint16(c.Network.MaxPacketSize),
		SettleDelay:    c.settle,
		MACAddress:     c.mac,
		MaxSegmentSize: uint16(c.Network.MaxSegmentSize),
		Metrics:        metrics,
	}
}

// SelftestTimeout returns the time limit of one selftest run.
func (c *Config) SelftestTimeout() time.Duration { return c.wait }
