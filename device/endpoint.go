package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/ardnew/usbncm/device/hal"
	"github.com/ardnew/usbncm/pkg"
)

// EndpointInfo is the static description of an endpoint.
type EndpointInfo struct {
	Address       uint8  // Endpoint address including direction
	Attributes    uint8  // Transfer type
	MaxPacketSize uint16 // Maximum packet size
	Interval      uint8  // Polling interval (interrupt)
}

// Number returns the endpoint number (0-15).
func (i EndpointInfo) Number() uint8 {
	return i.Address & 0x0F
}

// IsIn returns true if this is an IN endpoint (device to host).
func (i EndpointInfo) IsIn() bool {
	return i.Address&EndpointDirectionIn != 0
}

// TransferType returns the transfer type (Control, Isochronous, Bulk, or Interrupt).
func (i EndpointInfo) TransferType() uint8 {
	return i.Attributes & 0x03
}

// Descriptor returns the endpoint descriptor.
func (i EndpointInfo) Descriptor() EndpointDescriptor {
	return EndpointDescriptor{
		EndpointAddress: i.Address,
		Attributes:      i.Attributes,
		MaxPacketSize:   i.MaxPacketSize,
		Interval:        i.Interval,
	}
}

func (i EndpointInfo) halConfig() hal.EndpointConfig {
	return hal.EndpointConfig{
		Address:       i.Address,
		Attributes:    i.Attributes,
		MaxPacketSize: i.MaxPacketSize,
		Interval:      i.Interval,
	}
}

// Endpoint is a data endpoint owned by an alternate setting.
//
// An endpoint is enabled while its alternate setting is active in the
// current configuration. Disabling it aborts any Read or Write in flight
// with pkg.ErrDisabled.
type Endpoint struct {
	info EndpointInfo
	hal  hal.DeviceHAL

	mutex   sync.Mutex
	enabled bool
	stalled bool
	epoch   context.Context    // live while enabled
	cancel  context.CancelFunc // ends epoch
	changed chan struct{}      // closed on every enable/disable
}

func newEndpoint(info EndpointInfo) *Endpoint {
	return &Endpoint{
		info:    info,
		changed: make(chan struct{}),
	}
}

// Info returns the endpoint's static description.
func (e *Endpoint) Info() EndpointInfo {
	return e.info
}

// Address returns the endpoint address.
func (e *Endpoint) Address() uint8 {
	return e.info.Address
}

// IsEnabled reports whether the endpoint is currently enabled.
func (e *Endpoint) IsEnabled() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.enabled
}

// IsStalled returns true if the endpoint is halted.
func (e *Endpoint) IsStalled() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.stalled
}

// WaitEnabled blocks until the endpoint is enabled or ctx is done.
func (e *Endpoint) WaitEnabled(ctx context.Context) error {
	for {
		e.mutex.Lock()
		if e.enabled {
			e.mutex.Unlock()
			return nil
		}
		changed := e.changed
		e.mutex.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Read receives one packet from an OUT endpoint into buf.
func (e *Endpoint) Read(ctx context.Context, buf []byte) (int, error) {
	ioCtx, h, done, err := e.begin(ctx)
	if err != nil {
		return 0, err
	}
	n, err := h.Read(ioCtx, e.info.Address, buf)
	return n, done(err)
}

// Write sends data as one packet on an IN endpoint. An empty data slice
// sends a zero-length packet.
func (e *Endpoint) Write(ctx context.Context, data []byte) error {
	ioCtx, h, done, err := e.begin(ctx)
	if err != nil {
		return err
	}
	_, err = h.Write(ioCtx, e.info.Address, data)
	return done(err)
}

// begin starts one I/O operation bound to the current enable epoch. The
// returned done func releases the operation and maps an abort caused by
// disabling the endpoint to pkg.ErrDisabled.
func (e *Endpoint) begin(ctx context.Context) (context.Context, hal.DeviceHAL, func(error) error, error) {
	e.mutex.Lock()
	if !e.enabled || e.hal == nil {
		e.mutex.Unlock()
		return nil, nil, nil, pkg.ErrDisabled
	}
	if e.stalled {
		e.mutex.Unlock()
		return nil, nil, nil, pkg.ErrStall
	}
	epoch, h := e.epoch, e.hal
	e.mutex.Unlock()

	ioCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(epoch, cancel)
	done := func(err error) error {
		stop()
		cancel()
		if err != nil && epoch.Err() != nil && ctx.Err() == nil {
			return pkg.ErrDisabled
		}
		return err
	}
	return ioCtx, h, done, nil
}

func (e *Endpoint) bind(h hal.DeviceHAL) {
	e.mutex.Lock()
	e.hal = h
	e.mutex.Unlock()
}

func (e *Endpoint) enable() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.enabled {
		return
	}
	e.epoch, e.cancel = context.WithCancel(context.Background())
	e.enabled = true
	e.stalled = false
	e.signal()
	pkg.LogDebug(pkg.ComponentEndpoint, "endpoint enabled",
		"address", fmt.Sprintf("0x%02X", e.info.Address))
}

func (e *Endpoint) disable() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if !e.enabled {
		return
	}
	e.enabled = false
	e.cancel()
	e.signal()
	pkg.LogDebug(pkg.ComponentEndpoint, "endpoint disabled",
		"address", fmt.Sprintf("0x%02X", e.info.Address))
}

// signal wakes WaitEnabled callers. Caller holds mutex.
func (e *Endpoint) signal() {
	close(e.changed)
	e.changed = make(chan struct{})
}

func (e *Endpoint) setStall(stalled bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.stalled = stalled
	if stalled {
		pkg.LogDebug(pkg.ComponentEndpoint, "endpoint stalled",
			"address", fmt.Sprintf("0x%02X", e.info.Address))
	} else {
		pkg.LogDebug(pkg.ComponentEndpoint, "endpoint stall cleared",
			"address", fmt.Sprintf("0x%02X", e.info.Address))
	}
}
