package memhal

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/ardnew/usbncm/device/hal"
	"github.com/ardnew/usbncm/pkg"
)

// QueueDepth is the number of packets an endpoint buffers before a writer
// blocks.
const QueueDepth = 64

// controlEvent is one SETUP transaction (or a bus reset) sent by the host.
type controlEvent struct {
	reset bool
	setup hal.SetupPacket
	data  []byte
	reply chan controlResult
}

// controlResult is the device's answer to a control transfer.
type controlResult struct {
	data    []byte
	stalled bool
}

// pipe is the packet queue of one configured endpoint.
type pipe struct {
	cfg     hal.EndpointConfig
	packets chan []byte
	closed  chan struct{}
}

func newPipe(cfg hal.EndpointConfig) *pipe {
	return &pipe{
		cfg:     cfg,
		packets: make(chan []byte, QueueDepth),
		closed:  make(chan struct{}),
	}
}

// HAL implements hal.DeviceHAL entirely in memory.
type HAL struct {
	mutex   sync.Mutex
	pipes   map[uint8]*pipe
	stalls  map[uint8]bool
	address uint8

	// Current control transfer, touched only by the control goroutine and
	// guarded by mutex for the host's benefit.
	pending []byte
	reply   chan controlResult

	connected atomic.Bool
	setups    chan controlEvent
	connectCh chan struct{}
	stopCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates an in-memory HAL.
func New() *HAL {
	return &HAL{
		pipes:     make(map[uint8]*pipe),
		stalls:    make(map[uint8]bool),
		setups:    make(chan controlEvent, QueueDepth),
		connectCh: make(chan struct{}),
		stopCh:    make(chan struct{}),
	}
}

// Host returns the host-side handle of the bus.
func (h *HAL) Host() *Host {
	return &Host{hal: h}
}

// Init implements hal.DeviceHAL.
func (h *HAL) Init(ctx context.Context) error {
	return ctx.Err()
}

// Start implements hal.DeviceHAL.
func (h *HAL) Start() error {
	h.startOnce.Do(func() {
		h.connected.Store(true)
		close(h.connectCh)
		pkg.LogDebug(pkg.ComponentHAL, "memory bus attached")
	})
	return nil
}

// Stop implements hal.DeviceHAL. Every endpoint is released and pending
// transfers fail with pkg.ErrDisabled.
func (h *HAL) Stop() error {
	h.stopOnce.Do(func() {
		h.connected.Store(false)
		close(h.stopCh)
		h.mutex.Lock()
		for addr, p := range h.pipes {
			close(p.closed)
			delete(h.pipes, addr)
		}
		h.mutex.Unlock()
		pkg.LogDebug(pkg.ComponentHAL, "memory bus detached")
	})
	return nil
}

// SetAddress implements hal.DeviceHAL.
func (h *HAL) SetAddress(address uint8) error {
	h.mutex.Lock()
	h.address = address
	h.mutex.Unlock()
	return nil
}

// ConfigureEndpoints implements hal.DeviceHAL. Endpoints that stay configured
// keep their queued packets.
func (h *HAL) ConfigureEndpoints(endpoints []hal.EndpointConfig) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	next := make(map[uint8]*pipe, len(endpoints))
	for _, cfg := range endpoints {
		if cfg.Number() == 0 {
			return pkg.ErrInvalidEndpoint
		}
		if p, ok := h.pipes[cfg.Address]; ok && p.cfg == cfg {
			next[cfg.Address] = p
			continue
		}
		next[cfg.Address] = newPipe(cfg)
	}
	for addr, p := range h.pipes {
		if next[addr] != p {
			close(p.closed)
			delete(h.stalls, addr)
		}
	}
	h.pipes = next

	pkg.LogDebug(pkg.ComponentHAL, "endpoints configured",
		"count", len(endpoints))
	return nil
}

// ReadSetup implements hal.DeviceHAL.
func (h *HAL) ReadSetup(ctx context.Context, out *hal.SetupPacket) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.stopCh:
		return pkg.ErrCancelled
	case ev := <-h.setups:
		if ev.reset {
			return pkg.ErrReset
		}
		h.mutex.Lock()
		*out = ev.setup
		h.pending = ev.data
		h.reply = ev.reply
		h.mutex.Unlock()
		return nil
	}
}

// WriteEP0 implements hal.DeviceHAL.
func (h *HAL) WriteEP0(ctx context.Context, data []byte) error {
	return h.answer(controlResult{data: append([]byte(nil), data...)})
}

// ReadEP0 implements hal.DeviceHAL. It returns the OUT data stage delivered
// with the current SETUP packet.
func (h *HAL) ReadEP0(ctx context.Context, buf []byte) (int, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	n := copy(buf, h.pending)
	h.pending = h.pending[n:]
	return n, nil
}

// StallEP0 implements hal.DeviceHAL.
func (h *HAL) StallEP0() error {
	return h.answer(controlResult{stalled: true})
}

// AckEP0 implements hal.DeviceHAL.
func (h *HAL) AckEP0() error {
	return h.answer(controlResult{})
}

func (h *HAL) answer(res controlResult) error {
	h.mutex.Lock()
	reply := h.reply
	h.reply = nil
	h.mutex.Unlock()
	if reply == nil {
		return pkg.ErrInvalidState
	}
	reply <- res // buffered; one answer per transfer
	return nil
}

// Read implements hal.DeviceHAL.
func (h *HAL) Read(ctx context.Context, address uint8, buf []byte) (int, error) {
	if address&0x80 != 0 {
		return 0, pkg.ErrInvalidEndpoint
	}
	p, err := h.pipe(address)
	if err != nil {
		return 0, err
	}
	return receive(ctx, p, buf)
}

// Write implements hal.DeviceHAL.
func (h *HAL) Write(ctx context.Context, address uint8, data []byte) (int, error) {
	if address&0x80 == 0 {
		return 0, pkg.ErrInvalidEndpoint
	}
	p, err := h.pipe(address)
	if err != nil {
		return 0, err
	}
	if err := send(ctx, p, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

// Stall implements hal.DeviceHAL.
func (h *HAL) Stall(address uint8) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.pipes[address]; !ok {
		return pkg.ErrInvalidEndpoint
	}
	h.stalls[address] = true
	return nil
}

// ClearStall implements hal.DeviceHAL.
func (h *HAL) ClearStall(address uint8) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.pipes[address]; !ok {
		return pkg.ErrInvalidEndpoint
	}
	delete(h.stalls, address)
	return nil
}

// IsConnected implements hal.DeviceHAL.
func (h *HAL) IsConnected() bool {
	return h.connected.Load()
}

// GetSpeed implements hal.DeviceHAL.
func (h *HAL) GetSpeed() hal.Speed {
	return hal.SpeedFull
}

// WaitConnect implements hal.DeviceHAL.
func (h *HAL) WaitConnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.connectCh:
		return nil
	}
}

func (h *HAL) pipe(address uint8) (*pipe, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	p, ok := h.pipes[address]
	if !ok {
		return nil, pkg.ErrDisabled
	}
	if h.stalls[address] {
		return nil, pkg.ErrStall
	}
	return p, nil
}

func send(ctx context.Context, p *pipe, data []byte) error {
	if len(data) > int(p.cfg.MaxPacketSize) {
		return errors.Wrapf(pkg.ErrBufferOverflow, "%d byte packet on endpoint 0x%02X (max %d)",
			len(data), p.cfg.Address, p.cfg.MaxPacketSize)
	}
	pkt := append(make([]byte, 0, len(data)), data...)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return pkg.ErrDisabled
	case p.packets <- pkt:
		return nil
	}
}

func receive(ctx context.Context, p *pipe, buf []byte) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-p.closed:
		return 0, pkg.ErrDisabled
	case pkt := <-p.packets:
		if len(pkt) > len(buf) {
			return 0, pkg.ErrBufferOverflow
		}
		return copy(buf, pkt), nil
	}
}

// Host is the host-side handle of a memory bus.
type Host struct {
	hal *HAL
}

// Address returns the address the device applied after SET_ADDRESS.
func (h *Host) Address() uint8 {
	h.hal.mutex.Lock()
	defer h.hal.mutex.Unlock()
	return h.hal.address
}

// Control performs a control transfer. For OUT requests data is the data
// stage and must be setup.Length bytes long; for IN requests the device's
// data stage is returned. A stalled request fails with pkg.ErrStall.
func (h *Host) Control(ctx context.Context, setup hal.SetupPacket, data []byte) ([]byte, error) {
	in := setup.RequestType&0x80 != 0
	if !in && len(data) != int(setup.Length) {
		return nil, pkg.ErrInvalidParameter
	}
	ev := controlEvent{
		setup: setup,
		reply: make(chan controlResult, 1),
	}
	if !in {
		ev.data = append([]byte(nil), data...)
	}
	if err := h.post(ctx, ev); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.hal.stopCh:
		return nil, pkg.ErrDisabled
	case res := <-ev.reply:
		if res.stalled {
			return nil, pkg.ErrStall
		}
		return res.data, nil
	}
}

// Reset signals a bus reset to the device.
func (h *Host) Reset(ctx context.Context) error {
	return h.post(ctx, controlEvent{reset: true})
}

func (h *Host) post(ctx context.Context, ev controlEvent) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.hal.stopCh:
		return pkg.ErrDisabled
	case h.hal.setups <- ev:
		return nil
	}
}

// WritePacket sends one packet to an OUT endpoint. An empty data slice
// sends a zero-length packet.
func (h *Host) WritePacket(ctx context.Context, address uint8, data []byte) error {
	if address&0x80 != 0 {
		return pkg.ErrInvalidEndpoint
	}
	p, err := h.hal.pipe(address)
	if err != nil {
		return err
	}
	return send(ctx, p, data)
}

// ReadPacket receives one packet from an IN endpoint.
func (h *Host) ReadPacket(ctx context.Context, address uint8, buf []byte) (int, error) {
	if address&0x80 == 0 {
		return 0, pkg.ErrInvalidEndpoint
	}
	p, err := h.hal.pipe(address)
	if err != nil {
		return 0, err
	}
	return receive(ctx, p, buf)
}
