package device

import (
	"context"
	"errors"
	"sync"

	"github.com/ardnew/usbncm/device/hal"
	"github.com/ardnew/usbncm/pkg"
)

// Stack runs a Device on a controller: it owns the EP0 control loop and
// dispatches standard requests to the device and class requests to the
// Handler of the addressed interface.
type Stack struct {
	device   *Device
	hal      hal.DeviceHAL
	standard standardHandler

	running bool
	mutex   sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Reusable setup packet and EP0 data buffer for the control loop.
	setupBuf hal.SetupPacket
	ep0Buf   [MaxControlDataSize]byte
}

// NewStack creates a stack running dev on h and binds dev's endpoints to h.
func NewStack(dev *Device, h hal.DeviceHAL) *Stack {
	dev.bind(h)
	return &Stack{
		device:   dev,
		hal:      h,
		standard: standardHandler{device: dev},
	}
}

// Start initializes the controller, attaches to the bus and starts the
// control loop.
func (s *Stack) Start(ctx context.Context) error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return pkg.ErrAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mutex.Unlock()

	if err := s.hal.Init(s.ctx); err != nil {
		return err
	}
	if err := s.hal.Start(); err != nil {
		return err
	}

	s.mutex.Lock()
	s.running = true
	s.done = make(chan struct{})
	s.mutex.Unlock()

	s.device.mutex.Lock()
	s.device.setState(StateDefault)
	s.device.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentStack, "device stack started")

	go s.controlLoop(s.done)
	return nil
}

// Stop detaches from the bus, ends the control loop and resets every
// interface handler.
func (s *Stack) Stop() error {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mutex.Unlock()

	<-done
	s.device.reset()

	if err := s.hal.Stop(); err != nil {
		return err
	}
	pkg.LogDebug(pkg.ComponentStack, "device stack stopped")
	return nil
}

// IsRunning returns true if the stack is running.
func (s *Stack) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// Device returns the underlying device.
func (s *Stack) Device() *Device {
	return s.device
}

func (s *Stack) controlLoop(done chan struct{}) {
	defer close(done)
	for {
		if err := s.hal.ReadSetup(s.ctx, &s.setupBuf); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if errors.Is(err, pkg.ErrReset) {
				s.device.reset()
				continue
			}
			pkg.LogWarn(pkg.ComponentStack, "error reading setup",
				"error", err)
			continue
		}

		setup := SetupPacket{
			RequestType: s.setupBuf.RequestType,
			Request:     s.setupBuf.Request,
			Value:       s.setupBuf.Value,
			Index:       s.setupBuf.Index,
			Length:      s.setupBuf.Length,
		}
		if err := s.handleSetup(&setup); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			pkg.LogDebug(pkg.ComponentStack, "control request stalled",
				"error", err,
				"request", setup.String())
			if err := s.hal.StallEP0(); err != nil {
				pkg.LogWarn(pkg.ComponentStack, "failed to stall EP0",
					"error", err)
			}
		}
	}
}

// handleSetup runs one control transfer. A returned error stalls EP0.
func (s *Stack) handleSetup(setup *SetupPacket) error {
	pkg.LogDebug(pkg.ComponentStack, "setup received",
		"request", setup.String())

	if int(setup.Length) > MaxControlDataSize {
		return pkg.ErrBufferTooSmall
	}

	// OUT data stage precedes dispatch so handlers see the payload.
	var data []byte
	if !setup.IsDeviceToHost() && setup.Length > 0 {
		n, err := s.hal.ReadEP0(s.ctx, s.ep0Buf[:setup.Length])
		if err != nil {
			return err
		}
		data = s.ep0Buf[:n]
	}

	switch {
	case setup.IsStandard():
		resp, err := s.standard.handleSetup(setup)
		if err != nil {
			return err
		}
		if err := s.complete(setup, resp); err != nil {
			return err
		}
		if setup.Request == RequestSetAddress && setup.Recipient() == RequestRecipientDevice {
			// The new address takes effect after the status stage.
			return s.hal.SetAddress(uint8(setup.Value))
		}
		return nil

	case setup.IsClass() && setup.Recipient() == RequestRecipientInterface:
		iface := s.device.Interface(setup.InterfaceNumber())
		if iface == nil {
			return pkg.ErrInvalidRequest
		}
		if setup.IsDeviceToHost() {
			resp := iface.handler.ControlIn(setup, s.ep0Buf[:setup.Length])
			if !resp.Accepted {
				return pkg.ErrInvalidRequest
			}
			return s.complete(setup, resp.Data)
		}
		if iface.handler.ControlOut(setup, data) != OutAccepted {
			return pkg.ErrInvalidRequest
		}
		return s.complete(setup, nil)

	default:
		return pkg.ErrInvalidRequest
	}
}

// complete finishes the data and status stages of an accepted transfer.
func (s *Stack) complete(setup *SetupPacket, data []byte) error {
	if !setup.IsDeviceToHost() {
		return s.hal.AckEP0()
	}
	if len(data) > int(setup.Length) {
		data = data[:setup.Length]
	}
	if err := s.hal.WriteEP0(s.ctx, data); err != nil {
		return err
	}
	// Status stage (zero-length OUT).
	_, err := s.hal.ReadEP0(s.ctx, s.ep0Buf[:0])
	return err
}
