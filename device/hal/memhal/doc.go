// Package memhal implements an in-memory HAL for the device stack.
//
// It plays the role of both the device controller and the host controller:
// the device stack drives a [HAL] through the hal.DeviceHAL interface, while
// tests and simulators drive the bus from the other end through the [Host]
// returned by [HAL.Host].
//
// # Packets
//
// Each configured endpoint is a bounded queue of packets. Packet boundaries
// are preserved, so a zero-length packet is a real, observable packet, and a
// packet larger than the endpoint's max packet size is refused with
// pkg.ErrBufferOverflow. Endpoints that are not configured fail with
// pkg.ErrDisabled, and a blocked transfer on an endpoint that becomes
// unconfigured is released the same way.
//
// # Control Transfers
//
// [Host.Control] delivers a SETUP packet (and any OUT data stage) to the
// device and waits for the device to answer with data, an ACK or a STALL.
// A STALL is reported as pkg.ErrStall. [Host.Reset] signals a bus reset,
// which the device stack observes as pkg.ErrReset from ReadSetup.
//
// # Usage
//
//	h := memhal.New()
//	stack := device.NewStack(dev, h)
//	stack.Start(ctx)
//
//	host := h.Host()
//	desc, err := host.Control(ctx, setup, nil)
package memhal
