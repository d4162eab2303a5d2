// Package device implements a small pure-Go USB 2.0 full-speed device stack:
// just enough framework to host a composite class function such as CDC-NCM.
//
// It is platform-agnostic and interacts with hardware via the
// [hal.DeviceHAL] interface defined in the [github.com/ardnew/usbncm/device/hal]
// package.
//
// # Architecture
//
//   - [Builder] assembles the device, its string table and its single
//     configuration: functions (IADs), interfaces, alternate settings,
//     class-specific descriptors and endpoints
//   - [Device] tracks the USB device state machine and which alternate
//     setting of each interface is active
//   - [Stack] runs the EP0 control loop, answers the standard requests and
//     routes class requests to the owning interface's [Handler]
//   - [Endpoint] is a data endpoint; it is enabled while its alternate
//     setting is active, and disabling it aborts in-flight I/O with
//     pkg.ErrDisabled
//
// # Device States
//
//	Powered → Default → Address → Configured
//
// A bus reset returns the device to Default, disables every endpoint and
// calls Reset on every handler.
//
// # Handlers
//
// Class drivers implement [Handler], embedding [NopHandler] for the
// callbacks they do not need:
//
//	type Handler interface {
//	    Reset()
//	    ControlOut(req *SetupPacket, data []byte) OutResponse
//	    ControlIn(req *SetupPacket, buf []byte) InResponse
//	    SetAlternateSetting(alt uint8)
//	}
//
// Handlers run on the control goroutine and must not block.
//
// # Example
//
//	b := device.NewBuilder(device.Config{VendorID: 0xCAFE, ProductID: 0xBABE})
//	fn := b.Function(0x02, 0x0D, 0x00)
//	comm := fn.Interface(handler)
//	comm.AltSetting(0x02, 0x0D, 0x00).EndpointInterruptIn(8, 255)
//	dev, err := b.Build()
//	stack := device.NewStack(dev, hal)
//	stack.Start(ctx)
//
// An in-memory HAL with a host-side handle is available in
// [github.com/ardnew/usbncm/device/hal/memhal].
package device
