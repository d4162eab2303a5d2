// Package hal defines the Hardware Abstraction Layer between the device stack
// and a USB device controller.
//
// The HAL deals in packets and nothing else: one Write is one packet on the
// wire, one Read returns one packet. Transfer framing above that (short packet
// termination, zero-length packets, NTB reassembly) belongs to the class
// drivers, which is what lets the NCM function reason about max packet size
// boundaries the way real hardware does.
//
// # Implementing a HAL
//
//  1. Implement every [DeviceHAL] method
//  2. Deliver SETUP packets from ReadSetup; report bus resets as pkg.ErrReset
//  3. Honour ConfigureEndpoints: endpoints not in the list are disabled and
//     I/O on them fails with pkg.ErrDisabled
//  4. Keep packet boundaries intact in Read and Write
//
// An in-memory HAL with a host-side handle is available in
// [github.com/ardnew/usbncm/device/hal/memhal].
package hal
