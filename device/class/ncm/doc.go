// Package ncm implements a USB CDC Network Control Model (NCM) device
// function for the usbncm device stack.
//
// The function carries Ethernet frames between the device and the host
// inside NCM Transfer Blocks (NTBs) on a bulk endpoint pair.
//
// # Architecture
//
// An NCM function consists of two interfaces grouped by an IAD:
//
//   - A communications interface with the CDC functional descriptors and an
//     interrupt IN endpoint for notifications
//   - A data interface whose alternate setting 0 has no endpoints and whose
//     alternate setting 1 has the bulk OUT and bulk IN endpoints
//
// The host brings the link up by selecting alternate setting 1 and down by
// selecting 0 or resetting the bus. A [LinkState] shared by the control
// handlers and the transfer halves records which it did.
//
// # Transfer Blocks
//
// Every NTB the [Sender] produces is a 16-bit NTB holding exactly one
// datagram: a 12-byte NTH, a 16-byte NDP and the datagram at offset 28. The
// [Receiver] accepts what hosts send: NDP chains, NDPs with several
// entries, and datagrams anywhere inside the block. Malformed blocks are
// reported as [*ProtocolError] and dropped.
//
// # Usage
//
//	b := device.NewBuilder(device.Config{VendorID: 0x1209, ProductID: 0x4E43})
//	fn, err := ncm.New(b, ncm.Config{MaxPacketSize: 64})
//	if err != nil {
//	    return err
//	}
//	dev, err := b.Build()
//	if err != nil {
//	    return err
//	}
//	stack := device.NewStack(dev, h)
//	if err := stack.Start(ctx); err != nil {
//	    return err
//	}
//
//	tx, rx := fn.Split()
//	go func() {
//	    for rx.WaitConnection(ctx) == nil {
//	        for {
//	            n, err := rx.ReadPacket(ctx, frame)
//	            if errors.Is(err, pkg.ErrDisabled) {
//	                break // link dropped; wait for the host again
//	            }
//	            // deliver frame[:n]
//	        }
//	    }
//	}()
//
//	if err := tx.WaitLinkUp(ctx); err == nil {
//	    err = tx.WritePacket(ctx, outgoing)
//	}
package ncm
