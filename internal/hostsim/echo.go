package hostsim

import (
	"context"
	"errors"

	"github.com/ardnew/usbncm/device/class/ncm"
	"github.com/ardnew/usbncm/pkg"
)

// Echo runs the device side of the selftest: every frame received on rx is
// sent back on tx with its MAC addresses swapped. Malformed NTBs and
// oversized frames are skipped. Echo returns when ctx is done or a transfer
// fails for a reason other than the link going down.
func Echo(ctx context.Context, tx *ncm.Sender, rx *ncm.Receiver) error {
	buf := make([]byte, ncm.MaxDatagramSize)

	for {
		if err := rx.WaitConnection(ctx); err != nil {
			return err
		}
		pkg.LogInfo(pkg.ComponentNCM, "echo: link up")

		for {
			n, err := rx.ReadPacket(ctx, buf)
			if err != nil {
				if errors.Is(err, pkg.ErrProtocol) || errors.Is(err, pkg.ErrBufferTooSmall) {
					continue
				}
				if errors.Is(err, pkg.ErrDisabled) {
					break
				}
				return err
			}

			frame := buf[:n]
			SwapAddresses(frame)
			if err := tx.WritePacket(ctx, frame); err != nil {
				if errors.Is(err, pkg.ErrDisabled) {
					break
				}
				return err
			}
		}
		pkg.LogInfo(pkg.ComponentNCM, "echo: link down")
	}
}
