package hostsim

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/ardnew/usbncm/device/class/ncm"
	"github.com/ardnew/usbncm/pkg"
)

// Options controls one Exchange run.
type Options struct {
	Frames    int // Number of frames to send
	FrameSize int // Bytes per frame, headers included
}

// Result summarizes an Exchange run.
type Result struct {
	Sent     int
	Received int
	Bytes    int
	NTBs     int // NTBs sent
	Elapsed  time.Duration
}

// Exchange sends opts.Frames test frames to the device, batching as many as
// fit into each NTB, and concurrently collects the echoed frames. Every
// frame must come back exactly once and intact.
func (h *Host) Exchange(ctx context.Context, opts Options) (Result, error) {
	var res Result
	if opts.Frames <= 0 {
		return res, nil
	}
	if opts.FrameSize < MinFrameSize || opts.FrameSize > ncm.MaxDatagramSize {
		return res, pkgerrors.Wrapf(pkg.ErrInvalidParameter, "frame size %d", opts.FrameSize)
	}

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var (
			batch   [][]byte
			scratch []byte
		)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := h.Send(ctx, batch...); err != nil {
				return err
			}
			res.NTBs++
			batch = batch[:0]
			return nil
		}

		for seq := 0; seq < opts.Frames; seq++ {
			frame, err := Frame(h.mac, h.deviceMAC, uint32(seq), opts.FrameSize)
			if err != nil {
				return err
			}
			batch = append(batch, frame)
			if scratch, err = ncm.AppendNTB(scratch[:0], 0, batch...); errors.Is(err, pkg.ErrBufferOverflow) {
				batch = batch[:len(batch)-1]
				if err := flush(); err != nil {
					return err
				}
				batch = append(batch, frame)
			} else if err != nil {
				return err
			}
			res.Sent++
		}
		return flush()
	})

	g.Go(func() error {
		seen := make([]bool, opts.Frames)
		for res.Received < opts.Frames {
			frames, err := h.Receive(ctx)
			if err != nil {
				return err
			}
			for _, frame := range frames {
				seq, err := CheckFrame(frame, h.mac)
				if err != nil {
					return err
				}
				if int(seq) >= opts.Frames || seen[seq] {
					return pkgerrors.Errorf("unexpected frame %d", seq)
				}
				if len(frame) != opts.FrameSize {
					return pkgerrors.Errorf("frame %d: %d bytes, want %d", seq, len(frame), opts.FrameSize)
				}
				seen[seq] = true
				res.Received++
				res.Bytes += len(frame)
			}
		}
		return nil
	})

	err := g.Wait()
	res.Elapsed = time.Since(start)
	if err == nil {
		pkg.LogInfo(pkg.ComponentHost, "exchange complete",
			"frames", res.Received,
			"ntbs", res.NTBs,
			"bytes", res.Bytes,
			"elapsed", res.Elapsed)
	}
	return res, err
}
