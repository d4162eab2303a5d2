package ncm

import (
	"context"
	"sync/atomic"

	"github.com/ardnew/usbncm/pkg"
)

// waker is a wake-up signal with a single pending slot. Wake never blocks,
// and a wake that arrives while nobody is waiting stays pending until the
// next wait consumes it, so a check-then-wait loop cannot miss one.
type waker struct {
	ch chan struct{}
}

func newWaker() waker {
	return waker{ch: make(chan struct{}, 1)}
}

func (w waker) wake() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// wait blocks until ready reports true, re-checking after every wake.
func (w waker) wait(ctx context.Context, ready func() bool) error {
	for !ready() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.ch:
		}
	}
	return nil
}

// LinkState is the link-enable flag shared by the control handlers and the
// transfer halves, plus one waker per direction. The flag mirrors the data
// interface's last selected alternate setting; transitions between reads
// collapse to the latest value.
type LinkState struct {
	enabled atomic.Bool
	rx      waker
	tx      waker
	metrics *Metrics
}

// NewLinkState returns a disabled link. metrics may be nil.
func NewLinkState(metrics *Metrics) *LinkState {
	return &LinkState{
		rx:      newWaker(),
		tx:      newWaker(),
		metrics: metrics,
	}
}

// Enabled reports whether the data interface is in its active setting.
func (s *LinkState) Enabled() bool {
	return s.enabled.Load()
}

// set stores the flag and wakes both directions, whether or not the value
// changed.
func (s *LinkState) set(enabled bool) {
	if s.enabled.Swap(enabled) != enabled {
		s.metrics.linkChanged(enabled)
		pkg.LogInfo(pkg.ComponentNCM, "link state changed",
			"enabled", enabled)
	}
	s.rx.wake()
	s.tx.wake()
}

// WaitRx blocks until the link is enabled, using the receive waker.
func (s *LinkState) WaitRx(ctx context.Context) error {
	return s.rx.wait(ctx, s.Enabled)
}

// WaitTx blocks until the link is enabled, using the transmit waker.
func (s *LinkState) WaitTx(ctx context.Context) error {
	return s.tx.wait(ctx, s.Enabled)
}
