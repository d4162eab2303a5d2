package ncm

import (
	"context"
	"sync"

	"github.com/ardnew/usbncm/device"
	"github.com/ardnew/usbncm/pkg"
)

// fakeIn records every packet written to it. When failAt is positive, the
// write with that 1-based ordinal fails with err.
type fakeIn struct {
	mps    uint16
	mutex  sync.Mutex
	writes [][]byte
	failAt int
	err    error
}

func (f *fakeIn) Write(ctx context.Context, data []byte) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.failAt > 0 && len(f.writes)+1 == f.failAt {
		return f.err
	}
	f.writes = append(f.writes, append([]byte{}, data...))
	return nil
}

func (f *fakeIn) WaitEnabled(ctx context.Context) error { return nil }

func (f *fakeIn) Info() device.EndpointInfo {
	return device.EndpointInfo{
		Address:       0x82,
		Attributes:    device.EndpointTypeBulk,
		MaxPacketSize: f.mps,
	}
}

func (f *fakeIn) packets() [][]byte {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([][]byte(nil), f.writes...)
}

func (f *fakeIn) lengths() []int {
	var n []int
	for _, p := range f.packets() {
		n = append(n, len(p))
	}
	return n
}

// fakeOut serves queued packets, then fails with err (pkg.ErrDisabled when
// unset) once the queue is empty.
type fakeOut struct {
	mps   uint16
	mutex sync.Mutex
	queue [][]byte
	reads int
	err   error
}

func (f *fakeOut) push(packets ...[]byte) {
	f.mutex.Lock()
	f.queue = append(f.queue, packets...)
	f.mutex.Unlock()
}

func (f *fakeOut) Read(ctx context.Context, buf []byte) (int, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if len(f.queue) == 0 {
		if f.err != nil {
			return 0, f.err
		}
		return 0, pkg.ErrDisabled
	}
	p := f.queue[0]
	f.queue = f.queue[1:]
	f.reads++
	return copy(buf, p), nil
}

func (f *fakeOut) WaitEnabled(ctx context.Context) error { return nil }

func (f *fakeOut) Info() device.EndpointInfo {
	return device.EndpointInfo{
		Address:       0x01,
		Attributes:    device.EndpointTypeBulk,
		MaxPacketSize: f.mps,
	}
}

func (f *fakeOut) pending() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.queue)
}

// packetize splits one transfer into packets of m bytes, terminated by a
// zero-length packet when its length is a multiple of m.
func packetize(transfer []byte, m int) [][]byte {
	var packets [][]byte
	for len(transfer) > 0 {
		n := min(m, len(transfer))
		packets = append(packets, transfer[:n])
		transfer = transfer[n:]
	}
	if len(packets) == 0 || len(packets[len(packets)-1]) == m {
		packets = append(packets, []byte{})
	}
	return packets
}
