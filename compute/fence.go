package compute

import (
	"fmt"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// DefaultFenceTimeout bounds every fence wait before it is reported as a hang.
const DefaultFenceTimeout = 5 * time.Second

// Fence is a host/device rendezvous with binary semantics layered on a HAL
// timeline fence. It starts signaled. Reset moves it to unsignaled, a
// submission arms it with the next timeline value, and a successful Wait
// signals it again.
//
// Reset refuses to run while a submission is outstanding, so the
// wait-then-reset order is enforced rather than assumed.
type Fence struct {
	device  hal.Device
	fence   hal.Fence
	timeout time.Duration

	value    uint64 // last timeline value handed to Submit
	pending  bool   // a submission is outstanding
	signaled bool
}

func newFence(device hal.Device, timeout time.Duration) (*Fence, error) {
	f, err := device.CreateFence()
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultFenceTimeout
	}
	return &Fence{device: device, fence: f, timeout: timeout, signaled: true}, nil
}

// Signaled polls the fence without blocking.
func (f *Fence) Signaled() bool {
	if f.signaled || !f.pending {
		return f.signaled
	}
	ok, err := f.device.Wait(f.fence, f.value, 0)
	if err == nil && ok {
		f.pending = false
		f.signaled = true
	}
	return f.signaled
}

// Pending reports whether a submission is outstanding.
func (f *Fence) Pending() bool { return f.pending }

// Value returns the timeline value of the most recent submission.
func (f *Fence) Value() uint64 { return f.value }

// Wait blocks until the outstanding submission completes or the timeout
// expires. A timeout yields *GPUHangError; a device error yields
// ErrDeviceLost. Waiting on a signaled fence returns immediately.
func (f *Fence) Wait() error {
	if f.signaled {
		return nil
	}
	if !f.pending {
		return fmt.Errorf("%w: fence was reset but nothing was submitted", ErrSubmit)
	}
	ok, err := f.device.Wait(f.fence, f.value, f.timeout)
	if err != nil {
		return fmt.Errorf("%w: wait for fence value %d: %w", ErrDeviceLost, f.value, err)
	}
	if !ok {
		return &GPUHangError{Timeout: f.timeout, Value: f.value}
	}
	f.pending = false
	f.signaled = true
	return nil
}

// Reset moves a signaled fence to unsignaled.
func (f *Fence) Reset() error {
	if f.pending {
		return ErrFenceBusy
	}
	f.signaled = false
	return nil
}

// arm returns the value the next submission must signal.
func (f *Fence) arm() uint64 {
	f.value++
	f.pending = true
	return f.value
}

// disarm rolls back arm and Reset after a failed submission.
func (f *Fence) disarm() {
	f.value--
	f.pending = false
	f.restore()
}

// restore undoes a Reset that was never followed by a submission. Nothing
// is outstanding, so the fence is signaled again.
func (f *Fence) restore() {
	if !f.pending {
		f.signaled = true
	}
}

func (f *Fence) destroy() {
	if f.fence != nil {
		f.device.DestroyFence(f.fence)
		f.fence = nil
	}
}
