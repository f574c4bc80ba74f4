package compute

import (
	"errors"
	"fmt"
	"time"
)

// Errors returned by the compute package.
var (
	// ErrResourceCreation is returned when any GPU object cannot be created.
	// Everything created before the failure has already been released.
	ErrResourceCreation = errors.New("compute: resource creation failed")

	// ErrGPUHang is matched by *GPUHangError.
	ErrGPUHang = errors.New("compute: GPU hang")

	// ErrSubmit is returned when recording or submitting a command buffer fails.
	ErrSubmit = errors.New("compute: command submission failed")

	// ErrDeviceLost is returned when a fence wait reports a device error.
	ErrDeviceLost = errors.New("compute: device lost")

	// ErrFrameSize is returned by Upload when a frame does not match the
	// staging buffer.
	ErrFrameSize = errors.New("compute: frame size does not match staging buffer")

	// ErrDestroyed is returned when a destroyed ResourceSet is used.
	ErrDestroyed = errors.New("compute: resource set destroyed")

	// ErrFenceBusy is returned when a fence is reset while work is pending.
	ErrFenceBusy = errors.New("compute: fence reset while work is pending")
)

// GPUHangError reports a fence wait that did not complete in time.
type GPUHangError struct {
	Timeout time.Duration
	Value   uint64 // fence value that was being waited for
}

func (e *GPUHangError) Error() string {
	return fmt.Sprintf("compute: GPU hang: fence value %d not signaled within %v", e.Value, e.Timeout)
}

// Is reports whether target is ErrGPUHang.
func (e *GPUHangError) Is(target error) bool { return target == ErrGPUHang }
