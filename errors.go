package obscura

import (
	"errors"

	"github.com/gogpu/obscura/compute"
	"github.com/gogpu/obscura/frame"
	"github.com/gogpu/obscura/internal/kernel"
	"github.com/gogpu/obscura/source"
)

// Frame is one RGBA8 image. See [frame.Frame].
type Frame = frame.Frame

// Error types surfaced by the pipeline.
type (
	// FormatAdjustedWarning reports a device-negotiated resolution. It is
	// logged, never returned as a failure.
	FormatAdjustedWarning = source.FormatAdjustedWarning

	// ReadSizeError is a capture read that did not return exactly one frame.
	// It matches ErrReadSizeMismatch and ErrEndOfStream.
	ReadSizeError = source.ReadSizeError

	// GPUHangError is a fence wait that exceeded its timeout.
	GPUHangError = compute.GPUHangError
)

// Errors returned by the pipeline. They are the same values the
// sub-packages return, so errors.Is works on any wrapped error.
var (
	ErrDevice           = source.ErrDevice
	ErrEndOfStream      = source.ErrEndOfStream
	ErrReadSizeMismatch = source.ErrReadSizeMismatch
	ErrAsset            = kernel.ErrAsset
	ErrResourceCreation = compute.ErrResourceCreation
	ErrGPUHang          = compute.ErrGPUHang
	ErrSubmit           = compute.ErrSubmit
	ErrDeviceLost       = compute.ErrDeviceLost
	ErrFrameSize        = compute.ErrFrameSize
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("obscura: invalid configuration")
