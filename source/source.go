// Package source produces RGBA frames for the anonymization pipeline.
//
// Two sources exist: [TestPattern], a deterministic gradient generator, and
// [DeviceCapture], which reads YUYV frames from a V4L2 capture device and
// converts them to RGBA. Both satisfy [FrameSource] and are picked at
// construction time with [New].
package source

import (
	"errors"
	"fmt"

	"github.com/gogpu/obscura/frame"
)

// Errors returned by frame sources.
var (
	// ErrDevice is returned when the capture device cannot be opened or configured.
	ErrDevice = errors.New("source: capture device error")

	// ErrEndOfStream is returned when a source has no more frames.
	ErrEndOfStream = errors.New("source: end of stream")

	// ErrReadSizeMismatch is returned when a device read returns fewer or more
	// bytes than one full frame. It also matches ErrEndOfStream.
	ErrReadSizeMismatch = errors.New("source: read size mismatch")

	// ErrUnknownKind is returned by New for an unsupported source kind.
	ErrUnknownKind = errors.New("source: unknown source kind")
)

// FrameSource produces one RGBA frame per GrabFrame call.
//
// Init must be called before GrabFrame. Cleanup releases whatever Init
// acquired and may be called any number of times, including never after Init.
type FrameSource interface {
	// Init prepares the source. An empty id selects the default device.
	Init(id string) error

	// GrabFrame returns a newly allocated frame owned by the caller.
	// Errors matching ErrEndOfStream mean the stream is exhausted.
	GrabFrame() (*frame.Frame, error)

	// Cleanup releases the source. It is idempotent.
	Cleanup() error

	// Size reports the frame dimensions. After Init it reflects any
	// resolution the device negotiated.
	Size() (width, height uint32)

	// FrameCount reports how many frames have been produced.
	FrameCount() uint64
}

// Kind selects a FrameSource implementation.
type Kind string

// Source kinds.
const (
	KindPattern Kind = "pattern"
	KindV4L2    Kind = "v4l2"
)

// New returns an uninitialized source of the given kind.
// The device path is only used by KindV4L2.
func New(kind Kind, width, height uint32, device string) (FrameSource, error) {
	switch kind {
	case KindPattern:
		return NewTestPattern(width, height), nil
	case KindV4L2:
		return NewDeviceCapture(width, height, device), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// ReadSizeError describes a device read that did not return exactly one frame.
type ReadSizeError struct {
	Got  int
	Want int
	Err  error // underlying read error, if any
}

func (e *ReadSizeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source: read %d bytes, expected %d: %v", e.Got, e.Want, e.Err)
	}
	return fmt.Sprintf("source: read %d bytes, expected %d", e.Got, e.Want)
}

// Is reports whether target is ErrReadSizeMismatch or ErrEndOfStream.
func (e *ReadSizeError) Is(target error) bool {
	return target == ErrReadSizeMismatch || target == ErrEndOfStream
}

func (e *ReadSizeError) Unwrap() error { return e.Err }

// FormatAdjustedWarning records that the device picked a different
// resolution than requested. It is logged, never returned from Init.
type FormatAdjustedWarning struct {
	RequestedWidth, RequestedHeight uint32
	Width, Height                   uint32
}

func (w FormatAdjustedWarning) Error() string {
	return fmt.Sprintf("source: resolution adjusted from %dx%d to %dx%d",
		w.RequestedWidth, w.RequestedHeight, w.Width, w.Height)
}
