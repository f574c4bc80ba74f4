// Package frame defines the RGBA8 interchange format passed between frame
// sources, the GPU dispatcher, and downstream consumers.
package frame

import (
	"errors"
	"fmt"
	"image"
)

// BytesPerPixel is the size of one RGBA8 pixel.
const BytesPerPixel = 4

// ErrInvalidFrame is returned when a frame's geometry and data disagree.
var ErrInvalidFrame = errors.New("frame: invalid frame")

// Frame is one RGBA8 image.
//
// Data holds Stride*Height bytes. Stride is at least Width*BytesPerPixel.
// A Frame is owned by whoever holds it; sources hand out a fresh Frame per
// acquisition and never touch it again.
type Frame struct {
	Width  uint32
	Height uint32
	Stride uint32 // bytes per row
	Data   []byte
}

// New allocates a tightly packed frame of the given size.
func New(width, height uint32) *Frame {
	stride := width * BytesPerPixel
	return &Frame{
		Width:  width,
		Height: height,
		Stride: stride,
		Data:   make([]byte, int(stride)*int(height)),
	}
}

// Size returns the number of bytes in Data.
func (f *Frame) Size() int { return len(f.Data) }

// Validate checks the frame invariants.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidFrame)
	}
	if f.Width == 0 || f.Height == 0 {
		return fmt.Errorf("%w: empty dimensions %dx%d", ErrInvalidFrame, f.Width, f.Height)
	}
	if f.Stride < f.Width*BytesPerPixel {
		return fmt.Errorf("%w: stride %d < %d", ErrInvalidFrame, f.Stride, f.Width*BytesPerPixel)
	}
	if want := int(f.Stride) * int(f.Height); len(f.Data) != want {
		return fmt.Errorf("%w: data length %d, want %d", ErrInvalidFrame, len(f.Data), want)
	}
	return nil
}

// Packed returns the pixel bytes without row padding. If the frame is
// already tightly packed, Data is returned as is.
func (f *Frame) Packed() []byte {
	row := int(f.Width) * BytesPerPixel
	if int(f.Stride) == row {
		return f.Data
	}
	out := make([]byte, row*int(f.Height))
	for y := 0; y < int(f.Height); y++ {
		copy(out[y*row:(y+1)*row], f.Data[y*int(f.Stride):])
	}
	return out
}

// RGBAAt returns the pixel at (x, y).
func (f *Frame) RGBAAt(x, y int) [4]uint8 {
	i := y*int(f.Stride) + x*BytesPerPixel
	return [4]uint8{f.Data[i], f.Data[i+1], f.Data[i+2], f.Data[i+3]}
}

// Image wraps the frame as an *image.RGBA sharing the same pixel memory.
func (f *Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Data,
		Stride: int(f.Stride),
		Rect:   image.Rect(0, 0, int(f.Width), int(f.Height)),
	}
}
