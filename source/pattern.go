package source

import (
	"sync/atomic"

	"github.com/gogpu/obscura/frame"
)

// TestPattern generates a fixed RGBA gradient. The output depends only on
// the frame dimensions; the frame counter is kept for diagnostics.
type TestPattern struct {
	width  uint32
	height uint32
	count  atomic.Uint64
}

var _ FrameSource = (*TestPattern)(nil)

// NewTestPattern returns a gradient source of the given size.
func NewTestPattern(width, height uint32) *TestPattern {
	return &TestPattern{width: width, height: height}
}

// Init is a no-op; the pattern needs no resources.
func (p *TestPattern) Init(string) error { return nil }

// GrabFrame renders the gradient into a new frame.
func (p *TestPattern) GrabFrame() (*frame.Frame, error) {
	f := frame.New(p.width, p.height)
	FillGradient(f)
	p.count.Add(1)
	return f, nil
}

// Cleanup is a no-op.
func (p *TestPattern) Cleanup() error { return nil }

// Size returns the pattern dimensions.
func (p *TestPattern) Size() (uint32, uint32) { return p.width, p.height }

// FrameCount returns the number of frames generated so far.
func (p *TestPattern) FrameCount() uint64 { return p.count.Load() }

// FillGradient writes the test gradient into f:
//
//	r = x*255/width
//	g = y*255/height
//	b = (x+y)*255/(width+height)
//	a = 255
//
// using integer division.
func FillGradient(f *frame.Frame) {
	w, h := f.Width, f.Height
	for y := uint32(0); y < h; y++ {
		row := f.Data[int(y)*int(f.Stride):]
		g := uint8(y * 255 / h) //nolint:gosec // y < h, result <= 254
		for x := uint32(0); x < w; x++ {
			i := int(x) * frame.BytesPerPixel
			row[i+0] = uint8(x * 255 / w)             //nolint:gosec // x < w
			row[i+1] = g
			row[i+2] = uint8((x + y) * 255 / (w + h)) //nolint:gosec // x+y < w+h
			row[i+3] = 255
		}
	}
}
