package source

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/obscura/frame"
)

// DefaultDevice is the capture device used when none is given.
const DefaultDevice = "/dev/video0"

// V4L2 capability bits inspected by DeviceCapture.
const (
	capVideoCapture uint32 = 0x00000001
	capReadWrite    uint32 = 0x01000000
)

// captureDevice is the control surface of an opened capture device.
type captureDevice interface {
	// Capabilities returns the device capability bits.
	Capabilities() (uint32, error)

	// SetFormat requests YUYV at width x height, progressive or any field
	// order, and returns the resolution the driver actually chose.
	SetFormat(width, height uint32) (uint32, uint32, error)

	// Read performs one read of up to len(p) bytes.
	Read(p []byte) (int, error)

	Close() error
}

// openFunc opens a capture device by path.
type openFunc func(path string) (captureDevice, error)

// DeviceCapture reads YUYV frames from a V4L2 device and converts them to RGBA.
//
// The requested resolution may be replaced by whatever the driver accepts
// during Init; Size reports the negotiated value afterwards.
type DeviceCapture struct {
	mu       sync.Mutex
	path     string
	width    uint32
	height   uint32
	open     openFunc
	dev      captureDevice
	yuyv     []byte
	adjusted *FormatAdjustedWarning
	count    atomic.Uint64
}

var _ FrameSource = (*DeviceCapture)(nil)

// NewDeviceCapture returns a capture source for the device at path.
// An empty path means DefaultDevice.
func NewDeviceCapture(width, height uint32, path string) *DeviceCapture {
	if path == "" {
		path = DefaultDevice
	}
	return &DeviceCapture{path: path, width: width, height: height, open: openV4L2}
}

// Init opens the device, checks that it can capture video and negotiates
// the YUYV format. A non-empty id overrides the device path.
func (c *DeviceCapture) Init(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev != nil {
		return nil
	}
	if id != "" {
		c.path = id
	}

	dev, err := c.open(c.path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrDevice, c.path, err)
	}

	caps, err := dev.Capabilities()
	if err != nil {
		_ = dev.Close()
		return fmt.Errorf("%w: query capabilities of %s: %w", ErrDevice, c.path, err)
	}
	if caps&capVideoCapture == 0 {
		_ = dev.Close()
		return fmt.Errorf("%w: %s is not a video capture device", ErrDevice, c.path)
	}
	if caps&capReadWrite == 0 {
		slogger().Warn("source: device does not advertise read() I/O", "device", c.path)
	}

	w, h, err := dev.SetFormat(c.width, c.height)
	if err != nil {
		_ = dev.Close()
		return fmt.Errorf("%w: set YUYV %dx%d on %s: %w", ErrDevice, c.width, c.height, c.path, err)
	}
	// YUYV packs two pixels per chroma pair.
	if w == 0 || h == 0 || w%2 != 0 {
		_ = dev.Close()
		return fmt.Errorf("%w: %s negotiated %dx%d, YUYV needs an even non-zero width", ErrDevice, c.path, w, h)
	}
	if w != c.width || h != c.height {
		c.adjusted = &FormatAdjustedWarning{
			RequestedWidth: c.width, RequestedHeight: c.height,
			Width: w, Height: h,
		}
		c.width, c.height = w, h
	}

	c.dev = dev
	c.yuyv = make([]byte, int(c.width)*int(c.height)*2)
	slogger().Info("source: capture device ready",
		"device", c.path, "width", c.width, "height", c.height)
	return nil
}

// GrabFrame reads exactly one YUYV frame and returns it converted to RGBA.
// A read that does not return exactly width*height*2 bytes yields a
// *ReadSizeError, which matches both ErrReadSizeMismatch and ErrEndOfStream.
func (c *DeviceCapture) GrabFrame() (*frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev == nil {
		return nil, fmt.Errorf("%w: device %s not initialized", ErrEndOfStream, c.path)
	}

	n, err := c.dev.Read(c.yuyv)
	if err != nil || n != len(c.yuyv) {
		return nil, &ReadSizeError{Got: n, Want: len(c.yuyv), Err: err}
	}

	f := frame.New(c.width, c.height)
	YUYVToRGBA(f.Data, c.yuyv)
	c.count.Add(1)
	return f, nil
}

// Cleanup closes the device. Calling it again, or before Init, does nothing.
func (c *DeviceCapture) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev == nil {
		return nil
	}
	err := c.dev.Close()
	c.dev = nil
	c.yuyv = nil
	if err != nil {
		return fmt.Errorf("source: close %s: %w", c.path, err)
	}
	return nil
}

// Size returns the frame dimensions, negotiated ones after Init.
func (c *DeviceCapture) Size() (uint32, uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// FrameCount returns the number of frames captured successfully.
func (c *DeviceCapture) FrameCount() uint64 { return c.count.Load() }

// Adjustment returns the format adjustment made during Init, if any.
func (c *DeviceCapture) Adjustment() (FormatAdjustedWarning, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.adjusted == nil {
		return FormatAdjustedWarning{}, false
	}
	return *c.adjusted, true
}
