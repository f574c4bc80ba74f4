package obscura

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/obscura/frame"
	"github.com/gogpu/obscura/internal/kernel"
	"github.com/gogpu/obscura/source"
)

// createNoopDevice creates a noop device and queue for testing.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// testKernel is a bare SPIR-V header; the noop backend never runs it.
func testKernel() []uint32 {
	return []uint32{kernel.SPIRVMagic, 0x00010000, 0, 1, 0}
}

// writeKernel stores testKernel as an asset file and returns its path.
func writeKernel(t *testing.T) string {
	t.Helper()
	k := &kernel.Kernel{Name: "test", Words: testKernel()}
	path := filepath.Join(t.TempDir(), "pixelation.comp.spv")
	if err := os.WriteFile(path, k.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// testConfig is a small headless configuration on the noop backend.
func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 8, 8
	cfg.BlockSize = 2
	cfg.MaxFrames = 5
	cfg.ReportInterval = 2
	cfg.Backend = "noop"
	cfg.KernelPath = writeKernel(t)
	return cfg
}

// fakeSource is a FrameSource that can negotiate a different size, run dry
// after a number of frames, or fail Init.
type fakeSource struct {
	mu sync.Mutex

	reqW, reqH uint32
	w, h       uint32
	adjustTo   [2]uint32

	limit   uint64 // 0 = unlimited
	endErr  error  // returned once limit frames were produced
	initErr error

	count    uint64
	inits    int
	cleanups int
}

var _ source.FrameSource = (*fakeSource)(nil)

func newFakeSource(w, h uint32) *fakeSource {
	return &fakeSource{reqW: w, reqH: h, w: w, h: h}
}

func (s *fakeSource) Init(string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inits++
	if s.initErr != nil {
		return s.initErr
	}
	if s.adjustTo[0] != 0 {
		s.w, s.h = s.adjustTo[0], s.adjustTo[1]
	}
	return nil
}

func (s *fakeSource) GrabFrame() (*frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit != 0 && s.count >= s.limit {
		if s.endErr != nil {
			return nil, s.endErr
		}
		return nil, source.ErrEndOfStream
	}
	s.count++
	return frame.New(s.w, s.h), nil
}

func (s *fakeSource) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups++
	return nil
}

func (s *fakeSource) Size() (uint32, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w, s.h
}

func (s *fakeSource) FrameCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *fakeSource) Adjustment() (source.FormatAdjustedWarning, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == s.reqW && s.h == s.reqH {
		return source.FormatAdjustedWarning{}, false
	}
	return source.FormatAdjustedWarning{
		RequestedWidth: s.reqW, RequestedHeight: s.reqH,
		Width: s.w, Height: s.h,
	}, true
}

func (s *fakeSource) cleanupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanups
}

var errSink = errors.New("sink failed")

// stalledDevice is a device whose fence waits always time out.
type stalledDevice struct {
	hal.Device
}

func (stalledDevice) Wait(hal.Fence, uint64, time.Duration) (bool, error) { return false, nil }
