package compute

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/obscura/internal/kernel"
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

var errInjected = errors.New("injected failure")

// recordingDevice wraps a real device, records every release call and can
// fail pipeline creation or take over fence waits.
type recordingDevice struct {
	hal.Device

	mu       sync.Mutex
	released []string

	failPipeline bool
	failEncoding bool
	waitFn       func(fence hal.Fence, value uint64, timeout time.Duration) (bool, error)
	waits        atomic.Int32
	discards     atomic.Int32
}

func (d *recordingDevice) record(kind string) {
	d.mu.Lock()
	d.released = append(d.released, kind)
	d.mu.Unlock()
}

func (d *recordingDevice) releases() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.released...)
}

func (d *recordingDevice) CreateComputePipeline(desc *hal.ComputePipelineDescriptor) (hal.ComputePipeline, error) {
	if d.failPipeline {
		return nil, errInjected
	}
	return d.Device.CreateComputePipeline(desc)
}

func (d *recordingDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &recordingEncoder{CommandEncoder: enc, dev: d}, nil
}

func (d *recordingDevice) Wait(fence hal.Fence, value uint64, timeout time.Duration) (bool, error) {
	d.waits.Add(1)
	if d.waitFn != nil {
		return d.waitFn(fence, value, timeout)
	}
	return d.Device.Wait(fence, value, timeout)
}

func (d *recordingDevice) DestroyBuffer(b hal.Buffer) {
	d.record("buffer")
	d.Device.DestroyBuffer(b)
}

func (d *recordingDevice) DestroyTexture(t hal.Texture) {
	d.record("texture")
	d.Device.DestroyTexture(t)
}

func (d *recordingDevice) DestroyTextureView(v hal.TextureView) {
	d.record("view")
	d.Device.DestroyTextureView(v)
}

func (d *recordingDevice) DestroyShaderModule(m hal.ShaderModule) {
	d.record("shader")
	d.Device.DestroyShaderModule(m)
}

func (d *recordingDevice) DestroyBindGroupLayout(l hal.BindGroupLayout) {
	d.record("bind group layout")
	d.Device.DestroyBindGroupLayout(l)
}

func (d *recordingDevice) DestroyPipelineLayout(l hal.PipelineLayout) {
	d.record("pipeline layout")
	d.Device.DestroyPipelineLayout(l)
}

func (d *recordingDevice) DestroyComputePipeline(p hal.ComputePipeline) {
	d.record("pipeline")
	d.Device.DestroyComputePipeline(p)
}

func (d *recordingDevice) DestroyBindGroup(g hal.BindGroup) {
	d.record("bind group")
	d.Device.DestroyBindGroup(g)
}

func (d *recordingDevice) DestroyFence(f hal.Fence) {
	d.record("fence")
	d.Device.DestroyFence(f)
}

func (d *recordingDevice) FreeCommandBuffer(c hal.CommandBuffer) {
	d.record("command buffer")
	d.Device.FreeCommandBuffer(c)
}

// recordingEncoder fails EndEncoding while its device has failEncoding set
// and counts discarded encodings.
type recordingEncoder struct {
	hal.CommandEncoder
	dev *recordingDevice
}

func (e *recordingEncoder) EndEncoding() (hal.CommandBuffer, error) {
	if e.dev.failEncoding {
		return nil, errInjected
	}
	return e.CommandEncoder.EndEncoding()
}

func (e *recordingEncoder) DiscardEncoding() {
	e.dev.discards.Add(1)
	e.CommandEncoder.DiscardEncoding()
}

// recordingQueue counts submissions and can fail them.
type recordingQueue struct {
	hal.Queue

	submitErr error
	submits   atomic.Int32

	mu     sync.Mutex
	values []uint64
}

func (q *recordingQueue) Submit(cmds []hal.CommandBuffer, fence hal.Fence, value uint64) error {
	if q.submitErr != nil {
		return q.submitErr
	}
	q.submits.Add(1)
	q.mu.Lock()
	q.values = append(q.values, value)
	q.mu.Unlock()
	return q.Queue.Submit(cmds, fence, value)
}

func (q *recordingQueue) fenceValues() []uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]uint64(nil), q.values...)
}

// newTestSet creates a 4x4 resource set on a recording wrapper around the
// noop device.
func newTestSet(t *testing.T, dev *recordingDevice) *ResourceSet {
	t.Helper()
	rs, err := NewResourceSet(dev, Descriptor{Width: 4, Height: 4, Kernel: testKernel(), FenceTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewResourceSet: %v", err)
	}
	return rs
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
