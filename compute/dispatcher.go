package compute

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/obscura/frame"
	"github.com/gogpu/obscura/internal/kernel"
)

// ErrBlockSize is returned by Dispatch for a zero block size.
var ErrBlockSize = errors.New("compute: block size must be positive")

// Dispatcher uploads frames into a ResourceSet and runs the pixelation
// kernel on them. A Dispatcher is driven by a single goroutine.
//
// Every Upload and Dispatch first waits on the fence of the previous
// submission, so the staging buffer, the images and the command buffer are
// never touched while the GPU may still be using them.
type Dispatcher struct {
	rs    *ResourceSet
	queue hal.Queue

	frameIndex uint64
	lastSlot   int
	blockSize  uint32 // last value written to the params buffer
}

// NewDispatcher returns a dispatcher submitting rs work to queue.
func NewDispatcher(rs *ResourceSet, queue hal.Queue) *Dispatcher {
	return &Dispatcher{rs: rs, queue: queue, lastSlot: -1}
}

// Upload copies f into the staging buffer verbatim. f must have the
// dimensions the ResourceSet was created with and exactly StagingSize bytes
// of data; anything else returns ErrFrameSize.
func (d *Dispatcher) Upload(f *frame.Frame) error {
	rs := d.rs
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if err := rs.alive(); err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrFrameSize)
	}
	if f.Width != rs.width || f.Height != rs.height || uint64(len(f.Data)) != rs.StagingSize() {
		return fmt.Errorf("%w: frame %dx%d with %d bytes, staging holds %dx%d (%d bytes)",
			ErrFrameSize, f.Width, f.Height, len(f.Data), rs.width, rs.height, rs.StagingSize())
	}

	if err := rs.retire(); err != nil {
		return err
	}
	d.queue.WriteBuffer(rs.staging, 0, f.Data)
	return nil
}

// Dispatch records and submits one pixelation pass:
//
//  1. wait for the previous submission's fence, then reset it;
//  2. copy the staging buffer into the input image, run the kernel with the
//     descriptor set for the current frame index, and transition the output
//     image for readback or presentation;
//  3. submit, arming the fence.
//
// blockSize is forwarded unmodified to the kernel. Dispatch returns once
// the work is submitted; Wait or the next Upload/Dispatch blocks on it.
func (d *Dispatcher) Dispatch(blockSize uint32) error {
	if blockSize == 0 {
		return ErrBlockSize
	}

	rs := d.rs
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if err := rs.alive(); err != nil {
		return err
	}

	if err := rs.retire(); err != nil {
		return err
	}
	if err := rs.fence.Reset(); err != nil {
		return err
	}

	if blockSize != d.blockSize {
		d.queue.WriteBuffer(rs.params, 0, encodeParams(blockSize, rs.width, rs.height))
		d.blockSize = blockSize
	}

	slot := SlotIndex(d.frameIndex)
	cmd, err := rs.recordFrame(rs.slots[slot], blockSize)
	if err != nil {
		rs.fence.restore()
		return fmt.Errorf("%w: record frame %d: %w", ErrSubmit, d.frameIndex, err)
	}

	value := rs.fence.arm()
	if err := d.queue.Submit([]hal.CommandBuffer{cmd}, rs.fence.fence, value); err != nil {
		rs.fence.disarm()
		rs.device.FreeCommandBuffer(cmd)
		return fmt.Errorf("%w: frame %d: %w", ErrSubmit, d.frameIndex, err)
	}
	rs.cmdBuf = cmd
	rs.inputUsage = gputypes.TextureUsageStorageBinding
	rs.outputUsage = gputypes.TextureUsageCopySrc
	rs.state = StateDispatching

	slogger().Debug("compute: frame submitted",
		"frame", d.frameIndex, "slot", slot, "block_size", blockSize, "fence_value", value)
	d.lastSlot = slot
	d.frameIndex++
	return nil
}

// Wait blocks until the most recent submission completes.
func (d *Dispatcher) Wait() error {
	rs := d.rs
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if err := rs.alive(); err != nil {
		return err
	}
	return rs.retire()
}

// ReadOutput waits for the most recent dispatch and copies the output image
// back to the host. ctx is checked before any GPU work is started; an
// in-flight copy runs to completion or to the fence timeout.
func (d *Dispatcher) ReadOutput(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rs := d.rs
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if err := rs.alive(); err != nil {
		return nil, err
	}
	if err := rs.retire(); err != nil {
		return nil, err
	}
	if err := rs.fence.Reset(); err != nil {
		return nil, err
	}

	cmd, err := rs.recordReadback()
	if err != nil {
		rs.fence.restore()
		return nil, fmt.Errorf("%w: record readback: %w", ErrSubmit, err)
	}
	value := rs.fence.arm()
	if err := d.queue.Submit([]hal.CommandBuffer{cmd}, rs.fence.fence, value); err != nil {
		rs.fence.disarm()
		rs.device.FreeCommandBuffer(cmd)
		return nil, fmt.Errorf("%w: readback: %w", ErrSubmit, err)
	}
	rs.cmdBuf = cmd
	rs.outputUsage = gputypes.TextureUsageCopySrc
	if err := rs.retire(); err != nil {
		return nil, err
	}

	raw := make([]byte, uint64(rs.readbackRow)*uint64(rs.height))
	if err := d.queue.ReadBuffer(rs.readback, 0, raw); err != nil {
		return nil, fmt.Errorf("compute: read output: %w", err)
	}

	out := frame.New(rs.width, rs.height)
	row := int(rs.width) * frame.BytesPerPixel
	for y := 0; y < int(rs.height); y++ {
		copy(out.Data[y*row:(y+1)*row], raw[y*int(rs.readbackRow):])
	}
	return out, nil
}

// FrameIndex returns the index the next Dispatch will use.
func (d *Dispatcher) FrameIndex() uint64 { return d.frameIndex }

// LastSlot returns the descriptor slot used by the most recent Dispatch,
// or -1 if nothing has been dispatched.
func (d *Dispatcher) LastSlot() int { return d.lastSlot }

// Resources returns the ResourceSet the dispatcher drives.
func (d *Dispatcher) Resources() *ResourceSet { return d.rs }

func encodeParams(blockSize, width, height uint32) []byte {
	b := make([]byte, kernel.ParamsSize)
	binary.LittleEndian.PutUint32(b[0:], blockSize)
	binary.LittleEndian.PutUint32(b[4:], width)
	binary.LittleEndian.PutUint32(b[8:], height)
	return b
}

func (rs *ResourceSet) transition(enc hal.CommandEncoder, tex hal.Texture, from, to gputypes.TextureUsage) {
	if from == to {
		return
	}
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: from,
			NewUsage: to,
		},
	}})
}

// recordFrame records upload, compute and output transition for one frame.
// The caller commits the resulting image usages once the buffer is submitted.
func (rs *ResourceSet) recordFrame(slot hal.BindGroup, blockSize uint32) (hal.CommandBuffer, error) {
	enc := rs.encoder
	if err := enc.BeginEncoding("obscura_frame"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}

	rs.transition(enc, rs.input, rs.inputUsage, gputypes.TextureUsageCopyDst)
	enc.CopyBufferToTexture(rs.staging, rs.input, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: rs.width * 4, RowsPerImage: rs.height},
		TextureBase:  hal.ImageCopyTexture{Texture: rs.input, MipLevel: 0},
		Size:         hal.Extent3D{Width: rs.width, Height: rs.height, DepthOrArrayLayers: 1},
	}})
	rs.transition(enc, rs.input, gputypes.TextureUsageCopyDst, gputypes.TextureUsageStorageBinding)
	rs.transition(enc, rs.output, rs.outputUsage, gputypes.TextureUsageStorageBinding)

	x, y := kernel.WorkgroupCount(rs.width, rs.height, blockSize)
	pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: "obscura_pixelate"})
	pass.SetPipeline(rs.pipeline)
	pass.SetBindGroup(0, slot, nil)
	pass.SetBindGroup(kernel.ParamsGroup, rs.paramsGroup, nil)
	pass.Dispatch(x, y, 1)
	pass.End()

	rs.transition(enc, rs.output, gputypes.TextureUsageStorageBinding, gputypes.TextureUsageCopySrc)

	cmd, err := enc.EndEncoding()
	if err != nil {
		enc.DiscardEncoding()
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	return cmd, nil
}

func (rs *ResourceSet) recordReadback() (hal.CommandBuffer, error) {
	enc := rs.encoder
	if err := enc.BeginEncoding("obscura_readback"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	rs.transition(enc, rs.output, rs.outputUsage, gputypes.TextureUsageCopySrc)
	enc.CopyTextureToBuffer(rs.output, rs.readback, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: rs.readbackRow, RowsPerImage: rs.height},
		TextureBase:  hal.ImageCopyTexture{Texture: rs.output, MipLevel: 0},
		Size:         hal.Extent3D{Width: rs.width, Height: rs.height, DepthOrArrayLayers: 1},
	}})
	cmd, err := enc.EndEncoding()
	if err != nil {
		enc.DiscardEncoding()
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	return cmd, nil
}
