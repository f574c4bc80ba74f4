// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compute

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/obscura/internal/kernel"
)

// SlotCount is the number of descriptor set slots.
const SlotCount = 2

// copyPitchAlignment is the row alignment required for texture to buffer
// copies on WebGPU and DX12 backends.
const copyPitchAlignment = 256

// usageUndefined is the usage of an image that has never been transitioned.
const usageUndefined gputypes.TextureUsage = 0

// Descriptor describes a ResourceSet.
type Descriptor struct {
	Width  uint32
	Height uint32

	// Kernel is the SPIR-V module, validated by the caller.
	Kernel []uint32

	// FenceTimeout bounds fence waits. Zero means DefaultFenceTimeout.
	FenceTimeout time.Duration
}

// ResourceSet owns every GPU object one pixelation pass needs: the input
// and output storage images with their views, the host-visible staging
// buffer, the descriptor layouts and sets, the compute pipeline, the command
// encoder and the fence.
//
// Resources are created in dependency order and released in exactly the
// reverse order. A failure halfway through creation releases whatever was
// already created before the error is returned.
//
// Both descriptor set slots reference the same image pair; the fence
// serializes every reuse of the images, the staging buffer and the command
// buffer, so either slot is safe to select at any time.
type ResourceSet struct {
	mu sync.Mutex

	device hal.Device
	width  uint32
	height uint32

	staging     hal.Buffer
	readback    hal.Buffer
	readbackRow uint32

	input      hal.Texture
	output     hal.Texture
	inputView  hal.TextureView
	outputView hal.TextureView

	shader         hal.ShaderModule
	imageLayout    hal.BindGroupLayout
	paramsLayout   hal.BindGroupLayout
	pipelineLayout hal.PipelineLayout
	pipeline       hal.ComputePipeline

	params      hal.Buffer
	slots       [SlotCount]hal.BindGroup
	paramsGroup hal.BindGroup

	encoder hal.CommandEncoder
	cmdBuf  hal.CommandBuffer // most recent submission, freed once its fence signals

	fence *Fence

	inputUsage  gputypes.TextureUsage
	outputUsage gputypes.TextureUsage

	releases releaseStack
	state    State
}

// NewResourceSet creates all resources for width x height frames on device.
// Errors wrap ErrResourceCreation.
func NewResourceSet(device hal.Device, desc Descriptor) (*ResourceSet, error) {
	if device == nil {
		return nil, fmt.Errorf("%w: nil device", ErrResourceCreation)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("%w: invalid frame size %dx%d", ErrResourceCreation, desc.Width, desc.Height)
	}
	if len(desc.Kernel) == 0 {
		return nil, fmt.Errorf("%w: empty kernel", ErrResourceCreation)
	}

	rs := &ResourceSet{
		device: device,
		width:  desc.Width,
		height: desc.Height,
		state:  StateUninitialized,
	}
	if err := rs.create(desc); err != nil {
		rs.releases.releaseAll()
		rs.clear()
		rs.state = StateDestroyed
		return nil, fmt.Errorf("%w: %w", ErrResourceCreation, err)
	}
	rs.state = StateResourcesCreated

	slogger().Info("compute: resources created",
		"width", rs.width, "height", rs.height, "staging_bytes", rs.StagingSize(), "objects", rs.releases.len())
	rs.state = StateReady
	return rs, nil
}

func (rs *ResourceSet) create(desc Descriptor) error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"staging buffer", rs.createStaging},
		{"readback buffer", rs.createReadback},
		{"storage images", rs.createImages},
		{"image views", rs.createViews},
		{"shader module", func() error { return rs.createShader(desc.Kernel) }},
		{"descriptor layouts", rs.createLayouts},
		{"pipeline layout", rs.createPipelineLayout},
		{"compute pipeline", rs.createPipeline},
		{"params buffer", rs.createParams},
		{"descriptor sets", rs.createDescriptorSets},
		{"command buffer", rs.createEncoder},
		{"fence", func() error { return rs.createFence(desc.FenceTimeout) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("create %s: %w", s.name, err)
		}
	}
	return nil
}

func (rs *ResourceSet) createStaging() error {
	buf, err := rs.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "obscura_staging",
		Size:  rs.StagingSize(),
		Usage: gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	rs.staging = buf
	rs.releases.push("staging buffer", func() { rs.device.DestroyBuffer(buf) })
	return nil
}

func (rs *ResourceSet) createReadback() error {
	rs.readbackRow = (rs.width*4 + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	buf, err := rs.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "obscura_readback",
		Size:  uint64(rs.readbackRow) * uint64(rs.height),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	rs.readback = buf
	rs.releases.push("readback buffer", func() { rs.device.DestroyBuffer(buf) })
	return nil
}

func (rs *ResourceSet) newImage(label string) (hal.Texture, error) {
	return rs.device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: rs.width, Height: rs.height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageStorageBinding | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
	})
}

// createImages creates the input and output images. A HAL texture owns its
// memory, so each image and its allocation are one release entry.
func (rs *ResourceSet) createImages() error {
	in, err := rs.newImage("obscura_input")
	if err != nil {
		return fmt.Errorf("input: %w", err)
	}
	rs.input = in
	rs.releases.push("input image", func() { rs.device.DestroyTexture(in) })

	out, err := rs.newImage("obscura_output")
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	rs.output = out
	rs.releases.push("output image", func() { rs.device.DestroyTexture(out) })

	rs.inputUsage = usageUndefined
	rs.outputUsage = usageUndefined
	return nil
}

func (rs *ResourceSet) newView(tex hal.Texture, label string) (hal.TextureView, error) {
	return rs.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         label,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
}

func (rs *ResourceSet) createViews() error {
	in, err := rs.newView(rs.input, "obscura_input_view")
	if err != nil {
		return fmt.Errorf("input: %w", err)
	}
	rs.inputView = in
	rs.releases.push("input image view", func() { rs.device.DestroyTextureView(in) })

	out, err := rs.newView(rs.output, "obscura_output_view")
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	rs.outputView = out
	rs.releases.push("output image view", func() { rs.device.DestroyTextureView(out) })
	return nil
}

func (rs *ResourceSet) createShader(spirv []uint32) error {
	m, err := rs.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "obscura_pixelate",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return err
	}
	rs.shader = m
	rs.releases.push("shader module", func() { rs.device.DestroyShaderModule(m) })
	return nil
}

// createLayouts creates the image layout, which has exactly the input and
// output storage image bindings, and the separate uniform layout carrying
// the block size.
func (rs *ResourceSet) createLayouts() error {
	storage := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:        binding,
			Visibility:     gputypes.ShaderStageCompute,
			StorageTexture: &gputypes.StorageTextureBindingLayout{
				Access:        gputypes.StorageTextureAccessReadWrite,
				Format:        gputypes.TextureFormatRGBA8Unorm,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		}
	}
	images, err := rs.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "obscura_image_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			storage(kernel.BindingInput),
			storage(kernel.BindingOutput),
		},
	})
	if err != nil {
		return fmt.Errorf("images: %w", err)
	}
	rs.imageLayout = images
	rs.releases.push("image descriptor layout", func() { rs.device.DestroyBindGroupLayout(images) })

	params, err := rs.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "obscura_params_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: kernel.ParamsBinding, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
		},
	})
	if err != nil {
		return fmt.Errorf("params: %w", err)
	}
	rs.paramsLayout = params
	rs.releases.push("params descriptor layout", func() { rs.device.DestroyBindGroupLayout(params) })
	return nil
}

func (rs *ResourceSet) createPipelineLayout() error {
	pl, err := rs.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "obscura_pipeline_layout",
		BindGroupLayouts: []hal.BindGroupLayout{rs.imageLayout, rs.paramsLayout},
	})
	if err != nil {
		return err
	}
	rs.pipelineLayout = pl
	rs.releases.push("pipeline layout", func() { rs.device.DestroyPipelineLayout(pl) })
	return nil
}

func (rs *ResourceSet) createPipeline() error {
	p, err := rs.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "obscura_pipeline",
		Layout:  rs.pipelineLayout,
		Compute: hal.ComputeState{Module: rs.shader, EntryPoint: kernel.EntryPoint},
	})
	if err != nil {
		return err
	}
	rs.pipeline = p
	rs.releases.push("compute pipeline", func() { rs.device.DestroyComputePipeline(p) })
	return nil
}

func (rs *ResourceSet) createParams() error {
	buf, err := rs.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "obscura_params",
		Size:  kernel.ParamsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	rs.params = buf
	rs.releases.push("params buffer", func() { rs.device.DestroyBuffer(buf) })
	return nil
}

// createDescriptorSets allocates both image slots and the params group.
// HAL bind groups are not pool allocated, so the pool's release entry
// destroys the groups themselves.
func (rs *ResourceSet) createDescriptorSets() error {
	var groups []hal.BindGroup
	release := func() {
		for i := len(groups) - 1; i >= 0; i-- {
			rs.device.DestroyBindGroup(groups[i])
		}
	}

	for i := range rs.slots {
		bg, err := rs.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  fmt.Sprintf("obscura_slot_%d", i),
			Layout: rs.imageLayout,
			Entries: []gputypes.BindGroupEntry{
				{Binding: kernel.BindingInput, Resource: gputypes.TextureViewBinding{TextureView: rs.inputView.NativeHandle()}},
				{Binding: kernel.BindingOutput, Resource: gputypes.TextureViewBinding{TextureView: rs.outputView.NativeHandle()}},
			},
		})
		if err != nil {
			release()
			return fmt.Errorf("slot %d: %w", i, err)
		}
		groups = append(groups, bg)
		rs.slots[i] = bg
	}

	pg, err := rs.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "obscura_params_group",
		Layout: rs.paramsLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: kernel.ParamsBinding, Resource: gputypes.BufferBinding{Buffer: rs.params.NativeHandle(), Offset: 0, Size: kernel.ParamsSize}},
		},
	})
	if err != nil {
		release()
		return fmt.Errorf("params: %w", err)
	}
	groups = append(groups, pg)
	rs.paramsGroup = pg

	rs.releases.push("descriptor pool", release)
	return nil
}

func (rs *ResourceSet) createEncoder() error {
	enc, err := rs.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "obscura_encoder"})
	if err != nil {
		return err
	}
	rs.encoder = enc
	rs.releases.push("command buffer", func() {
		if rs.cmdBuf != nil {
			rs.device.FreeCommandBuffer(rs.cmdBuf)
			rs.cmdBuf = nil
		}
	})
	return nil
}

func (rs *ResourceSet) createFence(timeout time.Duration) error {
	f, err := newFence(rs.device, timeout)
	if err != nil {
		return err
	}
	rs.fence = f
	rs.releases.push("fence", f.destroy)
	return nil
}

// Destroy waits for outstanding GPU work and releases every resource in
// reverse creation order. It is safe to call more than once; later calls do
// nothing and return nil. A failed wait is returned after the resources
// have been released.
func (rs *ResourceSet) Destroy() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.state == StateDestroyed {
		return nil
	}

	var waitErr error
	if rs.fence != nil && rs.fence.Pending() {
		if err := rs.fence.Wait(); err != nil {
			waitErr = fmt.Errorf("compute: wait before destroy: %w", err)
			slogger().Warn("compute: releasing resources with GPU work outstanding", "err", err)
		}
	}

	rs.releases.releaseAll()
	rs.clear()
	rs.state = StateDestroyed
	slogger().Info("compute: resources destroyed")
	return waitErr
}

func (rs *ResourceSet) clear() {
	rs.staging, rs.readback = nil, nil
	rs.input, rs.output = nil, nil
	rs.inputView, rs.outputView = nil, nil
	rs.shader = nil
	rs.imageLayout, rs.paramsLayout = nil, nil
	rs.pipelineLayout = nil
	rs.pipeline = nil
	rs.params = nil
	rs.slots = [SlotCount]hal.BindGroup{}
	rs.paramsGroup = nil
	rs.encoder = nil
	rs.cmdBuf = nil
	rs.fence = nil
}

// DescriptorSetFor returns the descriptor set slot for frameIndex, which is
// slot frameIndex mod SlotCount. It returns nil after Destroy.
func (rs *ResourceSet) DescriptorSetFor(frameIndex uint64) hal.BindGroup {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.slots[SlotIndex(frameIndex)]
}

// SlotIndex returns the slot used for frameIndex.
func SlotIndex(frameIndex uint64) int {
	return int(frameIndex % SlotCount) //nolint:gosec // result < SlotCount
}

// Width returns the frame width the set was created for.
func (rs *ResourceSet) Width() uint32 { return rs.width }

// Height returns the frame height the set was created for.
func (rs *ResourceSet) Height() uint32 { return rs.height }

// StagingSize returns the staging buffer capacity: one tightly packed RGBA frame.
func (rs *ResourceSet) StagingSize() uint64 {
	return uint64(rs.width) * uint64(rs.height) * 4
}

// State returns the current lifecycle state.
func (rs *ResourceSet) State() State {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.state
}

// Fence returns the fence guarding the set's resources, or nil after Destroy.
func (rs *ResourceSet) Fence() *Fence {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.fence
}

// alive returns ErrDestroyed once the set has been destroyed. Callers hold rs.mu.
func (rs *ResourceSet) alive() error {
	if rs.state == StateDestroyed {
		return ErrDestroyed
	}
	return nil
}

// retire waits for the last submission and frees its command buffer.
// Callers hold rs.mu.
func (rs *ResourceSet) retire() error {
	if err := rs.fence.Wait(); err != nil {
		return err
	}
	if rs.cmdBuf != nil {
		rs.device.FreeCommandBuffer(rs.cmdBuf)
		rs.cmdBuf = nil
	}
	if rs.state == StateDispatching {
		rs.state = StateIdle
	}
	return nil
}
