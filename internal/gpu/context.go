// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package gpu owns or borrows the HAL device and queue used by the compute
// pipeline.
//
// A Context is either opened by this package (Open), in which case Close
// destroys the device and instance, or borrowed from a host application
// (FromProvider, New), in which case Close only drops the references.
package gpu

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Backend names accepted by Open.
const (
	BackendVulkan = "vulkan"
	BackendNoop   = "noop"
)

var (
	// ErrUnavailable is returned when no usable GPU device can be opened.
	ErrUnavailable = errors.New("gpu: no usable GPU device")

	// ErrNoHAL is returned by FromProvider when the provider does not
	// expose HAL device and queue handles.
	ErrNoHAL = errors.New("gpu: provider does not expose HAL types")
)

// Options configures Open.
type Options struct {
	// Backend is BackendVulkan (default) or BackendNoop.
	Backend string
}

// Context holds the device and queue the pipeline submits to.
type Context struct {
	mu       sync.Mutex
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	adapter  string
	owned    bool
}

type instanceCreator interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// Open creates a HAL instance for the requested backend and opens a device
// on the best adapter: a discrete GPU, then an integrated one, then
// whatever comes first.
func Open(ctx context.Context, opts Options) (*Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var creator instanceCreator
	switch opts.Backend {
	case "", BackendVulkan:
		backend, ok := hal.GetBackend(gputypes.BackendVulkan)
		if !ok {
			return nil, fmt.Errorf("%w: vulkan backend not available", ErrUnavailable)
		}
		creator = backend
	case BackendNoop:
		creator = &noop.API{}
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrUnavailable, opts.Backend)
	}

	instance, err := creator.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", ErrUnavailable, err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no GPU adapters found", ErrUnavailable)
	}
	selected := selectAdapter(adapters)

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: open device: %w", ErrUnavailable, err)
	}

	slogger().Info("gpu: device opened", "adapter", selected.Info.Name, "backend", opts.Backend)
	return &Context{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		adapter:  selected.Info.Name,
		owned:    true,
	}, nil
}

func selectAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU {
			return &adapters[i]
		}
	}
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			return &adapters[i]
		}
	}
	return &adapters[0]
}

// FromProvider borrows the HAL device and queue of a host application.
// The provider must also implement HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue. The device is never destroyed by
// the returned Context.
func FromProvider(provider gpucontext.DeviceProvider) (*Context, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}
	slogger().Info("gpu: using shared device from provider")
	return New(device, queue), nil
}

// New wraps an existing device and queue without taking ownership.
func New(device hal.Device, queue hal.Queue) *Context {
	return &Context{device: device, queue: queue, adapter: "external"}
}

// Device returns the HAL device, or nil after Close.
func (c *Context) Device() hal.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}

// Queue returns the HAL queue, or nil after Close.
func (c *Context) Queue() hal.Queue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue
}

// AdapterName returns the name of the adapter the device was opened on.
func (c *Context) AdapterName() string { return c.adapter }

// Owned reports whether Close destroys the device.
func (c *Context) Owned() bool { return c.owned }

// Close releases the device and instance if this Context created them.
// It is safe to call multiple times.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.owned {
		if c.device != nil {
			c.device.Destroy()
		}
		if c.instance != nil {
			c.instance.Destroy()
		}
	}
	c.device = nil
	c.queue = nil
	c.instance = nil
}
