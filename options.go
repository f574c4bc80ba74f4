package obscura

import (
	"log/slog"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/obscura/source"
)

// Option configures a Pipeline during creation.
//
// Example:
//
//	// Default: source, device and GPU chosen from Config
//	p, err := obscura.New(obscura.DefaultConfig())
//
//	// Frames from a custom source, output handed to a consumer
//	p, err := obscura.New(cfg,
//	    obscura.WithSource(mySource),
//	    obscura.WithFrameSink(func(f *obscura.Frame) error { return show(f) }))
type Option func(*pipelineOptions)

// FrameSink consumes output frames. The frame belongs to the sink.
type FrameSink func(*Frame) error

// pipelineOptions holds optional configuration for Pipeline creation.
type pipelineOptions struct {
	logger   *slog.Logger
	source   source.FrameSource
	provider gpucontext.DeviceProvider
	device   hal.Device
	queue    hal.Queue
	sink     FrameSink
	now      func() time.Time
}

func defaultOptions() pipelineOptions {
	return pipelineOptions{
		now: time.Now,
	}
}

// WithLogger sets the logger used for the pipeline's own messages. The
// sub-packages keep logging through SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(o *pipelineOptions) {
		o.logger = l
	}
}

// WithSource replaces the source selected by Config.Source. The pipeline
// still calls Init and Cleanup on it.
func WithSource(src source.FrameSource) Option {
	return func(o *pipelineOptions) {
		o.source = src
	}
}

// WithGPUContext borrows the device and queue of a host application, such
// as the presentation stage that will display the output. The provider must
// expose HAL handles; the pipeline never destroys a borrowed device.
//
// Example:
//
//	app := gogpu.NewApp(gogpu.DefaultConfig())
//	p, err := obscura.New(cfg, obscura.WithGPUContext(app.GPUContextProvider()))
func WithGPUContext(provider gpucontext.DeviceProvider) Option {
	return func(o *pipelineOptions) {
		o.provider = provider
	}
}

// WithHAL runs the pipeline on an existing HAL device and queue, which are
// never destroyed by the pipeline.
func WithHAL(device hal.Device, queue hal.Queue) Option {
	return func(o *pipelineOptions) {
		o.device = device
		o.queue = queue
	}
}

// WithFrameSink reads every output frame back to the host and passes it to
// sink. Without a sink only the dump path, if any, triggers a readback.
func WithFrameSink(sink FrameSink) Option {
	return func(o *pipelineOptions) {
		o.sink = sink
	}
}

// WithClock replaces time.Now for throughput measurement.
func WithClock(now func() time.Time) Option {
	return func(o *pipelineOptions) {
		if now != nil {
			o.now = now
		}
	}
}
