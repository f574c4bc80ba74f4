// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package obscura

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/obscura/compute"
	"github.com/gogpu/obscura/internal/framedump"
	"github.com/gogpu/obscura/internal/gpu"
	"github.com/gogpu/obscura/internal/kernel"
	"github.com/gogpu/obscura/source"
)

// ErrRunning is returned by Run while another Run is in progress.
var ErrRunning = errors.New("obscura: pipeline already running")

// Pipeline drives the per-frame loop: acquire a frame, upload it, dispatch
// the pixelation kernel, and periodically report throughput.
//
// Every GPU resource is created when Run starts and released, in reverse
// creation order, before it returns. One goroutine touches the GPU; with a
// prefetch depth above zero a second goroutine captures frames into a
// bounded queue.
type Pipeline struct {
	cfg  Config
	opts pipelineOptions

	mu      sync.Mutex
	running bool
	meter   *meter
}

// New validates cfg and returns a pipeline ready to Run.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Pipeline{
		cfg:   cfg,
		opts:  o,
		meter: newMeter(o.now, cfg.ReportInterval),
	}, nil
}

// Config returns the configuration the pipeline was created with.
func (p *Pipeline) Config() Config { return p.cfg }

// Stats returns the throughput of the current or most recent run.
func (p *Pipeline) Stats() Stats { return p.meter.snapshot() }

func (p *Pipeline) log() *slog.Logger {
	if p.opts.logger != nil {
		return p.opts.logger
	}
	return Logger()
}

// Run initializes the source, the GPU device and the compute resources,
// then processes frames until the frame budget is spent or the source is
// exhausted. Both end the loop cleanly and Run returns nil.
//
// ctx is checked between frames; a dispatch in flight always runs to
// completion or to the fence timeout. Cancellation returns ctx.Err().
// Initialization failures, GPU hangs and submission failures are returned
// after every resource created so far has been released.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrRunning
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	log := p.log()

	src, err := p.openSource()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := src.Cleanup(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("obscura: source cleanup: %w", cerr))
		}
	}()

	width, height := src.Size()

	k, err := kernel.Resolve(p.cfg.KernelPath)
	if err != nil {
		return err
	}

	gctx, err := p.openGPU(ctx)
	if err != nil {
		return err
	}
	defer gctx.Close()

	rs, err := compute.NewResourceSet(gctx.Device(), compute.Descriptor{
		Width:        width,
		Height:       height,
		Kernel:       k.Words,
		FenceTimeout: p.cfg.FenceTimeout.std(),
	})
	if err != nil {
		return err
	}
	defer func() {
		if derr := rs.Destroy(); derr != nil {
			err = errors.Join(err, derr)
		}
	}()
	d := compute.NewDispatcher(rs, gctx.Queue())

	log.Info("obscura: pipeline initialized",
		"width", width, "height", height,
		"block_size", p.cfg.BlockSize, "kernel", k.Name,
		"adapter", gctx.AdapterName(), "max_frames", p.cfg.MaxFrames)

	var frames feed = syncFeed{src: src}
	if p.cfg.Prefetch > 0 {
		frames = newPrefetchFeed(ctx, src, p.cfg.Prefetch, p.cfg.MaxFrames)
	}
	defer func() {
		if serr := frames.stop(); serr != nil && err == nil {
			err = serr
		}
	}()

	return p.loop(ctx, d, frames, width, height)
}

func (p *Pipeline) openSource() (source.FrameSource, error) {
	src := p.opts.source
	if src == nil {
		var err error
		src, err = source.New(source.Kind(p.cfg.Source), p.cfg.Width, p.cfg.Height, p.cfg.Device)
		if err != nil {
			return nil, err
		}
	}
	if err := src.Init(p.cfg.Device); err != nil {
		_ = src.Cleanup()
		return nil, err
	}
	if a, ok := src.(interface {
		Adjustment() (source.FormatAdjustedWarning, bool)
	}); ok {
		if w, adjusted := a.Adjustment(); adjusted {
			p.log().Warn("obscura: capture resolution adjusted", "warning", w.Error())
		}
	}
	return src, nil
}

func (p *Pipeline) openGPU(ctx context.Context) (*gpu.Context, error) {
	switch {
	case p.opts.device != nil:
		return gpu.New(p.opts.device, p.opts.queue), nil
	case p.opts.provider != nil:
		c, err := gpu.FromProvider(p.opts.provider)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrResourceCreation, err)
		}
		return c, nil
	default:
		c, err := gpu.Open(ctx, gpu.Options{Backend: p.cfg.Backend})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrResourceCreation, err)
		}
		return c, nil
	}
}

func (p *Pipeline) loop(ctx context.Context, d *compute.Dispatcher, frames feed, width, height uint32) error {
	log := p.log()
	p.meter.begin(width, height)

	var last *Frame
	for p.cfg.MaxFrames == 0 || p.meter.snapshot().Frames < p.cfg.MaxFrames {
		if err := ctx.Err(); err != nil {
			log.Info("obscura: loop canceled", "frames", p.meter.snapshot().Frames)
			return err
		}

		f, err := frames.next(ctx)
		if err != nil {
			if errors.Is(err, ErrEndOfStream) {
				log.Info("obscura: source exhausted", "reason", err)
				break
			}
			return err
		}

		if err := d.Upload(f); err != nil {
			return err
		}
		if err := d.Dispatch(p.cfg.BlockSize); err != nil {
			return err
		}

		if p.opts.sink != nil {
			out, err := d.ReadOutput(ctx)
			if err != nil {
				return err
			}
			if err := p.opts.sink(out); err != nil {
				return fmt.Errorf("obscura: frame sink: %w", err)
			}
			last = out
		}

		if s, sampled := p.meter.frame(); sampled {
			log.Info("obscura: throughput", "frames", s.Frames, "fps", s.FPS, "elapsed", s.Elapsed)
		}
	}

	if err := d.Wait(); err != nil {
		return err
	}
	s := p.meter.finish()
	log.Info("obscura: loop ended", "frames", s.Frames, "fps", s.FPS, "elapsed", s.Elapsed)

	if p.cfg.DumpPath != "" && s.Frames > 0 {
		if last == nil {
			out, err := d.ReadOutput(ctx)
			if err != nil {
				return err
			}
			last = out
		}
		if err := framedump.Save(p.cfg.DumpPath, last); err != nil {
			return err
		}
		log.Info("obscura: output frame written", "path", p.cfg.DumpPath)
	}
	return nil
}
