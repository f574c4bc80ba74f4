package obscura

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/obscura/source"
)

// feed hands acquired frames to the GPU loop.
type feed interface {
	// next returns the next frame. Errors matching ErrEndOfStream end
	// the loop cleanly.
	next(ctx context.Context) (*Frame, error)

	// stop ends acquisition and waits for it to finish.
	stop() error
}

// syncFeed grabs each frame on the caller's goroutine.
type syncFeed struct {
	src source.FrameSource
}

func (f syncFeed) next(context.Context) (*Frame, error) { return f.src.GrabFrame() }

func (syncFeed) stop() error { return nil }

// prefetchFeed captures on its own goroutine into a bounded queue. A full
// queue blocks the capture goroutine. Each frame's ownership moves through
// the channel; the capture goroutine never touches a frame after sending it.
type prefetchFeed struct {
	frames chan *Frame
	cancel context.CancelFunc
	g      *errgroup.Group
}

// newPrefetchFeed starts capturing up to limit frames (0 = unbounded) into a
// queue of the given depth.
func newPrefetchFeed(ctx context.Context, src source.FrameSource, depth int, limit uint64) *prefetchFeed {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	f := &prefetchFeed{
		frames: make(chan *Frame, depth),
		cancel: cancel,
		g:      g,
	}
	g.Go(func() error {
		defer close(f.frames)
		for n := uint64(0); limit == 0 || n < limit; n++ {
			fr, err := src.GrabFrame()
			if err != nil {
				if errors.Is(err, ErrEndOfStream) {
					Logger().Debug("obscura: capture stopped", "frames", n, "reason", err)
					return nil
				}
				return err
			}
			select {
			case f.frames <- fr:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})
	return f
}

func (f *prefetchFeed) next(ctx context.Context) (*Frame, error) {
	select {
	case fr, ok := <-f.frames:
		if ok {
			return fr, nil
		}
		if err := f.g.Wait(); err != nil {
			return nil, err
		}
		return nil, ErrEndOfStream
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *prefetchFeed) stop() error {
	f.cancel()
	return f.g.Wait()
}
