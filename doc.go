// Package obscura is a real-time video anonymization pipeline.
//
// # Overview
//
// Frames are acquired from a camera or a synthetic test pattern, uploaded to
// the GPU, and run through a block pixelation compute kernel that replaces
// every block of pixels with its average color. Larger blocks anonymize more
// and cost less.
//
// # Quick Start
//
//	import "github.com/gogpu/obscura"
//
//	cfg := obscura.DefaultConfig()
//	cfg.Source = "v4l2"
//	cfg.BlockSize = 24
//
//	p, err := obscura.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := p.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%.1f fps\n", p.Stats().FPS)
//
// # Architecture
//
// The module is organized into:
//   - obscura: configuration, error taxonomy, the Pipeline loop
//   - source: test pattern and V4L2 capture with YUYV to RGBA conversion
//   - compute: GPU resource set, fence and frame dispatcher
//   - internal/gpu: HAL device ownership or borrowing
//   - internal/kernel: the pixelation kernel asset
//
// # Errors
//
// Initialization errors (ErrDevice, ErrAsset, ErrResourceCreation) abort Run
// before any frame is processed. A source running out of frames, including
// a short capture read (ErrReadSizeMismatch), ends the loop cleanly. GPU
// hangs (*GPUHangError) and submission failures are fatal. Nothing is retried.
package obscura

// Version is the module version reported by the obscura command.
const Version = "0.1.0-alpha.1"
