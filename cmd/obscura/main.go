// Command obscura pixelates camera or test-pattern frames on the GPU.
//
// Usage:
//
//	obscura [flags]             run the pipeline
//	obscura -version            print the version
//	obscura shader -o <path>    write the built-in kernel as a SPIR-V asset
//
// The exit status is 0 after the loop completes or is interrupted, and 1 on
// any fatal error.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gogpu/obscura"
	"github.com/gogpu/obscura/internal/kernel"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// errVersion ends flag parsing after -version was printed.
var errVersion = errors.New("version printed")

// run executes the command line. opts are passed to the pipeline after the
// ones derived from args.
func run(ctx context.Context, args []string, stderr io.Writer, opts ...obscura.Option) int {
	if len(args) > 0 && args[0] == "shader" {
		return runShader(args[1:], stderr)
	}

	cfg, verbose, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) || errors.Is(err, errVersion) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, "obscura:", err)
		return 1
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	obscura.SetLogger(logger)
	defer obscura.SetLogger(nil)

	p, err := obscura.New(cfg, opts...)
	if err != nil {
		logger.Error("obscura: invalid configuration", "err", err)
		return 1
	}

	start := time.Now()
	err = p.Run(ctx)
	s := p.Stats()
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		logger.Info("obscura: interrupted", "frames", s.Frames)
	default:
		var hang *obscura.GPUHangError
		if errors.As(err, &hang) {
			logger.Error("obscura: GPU hang", "timeout", hang.Timeout, "fence_value", hang.Value)
		}
		logger.Error("obscura: fatal", "err", err, "frames", s.Frames)
		return 1
	}

	logger.Info("obscura: done", "frames", s.Frames, "fps", fmt.Sprintf("%.1f", s.FPS), "wall", time.Since(start).Round(time.Millisecond))
	return 0
}

// parseFlags builds the run configuration: defaults, then the -config file,
// then every flag given on the command line.
func parseFlags(args []string, stderr io.Writer) (obscura.Config, bool, error) {
	def := obscura.DefaultConfig()
	fs := flag.NewFlagSet("obscura", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configPath = fs.String("config", "", "TOML configuration file")
		width      = fs.Uint("width", uint(def.Width), "requested frame width")
		height     = fs.Uint("height", uint(def.Height), "requested frame height")
		src        = fs.String("source", def.Source, "frame source: pattern or v4l2")
		device     = fs.String("device", def.Device, "V4L2 capture device")
		block      = fs.Uint("block", uint(def.BlockSize), "pixelation block size in pixels")
		frames     = fs.Uint64("frames", def.MaxFrames, "frame budget, 0 for unbounded")
		interval   = fs.Uint64("interval", def.ReportInterval, "frames between throughput reports")
		timeout    = fs.Duration("timeout", time.Duration(def.FenceTimeout), "GPU fence timeout")
		kernelPath = fs.String("kernel", def.KernelPath, "SPIR-V kernel asset, empty for the built-in kernel")
		backend    = fs.String("backend", def.Backend, "GPU backend: vulkan or noop")
		prefetch   = fs.Int("prefetch", def.Prefetch, "capture queue depth, 0 to capture synchronously")
		dump       = fs.String("dump", def.DumpPath, "write the last output frame to a .png or .bmp file")
		verbose    = fs.Bool("v", false, "debug logging")
		version    = fs.Bool("version", false, "print the version and exit")
	)
	if err := fs.Parse(args); err != nil {
		return obscura.Config{}, false, err
	}
	if *version {
		fmt.Fprintln(stderr, "obscura", obscura.Version)
		return obscura.Config{}, false, errVersion
	}
	if fs.NArg() > 0 {
		return obscura.Config{}, false, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}

	cfg := def
	if *configPath != "" {
		var err error
		if cfg, err = obscura.LoadConfig(*configPath); err != nil {
			return obscura.Config{}, false, err
		}
	}

	overrides := map[string]func(){
		"width":    func() { cfg.Width = uint32(*width) },   //nolint:gosec // validated below
		"height":   func() { cfg.Height = uint32(*height) }, //nolint:gosec // validated below
		"source":   func() { cfg.Source = *src },
		"device":   func() { cfg.Device = *device },
		"block":    func() { cfg.BlockSize = uint32(*block) }, //nolint:gosec // validated below
		"frames":   func() { cfg.MaxFrames = *frames },
		"interval": func() { cfg.ReportInterval = *interval },
		"timeout":  func() { cfg.FenceTimeout = obscura.Duration(*timeout) },
		"kernel":   func() { cfg.KernelPath = *kernelPath },
		"backend":  func() { cfg.Backend = *backend },
		"prefetch": func() { cfg.Prefetch = *prefetch },
		"dump":     func() { cfg.DumpPath = *dump },
	}
	fs.Visit(func(f *flag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})

	if err := cfg.Validate(); err != nil {
		return obscura.Config{}, false, err
	}
	return cfg, *verbose, nil
}

func runShader(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("obscura shader", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("o", kernel.DefaultPath, "output path")
	wgsl := fs.Bool("wgsl", false, "write the WGSL source instead of SPIR-V")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if err := writeShader(*out, *wgsl); err != nil {
		fmt.Fprintln(stderr, "obscura shader:", err)
		return 1
	}
	fmt.Fprintf(stderr, "kernel written to %s\n", *out)
	return 0
}

func writeShader(path string, wgsl bool) error {
	if wgsl {
		return os.WriteFile(path, []byte(kernel.Source()), 0o644) //nolint:gosec // shader assets are world readable
	}
	k, err := kernel.Builtin()
	if err != nil {
		return err
	}
	f, err := os.Create(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return err
	}
	if _, err := k.WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
