package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/obscura"
	"github.com/gogpu/obscura/internal/kernel"
)

func writeTestKernel(t *testing.T) string {
	t.Helper()
	k := &kernel.Kernel{Name: "test", Words: []uint32{kernel.SPIRVMagic, 0x00010000, 0, 1, 0}}
	path := filepath.Join(t.TempDir(), "k.spv")
	if err := os.WriteFile(path, k.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunExitCodes(t *testing.T) {
	kpath := writeTestKernel(t)
	base := []string{"-backend", "noop", "-width", "16", "-height", "8", "-block", "4", "-kernel", kpath}
	with := func(extra ...string) []string { return append(append([]string{}, base...), extra...) }

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"clean run", with("-frames", "3"), 0},
		{"help", []string{"-h"}, 0},
		{"unknown flag", []string{"-bogus"}, 1},
		{"stray argument", with("extra"), 1},
		{"invalid block", with("-block", "0"), 1},
		{"missing kernel", []string{"-backend", "noop", "-kernel", filepath.Join(t.TempDir(), "none.spv")}, 1},
		{"unknown source", with("-source", "rtsp"), 1},
		{"unsupported dump format", with("-dump", filepath.Join(t.TempDir(), "last.gif")), 1},
		{"version", []string{"-version"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			if got := run(context.Background(), tt.args, &stderr); got != tt.want {
				t.Errorf("run(%v) = %d, want %d\n%s", tt.args, got, tt.want, stderr.String())
			}
		})
	}
}

func TestRunInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var stderr bytes.Buffer
	args := []string{"-backend", "noop", "-width", "8", "-height", "8", "-kernel", writeTestKernel(t), "-frames", "0"}
	if got := run(ctx, args, &stderr); got != 0 {
		t.Errorf("interrupted run exited %d, want 0\n%s", got, stderr.String())
	}
}

func TestParseFlagsOverridesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obscura.toml")
	data := "block_size = 32\nmax_frames = 10\nbackend = \"noop\"\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, verbose, err := parseFlags([]string{"-config", path, "-frames", "20", "-timeout", "2s", "-v"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if !verbose {
		t.Error("-v not parsed")
	}
	if cfg.BlockSize != 32 {
		t.Errorf("BlockSize = %d, want 32 from the file", cfg.BlockSize)
	}
	if cfg.MaxFrames != 20 {
		t.Errorf("MaxFrames = %d, want 20 from the flag", cfg.MaxFrames)
	}
	if cfg.Backend != "noop" {
		t.Errorf("Backend = %q, want noop from the file", cfg.Backend)
	}
	if time.Duration(cfg.FenceTimeout) != 2*time.Second {
		t.Errorf("FenceTimeout = %v", cfg.FenceTimeout)
	}
}

func TestShaderCommand(t *testing.T) {
	dir := t.TempDir()

	wgslPath := filepath.Join(dir, "pixelate.wgsl")
	var stderr bytes.Buffer
	if code := run(context.Background(), []string{"shader", "-wgsl", "-o", wgslPath}, &stderr); code != 0 {
		t.Fatalf("shader -wgsl exited %d: %s", code, stderr.String())
	}
	src, err := os.ReadFile(wgslPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(src), "@compute") {
		t.Error("WGSL output has no compute entry point")
	}

	if _, err := kernel.Builtin(); err != nil {
		t.Skipf("builtin kernel unavailable: %v", err)
	}
	spvPath := filepath.Join(dir, "pixelation.comp.spv")
	stderr.Reset()
	if code := run(context.Background(), []string{"shader", "-o", spvPath}, &stderr); code != 0 {
		t.Fatalf("shader exited %d: %s", code, stderr.String())
	}
	k, err := kernel.Load(spvPath)
	if err != nil {
		t.Fatalf("written kernel does not load: %v", err)
	}
	if k.Words[0] != kernel.SPIRVMagic {
		t.Errorf("magic = %#x", k.Words[0])
	}
}

func TestRunVersion(t *testing.T) {
	var stderr bytes.Buffer
	if code := run(context.Background(), []string{"-version", "-block", "0"}, &stderr); code != 0 {
		t.Fatalf("-version exited %d", code)
	}
	if got, want := strings.TrimSpace(stderr.String()), "obscura "+obscura.Version; got != want {
		t.Errorf("-version printed %q, want %q", got, want)
	}
}

// stalledDevice is a noop device whose fence waits always time out.
type stalledDevice struct {
	hal.Device
}

func (stalledDevice) Wait(hal.Fence, uint64, time.Duration) (bool, error) { return false, nil }

func TestRunGPUHang(t *testing.T) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	defer instance.Destroy()
	openDev, err := instance.EnumerateAdapters(nil)[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer openDev.Device.Destroy()

	var stderr bytes.Buffer
	args := []string{"-width", "8", "-height", "8", "-block", "2", "-frames", "5", "-timeout", "10ms", "-kernel", writeTestKernel(t)}
	code := run(context.Background(), args, &stderr, obscura.WithHAL(stalledDevice{openDev.Device}, openDev.Queue))
	if code != 1 {
		t.Fatalf("hung run exited %d, want 1\n%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "GPU hang") {
		t.Errorf("hang not reported:\n%s", stderr.String())
	}
}
