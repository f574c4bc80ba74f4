package obscura

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/obscura/compute"
	"github.com/gogpu/obscura/internal/framedump"
	"github.com/gogpu/obscura/internal/gpu"
	"github.com/gogpu/obscura/source"
)

// Defaults used by DefaultConfig.
const (
	DefaultWidth          = 1920
	DefaultHeight         = 1080
	DefaultBlockSize      = 16
	DefaultMaxFrames      = 300
	DefaultReportInterval = 30
)

// Config describes one pipeline run. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	// Width and Height are the requested capture resolution. A capture
	// device may negotiate a different one; the pipeline adopts it.
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`

	// Source is "pattern" or "v4l2".
	Source string `toml:"source"`

	// Device is the capture device path for the v4l2 source.
	Device string `toml:"device"`

	// BlockSize is the pixelation block edge in pixels, forwarded to the
	// kernel unmodified.
	BlockSize uint32 `toml:"block_size"`

	// MaxFrames bounds the loop. Zero runs until the source is exhausted
	// or the context is canceled.
	MaxFrames uint64 `toml:"max_frames"`

	// ReportInterval is the number of frames between throughput reports.
	ReportInterval uint64 `toml:"report_interval"`

	// FenceTimeout bounds every fence wait before it is reported as a GPU hang.
	FenceTimeout Duration `toml:"fence_timeout"`

	// KernelPath is a SPIR-V kernel asset. Empty selects the built-in kernel.
	KernelPath string `toml:"kernel"`

	// Backend is "vulkan" or "noop".
	Backend string `toml:"backend"`

	// Prefetch is the depth of the capture queue. Zero captures
	// synchronously on the GPU goroutine.
	Prefetch int `toml:"prefetch"`

	// DumpPath, when set, receives the last output frame as PNG or BMP.
	DumpPath string `toml:"dump"`
}

// DefaultConfig returns the default configuration: a 1920x1080 test pattern
// pixelated with 16 pixel blocks for 300 frames on Vulkan.
func DefaultConfig() Config {
	return Config{
		Width:          DefaultWidth,
		Height:         DefaultHeight,
		Source:         string(source.KindPattern),
		Device:         source.DefaultDevice,
		BlockSize:      DefaultBlockSize,
		MaxFrames:      DefaultMaxFrames,
		ReportInterval: DefaultReportInterval,
		FenceTimeout:   Duration(compute.DefaultFenceTimeout),
		Backend:        gpu.BackendVulkan,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Width == 0 || c.Height == 0:
		return fmt.Errorf("%w: frame size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	case c.BlockSize == 0:
		return fmt.Errorf("%w: block size must be positive", ErrInvalidConfig)
	case c.Prefetch < 0:
		return fmt.Errorf("%w: negative prefetch depth %d", ErrInvalidConfig, c.Prefetch)
	case c.FenceTimeout < 0:
		return fmt.Errorf("%w: negative fence timeout %v", ErrInvalidConfig, c.FenceTimeout)
	}
	switch source.Kind(c.Source) {
	case source.KindPattern, source.KindV4L2:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidConfig, c.Source)
	}
	switch c.Backend {
	case gpu.BackendVulkan, gpu.BackendNoop:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.DumpPath != "" {
		if _, err := framedump.FormatFor(c.DumpPath); err != nil {
			return fmt.Errorf("%w: dump path: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

// LoadConfig reads a TOML file on top of DefaultConfig. Unknown keys are
// rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return Config{}, fmt.Errorf("obscura: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes TOML data on top of DefaultConfig and validates it.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Duration is a time.Duration written as a string such as "5s" in TOML.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) std() time.Duration { return time.Duration(d) }
