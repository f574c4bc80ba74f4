// Package framedump writes pipeline frames to image files for offline
// inspection.
package framedump

import (
	"bufio"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"

	"github.com/gogpu/obscura/frame"
)

// Format is an output image encoding.
type Format int

const (
	PNG Format = iota
	BMP
)

func (f Format) String() string {
	switch f {
	case PNG:
		return "png"
	case BMP:
		return "bmp"
	default:
		return "unknown"
	}
}

// ErrFormat is returned for a file extension without an encoder.
var ErrFormat = errors.New("framedump: unsupported image format")

// FormatFor picks the encoding from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return PNG, nil
	case ".bmp":
		return BMP, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrFormat, filepath.Ext(path))
	}
}

// Encode writes f to w.
func Encode(w io.Writer, f *frame.Frame, format Format) error {
	if err := f.Validate(); err != nil {
		return err
	}
	img := f.Image()
	switch format {
	case PNG:
		return png.Encode(w, img)
	case BMP:
		return bmp.Encode(w, img)
	default:
		return fmt.Errorf("%w: %v", ErrFormat, format)
	}
}

// Save writes f to path, choosing the encoding from the extension.
func Save(path string, f *frame.Frame) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}

	file, err := os.Create(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return fmt.Errorf("framedump: %w", err)
	}
	w := bufio.NewWriter(file)
	if err := Encode(w, f, format); err != nil {
		_ = file.Close()
		return fmt.Errorf("framedump: encode %s: %w", format, err)
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("framedump: %w", err)
	}
	return file.Close()
}
