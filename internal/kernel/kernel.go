// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package kernel loads and validates the pixelation compute kernel.
//
// A kernel is a SPIR-V module with a "main" entry point that reads storage
// image binding 0, writes storage image binding 1 and takes its parameters
// from a uniform buffer at group 1, binding 0. The module is either read from
// a precompiled asset file or compiled from the embedded WGSL source.
package kernel

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gogpu/naga"
)

// DefaultPath is the precompiled kernel asset location, relative to the
// working directory.
const DefaultPath = "shaders/pixelation.comp.spv"

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

// EntryPoint is the compute entry point name.
const EntryPoint = "main"

// Binding layout shared by every kernel.
const (
	BindingInput  = 0 // storage image, group 0
	BindingOutput = 1 // storage image, group 0
	ParamsGroup   = 1
	ParamsBinding = 0
	ParamsSize    = 16 // block_size, width, height, pad
)

// WorkgroupSize is the kernel's local size in X and Y.
const WorkgroupSize = 8

// ErrAsset is returned when the kernel asset is missing or malformed.
var ErrAsset = errors.New("kernel: invalid compute kernel asset")

//go:embed pixelate.wgsl
var pixelateSource string

// Kernel is a validated SPIR-V compute module.
type Kernel struct {
	// Name identifies where the module came from: a file path or "builtin".
	Name  string
	Words []uint32
}

// Load reads and validates the SPIR-V asset at path.
func Load(path string) (*Kernel, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAsset, err)
	}
	return Parse(path, data)
}

// Parse validates raw SPIR-V bytes. The data must be non-empty, a multiple
// of four bytes long and start with the SPIR-V magic number.
func Parse(name string, data []byte) (*Kernel, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrAsset, name)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %s size %d is not a multiple of 4", ErrAsset, name, len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	if words[0] != SPIRVMagic {
		return nil, fmt.Errorf("%w: %s has magic %#08x, want %#08x", ErrAsset, name, words[0], SPIRVMagic)
	}
	return &Kernel{Name: name, Words: words}, nil
}

var builtin = sync.OnceValues(func() (*Kernel, error) {
	spirv, err := naga.Compile(pixelateSource)
	if err != nil {
		return nil, fmt.Errorf("%w: compile builtin pixelation shader: %w", ErrAsset, err)
	}
	return Parse("builtin", spirv)
})

// Builtin returns the embedded pixelation kernel compiled to SPIR-V.
// Compilation happens once per process.
func Builtin() (*Kernel, error) {
	return builtin()
}

// Source returns the embedded WGSL source of the builtin kernel.
func Source() string { return pixelateSource }

// Resolve loads the kernel at path, or the builtin one if path is empty.
func Resolve(path string) (*Kernel, error) {
	if path == "" {
		return Builtin()
	}
	return Load(path)
}

// Bytes returns the module as little-endian bytes.
func (k *Kernel) Bytes() []byte {
	out := make([]byte, len(k.Words)*4)
	for i, w := range k.Words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// WriteTo writes the module bytes to w.
func (k *Kernel) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(k.Bytes())
	return int64(n), err
}

// WorkgroupCount returns the dispatch size for a width x height image with
// the given block size. Each invocation handles one block, so the grid covers
// ceil(width/blockSize) x ceil(height/blockSize) invocations.
func WorkgroupCount(width, height, blockSize uint32) (x, y uint32) {
	if blockSize == 0 {
		blockSize = 1
	}
	bx := ceilDiv(width, blockSize)
	by := ceilDiv(height, blockSize)
	return ceilDiv(bx, WorkgroupSize), ceilDiv(by, WorkgroupSize)
}

// ceilDiv never forms a+b, which wraps for b near 2^32.
func ceilDiv(a, b uint32) uint32 {
	if a == 0 {
		return 0
	}
	return (a-1)/b + 1
}
