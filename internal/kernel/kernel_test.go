package kernel

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func spirvHeader() []byte {
	// magic, version 1.0, generator, bound, schema
	k := &Kernel{Words: []uint32{SPIRVMagic, 0x00010000, 0, 1, 0}}
	return k.Bytes()
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		ok   bool
	}{
		{"empty", nil, false},
		{"unaligned", []byte{0x03, 0x02, 0x23, 0x07, 0x00}, false},
		{"bad magic", []byte{0xde, 0xad, 0xbe, 0xef}, false},
		{"big endian magic", []byte{0x07, 0x23, 0x02, 0x03}, false},
		{"header", spirvHeader(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := Parse(tt.name, tt.data)
			if tt.ok {
				if err != nil {
					t.Fatalf("Parse: %v", err)
				}
				if k.Words[0] != SPIRVMagic {
					t.Errorf("first word = %#x", k.Words[0])
				}
				return
			}
			if !errors.Is(err, ErrAsset) {
				t.Fatalf("Parse error = %v, want ErrAsset", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.spv")); !errors.Is(err, ErrAsset) {
		t.Errorf("missing file: got %v, want ErrAsset", err)
	}

	path := filepath.Join(dir, "pixelation.comp.spv")
	if err := os.WriteFile(path, spirvHeader(), 0o600); err != nil {
		t.Fatal(err)
	}
	k, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k.Name != path || len(k.Words) != 5 {
		t.Errorf("kernel = %q with %d words", k.Name, len(k.Words))
	}

	var buf bytes.Buffer
	n, err := k.WriteTo(&buf)
	if err != nil || n != 20 {
		t.Fatalf("WriteTo = %d, %v", n, err)
	}
	if !bytes.Equal(buf.Bytes(), spirvHeader()) {
		t.Error("WriteTo did not round-trip the asset bytes")
	}
}

func TestResolveEmptyPathUsesBuiltin(t *testing.T) {
	k, err := Resolve("")
	if err != nil {
		t.Skipf("builtin shader unavailable: %v", err)
	}
	if k.Name != "builtin" || k.Words[0] != SPIRVMagic {
		t.Errorf("Resolve(\"\") = %q, magic %#x", k.Name, k.Words[0])
	}
	again, _ := Builtin()
	if again != k {
		t.Error("builtin kernel should be compiled once")
	}
}

func TestSourceDeclaresBindings(t *testing.T) {
	src := Source()
	for _, want := range []string{
		"@group(0) @binding(0)",
		"@group(0) @binding(1)",
		"@group(1) @binding(0)",
		"@workgroup_size(8, 8, 1)",
		"fn main(",
		"bs > params.width / gid.x",
		"bs > params.height / gid.y",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("builtin source missing %q", want)
		}
	}
}

func TestWorkgroupCount(t *testing.T) {
	tests := []struct {
		w, h, bs     uint32
		wantX, wantY uint32
	}{
		{4, 4, 2, 1, 1},
		{640, 480, 16, 5, 4},
		{1920, 1080, 16, 15, 9},
		{1920, 1080, 1, 240, 135},
		{7, 9, 0, 1, 2},
		{1, 1, 64, 1, 1},
		{1920, 1080, 1 << 31, 1, 1},
		{1920, 1080, 0xFFFFFFF0, 1, 1},
		{1920, 1080, 0xFFFFFFFF, 1, 1},
		{0xFFFFFFFF, 1, 0xFFFFFFFF, 1, 1},
		{0, 0, 16, 0, 0},
	}
	for _, tt := range tests {
		x, y := WorkgroupCount(tt.w, tt.h, tt.bs)
		if x != tt.wantX || y != tt.wantY {
			t.Errorf("WorkgroupCount(%d, %d, %d) = %d, %d, want %d, %d",
				tt.w, tt.h, tt.bs, x, y, tt.wantX, tt.wantY)
		}
	}
}
