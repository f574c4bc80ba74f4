// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build linux

package source

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	v4l2BufTypeVideoCapture = 1
	v4l2FieldAny            = 0
	v4l2PixFmtYUYV          = uint32('Y') | uint32('U')<<8 | uint32('Y')<<16 | uint32('V')<<24
)

// v4l2Capability mirrors struct v4l2_capability.
type v4l2Capability struct {
	Driver       [16]uint8
	Card         [32]uint8
	BusInfo      [32]uint8
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
	Reserved     [3]uint32
}

// v4l2PixFormat mirrors struct v4l2_pix_format.
type v4l2PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
	Priv         uint32
	Flags        uint32
	YcbcrEnc     uint32
	Quantization uint32
	XferFunc     uint32
}

// v4l2Format mirrors struct v4l2_format. The kernel union contains pointers,
// so it is pointer aligned: 208 bytes on 64-bit targets, 204 on 32-bit.
type v4l2Format struct {
	Type uint32
	fmt  struct {
		_   [0]uintptr
		raw [200]byte
	}
}

func (f *v4l2Format) pix() *v4l2PixFormat {
	return (*v4l2PixFormat)(unsafe.Pointer(&f.fmt.raw[0]))
}

// ioctl request encoding from asm-generic/ioctl.h.
const (
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | typ<<8 | nr
}

var (
	vidiocQueryCap = ioc(iocRead, 'V', 0, unsafe.Sizeof(v4l2Capability{}))
	vidiocSFmt     = ioc(iocRead|iocWrite, 'V', 5, unsafe.Sizeof(v4l2Format{}))
)

type v4l2Device struct {
	fd int
}

func openV4L2(path string) (captureDevice, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return &v4l2Device{fd: fd}, nil
}

func (d *v4l2Device) ioctl(req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), req, uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return errno
		}
	}
}

func (d *v4l2Device) Capabilities() (uint32, error) {
	var c v4l2Capability
	if err := d.ioctl(vidiocQueryCap, unsafe.Pointer(&c)); err != nil {
		return 0, err
	}
	// Capabilities covers the whole physical device; DeviceCaps, when
	// present, describes the node that was opened.
	if c.Capabilities&0x80000000 != 0 {
		return c.DeviceCaps, nil
	}
	return c.Capabilities, nil
}

func (d *v4l2Device) SetFormat(width, height uint32) (uint32, uint32, error) {
	var f v4l2Format
	f.Type = v4l2BufTypeVideoCapture
	p := f.pix()
	p.Width = width
	p.Height = height
	p.PixelFormat = v4l2PixFmtYUYV
	p.Field = v4l2FieldAny
	if err := d.ioctl(vidiocSFmt, unsafe.Pointer(&f)); err != nil {
		return 0, 0, err
	}
	return p.Width, p.Height, nil
}

func (d *v4l2Device) Read(b []byte) (int, error) {
	for {
		n, err := unix.Read(d.fd, b)
		if err == unix.EINTR {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

func (d *v4l2Device) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}
