// Package drm is the shared DRM/KMS ioctl plumbing used by both the
// Hardware Decoder Adapter's frame pool (spec §4.E — dumb buffers,
// PRIME export, NV12 framebuffers) and the DRM Plane Presenter (spec
// §4.F — resource/plane enumeration, atomic commits). Grounded on
// helixml-helix__api-pkg-drm-ioctl_linux.go's ioctl numbers/struct
// layouts and calling convention (unix.Syscall(SYS_IOCTL, ...) with
// unsafe.Pointer struct marshaling), generalized with
// vladimirvivien-go4vl's parametric _IOWR encoder instead of
// hand-hardcoded hex constants.
package drm

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNumberBits = 8
	iocTypeBits   = 8
	iocSizeBits   = 14

	numberPos = 0
	typePos   = numberPos + iocNumberBits
	sizePos   = typePos + iocTypeBits
	opPos     = sizePos + iocSizeBits

	drmIOCType = 'd'
)

func ioEnc(mode, typ, number, size uintptr) uintptr {
	return (mode << opPos) | (typ << typePos) | (number << numberPos) | (size << sizePos)
}

func ioR(number, size uintptr) uintptr  { return ioEnc(iocRead, drmIOCType, number, size) }
func ioW(number, size uintptr) uintptr  { return ioEnc(iocWrite, drmIOCType, number, size) }
func ioRW(number, size uintptr) uintptr { return ioEnc(iocRead|iocWrite, drmIOCType, number, size) }

// Device wraps an open DRM card fd with the ioctl helpers both the
// decoder's frame pool and the presenter call.
type Device struct {
	f *os.File
}

// Open opens a DRM card device node read/write.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("drm: open %s: %w", path, err)
	}
	return &Device{f: f}, nil
}

// Close releases the underlying fd.
func (d *Device) Close() error { return d.f.Close() }

// Fd returns the raw file descriptor, e.g. for PRIME fd export targets.
func (d *Device) Fd() uintptr { return d.f.Fd() }

func (d *Device) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// SetClientCapUniversalPlanes enables the universal-planes client
// capability, required before overlay planes report format lists.
func (d *Device) SetClientCapUniversalPlanes() error {
	const drmClientCapUniversalPlanes = 2
	req := struct{ Capability, Value uint64 }{Capability: drmClientCapUniversalPlanes, Value: 1}
	const nrSetClientCap = 0x0d
	return d.ioctl(ioW(nrSetClientCap, unsafe.Sizeof(req)), unsafe.Pointer(&req))
}

// SetMaster/DropMaster acquire or release DRM master status.
func (d *Device) SetMaster() error {
	const nrSetMaster = 0x1e
	return d.ioctl(ioEnc(iocNone, drmIOCType, nrSetMaster, 0), nil)
}

func (d *Device) DropMaster() error {
	const nrDropMaster = 0x1f
	return d.ioctl(ioEnc(iocNone, drmIOCType, nrDropMaster, 0), nil)
}
