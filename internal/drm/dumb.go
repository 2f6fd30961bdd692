package drm

import (
	"fmt"
	"unsafe"
)

// createDumb corresponds to struct drm_mode_create_dumb.
type createDumb struct {
	Height uint32
	Width  uint32
	Bpp    uint32
	Flags  uint32
	Handle uint32
	Pitch  uint32
	Size   uint64
}

// destroyDumb corresponds to struct drm_mode_destroy_dumb.
type destroyDumb struct {
	Handle uint32
}

// primeHandleFD corresponds to struct drm_prime_handle.
type primeHandleFD struct {
	Handle uint32
	Flags  uint32
	FD     int32
}

// fbCmd2 corresponds to struct drm_mode_fb_cmd2: up to 4 planes, used
// here for NV12's two planes (Y, interleaved UV).
type fbCmd2 struct {
	FbID        uint32
	Width       uint32
	Height      uint32
	PixelFormat uint32
	Flags       uint32
	Handles     [4]uint32
	Pitches     [4]uint32
	Offsets     [4]uint32
	Modifier    [4]uint64
}

const (
	nrCreateDumb  = 0xb2
	nrDestroyDumb = 0xb4
	nrPrimeHandle = 0x2d
	nrAddFB2      = 0xb8
	nrRmFB        = 0xaf

	// primeHandleFlagCloexec is DRM_CLOEXEC, always set on export.
	primeHandleFlagCloexec = 0x80000
)

// DRM fourcc pixel formats relevant to plane selection/scoring (spec
// §4.F), little-endian-packed per the kernel's DRM_FORMAT_* convention.
const (
	FourCCNV12 = uint32('N') | uint32('V')<<8 | uint32('1')<<16 | uint32('2')<<24
	FourCCYUYV = uint32('Y') | uint32('U')<<8 | uint32('Y')<<16 | uint32('V')<<24
	FourCCXR24 = uint32('X') | uint32('R')<<8 | uint32('2')<<16 | uint32('4')<<24
	FourCCAR24 = uint32('A') | uint32('R')<<8 | uint32('2')<<16 | uint32('4')<<24
)

const fourccNV12 = FourCCNV12

// CreateDumbBuffer allocates a dumb buffer of height×width at bpp bits
// per pixel (8 for 8-bit NV12, 10 for 10-bit), returning its kernel
// handle and byte pitch (spec §4.E step 2: sized hor_stride×2·ver_stride).
func (d *Device) CreateDumbBuffer(width, height, bpp uint32) (handle uint32, pitch uint32, size uint64, err error) {
	req := createDumb{Width: width, Height: height, Bpp: bpp}
	if err := d.ioctl(ioRW(nrCreateDumb, unsafe.Sizeof(req)), unsafe.Pointer(&req)); err != nil {
		return 0, 0, 0, fmt.Errorf("drm: create dumb buffer: %w", err)
	}
	return req.Handle, req.Pitch, req.Size, nil
}

// DestroyDumbBuffer releases a dumb buffer's kernel handle.
func (d *Device) DestroyDumbBuffer(handle uint32) error {
	req := destroyDumb{Handle: handle}
	if err := d.ioctl(ioRW(nrDestroyDumb, unsafe.Sizeof(req)), unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("drm: destroy dumb buffer %d: %w", handle, err)
	}
	return nil
}

// ExportPrimeFD exports a dumb buffer's handle as a DMA-BUF/PRIME fd
// (spec §4.E step 3).
func (d *Device) ExportPrimeFD(handle uint32) (int, error) {
	req := primeHandleFD{Handle: handle, Flags: primeHandleFlagCloexec}
	if err := d.ioctl(ioRW(nrPrimeHandle, unsafe.Sizeof(req)), unsafe.Pointer(&req)); err != nil {
		return -1, fmt.Errorf("drm: prime handle to fd: %w", err)
	}
	return int(req.FD), nil
}

// AddNV12Framebuffer registers a two-plane NV12 framebuffer over one
// dumb-buffer handle, with the UV plane offset at pitch·verStride bytes
// into the same allocation (spec §4.E step 3: handles={h,h},
// pitches={p,p}, offsets={0, p·ver_stride}).
func (d *Device) AddNV12Framebuffer(width, height, pitch, verStride, handle uint32) (uint32, error) {
	req := fbCmd2{
		Width:       width,
		Height:      height,
		PixelFormat: fourccNV12,
		Handles:     [4]uint32{handle, handle},
		Pitches:     [4]uint32{pitch, pitch},
		Offsets:     [4]uint32{0, pitch * verStride},
	}
	if err := d.ioctl(ioRW(nrAddFB2, unsafe.Sizeof(req)), unsafe.Pointer(&req)); err != nil {
		return 0, fmt.Errorf("drm: add NV12 framebuffer: %w", err)
	}
	return req.FbID, nil
}

// RemoveFramebuffer releases a previously added framebuffer ID.
func (d *Device) RemoveFramebuffer(fbID uint32) error {
	id := fbID
	if err := d.ioctl(ioRW(nrRmFB, unsafe.Sizeof(id)), unsafe.Pointer(&id)); err != nil {
		return fmt.Errorf("drm: remove framebuffer %d: %w", fbID, err)
	}
	return nil
}
