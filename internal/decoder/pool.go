package decoder

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/pixelpilot/pixelpilot/internal/logging"
)

// BufferAllocator is the subset of *drm.Device the frame pool needs,
// narrowed to an interface so pool tests don't need a real DRM fd
// (accept-interfaces, grounded on the same capability-boundary idiom
// spec §9 uses for PacketDecoder itself).
type BufferAllocator interface {
	CreateDumbBuffer(width, height, bpp uint32) (handle uint32, pitch uint32, size uint64, err error)
	DestroyDumbBuffer(handle uint32) error
	ExportPrimeFD(handle uint32) (int, error)
	AddNV12Framebuffer(width, height, pitch, verStride, handle uint32) (uint32, error)
	RemoveFramebuffer(fbID uint32) error
}

// Pool owns the fixed-size DMA-BUF frame-slot table (spec §4.E,
// invariant I5: one PRIME fd maps to exactly one framebuffer ID for the
// pool's lifetime). It is torn down and rebuilt whole on every
// info-change, never resized in place.
type Pool struct {
	mu    sync.Mutex
	dev   BufferAllocator
	log   *logging.Logger
	slots      []FrameSlot
	byFD       map[int]*FrameSlot
	generation uuid.UUID
}

// Generation returns the pool's current rebuild identity, a fresh UUID
// minted on every Rebuild, used only to correlate log lines across a
// format-change (e.g. distinguishing a stale slot reference logged after
// the next Rebuild already ran).
func (p *Pool) Generation() uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// NewPool constructs an empty pool; call Rebuild on the first info-change
// to populate it.
func NewPool(dev BufferAllocator, log *logging.Logger) *Pool {
	return &Pool{dev: dev, log: log.With("decoder-pool"), byFD: map[int]*FrameSlot{}}
}

// Rebuild tears down any existing slots and allocates a fresh set of
// MaxFrames NV12 dumb buffers sized hor_stride×(2·ver_stride) at bpp bits
// per pixel (spec §4.E steps 1-4). It returns the PRIME fds in slot
// order for SetExternalBufferGroup.
//
// Resource-exhaustion handling (spec §7): a slot that fails to allocate
// is skipped, not fatal; the pool proceeds with fewer slots. If zero
// slots allocate, Rebuild returns an error so the caller can surface it
// per the fatal-I/O policy.
func (p *Pool) Rebuild(horStride, verStride, bpp uint32) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.teardownLocked()

	slots := make([]FrameSlot, 0, MaxFrames)
	fds := make([]int, 0, MaxFrames)
	height := 2 * verStride

	for i := 0; i < MaxFrames; i++ {
		handle, pitch, _, err := p.dev.CreateDumbBuffer(horStride, height, bpp)
		if err != nil {
			p.log.Warn("create dumb buffer failed, skipping slot", "index", i, "err", err)
			continue
		}
		fd, err := p.dev.ExportPrimeFD(handle)
		if err != nil {
			p.log.Warn("export prime fd failed, skipping slot", "index", i, "err", err)
			_ = p.dev.DestroyDumbBuffer(handle)
			continue
		}
		fbID, err := p.dev.AddNV12Framebuffer(horStride, verStride, pitch, verStride, handle)
		if err != nil {
			p.log.Warn("add NV12 framebuffer failed, skipping slot", "index", i, "err", err)
			_ = unix.Close(fd)
			_ = p.dev.DestroyDumbBuffer(handle)
			continue
		}
		slot := FrameSlot{PrimeFD: fd, FbID: fbID, Handle: handle}
		slots = append(slots, slot)
		fds = append(fds, fd)
	}

	if len(slots) == 0 {
		return nil, fmt.Errorf("decoder: frame pool rebuild allocated zero usable slots")
	}
	if len(slots) < MaxFrames {
		p.log.Warn("frame pool running with reduced slot count", "usable", len(slots), "requested", MaxFrames)
	}

	p.slots = slots
	p.byFD = make(map[int]*FrameSlot, len(slots))
	for i := range p.slots {
		p.byFD[p.slots[i].PrimeFD] = &p.slots[i]
	}
	p.generation = uuid.New()
	p.log.Info("frame pool rebuilt", "generation", p.generation, "slots", len(slots))
	return fds, nil
}

// Lookup resolves a decoded frame's PRIME fd to its framebuffer ID.
func (p *Pool) Lookup(primeFD int) (FrameSlot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.byFD[primeFD]
	if !ok {
		return FrameSlot{}, false
	}
	return *s, true
}

// Close tears down all slots, e.g. on shutdown.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teardownLocked()
}

// teardownLocked releases every slot in deterministic order — remove FB,
// close fd, destroy dumb buffer (spec §9: FrameSlot's drop order) — must
// be called with p.mu held.
func (p *Pool) teardownLocked() {
	for _, s := range p.slots {
		if err := p.dev.RemoveFramebuffer(s.FbID); err != nil {
			p.log.Warn("remove framebuffer failed during teardown", "fb_id", s.FbID, "err", err)
		}
		if err := unix.Close(s.PrimeFD); err != nil {
			p.log.Warn("close prime fd failed during teardown", "fd", s.PrimeFD, "err", err)
		}
		if err := p.dev.DestroyDumbBuffer(s.Handle); err != nil {
			p.log.Warn("destroy dumb buffer failed during teardown", "handle", s.Handle, "err", err)
		}
	}
	p.slots = nil
	p.byFD = map[int]*FrameSlot{}
}
