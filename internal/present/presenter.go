package present

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/pixelpilot/pixelpilot/internal/decoder"
	"github.com/pixelpilot/pixelpilot/internal/drm"
	"github.com/pixelpilot/pixelpilot/internal/logging"
)

// AtomicCommitter is the subset of *drm.Device the presenter drives,
// narrowed to an interface so the flip loop is testable without a real
// DRM fd (same accept-interfaces boundary as decoder.BufferAllocator).
type AtomicCommitter interface {
	AtomicCommit(sets []drm.PropertySet, flags uint32) error
}

// PropertyIDs are the plane/CRTC property IDs cached once at startup
// (spec §4.F: "caches property IDs for the overlay plane").
type PropertyIDs struct {
	FbID, CrtcID                   uint32
	CrtcX, CrtcY, CrtcW, CrtcH      uint32
	SrcX, SrcY, SrcW, SrcH          uint32
}

// Config is the presenter's static setup, resolved once from the
// Modeset Result input (spec §6) and plane selection (spec §4.F).
type Config struct {
	PlaneID        uint32
	CrtcID         uint32
	ModeWidth      uint32
	ModeHeight     uint32
	MaxScale       float64
	Props          PropertyIDs
}

// Presenter runs the consumer thread (spec §4.F): waits on the
// decoder's single-slot channel, computes the letterbox/zoom rectangles,
// and submits an atomic commit per frame.
type Presenter struct {
	dev  AtomicCommitter
	cfg  Config
	slot *decoder.LatestSlot
	log  *logging.Logger

	zoomMu sync.Mutex
	zoom   *ZoomRequest
}

// NewPresenter constructs a presenter bound to a resolved plane/CRTC and
// mode.
func NewPresenter(dev AtomicCommitter, cfg Config, slot *decoder.LatestSlot, log *logging.Logger) *Presenter {
	return &Presenter{dev: dev, cfg: cfg, slot: slot, log: log.With("presenter")}
}

// SetZoom installs (or clears, with nil) the active zoom request; it
// takes effect on the next committed frame (spec §3: "re-resolved
// whenever source dimensions change").
func (p *Presenter) SetZoom(req *ZoomRequest) {
	p.zoomMu.Lock()
	defer p.zoomMu.Unlock()
	p.zoom = req
}

func (p *Presenter) currentZoom() *ZoomRequest {
	p.zoomMu.Lock()
	defer p.zoomMu.Unlock()
	return p.zoom
}

// Run loops until ctx is cancelled, committing one frame per publish.
func (p *Presenter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-p.slot.Chan():
			p.commitFrame(frame)
		}
	}
}

func (p *Presenter) commitFrame(frame decoder.PresentedFrame) {
	if frame.Error || frame.Discard {
		p.log.Warn("skipping commit for error/discard frame", "fb_id", frame.FbID)
		return
	}

	srcRect := Rect{X: 0, Y: 0, W: frame.Width, H: frame.Height}
	if zoom := p.currentZoom(); zoom != nil {
		srcRect = ResolveZoom(*zoom, frame.Width, frame.Height)
	}

	dst := Letterbox(srcRect.W, srcRect.H, p.cfg.ModeWidth, p.cfg.ModeHeight)
	if ratioExceeds(dst.W, srcRect.W, p.cfg.MaxScale) || ratioExceeds(dst.H, srcRect.H, p.cfg.MaxScale) {
		srcRect = ClampScaler(srcRect, frame.Width, frame.Height, dst.W, dst.H, p.cfg.MaxScale)
		dst = Letterbox(srcRect.W, srcRect.H, p.cfg.ModeWidth, p.cfg.ModeHeight)
	}

	set := drm.PropertySet{
		ObjID: p.cfg.PlaneID,
		Props: map[uint32]uint64{
			p.cfg.Props.FbID:   uint64(frame.FbID),
			p.cfg.Props.CrtcID: uint64(p.cfg.CrtcID),
			p.cfg.Props.CrtcX:  uint64(dst.X),
			p.cfg.Props.CrtcY:  uint64(dst.Y),
			p.cfg.Props.CrtcW:  uint64(dst.W),
			p.cfg.Props.CrtcH:  uint64(dst.H),
			p.cfg.Props.SrcX:   toQ1616(srcRect.X),
			p.cfg.Props.SrcY:   toQ1616(srcRect.Y),
			p.cfg.Props.SrcW:   toQ1616(srcRect.W),
			p.cfg.Props.SrcH:   toQ1616(srcRect.H),
		},
	}

	p.commit(set)
}

// commit submits as non-blocking atomic, retrying once blocking on
// EBUSY, and logging (not failing) any other error (spec §4.F Commit).
func (p *Presenter) commit(set drm.PropertySet) {
	err := p.dev.AtomicCommit([]drm.PropertySet{set}, drm.AtomicNonblock)
	if err == nil {
		return
	}
	if errors.Is(err, unix.EBUSY) {
		if err := p.dev.AtomicCommit([]drm.PropertySet{set}, 0); err != nil {
			p.log.Warn("atomic commit failed on blocking retry", "err", err)
		}
		return
	}
	p.log.Warn("atomic commit failed", "err", err)
}

// Shutdown pushes an empty commit releasing the plane (spec §4.F
// Shutdown: FB_ID=0, CRTC_ID=0).
func (p *Presenter) Shutdown() {
	p.commit(drm.PropertySet{
		ObjID: p.cfg.PlaneID,
		Props: map[uint32]uint64{
			p.cfg.Props.FbID:   0,
			p.cfg.Props.CrtcID: 0,
		},
	})
}

func toQ1616(v uint32) uint64 { return uint64(v) << 16 }

func ratioExceeds(dst, src uint32, maxScale float64) bool {
	if src == 0 || maxScale <= 0 {
		return false
	}
	return float64(dst) > float64(src)*maxScale
}
