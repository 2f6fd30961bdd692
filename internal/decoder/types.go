// Package decoder owns the vendor H.265 decoder boundary (spec §4.E): a
// capability interface the hardware adapter implements, the DMA-BUF
// frame-slot pool built from internal/drm, and the producer thread that
// bridges decoded frames to the presenter's single-slot channel.
package decoder

import "time"

// SubmitResult is the outcome of one SubmitPacket call.
type SubmitResult int

const (
	SubmitOk SubmitResult = iota
	SubmitBusy
)

// MaxFrames is the fixed frame-slot pool size (spec §4.E: DECODER_MAX_FRAMES).
const MaxFrames = 24

// ReadBufSize bounds one packet feed copy (spec §4.E: DECODER_READ_BUF_SIZE).
const ReadBufSize = 1 << 20

// FeedRetryInterval is the backpressure retry cadence (spec §4.E: ~2ms).
const FeedRetryInterval = 2 * time.Millisecond

// GetFrameTimeout is the producer thread's decode-get-frame poll timeout
// (spec §4.E: 5ms).
const GetFrameTimeout = 5 * time.Millisecond

// PacketDecoder is the capability set a vendor-specific hardware decoder
// adapter implements (spec §6, §9: dynamic dispatch via function pointers
// becomes a capability interface). This package never implements it —
// the hardware decoder is an external collaborator (spec §1).
type PacketDecoder interface {
	// SubmitPacket hands one packetized payload to the decoder. eos
	// marks end-of-stream.
	SubmitPacket(payload []byte, ptsNs int64, eos bool) (SubmitResult, error)
	// GetFrame blocks up to timeout for a decoded frame. ok is false on
	// timeout with no frame available (not an error).
	GetFrame(timeout time.Duration) (frame RawFrame, ok bool, err error)
	// SetExternalBufferGroup registers the frame pool's PRIME fds as the
	// decoder's output buffer set.
	SetExternalBufferGroup(primeFDs []int) error
	// SignalInfoChangeReady acknowledges a RawFrame.InfoChange, telling
	// the decoder its new buffer group is in place.
	SignalInfoChangeReady() error
}

// RawFrame is what the vendor decoder hands back from GetFrame: a
// buffer identified by PRIME fd, not yet resolved to a framebuffer ID
// (that resolution is the producer's job via the slot table).
type RawFrame struct {
	PrimeFD    int
	Width      uint32
	Height     uint32
	HorStride  uint32
	VerStride  uint32
	PTSNs      int64
	Error      bool
	Discard    bool
	EOS        bool
	InfoChange bool
	TenBit     bool
}

// PresentedFrame is the frame interface exposed to the presenter (spec
// §6): a resolved framebuffer ID ready for an atomic commit.
type PresentedFrame struct {
	FbID      uint32
	Width     uint32
	Height    uint32
	HorStride uint32
	VerStride uint32
	PTSNs     int64
	Error     bool
	Discard   bool
	EOS       bool
}

// FrameSlot is one pool entry: the DMA-BUF/PRIME fd ↔ framebuffer ID
// bijection the pool maintains for its lifetime (spec I5).
type FrameSlot struct {
	PrimeFD int
	FbID    uint32
	Handle  uint32
}
