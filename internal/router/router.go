// Package router implements the Packet Router & Feeder (spec §4.D):
// the thin dispatch layer between the Socket Reader and the video
// decoder/audio sink, grounded on moonlight-common-go/video/
// stream.go's processPacket dispatch (classify, then hand off) —
// simplified to the spec's three-way routing since frame reassembly
// is the decoder's job here (§4.E), not this layer's.
package router

import (
	"time"

	"github.com/pixelpilot/pixelpilot/internal/logging"
	"github.com/pixelpilot/pixelpilot/internal/rtpio"
)

// VideoSink receives depacketized video payloads in arrival order.
type VideoSink interface {
	SubmitPacket(seq uint16, ts uint32, marker bool, payload []byte)
}

// AudioSink receives depacketized audio payloads. The spec's audio path
// is an out-of-scope external collaborator (§1); this interface is the
// seam it would be wired through.
type AudioSink interface {
	SubmitPacket(seq uint16, ts uint32, marker bool, payload []byte)
}

// LossNotifier is invoked whenever a packet arrives with the loss flag
// set, driving the IDR Policy Engine (§4.C).
type LossNotifier interface {
	NotifyLoss(now time.Time)
}

// Router dispatches classified packets to the configured sinks. A nil
// AudioSink takes the no-audio fast path: audio payloads are dropped
// without ever being copied or queued (spec §4.D).
type Router struct {
	video VideoSink
	audio AudioSink
	loss  LossNotifier
	log   *logging.Logger

	lastSSRCDiscontinuity uint64
}

// New constructs a Router. audio may be nil for the no-audio fast path;
// loss may be nil to disable IDR triggering (e.g. in tests).
func New(video VideoSink, audio AudioSink, loss LossNotifier, log *logging.Logger) *Router {
	return &Router{video: video, audio: audio, loss: loss, log: log.With("router")}
}

// Handle is an rtpio.PacketHandler: it is registered with Socket.Run and
// receives every classified, non-malformed datagram.
func (r *Router) Handle(kind string, seq uint16, ts uint32, marker bool, payload []byte, flags rtpio.SampleFlag) {
	if flags&rtpio.FlagLoss != 0 && r.loss != nil {
		r.loss.NotifyLoss(time.Now())
	}

	switch kind {
	case "video":
		if r.video != nil {
			r.video.SubmitPacket(seq, ts, marker, payload)
		}
	case "audio":
		// No-audio fast path: nothing is copied or queued when no
		// sink is configured.
		if r.audio != nil {
			r.audio.SubmitPacket(seq, ts, marker, payload)
		}
	default:
		r.log.Debug("dropping packet of unrecognized kind", "kind", kind, "seq", seq)
	}
}
