package decoder

import (
	"context"

	"github.com/pixelpilot/pixelpilot/internal/logging"
)

// ReinitHook is invoked when the decoder reports a recoverable error or
// a discarded frame, so the IDR engine can be poked for a fresh keyframe
// (spec §4.E, §7 "recoverable decoder errors").
type ReinitHook func()

// Producer runs the decoder producer thread (spec §4.E): it polls
// GetFrame, resolves info-changes through the pool, and publishes
// resolved frames to the presenter's single slot.
type Producer struct {
	dec    PacketDecoder
	pool   *Pool
	slot   *LatestSlot
	poke   ReinitHook
	log    *logging.Logger
	bpp    uint32
}

// NewProducer constructs a producer. bpp is 8 for standard NV12, 10 for
// a 10-bit stream (spec §4.E step 2).
func NewProducer(dec PacketDecoder, pool *Pool, slot *LatestSlot, poke ReinitHook, log *logging.Logger, bpp uint32) *Producer {
	return &Producer{dec: dec, pool: pool, slot: slot, poke: poke, log: log.With("decoder-producer"), bpp: bpp}
}

// Run loops until ctx is cancelled, publishing decoded frames to the
// presenter's slot.
func (p *Producer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, ok, err := p.dec.GetFrame(GetFrameTimeout)
		if err != nil {
			p.log.Error("decoder get_frame failed", "err", err)
			continue
		}
		if !ok {
			continue
		}

		if frame.InfoChange {
			p.handleInfoChange(frame)
			continue
		}

		if frame.Error || frame.Discard {
			p.log.Warn("decoder reported error or discard, dropping frame", "error", frame.Error, "discard", frame.Discard)
			if p.poke != nil {
				p.poke()
			}
			continue
		}

		slot, found := p.pool.Lookup(frame.PrimeFD)
		if !found {
			p.log.Warn("decoded frame references unknown prime fd, dropping", "prime_fd", frame.PrimeFD)
			continue
		}

		p.slot.Publish(PresentedFrame{
			FbID:      slot.FbID,
			Width:     frame.Width,
			Height:    frame.Height,
			HorStride: frame.HorStride,
			VerStride: frame.VerStride,
			PTSNs:     frame.PTSNs,
			Error:     frame.Error,
			Discard:   frame.Discard,
			EOS:       frame.EOS,
		})
	}
}

// handleInfoChange rebuilds the frame pool for the new resolution and
// hands the fresh PRIME fd set back to the decoder (spec §4.E steps 1-4).
func (p *Producer) handleInfoChange(frame RawFrame) {
	fds, err := p.pool.Rebuild(frame.HorStride, frame.VerStride, p.bpp)
	if err != nil {
		p.log.Error("frame pool rebuild failed on info-change", "err", err)
		return
	}
	if err := p.dec.SetExternalBufferGroup(fds); err != nil {
		p.log.Error("set external buffer group failed", "err", err)
		return
	}
	if err := p.dec.SignalInfoChangeReady(); err != nil {
		p.log.Error("signal info change ready failed", "err", err)
	}
}
