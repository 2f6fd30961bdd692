package decoder

import (
	"context"
	"fmt"
	"time"

	"github.com/pixelpilot/pixelpilot/internal/logging"
)

// Feeder copies router-delivered video payloads into the decoder's
// packet buffer, retrying on backpressure (spec §4.E packet feed, §5
// backpressure policy, §8 property 12: the feeder never drops a video
// packet unless stop has been requested).
type Feeder struct {
	dec      PacketDecoder
	log      *logging.Logger
	clockNow func() int64
}

// NewFeeder constructs a feeder. clockNow supplies the monotonic PTS
// clock in nanoseconds; pass time.Now().UnixNano in production and a
// deterministic stand-in in tests.
func NewFeeder(dec PacketDecoder, log *logging.Logger, clockNow func() int64) *Feeder {
	if clockNow == nil {
		clockNow = func() int64 { return time.Now().UnixNano() }
	}
	return &Feeder{dec: dec, log: log.With("decoder-feed"), clockNow: clockNow}
}

// Submit feeds one video payload to the decoder, retrying every
// FeedRetryInterval while the decoder reports Busy, until ctx is
// cancelled. Payloads over ReadBufSize are dropped and logged
// (resource-exhaustion-adjacent policy drop, spec §7).
func (f *Feeder) Submit(ctx context.Context, payload []byte, eos bool) error {
	if len(payload) > ReadBufSize {
		f.log.Warn("video payload exceeds decoder read buffer, dropping", "size", len(payload), "max", ReadBufSize)
		return nil
	}

	pts := f.clockNow()
	ticker := time.NewTicker(FeedRetryInterval)
	defer ticker.Stop()

	for {
		result, err := f.dec.SubmitPacket(payload, pts, eos)
		if err != nil {
			return fmt.Errorf("decoder: submit packet: %w", err)
		}
		if result == SubmitOk {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
