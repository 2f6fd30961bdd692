package rtpio

import (
	"sync"
	"time"
)

// clockRate is the RTP media clock used for jitter computation (90kHz
// video, per §3/§6 — matches moonlight-common-go's video stream).
const clockRate = 90000

// bitrateWindowDuration is the rolling window the instantaneous bitrate
// is computed over (spec §4.B: 100ms window).
const bitrateWindowDuration = 100 * time.Millisecond

// ewmaAlpha is the smoothing factor applied to the reporting EWMAs
// (jitter, bitrate, frame size) per spec §4.B.
const ewmaAlpha = 0.1

// Statistician tracks per-SSRC sequence/jitter/frame state and the
// 512-sample history ring, grounded on moonlight-common-go/video/
// stream.go's receiveLoop/parseRTPPacket/processPacket counters.
type Statistician struct {
	mu sync.Mutex

	videoPT uint8
	audioPT uint8

	state   streamState
	history history

	packets    uint64
	bytes      uint64
	frames     uint64
	incomplete uint64
	loss       uint64
	reorder    uint64
	duplicate  uint64

	window      bitrateWindow
	windowEWMA  float64
	haveWindow  bool

	frameBytesEWMA float64
	haveFrameEWMA  bool

	lastFrameBytes int
	lastTimestamp  uint32

	lastArrivalNs int64
}

// NewStatistician constructs a statistician classifying packets against
// the configured video/audio payload types.
func NewStatistician(videoPT, audioPT uint8) *Statistician {
	return &Statistician{videoPT: videoPT, audioPT: audioPT}
}

// LastArrival returns the wall-clock time of the most recently observed
// datagram, the zero time if none has arrived yet. Used by the core's
// fallback watchdog to detect a quiet link (spec §9 OQ1).
func (s *Statistician) LastArrival() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastArrivalNs == 0 {
		return time.Time{}
	}
	return time.Unix(0, s.lastArrivalNs)
}

// Observe parses and records one datagram's arrival; a malformed
// datagram is only counted in Packets and returned as an error. nowNs is
// the arrival time in Unix nanoseconds (time.Now().UnixNano()) supplied
// by the caller so tests can drive it deterministically.
func (s *Statistician) Observe(buf []byte, nowNs int64) (Sample, []byte, error) {
	dp, err := decodePacket(buf)
	if err != nil {
		s.mu.Lock()
		s.packets++
		s.mu.Unlock()
		return Sample{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := dp.pkt.SequenceNumber
	ts := dp.pkt.Timestamp
	pt := dp.pkt.PayloadType
	marker := dp.pkt.Marker

	sample := Sample{
		Sequence:  seq,
		Timestamp: ts,
		PT:        pt,
		Marker:    marker,
		Size:      dp.datagramLen,
		ArrivalNs: nowNs,
	}

	s.packets++
	s.bytes += uint64(dp.datagramLen)
	s.accumulateBitrate(dp.datagramLen, nowNs)

	if dp.pkt.SSRC != s.state.ssrc || !s.state.haveSSRC {
		// SSRC change resets sequencing/jitter but never the lifetime
		// counters (spec I1: an SSRC change is a discontinuity, not a
		// stream restart).
		s.state = streamState{haveSSRC: true, ssrc: dp.pkt.SSRC}
	}

	if !s.state.haveLastSeq {
		s.state.expectedSeq = seq + 1
	} else {
		delta := int16(seq - s.state.expectedSeq)
		switch {
		case delta == 0:
			s.state.expectedSeq = seq + 1
		case delta > 0:
			s.loss += uint64(delta)
			s.state.expectedSeq = seq + 1
			sample.Flags |= FlagLoss
		default: // delta < 0: older than expected
			s.reorder++
			sample.Flags |= FlagReorder
		}
		// Duplicate is checked independently of the delta classification
		// above (spec §4.B tie-break).
		if seq == s.state.lastSeq {
			s.duplicate++
			sample.Flags |= FlagDuplicate
		}
	}
	s.state.lastSeq = seq
	s.state.haveLastSeq = true

	s.updateJitter(ts, nowNs)

	if pt == s.videoPT {
		s.observeVideoFrame(ts, dp.payloadSize, marker, &sample)
	}

	s.lastArrivalNs = nowNs
	s.history.push(sample)
	return sample, dp.pkt.Payload, nil
}

// updateJitter applies RFC 3550 §6.4.1's running jitter estimate:
// arrival-time difference minus RTP-timestamp difference, smoothed with
// a 1/16 gain (spec §3 JitterInstant/JitterEWMA).
func (s *Statistician) updateJitter(ts uint32, nowNs int64) {
	if !s.state.transitValid {
		s.state.transitValid = true
		s.state.lastTransit = float64(nowNs)/1e9*clockRate - float64(ts)
		return
	}
	transit := float64(nowNs)/1e9*clockRate - float64(ts)
	d := transit - s.state.lastTransit
	s.state.lastTransit = transit
	if d < 0 {
		d = -d
	}
	// RFC 3550 §6.4.1's running jitter estimate, 1/16 gain.
	s.state.jitter += (d - s.state.jitter) / 16
	// A further EWMA of that value for reporting (spec §4.B, α=0.1).
	s.state.jitterEWMA += (s.state.jitter - s.state.jitterEWMA) * ewmaAlpha
}

// observeVideoFrame finalizes the in-progress frame when the marker bit
// is set or the RTP timestamp advances (spec §3 I3: a frame ends on
// marker OR timestamp change, whichever is observed first).
func (s *Statistician) observeVideoFrame(ts uint32, payloadSize int, marker bool, sample *Sample) {
	f := &s.state.frame
	if f.active && ts != f.timestamp {
		s.finalizeFrame(f.missing)
		*f = frameAccumulator{}
	}
	if !f.active {
		f.active = true
		f.timestamp = ts
	}
	f.bytes += payloadSize
	if sample.Flags&(FlagLoss|FlagDuplicate) != 0 {
		f.missing = true
	}
	if marker {
		sample.Flags |= FlagFrameEnd
		s.finalizeFrame(f.missing)
		*f = frameAccumulator{}
	}
}

func (s *Statistician) finalizeFrame(missing bool) {
	f := &s.state.frame
	s.frames++
	if missing {
		s.incomplete++
	}
	// Captured before the caller resets *f to zero, so Snapshot still
	// reports the just-closed frame's size/timestamp (spec §3, §8 property 4).
	s.lastFrameBytes = f.bytes
	s.lastTimestamp = f.timestamp
	if !s.haveFrameEWMA {
		s.frameBytesEWMA = float64(f.bytes)
		s.haveFrameEWMA = true
	} else {
		s.frameBytesEWMA += (float64(f.bytes) - s.frameBytesEWMA) * ewmaAlpha
	}
}

// accumulateBitrate rolls the 100ms byte-counting window forward,
// folding the prior window's rate into an EWMA on each rollover (spec §3
// BitrateInstant/BitrateEWMA).
func (s *Statistician) accumulateBitrate(n int, nowNs int64) {
	if !s.haveWindow {
		s.window = bitrateWindow{startNs: nowNs}
		s.haveWindow = true
	}
	elapsed := time.Duration(nowNs - s.window.startNs)
	if elapsed >= bitrateWindowDuration {
		rate := mbps(s.window.bytes, elapsed)
		if s.windowEWMA == 0 {
			s.windowEWMA = rate
		} else {
			s.windowEWMA += (rate - s.windowEWMA) * ewmaAlpha
		}
		s.window = bitrateWindow{startNs: nowNs}
	}
	s.window.bytes += int64(n)
}

func mbps(bytes int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(bytes*8) / d.Seconds() / 1e6
}

// Snapshot returns a consistent copy of all counters and the history
// ring, oldest-first.
func (s *Statistician) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var instant float64
	if s.haveWindow {
		elapsed := time.Duration(s.lastArrivalNs - s.window.startNs)
		instant = mbps(s.window.bytes, elapsed)
	}

	quality := LinkQualityOkay
	if s.packets > 0 && (s.loss*100/max64(s.packets, 1)) > 2 {
		quality = LinkQualityPoor
	}

	hist := s.history.snapshot()
	return Snapshot{
		Packets:            s.packets,
		Bytes:              s.bytes,
		Frames:             s.frames,
		Incomplete:         s.incomplete,
		Loss:               s.loss,
		Reorder:            s.reorder,
		Duplicate:          s.duplicate,
		JitterInstant:      s.state.jitter / clockRate * 1000,
		JitterEWMA:         s.state.jitterEWMA / clockRate * 1000,
		BitrateInstantMbps: instant,
		BitrateEWMAMbps:    s.windowEWMA,
		LastFrameBytes:     s.lastFrameBytes,
		LastFrameEWMA:      s.frameBytesEWMA,
		LastTimestamp:      s.lastTimestamp,
		LinkQuality:        quality,
		History:            hist,
		HistoryCount:       len(hist),
	}
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
