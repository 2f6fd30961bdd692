// Package rtpio implements the wire-level RTP receiver (spec §4.A Socket
// Reader) and the RTP/frame statistics engine (spec §4.B RTP Parser &
// Statistician): binding the UDP socket, classifying payload types,
// tracking sequence/jitter/bitrate, and maintaining the 512-entry sample
// history described in spec §3.
package rtpio

import "time"

// SampleFlag is a bitset of conditions observed on one history sample.
type SampleFlag uint8

const (
	FlagLoss SampleFlag = 1 << iota
	FlagReorder
	FlagDuplicate
	FlagFrameEnd
)

// HistorySize is the fixed ring-buffer capacity (spec §3).
const HistorySize = 512

// Sample is one history-ring entry (spec §3 Packet Sample).
type Sample struct {
	Sequence  uint16
	Timestamp uint32
	PT        uint8
	Marker    bool
	Size      int
	ArrivalNs int64
	Flags     SampleFlag
}

// frameAccumulator tracks the in-progress video frame (spec §3, I3).
type frameAccumulator struct {
	active    bool
	timestamp uint32
	bytes     int
	missing   bool
}

// bitrateWindow accumulates bytes over a rolling measurement window.
type bitrateWindow struct {
	startNs int64
	bytes   int64
}

// streamState is the per-SSRC sequence/frame/jitter bookkeeping of spec
// §3's Stream State, reset on SSRC change but preserving counters.
type streamState struct {
	haveSSRC     bool
	ssrc         uint32
	expectedSeq  uint16
	lastSeq      uint16
	haveLastSeq  bool
	frame        frameAccumulator
	transitValid bool
	lastTransit  float64
	jitter       float64
	jitterEWMA   float64
}

// Snapshot is the full counter/history record exposed to observers (OSD,
// SSE streamer — out of scope, consumed only through this struct per §6).
type Snapshot struct {
	Packets   uint64
	Bytes     uint64
	Frames    uint64
	Incomplete uint64

	Loss      uint64
	Reorder   uint64
	Duplicate uint64

	JitterInstant float64
	JitterEWMA    float64

	BitrateInstantMbps float64
	BitrateEWMAMbps    float64

	LastFrameBytes int
	LastFrameEWMA  float64
	LastTimestamp  uint32

	// LinkQuality is derived from the loss counter over the snapshot's
	// lifetime (poor once lost packets reach 3% of packets observed, by
	// integer percentage above 2), supplementing §3 with the
	// good/poor classification moonlight-common-go's control stream
	// already computes from windowed loss percentage (SPEC_FULL.md).
	LinkQuality LinkQuality

	History      []Sample
	HistoryCount int
}

// LinkQuality is a coarse derived classification of current loss.
type LinkQuality int

const (
	LinkQualityOkay LinkQuality = iota
	LinkQualityPoor
)

// SourceAddr tracks the most recent sender address, refreshed at most
// once per 5 seconds (spec §3 Source Address).
type SourceAddr struct {
	IP         string
	Port       int
	lastUpdate time.Time
}

const sourceAddrRefresh = 5 * time.Second

// Update overwrites the address if the refresh interval has elapsed or
// this is the first observation. Returns true if it changed.
func (s *SourceAddr) Update(ip string, port int, now time.Time) bool {
	if s.IP == ip && s.Port == port {
		return false
	}
	if !s.lastUpdate.IsZero() && now.Sub(s.lastUpdate) < sourceAddrRefresh {
		return false
	}
	s.IP = ip
	s.Port = port
	s.lastUpdate = now
	return true
}
