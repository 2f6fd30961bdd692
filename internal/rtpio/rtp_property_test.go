package rtpio

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestDecodePacketNeverExceedsDatagramBounds checks spec invariant I1 for
// arbitrary valid RTP packets: payload_offset + payload_size never
// exceeds the datagram length.
func TestDecodePacketNeverExceedsDatagramBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seq := rapid.Uint16().Draw(rt, "seq")
		ts := rapid.Uint32().Draw(rt, "ts")
		ssrc := rapid.Uint32().Draw(rt, "ssrc")
		payload := rapid.SliceOfN(rapid.Byte(), 0, 256).Draw(rt, "payload")
		marker := rapid.Bool().Draw(rt, "marker")

		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    testVideoPT,
				SequenceNumber: seq,
				Timestamp:      ts,
				SSRC:           ssrc,
				Marker:         marker,
			},
			Payload: payload,
		}
		buf, err := pkt.Marshal()
		require.NoError(t, err)

		dp, err := decodePacket(buf)
		require.NoError(t, err)
		assert.LessOrEqual(t, dp.payloadOffset+dp.payloadSize, len(buf))
		assert.Equal(t, seq, dp.pkt.SequenceNumber)
		assert.Equal(t, ts, dp.pkt.Timestamp)
	})
}

// TestDecodePacketRejectsTruncatedHeader checks that any buffer shorter
// than the fixed RTP header is rejected rather than panicking.
func TestDecodePacketRejectsTruncatedHeader(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 11).Draw(rt, "n")
		buf := rapid.SliceOfN(rapid.Byte(), n, n).Draw(rt, "buf")
		_, err := decodePacket(buf)
		assert.ErrorIs(t, err, ErrMalformed)
	})
}
