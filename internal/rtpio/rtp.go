package rtpio

import (
	"errors"
	"fmt"

	"github.com/pion/rtp"
)

// ErrMalformed marks a datagram that failed RTP parsing or version
// validation (spec §3/I1: malformed packets are counted and dropped,
// never passed downstream).
var ErrMalformed = errors.New("rtpio: malformed RTP packet")

const rtpVersion = 2

// decodedPacket is the parsed form of one inbound datagram, carrying
// both the pion/rtp packet and the byte offset/size the spec's invariant
// 1 is checked against.
type decodedPacket struct {
	pkt           *rtp.Packet
	payloadOffset int
	payloadSize   int
	datagramLen   int
}

// decodePacket parses buf into an RTP packet. It rejects anything that
// is not RTP version 2 or that pion/rtp itself fails to unmarshal
// (short header, truncated CSRC/extension, truncated payload).
func decodePacket(buf []byte) (*decodedPacket, error) {
	if len(buf) < 12 {
		return nil, fmt.Errorf("%w: %d bytes, shorter than fixed header", ErrMalformed, len(buf))
	}
	if version := buf[0] >> 6; version != rtpVersion {
		return nil, fmt.Errorf("%w: version %d", ErrMalformed, version)
	}

	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	// Header size derived the same way pion/rtp's own codecs compute it:
	// total length minus payload minus trailing padding.
	offset := len(buf) - len(pkt.Payload) - int(pkt.PaddingSize)
	if offset < 0 || offset+len(pkt.Payload)+int(pkt.PaddingSize) > len(buf) {
		return nil, fmt.Errorf("%w: payload offset %d + size %d exceeds datagram %d", ErrMalformed, offset, len(pkt.Payload), len(buf))
	}

	return &decodedPacket{
		pkt:           pkt,
		payloadOffset: offset,
		payloadSize:   len(pkt.Payload),
		datagramLen:   len(buf),
	}, nil
}

// classify returns "video" or "audio" when pt matches the configured
// video/audio payload type, or "" with ok=false for anything else (spec §4.B
// classification step, feeding §4.D's three-way routing).
func classify(pt uint8, videoPT, audioPT uint8) (kind string, ok bool) {
	switch pt {
	case videoPT:
		return "video", true
	case audioPT:
		return "audio", true
	default:
		return "", false
	}
}
