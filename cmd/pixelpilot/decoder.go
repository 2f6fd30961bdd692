package main

import (
	"fmt"
	"time"

	"github.com/pixelpilot/pixelpilot/internal/config"
	"github.com/pixelpilot/pixelpilot/internal/decoder"
)

// newPacketDecoder resolves the vendor H.265 decoder adapter (spec §1:
// an out-of-scope external collaborator reached only through
// decoder.PacketDecoder). PixelPilot ships no hardware codec binding of
// its own; a real deployment links one in behind this seam. Until then,
// unlinkedDecoder returns an error from every packet submit and buffer
// setup call rather than pretending to decode; GetFrame waits out its
// timeout and reports no frame without an error.
func newPacketDecoder(cfg *config.Decoder) decoder.PacketDecoder {
	return unlinkedDecoder{}
}

type unlinkedDecoder struct{}

var errNoDecoderBackend = fmt.Errorf("pixelpilot: no hardware decoder backend linked for this build")

func (unlinkedDecoder) SubmitPacket(payload []byte, ptsNs int64, eos bool) (decoder.SubmitResult, error) {
	return decoder.SubmitOk, errNoDecoderBackend
}

func (unlinkedDecoder) GetFrame(timeout time.Duration) (decoder.RawFrame, bool, error) {
	time.Sleep(timeout)
	return decoder.RawFrame{}, false, nil
}

func (unlinkedDecoder) SetExternalBufferGroup(primeFDs []int) error { return errNoDecoderBackend }

func (unlinkedDecoder) SignalInfoChangeReady() error { return errNoDecoderBackend }
