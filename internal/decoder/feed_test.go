package decoder

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type busyThenOkDecoder struct {
	fakeDecoder
	busyFor int32
	calls   int32
}

func (d *busyThenOkDecoder) SubmitPacket(payload []byte, ptsNs int64, eos bool) (SubmitResult, error) {
	n := atomic.AddInt32(&d.calls, 1)
	if n <= d.busyFor {
		return SubmitBusy, nil
	}
	return SubmitOk, nil
}

func TestFeederRetriesOnBackpressureUntilAccepted(t *testing.T) {
	dec := &busyThenOkDecoder{busyFor: 3}
	f := NewFeeder(dec, testLogger(), func() int64 { return 7 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := f.Submit(ctx, []byte("payload"), false)
	require.NoError(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&dec.calls))
}

func TestFeederNeverDropsPacketUnlessStopped(t *testing.T) {
	dec := &busyThenOkDecoder{busyFor: 1 << 30}
	f := NewFeeder(dec, testLogger(), func() int64 { return 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := f.Submit(ctx, []byte("payload"), false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, int(atomic.LoadInt32(&dec.calls)), 1, "feeder must keep retrying, not drop, until stop is requested")
}

func TestFeederDropsOversizedPayloadWithoutCallingDecoder(t *testing.T) {
	dec := &busyThenOkDecoder{}
	f := NewFeeder(dec, testLogger(), func() int64 { return 1 })

	oversized := make([]byte, ReadBufSize+1)
	err := f.Submit(context.Background(), oversized, false)
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&dec.calls))
}
