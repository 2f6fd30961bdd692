package present

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/pixelpilot/pixelpilot/internal/decoder"
	"github.com/pixelpilot/pixelpilot/internal/drm"
	"github.com/pixelpilot/pixelpilot/internal/logging"
)

type fakeCommitter struct {
	mu      sync.Mutex
	commits []drm.PropertySet
	flags   []uint32
	failEBUSYOnce bool
}

func (f *fakeCommitter) AtomicCommit(sets []drm.PropertySet, flags uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEBUSYOnce && flags&drm.AtomicNonblock != 0 {
		f.failEBUSYOnce = false
		return unix.EBUSY
	}
	f.commits = append(f.commits, sets...)
	f.flags = append(f.flags, flags)
	return nil
}

func testProps() PropertyIDs {
	return PropertyIDs{
		FbID: 1, CrtcID: 2,
		CrtcX: 3, CrtcY: 4, CrtcW: 5, CrtcH: 6,
		SrcX: 7, SrcY: 8, SrcW: 9, SrcH: 10,
	}
}

func TestPresenterCommitsLetterboxedRectangleForFullFrame(t *testing.T) {
	fake := &fakeCommitter{}
	cfg := Config{PlaneID: 99, CrtcID: 2, ModeWidth: 1280, ModeHeight: 720, MaxScale: 4, Props: testProps()}
	slot := decoder.NewLatestSlot()
	p := NewPresenter(fake, cfg, slot, logging.Default())

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	slot.Publish(decoder.PresentedFrame{FbID: 77, Width: 1920, Height: 1080})

	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.commits) == 1
	}, time.Second, time.Millisecond)
	cancel()

	fake.mu.Lock()
	defer fake.mu.Unlock()
	set := fake.commits[0]
	assert.EqualValues(t, 99, set.ObjID)
	assert.EqualValues(t, 77, set.Props[testProps().FbID])
	assert.EqualValues(t, 1280, set.Props[testProps().CrtcW])
	assert.EqualValues(t, 720, set.Props[testProps().CrtcH])
	assert.EqualValues(t, uint64(1920)<<16, set.Props[testProps().SrcW])
}

func TestPresenterRetriesOnceBlockingOnEBUSY(t *testing.T) {
	fake := &fakeCommitter{failEBUSYOnce: true}
	cfg := Config{PlaneID: 1, CrtcID: 1, ModeWidth: 1280, ModeHeight: 720, MaxScale: 4, Props: testProps()}
	p := NewPresenter(fake, cfg, decoder.NewLatestSlot(), logging.Default())

	p.commitFrame(decoder.PresentedFrame{FbID: 1, Width: 1920, Height: 1080})

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.flags, 1, "the failed non-blocking attempt isn't recorded as a commit; only the successful retry is")
	assert.EqualValues(t, 0, fake.flags[0], "retry after EBUSY must be blocking (flags=0)")
}

func TestPresenterSkipsCommitForErrorOrDiscardFrame(t *testing.T) {
	fake := &fakeCommitter{}
	cfg := Config{PlaneID: 1, CrtcID: 1, ModeWidth: 1280, ModeHeight: 720, MaxScale: 4, Props: testProps()}
	p := NewPresenter(fake, cfg, decoder.NewLatestSlot(), logging.Default())

	p.commitFrame(decoder.PresentedFrame{FbID: 1, Width: 1920, Height: 1080, Error: true})
	p.commitFrame(decoder.PresentedFrame{FbID: 2, Width: 1920, Height: 1080, Discard: true})

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Empty(t, fake.commits)
}

func TestPresenterShutdownReleasesPlane(t *testing.T) {
	fake := &fakeCommitter{}
	props := testProps()
	cfg := Config{PlaneID: 42, CrtcID: 1, ModeWidth: 1280, ModeHeight: 720, MaxScale: 4, Props: props}
	p := NewPresenter(fake, cfg, decoder.NewLatestSlot(), logging.Default())

	p.Shutdown()

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.commits, 1)
	assert.EqualValues(t, 0, fake.commits[0].Props[props.FbID])
	assert.EqualValues(t, 0, fake.commits[0].Props[props.CrtcID])
}

func TestPresenterAppliesZoomRectangleWhenSet(t *testing.T) {
	fake := &fakeCommitter{}
	props := testProps()
	cfg := Config{PlaneID: 1, CrtcID: 1, ModeWidth: 1280, ModeHeight: 720, MaxScale: 4, Props: props}
	p := NewPresenter(fake, cfg, decoder.NewLatestSlot(), logging.Default())

	p.SetZoom(&ZoomRequest{ScaleXPercent: 50, ScaleYPercent: 50, CenterXPercent: 50, CenterYPercent: 50})
	p.commitFrame(decoder.PresentedFrame{FbID: 1, Width: 1920, Height: 1080})

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.commits, 1)
	assert.EqualValues(t, uint64(960)<<16, fake.commits[0].Props[props.SrcW])
	assert.EqualValues(t, uint64(480)<<16, fake.commits[0].Props[props.SrcX])
}
