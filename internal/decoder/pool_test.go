package decoder

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelpilot/pixelpilot/internal/logging"
)

type fakeAllocator struct {
	mu          sync.Mutex
	nextHandle  uint32
	nextFD      int
	nextFB      uint32
	destroyed   []uint32
	closedFBs   []uint32
	failAfter   int // CreateDumbBuffer fails once this many succeeded
	created     int
}

func newFakeAllocator() *fakeAllocator { return &fakeAllocator{failAfter: -1} }

func (f *fakeAllocator) CreateDumbBuffer(width, height, bpp uint32) (uint32, uint32, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter >= 0 && f.created >= f.failAfter {
		return 0, 0, 0, fmt.Errorf("simulated create dumb failure")
	}
	f.created++
	f.nextHandle++
	return f.nextHandle, width, uint64(width) * uint64(height), nil
}

func (f *fakeAllocator) DestroyDumbBuffer(handle uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, handle)
	return nil
}

func (f *fakeAllocator) ExportPrimeFD(handle uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextFD++
	return f.nextFD, nil
}

func (f *fakeAllocator) AddNV12Framebuffer(width, height, pitch, verStride, handle uint32) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextFB++
	return f.nextFB, nil
}

func (f *fakeAllocator) RemoveFramebuffer(fbID uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closedFBs = append(f.closedFBs, fbID)
	return nil
}

func testLogger() *logging.Logger { return logging.Default() }

func TestPoolRebuildAllocatesFullSlotCount(t *testing.T) {
	alloc := newFakeAllocator()
	pool := NewPool(alloc, testLogger())

	fds, err := pool.Rebuild(1920, 1080, 8)
	require.NoError(t, err)
	assert.Len(t, fds, MaxFrames)
}

func TestPoolLookupResolvesPrimeFDToFbID(t *testing.T) {
	alloc := newFakeAllocator()
	pool := NewPool(alloc, testLogger())

	fds, err := pool.Rebuild(1920, 1080, 8)
	require.NoError(t, err)

	slot, found := pool.Lookup(fds[0])
	require.True(t, found)
	assert.NotZero(t, slot.FbID)

	_, found = pool.Lookup(99999)
	assert.False(t, found)
}

func TestPoolRebuildTearsDownPreviousSlots(t *testing.T) {
	alloc := newFakeAllocator()
	pool := NewPool(alloc, testLogger())

	_, err := pool.Rebuild(1920, 1080, 8)
	require.NoError(t, err)

	_, err = pool.Rebuild(1280, 720, 8)
	require.NoError(t, err)

	alloc.mu.Lock()
	defer alloc.mu.Unlock()
	assert.Len(t, alloc.destroyed, MaxFrames, "first generation's buffers must be destroyed before the second is built")
	assert.Len(t, alloc.closedFBs, MaxFrames)
}

func TestPoolRebuildContinuesWithReducedSlotsOnPartialFailure(t *testing.T) {
	alloc := newFakeAllocator()
	alloc.failAfter = MaxFrames - 2

	pool := NewPool(alloc, testLogger())
	fds, err := pool.Rebuild(1920, 1080, 8)
	require.NoError(t, err)
	assert.Len(t, fds, MaxFrames-2)
}

func TestPoolRebuildErrorsWhenZeroSlotsAllocate(t *testing.T) {
	alloc := newFakeAllocator()
	alloc.failAfter = 0

	pool := NewPool(alloc, testLogger())
	_, err := pool.Rebuild(1920, 1080, 8)
	assert.Error(t, err)
}

func TestPoolCloseTearsDownSlots(t *testing.T) {
	alloc := newFakeAllocator()
	pool := NewPool(alloc, testLogger())

	_, err := pool.Rebuild(1920, 1080, 8)
	require.NoError(t, err)

	pool.Close()

	alloc.mu.Lock()
	defer alloc.mu.Unlock()
	assert.Len(t, alloc.destroyed, MaxFrames)
}
