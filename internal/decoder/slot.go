package decoder

import "sync"

// LatestSlot is the producer→consumer hand-off between the decoder
// producer thread and the presenter (spec §9: "a single-slot channel
// with latest-wins semantics, preferred over a bounded queue because
// the contract is show the newest frame"). The spec describes this as a
// mutex+condvar; a size-1 channel with drain-then-push on overwrite is
// the idiomatic Go equivalent and composes with select/context
// cancellation.
type LatestSlot struct {
	mu      sync.Mutex
	ch      chan PresentedFrame
	pending bool
}

// NewLatestSlot constructs an empty slot.
func NewLatestSlot() *LatestSlot {
	return &LatestSlot{ch: make(chan PresentedFrame, 1)}
}

// Publish overwrites any unread frame with f (latest-wins: an older,
// unconsumed frame is dropped).
func (s *LatestSlot) Publish(f PresentedFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.ch:
	default:
	}
	s.ch <- f
	s.pending = true
}

// Chan exposes the underlying channel for a cancellable select against
// ctx.Done(); a direct receive bypasses Take's pending bookkeeping, so
// callers that select on it directly should treat pending as advisory.
func (s *LatestSlot) Chan() <-chan PresentedFrame {
	return s.ch
}

// Take blocks until a frame is published, clearing pending state.
func (s *LatestSlot) Take() PresentedFrame {
	f := <-s.ch
	s.mu.Lock()
	s.pending = false
	s.mu.Unlock()
	return f
}
