package hotplug

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualSignalCoalescesBurstIntoOnePendingEvent(t *testing.T) {
	s := NewManualSignal()
	s.Fire()
	s.Fire()
	s.Fire()

	select {
	case <-s.C():
	case <-time.After(time.Second):
		t.Fatal("expected a pending event")
	}

	select {
	case <-s.C():
		t.Fatal("a burst of Fire calls must coalesce into a single pending event")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestNoSignalNeverFires(t *testing.T) {
	s := NoSignal{}
	select {
	case <-s.C():
		t.Fatal("NoSignal must never deliver an event")
	case <-time.After(10 * time.Millisecond):
	}
	assert.NoError(t, s.Close())
}
