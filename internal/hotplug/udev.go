package hotplug

import (
	"context"
	"fmt"

	"github.com/jochenvg/go-udev"

	"github.com/pixelpilot/pixelpilot/internal/logging"
)

// UdevSignal watches udev uevents on one subsystem (spec default:
// "drm") and edge-triggers once per event, coalescing bursts so a
// connector replug that emits several uevents in quick succession only
// causes one stop/restart cycle.
type UdevSignal struct {
	cancel context.CancelFunc
	out    chan struct{}
	log    *logging.Logger
}

// NewUdevSignal starts monitoring subsystem uevents in the background.
func NewUdevSignal(subsystem string, log *logging.Logger) (*UdevSignal, error) {
	u := udev.Udev{}
	mon := u.NewMonitorFromNetlink("udev")
	if err := mon.FilterAddMatchSubsystem(subsystem); err != nil {
		return nil, fmt.Errorf("hotplug: filter subsystem %q: %w", subsystem, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	devCh, errCh, err := mon.DeviceChan(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("hotplug: start monitor: %w", err)
	}

	s := &UdevSignal{cancel: cancel, out: make(chan struct{}, 1), log: log.With("hotplug")}
	go s.pump(ctx, devCh, errCh)
	return s, nil
}

// pump coalesces a burst of uevents into a single edge-triggered signal:
// a reader draining C() at its own pace never sees more than one pending
// event, matching the "edge-triggered" contract (spec §2).
func (s *UdevSignal) pump(ctx context.Context, devCh <-chan *udev.Device, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				return
			}
			s.log.Warn("udev monitor error", "err", err)
		case dev, ok := <-devCh:
			if !ok {
				return
			}
			s.log.Info("udev event", "action", dev.Action(), "sysname", dev.Sysname())
			select {
			case s.out <- struct{}{}:
			default:
			}
		}
	}
}

func (s *UdevSignal) C() <-chan struct{} { return s.out }

func (s *UdevSignal) Close() error {
	s.cancel()
	return nil
}
