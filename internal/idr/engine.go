// Package idr implements the IDR Policy Engine (spec §4.C): a loss-
// driven state machine that requests a fresh keyframe from the sender
// over HTTP, bursting on the first sign of trouble and backing off
// exponentially while loss persists, grounded on moonlight-common-go/
// control/stream.go's RequestIDRFrame/lossStatsLoop/checkConnectionStatus
// loop — retargeted from ENet control-channel messages to a plain
// HTTP/1.1 GET per spec §6.
package idr

import (
	"context"
	"sync"
	"time"

	"github.com/pixelpilot/pixelpilot/internal/logging"
)

// State is the engine's Idle/Active classification (spec §4.C).
type State int

const (
	StateIdle State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "idle"
}

// Config parameterizes the engine's schedule.
type Config struct {
	// QuietReset is how long the engine waits without a loss signal
	// before dropping back to Idle and resetting the backoff.
	QuietReset time.Duration
	// MinInterval is the burst-phase request spacing.
	MinInterval time.Duration
	// MaxInterval caps the exponential backoff.
	MaxInterval time.Duration
	// BurstCount is how many requests fire at MinInterval before
	// backoff begins.
	BurstCount int
	// ReinitThreshold is the number of consecutive request cycles
	// (since the last quiet-reset) after which ReinitHook fires.
	ReinitThreshold int
}

// Requester issues the actual IDR request; production code uses
// httpRequester, tests use a fake.
type Requester interface {
	Request(ctx context.Context) error
}

// Engine runs the burst/backoff state machine. It is safe for
// concurrent use: NotifyLoss may be called from the RTP receive path
// while Run drives the schedule on its own goroutine.
type Engine struct {
	cfg       Config
	requester Requester
	log       *logging.Logger
	reinit    func()

	mu          sync.Mutex
	state       State
	burstsSent  int
	interval    time.Duration
	cycles      int
	lastLossAt  time.Time
	nextFireAt  time.Time
	wake        chan struct{}
}

// NewEngine constructs an engine. reinitHook may be nil.
func NewEngine(cfg Config, requester Requester, log *logging.Logger, reinitHook func()) *Engine {
	if reinitHook == nil {
		reinitHook = func() {}
	}
	return &Engine{
		cfg:       cfg,
		requester: requester,
		log:       log.With("idr"),
		reinit:    reinitHook,
		state:     StateIdle,
		wake:      make(chan struct{}, 1),
	}
}

// NotifyLoss is called by the packet statistician whenever a datagram
// arrives with the loss flag set. It arms or extends the active burst/
// backoff schedule.
func (e *Engine) NotifyLoss(now time.Time) {
	e.mu.Lock()
	wasIdle := e.state == StateIdle
	e.lastLossAt = now
	if wasIdle {
		e.state = StateActive
		e.burstsSent = 0
		e.interval = e.cfg.MinInterval
		e.nextFireAt = now
	}
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// State returns the current Idle/Active classification.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Run drives the schedule until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		e.mu.Lock()
		var wait time.Duration
		if e.state == StateActive {
			wait = time.Until(e.nextFireAt)
			if wait < 0 {
				wait = 0
			}
		} else {
			wait = time.Hour
		}
		e.mu.Unlock()

		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-e.wake:
			continue
		case <-timer.C:
			e.tick(ctx)
		}
	}
}

// tick fires one request if due, then either schedules the next
// burst/backoff step, or resets to Idle on the quiet timeout (spec
// §4.C quiet-period reset).
func (e *Engine) tick(ctx context.Context) {
	e.mu.Lock()
	if e.state != StateActive {
		e.mu.Unlock()
		return
	}
	if time.Since(e.lastLossAt) >= e.cfg.QuietReset && e.burstsSent > 0 {
		e.state = StateIdle
		e.burstsSent = 0
		e.cycles = 0
		e.mu.Unlock()
		e.log.Debug("idr engine returning to idle after quiet period")
		return
	}
	// Reaching the threshold trips the reinit hook in place of the next
	// HTTP request and returns the engine to idle (spec §4.C, §8
	// property 9): exactly one reinit callback per active episode, never
	// a request on the same tick.
	if e.cfg.ReinitThreshold > 0 && e.cycles >= e.cfg.ReinitThreshold {
		e.state = StateIdle
		e.burstsSent = 0
		e.cycles = 0
		e.mu.Unlock()
		e.log.Warn("idr reinit threshold reached, invoking reinit hook and returning to idle")
		e.reinit()
		return
	}
	e.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := e.requester.Request(reqCtx)
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.log.Warn("idr request failed", "err", err)
	}

	e.burstsSent++
	e.cycles++

	if e.burstsSent < e.cfg.BurstCount {
		e.interval = e.cfg.MinInterval
	} else {
		e.interval *= 2
		if e.interval > e.cfg.MaxInterval {
			e.interval = e.cfg.MaxInterval
		}
	}
	e.nextFireAt = time.Now().Add(e.interval)
}
