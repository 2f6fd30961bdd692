package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pixelpilot/pixelpilot/internal/config"
	"github.com/pixelpilot/pixelpilot/internal/decoder"
	"github.com/pixelpilot/pixelpilot/internal/drm"
	"github.com/pixelpilot/pixelpilot/internal/hotplug"
	"github.com/pixelpilot/pixelpilot/internal/idr"
	"github.com/pixelpilot/pixelpilot/internal/logging"
	"github.com/pixelpilot/pixelpilot/internal/present"
	"github.com/pixelpilot/pixelpilot/internal/router"
	"github.com/pixelpilot/pixelpilot/internal/rtpio"
)

// RestartHook is invoked once, from a background goroutine, after a
// Pipeline has fully stopped itself in response to a hotplug event or
// the IDR engine's reinit threshold (spec §6 Hooks: "so an outer
// supervisor may rebuild the pipeline"). The Pipeline never rebuilds
// itself — it stops cleanly and hands control back to its caller, which
// is expected to construct and Start a fresh Pipeline.
type RestartHook func()

// Pipeline wires components A-F into one running unit: the receiver
// thread (socket + router, spec §4.A/B/D), the IDR HTTP worker (§4.C),
// the decoder producer thread (§4.E), and the presenter thread (§4.F).
// It owns their combined Start/Stop lifecycle (spec §5 Cancellation).
type Pipeline struct {
	cfg *config.Config
	log *logging.Logger

	drmDev    *drm.Device
	pool      *decoder.Pool
	slot      *decoder.LatestSlot
	feeder    *decoder.Feeder
	producer  *decoder.Producer
	presenter *present.Presenter
	socket    *rtpio.Socket
	socketCfg rtpio.SocketConfig
	router    *router.Router
	idrEngine *idr.Engine
	hotplug   hotplug.Signal
	fallback  rtpio.FallbackProbe

	onRestart RestartHook

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	stopOnce    sync.Once
	restartOnce sync.Once

	fbMu           sync.Mutex
	fallbackSocket *rtpio.Socket
}

// New constructs a Pipeline: opens the DRM device, resolves the plane
// and its property IDs (spec §6 Modeset input — the core never performs
// modeset itself, only plane fallback selection and property caching),
// and wires the remaining components around the caller-supplied vendor
// decoder (spec §1: the hardware decoder is an external collaborator).
// onRestart may be nil.
func New(cctx *CoreContext, dec decoder.PacketDecoder, onRestart RestartHook) (*Pipeline, error) {
	cfg := cctx.Config
	log := cctx.Log

	drmDev, err := drm.Open(cfg.Presenter.Device)
	if err != nil {
		return nil, fmt.Errorf("core: open drm device: %w", err)
	}
	if err := drmDev.SetClientCapUniversalPlanes(); err != nil {
		drmDev.Close()
		return nil, fmt.Errorf("core: enable universal planes: %w", err)
	}
	if err := drmDev.SetMaster(); err != nil {
		log.Warn("drm set master failed, continuing (may already be master)", "err", err)
	}

	presentCfg, err := resolvePresenterConfig(drmDev, cfg.Presenter, log)
	if err != nil {
		drmDev.Close()
		return nil, fmt.Errorf("core: resolve presenter plane: %w", err)
	}

	socketCfg := rtpio.SocketConfig{
		Port:         cfg.Socket.Port,
		RecvBufBytes: cfg.Socket.RecvBufBytes,
		PollTimeout:  cfg.Socket.PollTimeout,
		MaxDatagram:  cfg.Socket.MaxDatagram,
		BatchSize:    cfg.Socket.BatchSize,
		VideoPT:      uint8(cfg.RTP.VideoPT),
		AudioPT:      uint8(cfg.RTP.AudioPT),
	}
	socket, err := rtpio.NewSocket(socketCfg, log)
	if err != nil {
		drmDev.Close()
		return nil, fmt.Errorf("core: open rtp socket: %w", err)
	}

	pool := decoder.NewPool(drmDev, log)
	slot := decoder.NewLatestSlot()
	presenter := present.NewPresenter(drmDev, presentCfg, slot, log)
	feeder := decoder.NewFeeder(dec, log, nil)

	p := &Pipeline{
		cfg:       cfg,
		log:       log,
		drmDev:    drmDev,
		pool:      pool,
		slot:      slot,
		feeder:    feeder,
		presenter: presenter,
		socket:    socket,
		socketCfg: socketCfg,
		onRestart: onRestart,
		fallback:  rtpio.NewFallback(convertFallbackMode(cfg.Socket.Fallback), cfg.Socket.FallbackPort, cfg.Socket.FallbackRTSPURL),
	}

	bpp := uint32(8)
	if cfg.Decoder.TenBit {
		bpp = 10
	}
	p.producer = decoder.NewProducer(dec, pool, slot, p.pokeReinit, log, bpp)

	idrCfg := idr.Config{
		QuietReset:      cfg.IDR.QuietReset,
		MinInterval:     cfg.IDR.MinInterval,
		MaxInterval:     cfg.IDR.MaxInterval,
		BurstCount:      cfg.IDR.BurstCount,
		ReinitThreshold: cfg.IDR.ReinitThreshold,
	}
	idrReq := newSourceHostRequester(socket, cfg.IDR.Port, cfg.IDR.Path, cfg.IDR.RequestTimeout)
	p.idrEngine = idr.NewEngine(idrCfg, idrReq, log, func() { p.triggerRestart("idr reinit threshold") })

	var loss router.LossNotifier
	if cfg.IDR.Enabled {
		loss = p.idrEngine
	}
	p.router = router.New(p, nil, loss, log)

	if cfg.Hotplug.Enabled {
		sig, err := hotplug.NewUdevSignal(cfg.Hotplug.Subsystem, log)
		if err != nil {
			log.Warn("hotplug signal unavailable, continuing without hotplug watching", "err", err)
			p.hotplug = hotplug.NoSignal{}
		} else {
			p.hotplug = sig
		}
	} else {
		p.hotplug = hotplug.NoSignal{}
	}

	return p, nil
}

// convertFallbackMode bridges the externally-facing string-based
// config.FallbackMode to rtpio's int-based FallbackMode (spec §9 OQ1
// unifies the source repo's receiver variants behind rtpio.FallbackProbe;
// config keeps the human-readable string form for YAML).
func convertFallbackMode(m config.FallbackMode) rtpio.FallbackMode {
	switch m {
	case config.FallbackDualPort:
		return rtpio.FallbackDualPort
	case config.FallbackRTSPProbe:
		return rtpio.FallbackRTSPProbe
	default:
		return rtpio.FallbackNone
	}
}

// SubmitPacket implements router.VideoSink, handing each depacketized
// video payload to the decoder feeder on the receiver thread (spec
// §4.D/§4.E, data flow "A → B (same thread) ... and D (same thread)").
func (p *Pipeline) SubmitPacket(seq uint16, ts uint32, marker bool, payload []byte) {
	ctx := p.ctx
	if ctx == nil {
		return
	}
	if err := p.feeder.Submit(ctx, payload, false); err != nil && !errors.Is(err, context.Canceled) {
		p.log.Warn("video feed submit failed", "seq", seq, "err", err)
	}
}

// pokeReinit is the decoder producer's ReinitHook: a recoverable decoder
// error or discard drives the IDR engine the same way a lost packet
// would (spec §4.E, §7).
func (p *Pipeline) pokeReinit() {
	if p.cfg.IDR.Enabled {
		p.idrEngine.NotifyLoss(time.Now())
	}
}

// Start launches every component thread and returns immediately; the
// threads run until ctx is cancelled or Stop is called.
func (p *Pipeline) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.spawn(func(ctx context.Context) {
		if err := p.socket.Run(ctx, p.router.Handle); err != nil {
			p.log.Error("socket reader exited", "err", err)
		}
	})

	if p.cfg.IDR.Enabled {
		p.spawn(p.idrEngine.Run)
	}

	p.spawn(p.producer.Run)
	p.spawn(p.presenter.Run)
	p.spawn(p.watchHotplug)

	if p.cfg.Socket.Fallback != config.FallbackNone {
		p.spawn(p.watchFallback)
	}
}

func (p *Pipeline) spawn(fn func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn(p.ctx)
	}()
}

// watchHotplug triggers one pipeline restart per edge-triggered hotplug
// event (spec §2, §5, S5); a Pipeline only ever restarts once.
func (p *Pipeline) watchHotplug(ctx context.Context) {
	ch := p.hotplug.C()
	if ch == nil {
		return
	}
	select {
	case <-ctx.Done():
	case _, ok := <-ch:
		if ok {
			p.triggerRestart("hotplug event")
		}
	}
}

// watchFallback polls for a quiet link and arms the configured fallback
// probe (spec §9 OQ1): "invoked when the primary socket has gone quiet
// past the IDR quiet-reset window, to decide whether a secondary
// receiver should be armed."
func (p *Pipeline) watchFallback(ctx context.Context) {
	interval := p.cfg.IDR.QuietReset
	if interval <= 0 {
		interval = 750 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(p.socket.Stats().LastArrival()) < interval {
				continue
			}
			port, err := p.fallback.Probe(ctx)
			if err != nil {
				p.log.Warn("fallback probe failed", "err", err)
				continue
			}
			if port == 0 || port == p.cfg.Socket.Port {
				continue
			}
			p.armFallbackSocket(ctx, port)
		}
	}
}

// armFallbackSocket opens the recovered secondary port exactly once per
// Pipeline lifetime and routes it through the same Router (spec §9 OQ1).
func (p *Pipeline) armFallbackSocket(ctx context.Context, port int) {
	p.fbMu.Lock()
	defer p.fbMu.Unlock()
	if p.fallbackSocket != nil {
		return
	}

	cfg := p.socketCfg
	cfg.Port = port
	sock, err := rtpio.NewSocket(cfg, p.log)
	if err != nil {
		p.log.Warn("failed to arm fallback socket", "port", port, "err", err)
		return
	}
	p.log.Warn("link quiet, fallback probe recovered secondary port, arming", "port", port)
	p.fallbackSocket = sock
	p.spawn(func(ctx context.Context) {
		if err := sock.Run(ctx, p.router.Handle); err != nil {
			p.log.Error("fallback socket reader exited", "err", err)
		}
	})
}

// triggerRestart stops the pipeline once and, if a hook was supplied,
// hands control back to the caller (spec §6 Hooks). Safe to call more
// than once — only the first call has any effect.
func (p *Pipeline) triggerRestart(reason string) {
	p.restartOnce.Do(func() {
		p.log.Warn("pipeline restart requested", "reason", reason)
		go func() {
			p.Stop()
			if p.onRestart != nil {
				p.onRestart()
			}
		}()
	})
}

// Stop runs spec §5's Cancellation sequence: mark stop-requested
// (cancel), shut down sockets to wake any blocked reader, join every
// thread, release the plane, then free the frame pool. Safe to call
// more than once and safe to call concurrently with a hotplug- or
// IDR-triggered restart.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		if err := p.socket.Close(); err != nil {
			p.log.Warn("socket close failed", "err", err)
		}
		p.fbMu.Lock()
		if p.fallbackSocket != nil {
			if err := p.fallbackSocket.Close(); err != nil {
				p.log.Warn("fallback socket close failed", "err", err)
			}
		}
		p.fbMu.Unlock()

		p.wg.Wait()

		p.presenter.Shutdown()
		p.pool.Close()

		if err := p.hotplug.Close(); err != nil {
			p.log.Warn("hotplug signal close failed", "err", err)
		}
		if p.drmDev != nil {
			if err := p.drmDev.Close(); err != nil {
				p.log.Warn("drm device close failed", "err", err)
			}
		}
	})
}
