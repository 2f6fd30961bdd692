// Command pixelpilot is the reference PixelPilot binary: it loads a
// YAML config (or the built-in defaults), wires CoreContext/Pipeline,
// and runs until interrupted, restarting the pipeline on a hotplug event
// or an IDR reinit request (spec §6 Hooks).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/pixelpilot/pixelpilot/internal/config"
	"github.com/pixelpilot/pixelpilot/internal/core"
	"github.com/pixelpilot/pixelpilot/internal/logging"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file overlaying the built-in defaults")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pixelpilot:", err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pixelpilot:", err)
		os.Exit(1)
	}
	log := logging.New(os.Stderr, level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("pixelpilot exited with error", "err", err)
		os.Exit(1)
	}
}

// run drives the restart loop: each time a Pipeline stops itself in
// response to a hotplug event or the IDR engine's reinit threshold
// (spec §6 Hooks: "so an outer supervisor may rebuild the pipeline"), a
// fresh Pipeline is constructed and started in its place, until ctx is
// cancelled by a signal.
func run(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	cctx := core.NewContext(cfg, log)

	for {
		restarted := make(chan struct{})
		dec := newPacketDecoder(&cfg.Decoder)

		pipeline, err := core.New(cctx, dec, func() { close(restarted) })
		if err != nil {
			return fmt.Errorf("construct pipeline: %w", err)
		}

		log.Info("pixelpilot starting", "port", cfg.Socket.Port, "device", cfg.Presenter.Device, "plane", cfg.Presenter.PlaneID)
		pipeline.Start(ctx)

		select {
		case <-ctx.Done():
			pipeline.Stop()
			return nil
		case <-restarted:
			log.Warn("pipeline restarting")
		}
	}
}
