// Package core wires components A-F (spec §2, §9) into one pipeline:
// CoreContext holds the externally-supplied config and logger ("global
// state → explicit CoreContext" per spec §9's design note), and Pipeline
// owns every thread's lifecycle, grounded on internal/server/server.go's
// context.WithCancel + sync.WaitGroup + ordered-Shutdown lifecycle,
// generalized from one HTTP server to the receiver/decoder/presenter
// threads spec §5 describes.
package core

import (
	"github.com/pixelpilot/pixelpilot/internal/config"
	"github.com/pixelpilot/pixelpilot/internal/logging"
)

// CoreContext is the read-only construction input Pipeline is built
// from. It never changes after construction; config is an external
// collaborator's responsibility to parse (spec §1), CoreContext just
// carries the result.
type CoreContext struct {
	Config *config.Config
	Log    *logging.Logger
}

// NewContext builds a CoreContext from an already-loaded config and
// logger.
func NewContext(cfg *config.Config, log *logging.Logger) *CoreContext {
	return &CoreContext{Config: cfg, Log: log}
}
