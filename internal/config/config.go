// Package config loads the typed settings PixelPilot's core is constructed
// from. Parsing a full INI/CLI configuration surface is an external
// collaborator's job (spec §1); this package only defines the shape that
// collaborator hands in, plus a thin YAML loader for the reference binary.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FallbackMode selects the at-most-one optional reception fallback
// strategy, unifying the source repo's several divergent receiver
// variants (spec §9 Open Question 1).
type FallbackMode string

const (
	FallbackNone        FallbackMode = "none"
	FallbackDualPort    FallbackMode = "dual-port"
	FallbackRTSPProbe   FallbackMode = "rtsp-probe"
)

// Socket holds §4.A Socket Reader settings.
type Socket struct {
	Port           int           `yaml:"port"`
	RecvBufBytes   int           `yaml:"recv_buf_bytes"`
	RecvTimeout    time.Duration `yaml:"recv_timeout"`
	PollTimeout    time.Duration `yaml:"poll_timeout"`
	MaxDatagram    int           `yaml:"max_datagram"`
	BatchSize      int           `yaml:"batch_size"`
	Fallback       FallbackMode  `yaml:"fallback"`
	FallbackPort   int           `yaml:"fallback_port"`
	FallbackRTSPURL string       `yaml:"fallback_rtsp_url"`
}

// RTP holds §4.B payload-type classification settings.
type RTP struct {
	VideoPT int `yaml:"video_pt"`
	AudioPT int `yaml:"audio_pt"`
}

// IDR holds §4.C IDR Policy Engine tunables.
type IDR struct {
	Path             string        `yaml:"path"`
	Port             int           `yaml:"port"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	QuietReset       time.Duration `yaml:"quiet_reset"`
	MinInterval      time.Duration `yaml:"min_interval"`
	MaxInterval      time.Duration `yaml:"max_interval"`
	BurstCount       int           `yaml:"burst_count"`
	BurstInterval    time.Duration `yaml:"burst_interval"`
	ReinitThreshold  int           `yaml:"reinit_threshold"`
	Enabled          bool          `yaml:"enabled"`
}

// Decoder holds §4.E Hardware Decoder Adapter tunables.
type Decoder struct {
	Device         string `yaml:"device"`
	MaxFrames      int    `yaml:"max_frames"`
	ReadBufSize    int    `yaml:"read_buf_size"`
	TenBit         bool   `yaml:"ten_bit"`
}

// Presenter holds §4.F DRM Plane Presenter tunables.
type Presenter struct {
	Device       string  `yaml:"device"`
	ConnectorID  uint32  `yaml:"connector_id"`
	CrtcID       uint32  `yaml:"crtc_id"`
	PlaneID      uint32  `yaml:"plane_id"`
	ModeWidth    uint32  `yaml:"mode_width"`
	ModeHeight   uint32  `yaml:"mode_height"`
	ModeHz       uint32  `yaml:"mode_hz"`
	MaxScale     float64 `yaml:"max_scale"`
}

// Hotplug holds §5/§2 udev-signal tunables.
type Hotplug struct {
	Enabled   bool   `yaml:"enabled"`
	Subsystem string `yaml:"subsystem"`
}

// Config is the full, externally-supplied settings object CoreContext is
// built from.
type Config struct {
	Affinity  []int     `yaml:"affinity"`
	Socket    Socket    `yaml:"socket"`
	RTP       RTP       `yaml:"rtp"`
	IDR       IDR       `yaml:"idr"`
	Decoder   Decoder   `yaml:"decoder"`
	Presenter Presenter `yaml:"presenter"`
	Hotplug   Hotplug   `yaml:"hotplug"`
	LogLevel  string    `yaml:"log_level"`
}

// Default returns the spec's documented defaults (§4, §6).
func Default() *Config {
	return &Config{
		Socket: Socket{
			Port:         5600,
			RecvBufBytes: 4 * 1024 * 1024,
			RecvTimeout:  500 * time.Millisecond,
			PollTimeout:  100 * time.Millisecond,
			MaxDatagram:  4096,
			BatchSize:    8,
			Fallback:     FallbackNone,
		},
		RTP: RTP{VideoPT: 97, AudioPT: 98},
		IDR: IDR{
			Path:            "/request/idr",
			Port:            80,
			RequestTimeout:  200 * time.Millisecond,
			QuietReset:      750 * time.Millisecond,
			MinInterval:     50 * time.Millisecond,
			MaxInterval:     500 * time.Millisecond,
			BurstCount:      3,
			BurstInterval:   50 * time.Millisecond,
			ReinitThreshold: 64,
			Enabled:         true,
		},
		Decoder: Decoder{
			Device:      "/dev/vpu",
			MaxFrames:   24,
			ReadBufSize: 1 << 20,
		},
		Presenter: Presenter{
			Device:   "/dev/dri/card0",
			MaxScale: 4.0,
		},
		Hotplug: Hotplug{
			Enabled:   true,
			Subsystem: "drm",
		},
		LogLevel: "info",
	}
}

// Load reads a YAML config file and overlays it on top of Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}
