package rtpio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/pixelpilot/pixelpilot/internal/logging"
)

// SocketConfig parameterizes the Socket Reader (spec §4.A).
type SocketConfig struct {
	Port         int
	RecvBufBytes int
	PollTimeout  time.Duration
	MaxDatagram  int
	BatchSize    int
	VideoPT      uint8
	AudioPT      uint8
}

// PacketHandler receives each successfully-classified datagram. kind is
// "video" or "audio"; payload is the RTP payload only (header stripped);
// flags carries the statistician's per-packet loss/reorder/duplicate/
// frame-end classification (spec §3 Packet Sample).
type PacketHandler func(kind string, seq uint16, ts uint32, marker bool, payload []byte, flags SampleFlag)

// Socket is the UDP receiver of spec §4.A: binds one local port, reads
// one datagram per read call (SocketConfig.BatchSize is not used by the
// read loop) with a bounded read deadline so shutdown is responsive,
// classifies and forwards payloads, and feeds every datagram (including
// malformed ones) to a Statistician.
type Socket struct {
	cfg    SocketConfig
	conn   *net.UDPConn
	stats  *Statistician
	log    *logging.Logger
	source SourceAddr
	mu     sync.Mutex
}

// NewSocket binds the configured UDP port, grounded on
// moonlight-common-go/video/stream.go's receiveLoop setup (bind, set
// receive buffer, read-deadline poll loop) with socket options applied
// via golang.org/x/sys/unix instead of the net package's narrower
// SetReadBuffer, so SO_REUSEADDR can also be set.
func NewSocket(cfg SocketConfig, log *logging.Logger) (*Socket, error) {
	if cfg.MaxDatagram <= 0 {
		cfg.MaxDatagram = 4096
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 8
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.Port})
	if err != nil {
		return nil, fmt.Errorf("rtpio: listen udp :%d: %w", cfg.Port, err)
	}

	if raw, err := conn.SyscallConn(); err == nil {
		_ = raw.Control(func(fd uintptr) {
			_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			if cfg.RecvBufBytes > 0 {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, cfg.RecvBufBytes)
			}
		})
	}

	return &Socket{
		cfg:   cfg,
		conn:  conn,
		stats: NewStatistician(cfg.VideoPT, cfg.AudioPT),
		log:   log.With("socket"),
	}, nil
}

// Stats exposes the statistician so the router and any observer can
// read counters/history without a second copy of the hot path.
func (s *Socket) Stats() *Statistician { return s.stats }

// LocalAddr returns the bound UDP address, useful when Port was 0 and
// the OS assigned an ephemeral one (e.g. in tests).
func (s *Socket) LocalAddr() *net.UDPAddr { return s.conn.LocalAddr().(*net.UDPAddr) }

// Close releases the underlying UDP socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// Run reads datagrams until ctx is cancelled, invoking handle for every
// classified packet. It never returns on malformed/unclassified
// packets — they are dropped after being recorded in the statistician,
// per spec I1.
func (s *Socket) Run(ctx context.Context, handle PacketHandler) error {
	buf := make([]byte, s.cfg.MaxDatagram)
	poll := s.cfg.PollTimeout
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(poll)); err != nil {
			return fmt.Errorf("rtpio: set read deadline: %w", err)
		}

		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("rtpio: read: %w", err)
		}

		s.mu.Lock()
		s.source.Update(addr.IP.String(), addr.Port, time.Now())
		s.mu.Unlock()

		sample, payload, err := s.stats.Observe(buf[:n], time.Now().UnixNano())
		if err != nil {
			s.log.Debug("dropping malformed datagram", "err", err, "len", n)
			continue
		}

		kind, ok := classify(sample.PT, s.cfg.VideoPT, s.cfg.AudioPT)
		if !ok {
			continue
		}
		if handle != nil {
			handle(kind, sample.Sequence, sample.Timestamp, sample.Marker, payload, sample.Flags)
		}
	}
}

// SourceAddr returns the most recently observed sender address.
func (s *Socket) SourceAddr() SourceAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}
