package core

import (
	"context"
	"sync"
	"time"

	"github.com/pixelpilot/pixelpilot/internal/idr"
	"github.com/pixelpilot/pixelpilot/internal/rtpio"
)

// sourceHostRequester targets the IDR HTTP GET at whichever peer the
// socket last observed sending RTP (spec §6 wire output: "HTTP/1.1 to
// <source_ip>:<idr_port>"), since the sender's address is only known
// once the first datagram arrives, not at config time. It rebuilds the
// inner idr.Requester only when the observed source IP changes.
type sourceHostRequester struct {
	socket  *rtpio.Socket
	port    int
	path    string
	timeout time.Duration

	mu     sync.Mutex
	cached string
	inner  idr.Requester
}

func newSourceHostRequester(socket *rtpio.Socket, port int, path string, timeout time.Duration) *sourceHostRequester {
	return &sourceHostRequester{socket: socket, port: port, path: path, timeout: timeout}
}

// Request resolves the current source address and issues the GET. It
// declines without error if no sender has been observed yet — there is
// nothing to send a keyframe request to.
func (r *sourceHostRequester) Request(ctx context.Context) error {
	addr := r.socket.SourceAddr()
	if addr.IP == "" {
		return nil
	}

	r.mu.Lock()
	if r.inner == nil || r.cached != addr.IP {
		r.inner = idr.NewHTTPRequester(addr.IP, r.port, r.path, r.timeout)
		r.cached = addr.IP
	}
	inner := r.inner
	r.mu.Unlock()

	return inner.Request(ctx)
}
