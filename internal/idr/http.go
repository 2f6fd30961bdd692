package idr

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// httpRequester issues a single-flight bounded-timeout GET to the
// sender's keyframe-request endpoint (spec §6: plain HTTP/1.1, short
// timeout, no retries beyond the engine's own schedule).
type httpRequester struct {
	client *http.Client
	url    string

	mu       sync.Mutex
	inFlight bool
}

// NewHTTPRequester builds a Requester targeting http://host:port/path.
func NewHTTPRequester(host string, port int, path string, timeout time.Duration) Requester {
	return &httpRequester{
		client: &http.Client{Timeout: timeout},
		url:    fmt.Sprintf("http://%s:%d%s", host, port, path),
	}
}

// Request performs the GET. If a previous request is still in flight it
// returns immediately without issuing a second one (spec §4.C:
// single-flight — never pile up concurrent keyframe requests).
func (r *httpRequester) Request(ctx context.Context) error {
	r.mu.Lock()
	if r.inFlight {
		r.mu.Unlock()
		return nil
	}
	r.inFlight = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inFlight = false
		r.mu.Unlock()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return fmt.Errorf("idr: build request: %w", err)
	}
	req.Header.Set("Connection", "close")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("idr: request %s: %w", r.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("idr: request %s: status %d", r.url, resp.StatusCode)
	}
	return nil
}
