// Package probe issues single bounded-timeout requests against a running server.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 5 * time.Second

// Prober checks endpoints of a live server with GET requests.
type Prober struct {
	client *http.Client
}

// New creates a prober whose requests time out after timeout.
func New(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{client: &http.Client{Timeout: timeout}}
}

// Check requests baseURL+route once and returns the HTTP status code.
// A network failure or timeout is returned as an error. A route without a leading slash is
// joined with one.
func (p *Prober) Check(ctx context.Context, baseURL, route string) (int, error) {
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	url := strings.TrimRight(baseURL, "/") + route
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request for %s: %w", route, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
