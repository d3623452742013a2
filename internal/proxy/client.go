// Package proxy forwards canonical payloads to tenant upstreams over a
// per-base-URL pool of HTTP clients.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Auth is a basic-auth credential pair for an upstream call.
type Auth struct {
	User string
	Pass string
}

// Pool lazily creates one pooled HTTP client per upstream base URL. Clients
// are shared across requests and never closed during the process lifetime;
// concurrent first-use converges on a single instance under the mutex.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*http.Client
	timeout time.Duration
}

// NewPool creates a client pool with a global per-request timeout.
func NewPool(timeout time.Duration) *Pool {
	return &Pool{
		clients: make(map[string]*http.Client),
		timeout: timeout,
	}
}

func (p *Pool) client(baseURL string) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[baseURL]; ok {
		return c
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	c := &http.Client{Transport: transport, Timeout: p.timeout}
	p.clients[baseURL] = c
	return c
}

// Post sends body as JSON to baseURL+path. Transport errors are returned as
// errors; HTTP status handling (5xx vs pass-through 4xx) is the caller's
// concern, Post reports whatever the upstream answered.
func (p *Pool) Post(ctx context.Context, baseURL, path string, body []byte, auth *Auth) (int, []byte, error) {
	url := strings.TrimRight(baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("creating upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if auth != nil {
		req.SetBasicAuth(auth.User, auth.Pass)
	}

	resp, err := p.client(baseURL).Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("calling upstream: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading upstream response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
