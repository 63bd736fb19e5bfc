package tool

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// ClientPool owns the HTTP clients shared across invocations. Clients are
// keyed by timeout and reuse one tuned transport, so connection pooling is
// shared regardless of per-tool timeout settings. The pool is safe for
// concurrent use and is never rebuilt per call; it is injected into the
// Executor at construction and drained via CloseIdle on shutdown.
type ClientPool struct {
	mu        sync.Mutex
	transport *http.Transport
	clients   map[time.Duration]*http.Client
}

// NewClientPool creates a pool with a production-tuned transport.
func NewClientPool() *ClientPool {
	return &ClientPool{
		transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          200,
			MaxIdleConnsPerHost:   50,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		clients: map[time.Duration]*http.Client{},
	}
}

// Client returns the shared client for the given total-request timeout.
func (p *ClientPool) Client(timeout time.Duration) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.clients[timeout]; ok {
		return existing
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: p.transport,
	}
	p.clients[timeout] = client
	return client
}

// CloseIdle drops idle keep-alive connections. In-flight requests are left
// to their own contexts.
func (p *ClientPool) CloseIdle() {
	p.mu.Lock()
	transport := p.transport
	p.mu.Unlock()
	if transport != nil {
		transport.CloseIdleConnections()
	}
}
