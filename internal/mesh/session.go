// Package mesh talks to the dispatch server: polling for tasks and
// submitting results over one shared HTTP session.
package mesh

import (
	"net/http"
	"sync"
	"time"
)

// Session is the single connection pool shared by every poll loop.
// It is safe for concurrent use and closed exactly once.
type Session struct {
	client    *http.Client
	closeOnce sync.Once
	closed    chan struct{}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithTransport replaces the default transport.
func WithTransport(rt http.RoundTripper) SessionOption {
	return func(s *Session) {
		if rt != nil {
			s.client.Transport = rt
		}
	}
}

// NewSession creates a session. Request deadlines come from the caller's
// context, so the client itself has no timeout.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		client: &http.Client{Transport: newTransport()},
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConnsPerHost = 32
	t.IdleConnTimeout = 90 * time.Second
	return t
}

// HTTPClient returns the underlying client.
func (s *Session) HTTPClient() *http.Client {
	return s.client
}

// Close releases idle connections. Calls after the first are no-ops.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.client.CloseIdleConnections()
		close(s.closed)
	})
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
