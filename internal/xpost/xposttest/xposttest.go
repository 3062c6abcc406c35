// Package xposttest reroutes adapter traffic to an httptest server and
// records what was sent.
package xposttest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/blacktop/crosspub/internal/transport"
	"github.com/blacktop/crosspub/internal/xpost"
)

// Recorded is one request as seen by the upstream mock.
type Recorded struct {
	Method string
	Host   string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Upstream is a mock for every platform host at once.
type Upstream struct {
	Server *httptest.Server

	mu       sync.Mutex
	requests []Recorded
}

// New starts a server that records each request before handing it to h.
// The original host is available to h in the X-Original-Host header.
func New(t testing.TB, h http.HandlerFunc) *Upstream {
	t.Helper()
	u := &Upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		u.mu.Lock()
		u.requests = append(u.requests, Recorded{
			Method: r.Method,
			Host:   r.Header.Get("X-Original-Host"),
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   body,
		})
		u.mu.Unlock()
		h(w, r)
	}))
	t.Cleanup(u.Server.Close)
	return u
}

// Requests returns a copy of everything received so far.
func (u *Upstream) Requests() []Recorded {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]Recorded(nil), u.requests...)
}

// HTTPClient sends every request, whatever its host, to the mock.
func (u *Upstream) HTTPClient() *http.Client {
	target, _ := url.Parse(u.Server.URL)
	return &http.Client{Transport: &RewriteTransport{Target: target}, Timeout: 5 * time.Second}
}

// Transport wraps HTTPClient for the adapters.
func (u *Upstream) Transport() *transport.Client {
	return transport.New(u.HTTPClient())
}

// RewriteTransport rewrites scheme and host to Target.
type RewriteTransport struct {
	Target *url.URL
}

func (rt *RewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.Header.Set("X-Original-Host", req.URL.Host)
	out.URL.Scheme = rt.Target.Scheme
	out.URL.Host = rt.Target.Host
	out.Host = rt.Target.Host
	return http.DefaultTransport.RoundTrip(out)
}

// Sleeps records poll delays without sleeping.
type Sleeps struct {
	mu     sync.Mutex
	Delays []time.Duration
}

// Sleep implements xpost.Sleeper.
func (s *Sleeps) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Delays = append(s.Delays, d)
	return nil
}

// Poller returns a poller that records into s.
func (s *Sleeps) Poller(delay time.Duration, maxAttempts int) xpost.Poller {
	return xpost.Poller{Delay: delay, MaxAttempts: maxAttempts, Sleep: s.Sleep}
}

// JSON writes a raw JSON body with the given status.
func JSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
