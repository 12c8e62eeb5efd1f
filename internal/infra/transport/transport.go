// Package transport builds the HTTP pipeline used for all backend requests:
// per-server client construction (timeout, credential injection, TLS trust)
// and the interceptor contract that the resilience policies attach to.
package transport

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/vietddude/homelink/internal/core/domain"
)

// Handler continues an in-flight request down the pipeline.
type Handler func(*http.Request) (*http.Response, error)

// Interceptor wraps one request/response exchange. Implementations either
// call next (possibly more than once) or synthesize a response themselves.
type Interceptor interface {
	Intercept(req *http.Request, next Handler) (*http.Response, error)
}

// InterceptorFunc adapts a function to the Interceptor interface.
type InterceptorFunc func(req *http.Request, next Handler) (*http.Response, error)

func (f InterceptorFunc) Intercept(req *http.Request, next Handler) (*http.Response, error) {
	return f(req, next)
}

type chainTripper struct {
	handler Handler
}

func (c *chainTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.handler(req)
}

// Chain composes interceptors around a base round tripper. The first
// interceptor sees the request first.
func Chain(base http.RoundTripper, interceptors ...Interceptor) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	handler := base.RoundTrip
	for i := len(interceptors) - 1; i >= 0; i-- {
		ic := interceptors[i]
		next := handler
		handler = func(req *http.Request) (*http.Response, error) {
			return ic.Intercept(req, next)
		}
	}
	return &chainTripper{handler: handler}
}

type bearerTripper struct {
	token string
	next  http.RoundTripper
}

func (b *bearerTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") == "" && b.token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	return b.next.RoundTrip(req)
}

// NewClient builds an HTTP client for one server: its timeout, its bearer
// credential on every request and, when the server opts in, acceptance of
// otherwise-untrusted certificates. Interceptors run before credential
// injection.
func NewClient(server *domain.ServerConfig, interceptors ...Interceptor) *http.Client {
	base := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if server.AllowSelfSigned {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	var rt http.RoundTripper = &bearerTripper{token: server.Token, next: base}
	rt = Chain(rt, interceptors...)

	return &http.Client{
		Timeout:   server.Timeout(),
		Transport: rt,
	}
}
