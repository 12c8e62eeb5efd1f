package cachepolicy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vietddude/homelink/internal/infra/netmon"
	"github.com/vietddude/homelink/internal/infra/transport"
	"github.com/vietddude/homelink/internal/metrics"
)

type contextKey struct{}

// ClassHeader carries the resource class when a call site cannot attach a
// context value (e.g. requests built outside this module).
const ClassHeader = "X-Resource-Class"

// FromCacheHeader marks a response served by the HTTP cache layer; such
// responses pass through the engine untouched.
const FromCacheHeader = "X-From-Cache"

// WithClass tags a context with the request's resource class.
func WithClass(ctx context.Context, class ResourceClass) context.Context {
	return context.WithValue(ctx, contextKey{}, class)
}

// ClassFromRequest resolves the request's resource class: context tag first,
// then the class header, else ClassOther.
func ClassFromRequest(req *http.Request) ResourceClass {
	if class, ok := req.Context().Value(contextKey{}).(ResourceClass); ok {
		return class
	}
	if h := req.Header.Get(ClassHeader); h != "" {
		return ResourceClass(h)
	}
	return ClassOther
}

// Engine is a pipeline interceptor layering live network state on top of the
// static policy table.
type Engine struct {
	strategy Strategy
	observer netmon.Observer
}

// NewEngine creates a cache policy interceptor for the given strategy.
func NewEngine(strategy Strategy, observer netmon.Observer) *Engine {
	return &Engine{strategy: strategy, observer: observer}
}

// Intercept applies cache directives to the outgoing request and, on the way
// back, attaches a Cache-Control value to responses that did not come from
// cache. Disconnected with ForceCacheOffline set, the request never reaches
// the network: with no cache below the engine able to satisfy only-if-cached,
// it is answered locally the way an HTTP cache resolves the unsatisfiable
// directive.
func (e *Engine) Intercept(req *http.Request, next transport.Handler) (*http.Response, error) {
	class := ClassFromRequest(req)
	entry := Lookup(class, e.strategy)
	state := e.observer.Snapshot()

	if !state.Connected && entry.ForceCacheOffline {
		metrics.CacheDecisionsTotal.WithLabelValues(string(class), "cache_only").Inc()
		return unsatisfiable(req, entry.MaxStaleOffline), nil
	}

	maxAge := entry.MaxAgeOnline
	mode := "online"
	if state.Metered {
		mode = "metered"
		maxAge = 2 * entry.MaxAgeOnline
	}
	metrics.CacheDecisionsTotal.WithLabelValues(string(class), mode).Inc()

	resp, err := next(req)
	if err != nil || resp == nil {
		return resp, err
	}

	// Cache hits were already shaped by an earlier pass.
	if resp.Header.Get(FromCacheHeader) != "" {
		return resp, nil
	}

	scope := "public"
	if class == ClassUser {
		scope = "private"
	}
	resp.Header.Set("Cache-Control", fmt.Sprintf("%s, max-age=%d, stale-while-revalidate=%d",
		scope, seconds(maxAge), seconds(entry.MaxStaleOffline/2)))

	// Synthesize a validator when the upstream omitted one, so revalidation
	// has something to work with.
	if resp.Header.Get("ETag") == "" && resp.Header.Get("Last-Modified") == "" {
		resp.Header.Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	}

	return resp, nil
}

// unsatisfiable is the local answer to a cache-only request that nothing can
// serve, the same 504 an HTTP cache synthesizes for only-if-cached with no
// stored response (RFC 9111). The directive the downstream cache would have
// seen is echoed on the response for diagnosis.
func unsatisfiable(req *http.Request, maxStale time.Duration) *http.Response {
	header := make(http.Header)
	header.Set("Cache-Control", fmt.Sprintf("only-if-cached, max-stale=%d", seconds(maxStale)))
	return &http.Response{
		Status:     "504 Unsatisfiable Request (only-if-cached)",
		StatusCode: http.StatusGatewayTimeout,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     header,
		Body:       http.NoBody,
		Request:    req,
	}
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}
