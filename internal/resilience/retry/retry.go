// Package retry wraps one logical request execution with bounded retry and
// exponential backoff.
package retry

import (
	"io"
	"math"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/vietddude/homelink/internal/infra/transport"
	"github.com/vietddude/homelink/internal/metrics"
	"github.com/vietddude/homelink/internal/resilience/errclass"
)

// Config defines retry behavior.
type Config struct {
	MaxRetries      int           // additional attempts after the first
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
	JitterFraction  float64
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	MaxRetries:      3,
	InitialDelay:    1 * time.Second,
	MaxDelay:        10 * time.Second,
	BackoffMultiple: 2.0,
	JitterFraction:  0.1,
}

// Stats are aggregate counters, safe under concurrent in-flight requests.
type Stats struct {
	TotalAttempts int64
	Successful    int64
	Retried       int64
}

// Policy is a pipeline interceptor retrying transient failures.
type Policy struct {
	cfg Config

	totalAttempts atomic.Int64
	successful    atomic.Int64
	retried       atomic.Int64
}

// NewPolicy creates a retry interceptor. Zero config fields fall back to the
// defaults.
func NewPolicy(cfg Config) *Policy {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	if cfg.BackoffMultiple <= 0 {
		cfg.BackoffMultiple = DefaultConfig.BackoffMultiple
	}
	if cfg.JitterFraction <= 0 {
		cfg.JitterFraction = DefaultConfig.JitterFraction
	}
	return &Policy{cfg: cfg}
}

// Stats returns a snapshot of the aggregate counters.
func (p *Policy) Stats() Stats {
	return Stats{
		TotalAttempts: p.totalAttempts.Load(),
		Successful:    p.successful.Load(),
		Retried:       p.retried.Load(),
	}
}

// Intercept executes the request, retrying transient failures with
// exponential backoff. Exhausting all retries returns the final unsuccessful
// response, or the final transport error if the last attempt produced no
// response.
func (p *Policy) Intercept(req *http.Request, next transport.Handler) (*http.Response, error) {
	maxAttempts := p.cfg.MaxRetries + 1

	var lastResp *http.Response
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			// Rewind before touching the prior response: a non-rewindable
			// request hands that response back intact, body unread.
			rewound, rewindErr := rewind(req)
			if rewindErr != nil {
				return lastResp, lastErr
			}
			req = rewound
			if lastResp != nil {
				drain(lastResp)
			}
			p.retried.Add(1)
			metrics.RequestRetriesTotal.Inc()

			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(p.backoff(attempt - 1)):
			}
		}

		p.totalAttempts.Add(1)
		resp, err := next(req)
		lastResp, lastErr = resp, err

		if err != nil {
			if errclass.Classify(err).Retryable {
				continue
			}
			return nil, err
		}

		if resp.StatusCode < 400 {
			p.successful.Add(1)
			return resp, nil
		}

		if !retryableStatus(resp.StatusCode, attempt) {
			return resp, nil
		}
	}

	return lastResp, lastErr
}

// retryableStatus decides retry eligibility for an HTTP status. 401/403 are
// retried only off the first attempt, to ride out a credential-refresh race.
func retryableStatus(status, attempt int) bool {
	switch status {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	case http.StatusUnauthorized, http.StatusForbidden:
		return attempt == 1
	default:
		return false
	}
}

func (p *Policy) backoff(attempt int) time.Duration {
	delay := float64(p.cfg.InitialDelay) * math.Pow(p.cfg.BackoffMultiple, float64(attempt-1))
	if delay > float64(p.cfg.MaxDelay) {
		delay = float64(p.cfg.MaxDelay)
	}
	jitter := delay * p.cfg.JitterFraction * rand.Float64()
	return time.Duration(delay + jitter)
}

// rewind prepares a request for reissue. Requests with a consumed one-shot
// body cannot be retried.
func rewind(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, io.ErrNoProgress
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Body = body
	return clone, nil
}

func drain(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}
}
