package errclass

import (
	"math"
	"math/rand"
	"time"
)

const (
	maxRetryDelay   = 30 * time.Second
	delayJitterFrac = 0.1
)

// Per-kind base delays for manually-triggered retries. Kinds absent from the
// table are not worth an automatic delay suggestion and fall back to 1s.
var baseDelays = map[Kind]time.Duration{
	KindRateLimited:        5 * time.Second,
	KindTimeout:            2 * time.Second,
	KindServerError:        3 * time.Second,
	KindNetworkUnavailable: 1 * time.Second,
}

// RetryDelay suggests how long to wait before manually retrying the
// operation that produced info. Grows exponentially with the attempt number,
// with up to 10% jitter, capped at 30s. Attempt numbers start at 1.
//
// This sits outside the retry interceptor's own loop but applies the same
// backoff shape, so the two mechanisms stay policy-consistent.
func RetryDelay(info ErrorInfo, attempt int) time.Duration {
	base, ok := baseDelays[info.Kind]
	if !ok {
		base = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}

	jitter := delay * delayJitterFrac * rand.Float64()
	d := time.Duration(delay + jitter)
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}
