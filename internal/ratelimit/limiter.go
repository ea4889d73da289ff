// Package ratelimit caps outbound provider calls with a token bucket.
// One limiter is shared by every campaign dispatching under the same
// provider credential, so the aggregate throughput stays within the
// provider's limit no matter how many campaigns run at once.
package ratelimit

import (
	"context"
	"errors"
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// DefaultRatePerSec is the provider's documented throughput ceiling.
const DefaultRatePerSec = 29

// ErrAborted is returned when the caller's context is cancelled while
// waiting for a token. No token is consumed.
var ErrAborted = errors.New("rate limiter wait aborted")

type Limiter struct {
	bucket *rate.Limiter
}

func New(perSec float64, burst int) *Limiter {
	if perSec <= 0 {
		perSec = DefaultRatePerSec
	}
	if burst <= 0 {
		burst = int(math.Ceil(perSec))
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(perSec), burst)}
}

// Acquire blocks until a token is available. A cancelled context
// abandons the wait and surfaces ErrAborted so the caller can tell a
// pause/cancel apart from a send failure.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.bucket.Wait(ctx); err != nil {
		return ErrAborted
	}
	return nil
}

// Registry hands out one shared limiter per provider credential.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	perSec   float64
	burst    int
}

func NewRegistry(perSec float64, burst int) *Registry {
	return &Registry{
		limiters: make(map[string]*Limiter),
		perSec:   perSec,
		burst:    burst,
	}
}

// For returns the limiter for a credential, creating it on first use.
func (r *Registry) For(credential string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[credential]
	if !ok {
		l = New(r.perSec, r.burst)
		r.limiters[credential] = l
	}
	return l
}
