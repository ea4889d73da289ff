package engine

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy bounds per-recipient delivery attempts. Only failures the
// provider flags as retryable are retried; the delay doubles per attempt
// with jitter so retries from concurrent workers spread out.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
}

// Backoff returns the delay before the next attempt. attempt is
// 1-based: the delay after the first failed attempt is roughly
// BaseDelay, then doubles, each with up to 50% jitter added.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d + jitter
}

// sleepCtx waits for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
