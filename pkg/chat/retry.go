package chat

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Retry defaults.
const (
	DefaultInitialBackoff = 200 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
)

// RetryPolicy controls the Retrying decorator.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialBackoff doubles after every retry up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// RequestsPerSecond paces calls. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int
}

// Retrying decorates a provider with rate limiting and retries of
// rate-limit and server errors.
type Retrying struct {
	Provider
	policy  RetryPolicy
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps p with policy.
func NewRetrying(p Provider, policy RetryPolicy) *Retrying {
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = DefaultInitialBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = DefaultMaxBackoff
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	r := &Retrying{Provider: p, policy: policy, sleep: sleepCtx}
	if policy.RequestsPerSecond > 0 {
		burst := policy.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(policy.RequestsPerSecond), burst)
	}
	return r
}

// Unwrap returns the decorated provider.
func (r *Retrying) Unwrap() Provider { return r.Provider }

// Complete retries the wrapped Complete.
func (r *Retrying) Complete(ctx context.Context, req Request) (string, error) {
	return r.do(ctx, func(ctx context.Context) (string, error) {
		return r.Provider.Complete(ctx, req)
	})
}

// Stream retries the wrapped Stream only while no fragment was delivered.
func (r *Retrying) Stream(ctx context.Context, req Request, onDelta DeltaFunc) (string, error) {
	delivered := false
	return r.do(ctx, func(ctx context.Context) (string, error) {
		full, err := r.Provider.Stream(ctx, req, func(delta, full string) {
			delivered = true
			if onDelta != nil {
				onDelta(delta, full)
			}
		})
		if err != nil && delivered {
			return full, permanent{err}
		}
		return full, err
	})
}

type permanent struct{ error }

func (p permanent) Unwrap() error { return p.error }

func (r *Retrying) do(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	backoff := r.policy.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if p, ok := err.(permanent); ok {
			return out, p.error
		}
		lastErr = err
		if !IsRetryable(err) || attempt == r.policy.MaxRetries {
			break
		}

		if err := r.sleep(ctx, backoff); err != nil {
			return "", err
		}
		backoff *= 2
		if backoff > r.policy.MaxBackoff {
			backoff = r.policy.MaxBackoff
		}
	}

	if r.policy.MaxRetries > 0 && IsRetryable(lastErr) {
		return "", fmt.Errorf("chat: %s: max retries reached: %w", r.Name(), lastErr)
	}
	return "", lastErr
}

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
