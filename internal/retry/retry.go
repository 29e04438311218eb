// Package retry wraps avast/retry-go with an exponential backoff policy.
//
//	r := retry.New(retry.WithAttempts(5))
//	err := r.Execute(ctx, func() error { return dial(ctx) })
package retry

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v4"
)

// Retry executes an operation with automatic retries.
type Retry interface {
	// Execute runs operation until it succeeds, attempts are exhausted, or ctx is done.
	// The operation should be idempotent.
	Execute(ctx context.Context, operation func() error) error
}

// config holds internal settings for the retry mechanism.
type config struct {
	attempts    uint          // maximum number of attempts, including the first
	delay       time.Duration // base delay between attempts
	maxDelay    time.Duration // cap on the backoff delay
	lastErrOnly bool          // return only the last error
}

// Option configures the retry mechanism.
type Option func(*config)

type retrier struct {
	cfg config
}

var _ Retry = (*retrier)(nil)

// New creates a Retry. Defaults: 3 attempts, 1s base delay, 5s max delay,
// exponential backoff, last error only.
func New(opts ...Option) Retry {
	cfg := config{
		attempts:    3,
		delay:       1 * time.Second,
		maxDelay:    5 * time.Second,
		lastErrOnly: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &retrier{cfg: cfg}
}

// Execute implements Retry.
func (r *retrier) Execute(ctx context.Context, operation func() error) error {
	return retry.Do(operation,
		retry.Attempts(r.cfg.attempts),
		retry.Delay(r.cfg.delay),
		retry.MaxDelay(r.cfg.maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(r.cfg.lastErrOnly),
		retry.Context(ctx),
	)
}

// WithAttempts sets the maximum number of attempts (including the initial attempt).
func WithAttempts(n uint) Option {
	return func(c *config) {
		c.attempts = n
	}
}

// WithDelay sets the base delay between attempts.
func WithDelay(d time.Duration) Option {
	return func(c *config) {
		c.delay = d
	}
}

// WithMaxDelay caps the exponential growth of the delay.
func WithMaxDelay(d time.Duration) Option {
	return func(c *config) {
		c.maxDelay = d
	}
}

// WithLastErrorOnly sets whether to return only the last error.
func WithLastErrorOnly(b bool) Option {
	return func(c *config) {
		c.lastErrOnly = b
	}
}

// Unrecoverable marks err so that Execute stops retrying immediately.
func Unrecoverable(err error) error {
	return retry.Unrecoverable(err)
}
