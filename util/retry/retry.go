package retry

import (
	"context"
	"time"

	"github.com/bsv-blockchain/richlist/ulogger"
)

type options struct {
	retryCount          int
	backoffMultiplier   int
	backoffDurationType time.Duration
	message             string
	exponential         bool
	backoffFactor       float64
	maxBackoff          time.Duration
	retryIf             func(error) bool
}

type Option func(*options)

func WithRetryCount(count int) Option {
	return func(o *options) { o.retryCount = count }
}

func WithBackoffMultiplier(multiplier int) Option {
	return func(o *options) { o.backoffMultiplier = multiplier }
}

func WithBackoffDurationType(d time.Duration) Option {
	return func(o *options) { o.backoffDurationType = d }
}

func WithMessage(message string) Option {
	return func(o *options) { o.message = message }
}

func WithExponentialBackoff() Option {
	return func(o *options) { o.exponential = true }
}

func WithBackoffFactor(factor float64) Option {
	return func(o *options) { o.backoffFactor = factor }
}

func WithMaxBackoff(d time.Duration) Option {
	return func(o *options) { o.maxBackoff = d }
}

// WithRetryIf stops retrying as soon as f returns false for an error.
func WithRetryIf(f func(error) bool) Option {
	return func(o *options) { o.retryIf = f }
}

// Retry calls f until it succeeds, the attempts are used up, the context is done or the
// error is rejected by the WithRetryIf predicate. The last result and error are returned.
func Retry[T any](ctx context.Context, logger ulogger.Logger, f func() (T, error), opts ...Option) (T, error) {
	o := &options{
		retryCount:          3,
		backoffMultiplier:   2,
		backoffDurationType: time.Second,
		message:             "retrying",
		backoffFactor:       2.0,
		maxBackoff:          30 * time.Second,
	}

	for _, opt := range opts {
		opt(o)
	}

	var (
		result T
		err    error
	)

	backoff := o.backoffDurationType

	for i := 0; i < o.retryCount; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}

		result, err = f()
		if err == nil {
			return result, nil
		}

		if o.retryIf != nil && !o.retryIf(err) {
			return result, err
		}

		if i == o.retryCount-1 {
			break
		}

		logger.Warnf("%s (attempt %d/%d): %v", o.message, i+1, o.retryCount, err)

		if o.exponential {
			if sleepErr := sleepFunc(ctx, backoff); sleepErr != nil {
				return result, sleepErr
			}

			backoff = CappedExponentialBackoff(backoff, o.backoffFactor, o.maxBackoff)
		} else if sleepErr := BackoffAndSleep(ctx, i, o.backoffMultiplier, o.backoffDurationType); sleepErr != nil {
			return result, sleepErr
		}
	}

	return result, err
}
