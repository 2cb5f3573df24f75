package shared

import (
	"context"
	"regexp"
)

// DefaultMaxAttempts is used when a RetryPolicy leaves MaxAttempts unset.
const DefaultMaxAttempts = 3

// RetryPolicy bounds how often a suspend-capable operation is attempted.
// Only errors accepted by IsRetryable are retried; everything else, and the
// last error after MaxAttempts, is returned as-is.
type RetryPolicy struct {
	MaxAttempts int
	IsRetryable func(error) bool
	// OnRetry is called before each repeated attempt.
	OnRetry func(attempt int, err error)
}

// NewPatternRetryPolicy returns a policy that retries errors whose message
// matches pattern.
func NewPatternRetryPolicy(maxAttempts int, pattern *regexp.Regexp) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		IsRetryable: func(err error) bool {
			return err != nil && pattern.MatchString(err.Error())
		},
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// Do runs op until it succeeds, fails with a non-retryable error, the context
// is done, or the attempt budget is spent.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Retry(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Retry is the value-returning form of RetryPolicy.Do.
func Retry[T any](ctx context.Context, p RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	limit := p.attempts()
	for attempt := 1; attempt <= limit; attempt++ {
		result, err = op(ctx)
		if err == nil {
			return result, nil
		}
		if attempt == limit || p.IsRetryable == nil || !p.IsRetryable(err) {
			return result, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
	}
	return result, err
}
