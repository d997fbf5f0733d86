package automation

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	defaultRetryAttempts = 5
	defaultRetryDelay    = 500 * time.Millisecond
)

// Retry runs op with short backoff, retrying only the driver's transient
// sentinel errors. Hard failures abort immediately.
func Retry(ctx context.Context, op func() error) error {
	return retry.Do(
		op,
		retry.Context(ctx),
		retry.Attempts(defaultRetryAttempts),
		retry.Delay(defaultRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(Transient),
	)
}

// RetryValue is Retry for operations that produce a value.
func RetryValue[T any](ctx context.Context, op func() (T, error)) (T, error) {
	return retry.DoWithData(
		op,
		retry.Context(ctx),
		retry.Attempts(defaultRetryAttempts),
		retry.Delay(defaultRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(Transient),
	)
}
