package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const DefaultConflictRetries = 5

// retryOnConflict reruns op while it fails with ErrConcurrentUpdate. Any
// other error stops the loop immediately.
func retryOnConflict(ctx context.Context, retries uint64, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond

	return backoff.Retry(func() error {
		err := op()
		if err == nil || errors.Is(err, ErrConcurrentUpdate) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx))
}

// withKey runs fn inside the exclusive section for key.
func withKey(ctx context.Context, locker Locker, key string, fn func() error) error {
	unlock, err := locker.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	defer unlock()
	return fn()
}
