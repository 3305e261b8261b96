package retry

import (
	"context"
	"time"

	apperrors "github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/errors"
)

// Do runs fn up to attempts times, sleeping delay between tries. Only
// transient errors are retried; any other kind returns immediately.
func Do(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if apperrors.KindOf(err) != apperrors.KindTransient {
			return err
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
